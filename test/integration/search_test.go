// Package integration exercises the full index lifecycle over a real
// directory vault: initial build, live filesystem changes, shutdown and
// snapshot-backed restart.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shirabe/internal/commands"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/coordinator"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vault"
)

func testConfig(vaultDir, dataDir string) *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DataDir = dataDir
	cfg.Vault.Roots = []string{vaultDir}
	cfg.Vault.Extensions = []string{".md", ".txt"}
	cfg.Index.DebounceMillis = 20
	cfg.Index.JournalFlushMillis = 20
	return cfg
}

func startCoordinator(t *testing.T, cfg *config.Config) (*coordinator.Coordinator, *vault.DirSource) {
	t.Helper()
	source := vault.NewDirSource(cfg.Vault.Roots, cfg.Vault.Extensions, cfg.Vault.RecursiveOrDefault())
	coord, err := coordinator.New(cfg, source, commands.NewStaticRegistry())
	if err != nil {
		t.Fatal(err)
	}
	source.OnChange(coord.HandleChange)
	if err := coord.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return coord, source
}

func searchFiles(t *testing.T, coord *coordinator.Coordinator, query string) *models.SearchResponse {
	t.Helper()
	resp, err := coord.Search(context.Background(), models.SearchQuery{Mode: models.ModeFiles, Query: query})
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func waitForHit(t *testing.T, coord *coordinator.Coordinator, query, wantPath string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp := searchFiles(t, coord, query)
		for _, hit := range resp.Results {
			if hit.Document != nil && hit.Document.Path == wantPath {
				return
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("never found %q for query %q", wantPath, query)
}

func TestIndexLifecycle(t *testing.T) {
	vaultDir := t.TempDir()
	dataDir := t.TempDir()
	notePath := filepath.Join(vaultDir, "weekly meeting.md")
	if err := os.WriteFile(notePath, []byte("# Meeting agenda\n\n## Action items\n"), 0644); err != nil {
		t.Fatal(err)
	}

	coord, source := startCoordinator(t, testConfig(vaultDir, dataDir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := source.Start(ctx); err != nil {
		t.Fatal(err)
	}

	resp := searchFiles(t, coord, "meeting")
	if resp.Total != 1 || resp.Results[0].Document.Path != notePath {
		t.Fatalf("initial build: got %+v", resp.Results)
	}
	heads, err := coord.Search(context.Background(), models.SearchQuery{Mode: models.ModeHeadings, Query: "agenda"})
	if err != nil {
		t.Fatal(err)
	}
	if heads.Total != 1 || heads.Results[0].Heading.Text != "Meeting agenda" {
		t.Fatalf("heading search: got %+v", heads.Results)
	}

	// A live write must become searchable without any rebuild.
	newPath := filepath.Join(vaultDir, "groceries.md")
	if err := os.WriteFile(newPath, []byte("# Shopping list\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForHit(t, coord, "groceries", newPath)

	source.Stop()
	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Restart over the same data dir: the snapshot answers immediately.
	coord2, source2 := startCoordinator(t, testConfig(vaultDir, dataDir))
	defer source2.Stop()
	defer coord2.Shutdown(context.Background())

	if !coord2.Status().FastLoaded {
		t.Error("restart should take the snapshot fast path")
	}
	resp = searchFiles(t, coord2, "groceries")
	if resp.Total != 1 || resp.Results[0].Document.Path != newPath {
		t.Errorf("restart search: got %+v", resp.Results)
	}
}

func TestDeleteAndRenamePropagate(t *testing.T) {
	vaultDir := t.TempDir()
	dataDir := t.TempDir()
	keepPath := filepath.Join(vaultDir, "keep.md")
	dropPath := filepath.Join(vaultDir, "drop.md")
	for _, p := range []string{keepPath, dropPath} {
		if err := os.WriteFile(p, []byte("# Note\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	coord, source := startCoordinator(t, testConfig(vaultDir, dataDir))
	defer coord.Shutdown(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := source.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer source.Stop()

	if err := os.Remove(dropPath); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if searchFiles(t, coord, "drop").Total == 0 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if got := searchFiles(t, coord, "drop"); got.Total != 0 {
		t.Errorf("deleted file still searchable: %+v", got.Results)
	}

	renamed := filepath.Join(vaultDir, "kept.md")
	if err := os.Rename(keepPath, renamed); err != nil {
		t.Fatal(err)
	}
	waitForHit(t, coord, "kept", renamed)
}
