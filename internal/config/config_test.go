package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
vault:
  roots:
    - /tmp/vault
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8686 {
		t.Errorf("server defaults: got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Index.Engine != "hybrid" {
		t.Errorf("engine default: got %q", cfg.Index.Engine)
	}
	if cfg.Index.DebounceMillis != 350 || cfg.Index.JournalFlushMillis != 500 || cfg.Index.BatchSize != 25 {
		t.Errorf("index defaults: got %+v", cfg.Index)
	}
	if cfg.Search.DefaultLimit != 50 || cfg.Search.MaxLimit != 500 {
		t.Errorf("search defaults: got %+v", cfg.Search)
	}
	if !cfg.Vault.RecursiveOrDefault() {
		t.Error("recursive should default to true when roots are set")
	}
}

func TestLoadExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  data_dir: ./data
vault:
  roots:
    - ./notes
    - /abs/vault
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DataDir != filepath.Join(dir, "data") {
		t.Errorf("data_dir: got %q", cfg.Storage.DataDir)
	}
	if cfg.Vault.Roots[0] != filepath.Join(dir, "notes") {
		t.Errorf("relative root: got %q", cfg.Vault.Roots[0])
	}
	if cfg.Vault.Roots[1] != "/abs/vault" {
		t.Errorf("absolute root should be untouched: got %q", cfg.Vault.Roots[1])
	}
	if cfg.Storage.JournalDir() != filepath.Join(dir, "data", "journal") {
		t.Errorf("journal dir: got %q", cfg.Storage.JournalDir())
	}
	if cfg.Storage.IndexDir() != filepath.Join(dir, "data", "index") {
		t.Errorf("index dir: got %q", cfg.Storage.IndexDir())
	}
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("index:\n  engine: lucene\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("unknown engine should fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Vault.Roots = []string{"/tmp/vault"}
	cfg.Vault.Exclusions = []string{"/tmp/vault/archive"}
	cfg.Index.Engine = "mini"
	cfg.Index.PrebuildAll = true

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Index.Engine != "mini" || !loaded.Index.PrebuildAll {
		t.Errorf("index: got %+v", loaded.Index)
	}
	if !reflect.DeepEqual(loaded.Vault.Exclusions, cfg.Vault.Exclusions) {
		t.Errorf("exclusions: got %v", loaded.Vault.Exclusions)
	}
}

func TestNormalizeExclusions(t *testing.T) {
	got := NormalizeExclusions([]string{" /a ", "", "/b", "/a", "  "})
	want := []string{"/a", "/b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
