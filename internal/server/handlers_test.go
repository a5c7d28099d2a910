package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shirabe/internal/commands"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/coordinator"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vault"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DataDir = t.TempDir()
	cfg.Index.DebounceMillis = 10
	cfg.Index.JournalFlushMillis = 10

	source := vault.NewMemorySource()
	source.Put("/vault/weekly meeting.md",
		vault.FileInfo{Extension: "md", Size: 100, ModifiedTime: 1000},
		[]models.HeadingInfo{{Text: "Meeting agenda", Level: 1, Line: 1}})
	source.Put("/vault/todo.txt",
		vault.FileInfo{Extension: "txt", Size: 10, ModifiedTime: 2000}, nil)

	registry := commands.NewStaticRegistry()
	registry.Register(models.Command{ID: "app:reload", Name: "Reload vault"}, nil)

	coord, err := coordinator.New(cfg, source, registry)
	if err != nil {
		t.Fatal(err)
	}
	if err := coord.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = coord.Shutdown(context.Background()) })

	return NewServer(coord, cfg, "", zap.NewNop()), cfg
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, rec.Body.String())
	}
}

func TestHandleSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(models.SearchQuery{Mode: models.ModeFiles, Query: "meeting"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	decodeBody(t, rec, &resp)
	if resp.Total != 1 || resp.Results[0].Document.Path != "/vault/weekly meeting.md" {
		t.Errorf("response: %+v", resp)
	}
}

func TestHandleSearchDefaultsToFiles(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(`{"query":"meeting"}`)))
	rec := httptest.NewRecorder()
	srv.handleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp models.SearchResponse
	decodeBody(t, rec, &resp)
	if resp.Total != 1 || resp.Results[0].Mode != models.ModeFiles {
		t.Errorf("response: %+v", resp)
	}
}

func TestHandleSearchBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.handleSearch(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(`{"mode":"folders","query":"x"}`)))
	rec = httptest.NewRecorder()
	srv.handleSearch(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode: got %d", rec.Code)
	}
}

func TestHandleSuggestions(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions?mode=files&ext=md", nil)
	rec := httptest.NewRecorder()
	srv.handleSuggestions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp struct {
		Suggestions []models.Suggestion `json:"suggestions"`
		Total       int                 `json:"total"`
	}
	decodeBody(t, rec, &resp)
	if resp.Total != 1 || resp.Suggestions[0].Document.Path != "/vault/weekly meeting.md" {
		t.Errorf("response: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/suggestions?mode=bogus", nil)
	rec = httptest.NewRecorder()
	srv.handleSuggestions(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad mode: got %d", rec.Code)
	}
}

func TestHandleRebuild(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rebuild", nil)
	rec := httptest.NewRecorder()
	srv.handleRebuild(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSettings(t *testing.T) {
	srv, cfg := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", bytes.NewReader([]byte(`{"engine":"mini"}`)))
	rec := httptest.NewRecorder()
	srv.handleSettings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["engine"] != "mini" || resp["status"] != "applied" {
		t.Errorf("response: %+v", resp)
	}
	// No config path was given, so the in-memory config is untouched.
	if cfg.Index.Engine != "hybrid" {
		t.Errorf("config should not be rewritten without a path: %q", cfg.Index.Engine)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/settings", bytes.NewReader([]byte(`{"engine":"lucene"}`)))
	rec = httptest.NewRecorder()
	srv.handleSettings(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown engine: got %d", rec.Code)
	}
}

func TestHandleSettingsPersists(t *testing.T) {
	srv, cfg := newTestServer(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	srv.configPath = configPath

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings",
		bytes.NewReader([]byte(`{"engine":"fuse","exclusions":["/vault/archive"]}`)))
	rec := httptest.NewRecorder()
	srv.handleSettings(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}

	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Index.Engine != "fuse" {
		t.Errorf("persisted engine: got %q", saved.Index.Engine)
	}
	if len(saved.Vault.Exclusions) != 1 || saved.Vault.Exclusions[0] != "/vault/archive" {
		t.Errorf("persisted exclusions: got %v", saved.Vault.Exclusions)
	}
	if cfg.Index.Engine != "fuse" {
		t.Errorf("in-memory config: got %q", cfg.Index.Engine)
	}
}

func execCommandRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/"+id+"/execute", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleExecuteCommand(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleExecuteCommand(rec, execCommandRequest("app:reload"))
	if rec.Code != http.StatusOK {
		t.Errorf("known command: got %d, body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.handleExecuteCommand(rec, execCommandRequest("missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown command: got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, cfg := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	if resp["ready"] != true {
		t.Errorf("ready: got %v", resp["ready"])
	}
	if resp["documents"].(float64) != 2 {
		t.Errorf("documents: got %v", resp["documents"])
	}
	sub, ok := resp["config"].(map[string]interface{})
	if !ok || sub["data_dir"] != cfg.Storage.DataDir {
		t.Errorf("config block: got %v", resp["config"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health: got %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("body: %+v", resp)
	}
}
