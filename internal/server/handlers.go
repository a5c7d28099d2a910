package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/coordinator"
	"github.com/hyperjump/shirabe/internal/engine"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Mode == "" {
		query.Mode = models.ModeFiles
	}
	s.logger.Debug("search request",
		zap.String("mode", string(query.Mode)), zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.coord.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	mode, err := models.ParseMode(queryOrDefault(r, "mode", string(models.ModeFiles)))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	extensions := r.URL.Query()["ext"]
	suggestions := s.coord.Suggestions(mode, limit, extensions)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"total":       len(suggestions),
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("rebuild requested")
	if err := s.coord.RequestRebuild(r.Context()); err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

type settingsRequest struct {
	Engine      string   `json:"engine"`
	PrebuildAll *bool    `json:"prebuild_all,omitempty"`
	Exclusions  []string `json:"exclusions,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Engine == "" {
		req.Engine = s.config.Index.Engine
	}
	name, err := engine.ParseName(req.Engine)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	prebuild := s.config.Index.PrebuildAll
	if req.PrebuildAll != nil {
		prebuild = *req.PrebuildAll
	}
	exclusions := s.config.Vault.Exclusions
	if req.Exclusions != nil {
		exclusions = req.Exclusions
	}
	s.logger.Debug("settings update request",
		zap.String("engine", string(name)), zap.Bool("prebuild_all", prebuild))
	if err := s.coord.ApplySettings(coordinator.Settings{
		Engine:      name,
		PrebuildAll: prebuild,
		Exclusions:  exclusions,
	}); err != nil {
		s.logger.Error("settings update failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.configPath != "" {
		s.configMu.Lock()
		s.config.Index.Engine = string(name)
		s.config.Index.PrebuildAll = prebuild
		s.config.Vault.Exclusions = exclusions
		err := config.Save(s.configPath, s.config)
		s.configMu.Unlock()
		if err != nil {
			s.logger.Warn("failed to persist settings", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"engine": string(name), "status": "applied"})
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("execute command request", zap.String("id", id))
	if err := s.coord.ExecuteCommand(id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "executed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.coord.Status()
	resp := map[string]interface{}{
		"ready":            st.Ready,
		"engine":           string(st.Engine),
		"fast_loaded":      st.FastLoaded,
		"documents":        st.Documents,
		"headings":         st.Headings,
		"commands":         st.Commands,
		"disk_usage_bytes": st.DiskUsageBytes,
	}
	resp["config"] = map[string]interface{}{
		"data_dir":   s.config.Storage.DataDir,
		"roots":      s.config.Vault.Roots,
		"extensions": s.config.Vault.Extensions,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryOrDefault(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
