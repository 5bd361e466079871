package api

import (
	"encoding/json"
	"net/http"

	"github.com/nugget/memoraid/internal/store"
)

type sessionStartRequest struct {
	UserID string `json:"user_id"`
}

type sessionStartResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	sess, err := s.mgr.StartSession(r.Context(), req.UserID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, sessionStartResponse{SessionID: sess.ID}, s.logger)
}

type sessionMessageRequest struct {
	SessionID string     `json:"session_id"`
	Role      store.Role `json:"role"`
	Text      string     `json:"text"`
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	var req sessionMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.mgr.AddMessage(r.Context(), req.SessionID, req.Role, req.Text); err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, map[string]any{}, s.logger)
}

type sessionEndRequest struct {
	SessionID string `json:"session_id"`
}

type sessionEndResponse struct {
	Episode *store.Episode `json:"episode,omitempty"`
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ep, err := s.mgr.EndSession(r.Context(), req.SessionID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, sessionEndResponse{Episode: ep}, s.logger)
}

type contextRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query,omitempty"`
}

type contextResponse struct {
	Prompt   string          `json:"prompt"`
	Profile  *store.Profile  `json:"profile"`
	Facts    []store.Fact    `json:"facts"`
	Episodes []store.Episode `json:"episodes"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	userID, err := s.mgr.UserIDForSession(req.SessionID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	mc, err := s.mgr.GetMemoryContext(r.Context(), userID, req.Query)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, contextResponse{
		Prompt:   mc.SystemPrompt,
		Profile:  mc.Profile,
		Facts:    mc.Facts,
		Episodes: mc.Episodes,
	}, s.logger)
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	profile, err := s.mgr.GetProfile(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if profile == nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, profile, s.logger)
}

func (s *Server) handleProfilePut(w http.ResponseWriter, r *http.Request) {
	var p store.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if p.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := s.mgr.ReplaceProfile(r.Context(), p); err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, map[string]any{}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	stats, err := s.mgr.Stats(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, stats, s.logger)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	export, err := s.mgr.ExportUser(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, export, s.logger)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var export store.UserExport
	if err := json.NewDecoder(r.Body).Decode(&export); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.mgr.ImportUser(r.Context(), export); err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, map[string]any{}, s.logger)
}

type maintenanceResponse struct {
	RemovedN int `json:"removed_n"`
}

func (s *Server) handleMaintenanceForget(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	n, err := s.mgr.MaintenanceForget(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, maintenanceResponse{RemovedN: n}, s.logger)
}

func (s *Server) handleMaintenanceCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.mgr.MaintenanceCleanup(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, maintenanceResponse{RemovedN: n}, s.logger)
}
