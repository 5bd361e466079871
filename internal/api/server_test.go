package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/extractor"
	"github.com/nugget/memoraid/internal/forgetter"
	"github.com/nugget/memoraid/internal/manager"
	"github.com/nugget/memoraid/internal/retriever"
	"github.com/nugget/memoraid/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir()+"/test.db", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := *config.Minimal()
	cfg.EpisodeCompressThreshold = 2

	ext := extractor.NewRuleExtractor(cfg.EpisodeSummaryMaxLength)
	retr := retriever.New(s, nil, nil, cfg, nil)
	forg := forgetter.New(s, cfg, nil)
	mgr := manager.New(s, nil, ext, retr, forg, cfg, nil)

	return NewServer("", 0, mgr, nil)
}

func (srv *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/start", srv.handleSessionStart)
	mux.HandleFunc("POST /session/message", srv.handleSessionMessage)
	mux.HandleFunc("POST /session/end", srv.handleSessionEnd)
	mux.HandleFunc("POST /context", srv.handleContext)
	mux.HandleFunc("GET /profile/{user_id}", srv.handleProfileGet)
	mux.HandleFunc("PUT /profile", srv.handleProfilePut)
	mux.HandleFunc("GET /stats/{user_id}", srv.handleStats)
	mux.HandleFunc("GET /export/{user_id}", srv.handleExport)
	mux.HandleFunc("POST /import", srv.handleImport)
	mux.HandleFunc("POST /maintenance/forget/{user_id}", srv.handleMaintenanceForget)
	mux.HandleFunc("POST /maintenance/cleanup", srv.handleMaintenanceCleanup)
	return mux
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	h := srv.mux()

	rec := doJSON(t, h, "POST", "/session/start", sessionStartRequest{UserID: "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("session/start: status %d body %s", rec.Code, rec.Body.String())
	}
	var started sessionStartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.SessionID == "" {
		t.Fatal("expected a non-empty session_id")
	}

	rec = doJSON(t, h, "POST", "/session/message", sessionMessageRequest{
		SessionID: started.SessionID, Role: store.RoleUser, Text: "我叫小明，我喜欢恐龙",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("session/message: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "POST", "/session/message", sessionMessageRequest{
		SessionID: started.SessionID, Role: store.RoleAssistant, Text: "你好小明！",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("session/message 2: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "POST", "/session/end", sessionEndRequest{SessionID: started.SessionID})
	if rec.Code != http.StatusOK {
		t.Fatalf("session/end: status %d body %s", rec.Code, rec.Body.String())
	}
	var ended sessionEndResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ended); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ended.Episode == nil {
		t.Fatal("expected an episode in the session/end response")
	}

	rec = doJSON(t, h, "GET", "/profile/u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile get: status %d body %s", rec.Code, rec.Body.String())
	}
	var profile store.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Name != "小明" {
		t.Errorf("expected profile name 小明, got %q", profile.Name)
	}
}

func TestSessionMessageUnknownSessionReturns404(t *testing.T) {
	srv := newTestServer(t)
	h := srv.mux()

	rec := doJSON(t, h, "POST", "/session/message", sessionMessageRequest{
		SessionID: "does-not-exist", Role: store.RoleUser, Text: "hi",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestProfileGetMissingReturns404(t *testing.T) {
	srv := newTestServer(t)
	h := srv.mux()

	rec := doJSON(t, h, "GET", "/profile/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMaintenanceCleanupOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	h := srv.mux()

	rec := doJSON(t, h, "POST", "/maintenance/cleanup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("maintenance/cleanup: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp maintenanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RemovedN != 0 {
		t.Errorf("expected 0 removed on an empty store, got %d", resp.RemovedN)
	}
}
