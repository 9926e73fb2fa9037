package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/concord-im/concord/internal/auth"
	"github.com/concord-im/concord/internal/config"
	"github.com/concord-im/concord/internal/core"
	"github.com/concord-im/concord/internal/log"
	"github.com/concord-im/concord/internal/service/chat"
	"github.com/concord-im/concord/internal/store/memory"
)

// testServer bundles the running server with direct handles on its parts.
type testServer struct {
	*httptest.Server

	store    *memory.Store
	auth     *auth.Service
	chat     *chat.Service
	registry *core.Registry
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	st := memory.New()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	registry := core.NewRegistry()
	dispatch := core.NewDispatcher(registry, log.Nop())
	handshake := core.NewHandshake(registry, authService, log.Nop())
	chatService := chat.NewService(st, dispatch, log.Nop())

	server := NewServer(config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, Deps{
		Auth:      authService,
		Chat:      chatService,
		Registry:  registry,
		Handshake: handshake,
		Users:     st,
	}, log.Nop())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{
		Server:   ts,
		store:    st,
		auth:     authService,
		chat:     chatService,
		registry: registry,
	}
}

// registerUser creates an account through the REST API and returns its token
// and id.
func (ts *testServer) registerUser(t *testing.T, username, password string) (token, id string) {
	t.Helper()

	var resp AuthResponse
	status := ts.postJSON(t, "/api/users", "", RegisterRequest{Username: username, Password: password}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	return resp.Token, resp.ID
}

// postJSON posts a JSON body and decodes the JSON reply into out (when out is
// non-nil). Returns the status code.
func (ts *testServer) postJSON(t *testing.T, path, token string, body, out any) int {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

// getJSON issues a GET with the bearer token and decodes the reply.
func (ts *testServer) getJSON(t *testing.T, path, token string, out any) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}
