package api

import (
	"testing"
	"time"

	"github.com/helmcode/crew-bus/internal/config"
)

func authConfig(t *testing.T) config.ServerConfig {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return config.ServerConfig{JWTSecret: "test-secret", AdminPasswordHash: hash, TokenTTL: time.Hour}
}

func TestAuth_RequiresToken(t *testing.T) {
	srv, _ := setupTestServer(t, authConfig(t))

	if rec := doRequest(srv, "GET", "/api/agents", nil); rec.Code != 401 {
		t.Errorf("no token: got %d, want 401", rec.Code)
	}
	if rec := doRequest(srv, "GET", "/api/agents", nil, "Authorization", "Bearer garbage"); rec.Code != 401 {
		t.Errorf("bad token: got %d, want 401", rec.Code)
	}
	if rec := doRequest(srv, "GET", "/health", nil); rec.Code != 200 {
		t.Errorf("health should stay open, got %d", rec.Code)
	}
}

func TestAuth_LoginFlow(t *testing.T) {
	srv, _ := setupTestServer(t, authConfig(t))

	rec := doRequest(srv, "POST", "/api/auth/login", LoginRequest{Password: "wrong"})
	if rec.Code != 401 {
		t.Fatalf("wrong password: got %d, want 401", rec.Code)
	}

	rec = doRequest(srv, "POST", "/api/auth/login", LoginRequest{Password: "hunter2"})
	if rec.Code != 200 {
		t.Fatalf("login: got %d: %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	parseJSON(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("expected a token")
	}

	rec = doRequest(srv, "GET", "/api/agents", nil, "Authorization", "Bearer "+resp.Token)
	if rec.Code != 200 {
		t.Errorf("authorized request: got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(srv, "GET", "/api/agents?token="+resp.Token, nil)
	if rec.Code != 200 {
		t.Errorf("query token: got %d", rec.Code)
	}
}

func TestAuth_ExpiredAndForeignTokens(t *testing.T) {
	srv, _ := setupTestServer(t, authConfig(t))

	expired, _, err := IssueToken("test-secret", "admin", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if rec := doRequest(srv, "GET", "/api/agents", nil, "Authorization", "Bearer "+expired); rec.Code != 401 {
		t.Errorf("expired token: got %d, want 401", rec.Code)
	}

	foreign, _, _ := IssueToken("other-secret", "admin", time.Hour, time.Now())
	if rec := doRequest(srv, "GET", "/api/agents", nil, "Authorization", "Bearer "+foreign); rec.Code != 401 {
		t.Errorf("foreign token: got %d, want 401", rec.Code)
	}
}

func TestAuth_LoginNotConfigured(t *testing.T) {
	srv, _ := setupTestServer(t)

	if rec := doRequest(srv, "POST", "/api/auth/login", LoginRequest{Password: "x"}); rec.Code != 404 {
		t.Errorf("got %d, want 404", rec.Code)
	}
	if rec := doRequest(srv, "GET", "/api/agents", nil); rec.Code != 200 {
		t.Errorf("auth disabled should allow requests, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{RatePerMinute: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		if rec := doRequest(srv, "GET", "/health", nil); rec.Code != 200 {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
	if rec := doRequest(srv, "GET", "/health", nil); rec.Code != 429 {
		t.Errorf("third request: got %d, want 429", rec.Code)
	}
}
