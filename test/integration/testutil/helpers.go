//go:build integration

package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
)

// SeedLogin records a login so the name resolves to id.
func (env *TestEnv) SeedLogin(name string, id uuid.UUID, ip string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := env.Services.Engine.RecordLogin(ctx, domain.LoginRecord{UUID: id, Name: name, IP: ip})
	if err != nil {
		env.t.Fatalf("SeedLogin: %v", err)
	}
}

// ReporterToken issues a reporting API token with role.
func (env *TestEnv) ReporterToken(role string) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(uuid.New(), "it-reporter", role)
	if err != nil {
		env.t.Fatalf("ReporterToken: %v", err)
	}
	return token
}

// AuthGET performs an authenticated GET against the test server.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET: build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}
