package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attaboy/warden/internal/auth"
	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/guard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct{}

func (stubReader) Recent(context.Context, int) ([]domain.Punishment, error) {
	return []domain.Punishment{{PublicID: "ABC123"}}, nil
}

func (stubReader) FindByPublicID(_ context.Context, code string) (*domain.Punishment, error) {
	return nil, domain.ErrNotFound("punishment", code)
}

func (stubReader) LookupIdentity(_ context.Context, name string) (*domain.Identity, error) {
	return nil, domain.ErrUnknownIdentity(name)
}

func (stubReader) GetHistory(context.Context, uuid.UUID, int) ([]domain.Punishment, error) {
	return nil, nil
}

func (stubReader) ListPendingAppeals(context.Context, int) ([]domain.Appeal, error) {
	return nil, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newRouter(t *testing.T, rl *guard.RateLimiter) (http.Handler, *auth.JWTManager) {
	t.Helper()
	mgr := auth.NewJWTManager("router-test-secret", time.Hour)
	return NewRouter(RouterDeps{
		Reader:      stubReader{},
		DB:          okPinger{},
		JWTMgr:      mgr,
		RateLimiter: rl,
		CORSOrigins: "*",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), mgr
}

func serve(h http.Handler, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRouter_PublicEndpoints(t *testing.T) {
	h, _ := newRouter(t, nil)

	w := serve(h, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = serve(h, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_APIRequiresToken(t *testing.T) {
	h, mgr := newRouter(t, nil)

	assert.Equal(t, http.StatusUnauthorized, serve(h, "/api/punishments/recent", "").Code)

	viewer, err := mgr.GenerateToken(uuid.New(), "bot", auth.RoleViewer)
	require.NoError(t, err)
	w := serve(h, "/api/punishments/recent?limit=1", viewer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ABC123")

	assert.Equal(t, http.StatusNotFound, serve(h, "/api/punishments/ZZZZZZ", viewer).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "/api/appeals/pending", viewer).Code)

	moderator, err := mgr.GenerateToken(uuid.New(), "mod", auth.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, "/api/appeals/pending", moderator).Code)
}

func TestRouter_RateLimited(t *testing.T) {
	h, mgr := newRouter(t, guard.NewRateLimiter(1, time.Minute))
	token, err := mgr.GenerateToken(uuid.New(), "bot", auth.RoleViewer)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(h, "/api/punishments/recent", token).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "/api/punishments/recent", token).Code)

	other, err := mgr.GenerateToken(uuid.New(), "dashboard", auth.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, "/api/punishments/recent", other).Code, "each reporter has its own window")
	assert.Equal(t, http.StatusOK, serve(h, "/health", "").Code, "health is not rate limited")
}
