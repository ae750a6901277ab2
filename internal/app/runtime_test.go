package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valuetrack/valuetrack/internal/shared"
	_ "github.com/valuetrack/valuetrack/internal/testing/guard"
)

func TestGuardEnablesTestMode(t *testing.T) {
	// The guard import sets VALUETRACK_TEST_MODE before any test runs.
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "X-Actor-ID", cfg.ActorHeader)
	require.False(t, cfg.IsProduction())
}

func TestActorMiddlewareParsesHeader(t *testing.T) {
	var gotID int64
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = shared.ActorFromContext(r.Context())
	})
	handler := ActorMiddleware("X-Actor-ID")(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-ID", "42")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, gotOK)
	require.Equal(t, int64(42), gotID)

	gotOK = false
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-ID", "not-a-number")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, gotOK)
}
