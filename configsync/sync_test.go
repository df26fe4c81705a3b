package configsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

const testToken = "internal-token"

func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func primarySettings() Settings {
	s := DefaultSettings()
	s.ShardName = "main"
	s.FailedAuthForTempBan = 12
	s.WhitelistedIPs = []string{"10.0.0.1"}
	s.ServerMessage = "maintenance at 04:00"
	return s
}

func newPrimaryServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewPrimary(primarySettings()).Handler(mux.MiddlewareFunc(requireBearer)))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSecondary(t *testing.T, addr string) *Secondary {
	t.Helper()
	local := DefaultSettings()
	local.MainServerAddress = addr
	local.ShardName = "shard-2"
	s, err := NewSecondary(local, func() (string, error) { return testToken, nil }, WithRequestTimeout(time.Second))
	require.NoError(t, err)
	return s
}

func TestSettingsRole(t *testing.T) {
	require.Equal(t, RolePrimary, DefaultSettings().Role())

	s := DefaultSettings()
	s.MainServerAddress = "main:6000"
	require.Equal(t, RoleSecondary, s.Role())
}

func TestPrimaryServesLocalValues(t *testing.T) {
	p := NewPrimary(primarySettings())
	require.True(t, p.IsMain())
	require.Equal(t, 12, GetValue(p, FailedAuthForTempBan))
	require.Equal(t, "main", GetValue(p, ShardName))
	require.Equal(t, 5*time.Minute, Minutes(p, TempBanDurationInMinutes))
}

func TestSecondaryDefaultsBeforeFetchThenCached(t *testing.T) {
	srv := newPrimaryServer(t)
	s := newTestSecondary(t, srv.URL)
	require.False(t, s.IsMain())

	require.Equal(t, 99, GetValueOrDefault(s, FailedAuthForTempBan, 99))
	require.Equal(t, 5, GetValue(s, FailedAuthForTempBan), "compiled default before first fetch")
	require.Equal(t, "shard-2", GetValue(s, ShardName), "non-remote fields are always local")

	updated, failed := s.FetchAll(context.Background())
	require.Equal(t, len(RemoteFields()), updated)
	require.Zero(t, failed)

	require.Equal(t, 12, GetValueOrDefault(s, FailedAuthForTempBan, 99))
	require.Equal(t, []string{"10.0.0.1"}, GetValue(s, WhitelistedIPs))
	require.Equal(t, "maintenance at 04:00", GetValue(s, ServerMessage))
	require.Equal(t, "shard-2", GetValue(s, ShardName))

	srv.Close()
	updated, failed = s.FetchAll(context.Background())
	require.Zero(t, updated)
	require.Equal(t, len(RemoteFields()), failed)
	require.Equal(t, 12, GetValueOrDefault(s, FailedAuthForTempBan, 99), "failed fetch keeps the last good value")
}

func TestPrimaryEndpointHidesNonRemoteKeys(t *testing.T) {
	srv := newPrimaryServer(t)

	get := func(path string, auth bool) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		if auth {
			req.Header.Set("Authorization", "Bearer "+testToken)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, get("/configuration/ServerConfiguration/GetConfigurationEntry?key=failed_auth_for_temp_ban", true))
	require.Equal(t, http.StatusNotFound, get("/configuration/ServerConfiguration/GetConfigurationEntry?key=main_server_address", true))
	require.Equal(t, http.StatusNotFound, get("/configuration/ServerConfiguration/GetConfigurationEntry?key=nope", true))
	require.Equal(t, http.StatusNotFound, get("/configuration/Other/GetConfigurationEntry?key=failed_auth_for_temp_ban", true))
	require.Equal(t, http.StatusUnauthorized, get("/configuration/ServerConfiguration/GetConfigurationEntry?key=failed_auth_for_temp_ban", false))
}

func TestSecondaryRequestCarriesBearerAndDefault(t *testing.T) {
	var sawDefault atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("key") == "failed_auth_for_temp_ban" && r.URL.Query().Get("defaultValue") == "5" {
			sawDefault.Store(true)
		}
		if !strings.HasPrefix(r.URL.Path, "/configuration/ServerConfiguration/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestSecondary(t, srv.URL)
	_, failed := s.FetchAll(context.Background())
	require.Equal(t, len(RemoteFields()), failed)
	require.True(t, sawDefault.Load())
	require.Equal(t, 7, GetValueOrDefault(s, FailedAuthForTempBan, 7))
}

func TestSecondaryRunBecomesReadyAndStops(t *testing.T) {
	srv := newPrimaryServer(t)
	s := newTestSecondary(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.WaitReady(context.Background(), 2*time.Second))
	require.Equal(t, 12, GetValue(s, FailedAuthForTempBan))
	require.True(t, errors.Is(s.Run(ctx), ErrAlreadyRunning))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop on cancellation")
	}
}

func TestSecondaryWaitReadyTimesOutWhenPrimaryUnreachable(t *testing.T) {
	s := newTestSecondary(t, "127.0.0.1:1")

	start := time.Now()
	ready := s.WaitReady(context.Background(), 50*time.Millisecond)
	require.False(t, ready)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 5, GetValue(s, FailedAuthForTempBan))
}

func TestNewSecondaryRequiresMainServer(t *testing.T) {
	_, err := NewSecondary(DefaultSettings(), func() (string, error) { return "", nil })
	require.ErrorIs(t, err, ErrNoMainServer)
}
