package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"github.com/MrEthical07/goSyncAuth/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	login  goSyncAuth.LoginResponse
	err    error
	gotReq goSyncAuth.AuthRequest
	renew  goSyncAuth.RenewResponse
	gotTok string
}

func (f *fakeAuth) Login(_ context.Context, req goSyncAuth.AuthRequest) (goSyncAuth.LoginResponse, error) {
	f.gotReq = req
	return f.login, f.err
}

func (f *fakeAuth) RenewToken(_ context.Context, token string) (goSyncAuth.RenewResponse, error) {
	f.gotTok = token
	if f.err != nil {
		return goSyncAuth.RenewResponse{}, f.err
	}
	return f.renew, nil
}

func newTestRouter(auth authService) http.Handler {
	return routes{
		auth: auth,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}.router()
}

func post(t *testing.T, h http.Handler, path, body, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "198.51.100.7:40000"
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccessReturnsToken(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	auth := &fakeAuth{login: goSyncAuth.LoginResponse{
		AuthResult: goSyncAuth.AuthResult{
			Success:    true,
			Outcome:    goSyncAuth.OutcomeSuccess,
			AccessType: jwt.AccessSecretKey,
			UID:        "UID1",
			PrimaryUID: "UID1",
			Alias:      "alice",
		},
		Message:   goSyncAuth.OutcomeSuccess.Message(),
		Token:     "signed",
		ExpiresAt: exp,
	}}

	rec := post(t, newTestRouter(auth), "/v1/auth/login",
		`{"hashed_secret_key":"abc","character_identity":"Alice@Realm"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "success", out.Outcome)
	assert.Equal(t, "signed", out.Token)
	assert.Equal(t, "UID1", out.UID)
	require.NotNil(t, out.ExpiresAt)
	assert.True(t, exp.Equal(*out.ExpiresAt))

	assert.Equal(t, "198.51.100.7", auth.gotReq.IP)
	assert.Equal(t, "abc", auth.gotReq.HashedSecretKey)
	assert.Equal(t, "Alice@Realm", auth.gotReq.CharacterIdentity)
}

func TestLoginOutcomeStatuses(t *testing.T) {
	cases := map[goSyncAuth.Outcome]int{
		goSyncAuth.OutcomeInvalidCredentials: http.StatusUnauthorized,
		goSyncAuth.OutcomeTempBanned:         http.StatusTooManyRequests,
		goSyncAuth.OutcomePermaBanned:        http.StatusForbidden,
		goSyncAuth.OutcomeIdentityBanned:     http.StatusForbidden,
		goSyncAuth.OutcomeAlreadyLoggedIn:    http.StatusConflict,
		goSyncAuth.OutcomeUnknownError:       http.StatusServiceUnavailable,
	}
	for outcome, status := range cases {
		t.Run(outcome.String(), func(t *testing.T) {
			auth := &fakeAuth{login: goSyncAuth.LoginResponse{
				AuthResult: goSyncAuth.AuthResult{Outcome: outcome, UID: "UID9"},
				Message:    outcome.Message(),
			}}
			rec := post(t, newTestRouter(auth), "/v1/auth/login", `{"hashed_secret_key":"x","character_identity":"A@B"}`, "")
			assert.Equal(t, status, rec.Code)

			var out loginResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
			assert.Equal(t, outcome.Message(), out.Message)
			assert.Empty(t, out.Token)
			assert.Empty(t, out.UID)
		})
	}
}

func TestLoginRejectsMalformedInput(t *testing.T) {
	h := newTestRouter(&fakeAuth{})
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/v1/auth/login", `{`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/v1/auth/login", `{"password":"x"}`, "").Code)

	auth := &fakeAuth{err: fmt.Errorf("%w: %w", goSyncAuth.ErrBadRequest, goSyncAuth.ErrMissingIdentity)}
	assert.Equal(t, http.StatusBadRequest, post(t, newTestRouter(auth), "/v1/auth/login", `{}`, "").Code)

	auth = &fakeAuth{err: goSyncAuth.ErrEngineNotReady}
	assert.Equal(t, http.StatusInternalServerError, post(t, newTestRouter(auth), "/v1/auth/login", `{}`, "").Code)
}

func TestRenew(t *testing.T) {
	auth := &fakeAuth{renew: goSyncAuth.RenewResponse{Token: "fresh", UID: "UID1", AccessType: jwt.AccessSecretKey}}
	h := newTestRouter(auth)

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/v1/auth/renew", "", "").Code)

	rec := post(t, h, "/v1/auth/renew", "", "Bearer old")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old", auth.gotTok)

	var out renewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "fresh", out.Token)
	assert.Equal(t, "secret_key", out.AccessType)

	auth.err = fmt.Errorf("%w: expired", goSyncAuth.ErrTokenInvalid)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/v1/auth/renew", "", "Bearer old").Code)

	auth.err = goSyncAuth.ErrIdentityBanned
	assert.Equal(t, http.StatusForbidden, post(t, h, "/v1/auth/renew", "", "Bearer old").Code)

	auth.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, post(t, h, "/v1/auth/renew", "", "Bearer old").Code)
}

func TestConfigEndpointBehindMiddleware(t *testing.T) {
	var reached bool
	rt := routes{
		auth: &fakeAuth{},
		config: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
		}),
		internal: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") == "" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h := rt.router()

	req := httptest.NewRequest(http.MethodGet, "/configuration/GoSyncAuth/GetConfigurationEntry", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)

	req.Header.Set("Authorization", "Bearer internal")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.True(t, reached)
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	newTestRouter(&fakeAuth{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
