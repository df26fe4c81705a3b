package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"github.com/MrEthical07/goSyncAuth/configsync"
	"github.com/MrEthical07/goSyncAuth/middleware"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 8 << 10

type authService interface {
	Login(ctx context.Context, req goSyncAuth.AuthRequest) (goSyncAuth.LoginResponse, error)
	RenewToken(ctx context.Context, token string) (goSyncAuth.RenewResponse, error)
}

// routes collects the handlers mounted on the shard's HTTP listener. config
// is set on the primary only.
type routes struct {
	auth     authService
	ws       http.Handler
	config   http.Handler
	internal mux.MiddlewareFunc
	metrics  http.Handler
	log      *slog.Logger
}

type loginRequest struct {
	HashedSecretKey   string `json:"hashed_secret_key"`
	LocalContentID    string `json:"local_content_id"`
	CharacterIdentity string `json:"character_identity"`
}

type loginResponse struct {
	Outcome    string     `json:"outcome"`
	Message    string     `json:"message"`
	UID        string     `json:"uid,omitempty"`
	PrimaryUID string     `json:"primary_uid,omitempty"`
	Alias      string     `json:"alias,omitempty"`
	AccessType string     `json:"access_type,omitempty"`
	Token      string     `json:"token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type renewResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	UID        string    `json:"uid,omitempty"`
	AccessType string    `json:"access_type"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (rt routes) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", rt.health).Methods(http.MethodGet)
	r.HandleFunc("/v1/auth/login", rt.login).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/renew", rt.renew).Methods(http.MethodPost)
	if rt.ws != nil {
		r.Handle("/ws", rt.ws).Methods(http.MethodGet)
	}
	if rt.metrics != nil {
		r.Handle("/metrics", rt.metrics).Methods(http.MethodGet)
	}
	if rt.config != nil {
		h := rt.config
		if rt.internal != nil {
			h = rt.internal(h)
		}
		r.Handle(configsync.EntryPath, h).Methods(http.MethodGet)
	}
	return r
}

func (rt routes) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (rt routes) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	res, err := rt.auth.Login(r.Context(), goSyncAuth.AuthRequest{
		IP:                middleware.ClientIP(r),
		HashedSecretKey:   body.HashedSecretKey,
		LocalContentID:    body.LocalContentID,
		CharacterIdentity: body.CharacterIdentity,
	})
	if err != nil {
		if errors.Is(err, goSyncAuth.ErrBadRequest) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		rt.log.Error("login failed", "ip", middleware.ClientIP(r), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	out := loginResponse{
		Outcome: res.Outcome.String(),
		Message: res.Message,
	}
	if res.Success {
		out.UID = res.UID
		out.PrimaryUID = res.PrimaryUID
		out.Alias = res.Alias
		out.AccessType = string(res.AccessType)
		out.Token = res.Token
		exp := res.ExpiresAt
		out.ExpiresAt = &exp
	}
	writeJSON(w, outcomeStatus(res.Outcome), out)
}

func (rt routes) renew(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	ctx := goSyncAuth.WithClientIP(r.Context(), middleware.ClientIP(r))
	res, err := rt.auth.RenewToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, goSyncAuth.ErrTokenInvalid):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
		case errors.Is(err, goSyncAuth.ErrIdentityBanned):
			writeJSON(w, http.StatusForbidden, errorResponse{Error: goSyncAuth.OutcomeIdentityBanned.Message()})
		default:
			rt.log.Error("token renewal failed", "ip", middleware.ClientIP(r), "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, renewResponse{
		Token:      res.Token,
		ExpiresAt:  res.ExpiresAt,
		UID:        res.UID,
		AccessType: string(res.AccessType),
	})
}

func outcomeStatus(o goSyncAuth.Outcome) int {
	switch o {
	case goSyncAuth.OutcomeSuccess:
		return http.StatusOK
	case goSyncAuth.OutcomeInvalidCredentials:
		return http.StatusUnauthorized
	case goSyncAuth.OutcomeTempBanned:
		return http.StatusTooManyRequests
	case goSyncAuth.OutcomePermaBanned, goSyncAuth.OutcomeIdentityBanned:
		return http.StatusForbidden
	case goSyncAuth.OutcomeAlreadyLoggedIn:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
