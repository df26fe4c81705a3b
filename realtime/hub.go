package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/goSyncAuth/jwt"
)

const (
	defaultSendQueue        = 64
	defaultWriteTimeout     = 5 * time.Second
	defaultHeartbeatTimeout = 5 * time.Second
	defaultReleaseTimeout   = 3 * time.Second
	maxFrameBytes           = 64 << 10
	maxPingFailures         = 3
)

// ErrNotConnected is returned when a targeted push finds no live connection.
var ErrNotConnected = errors.New("account not connected")

// ErrHubClosed is returned by Shutdown when called twice.
var ErrHubClosed = errors.New("hub closed")

// TokenParser verifies session tokens.
type TokenParser interface {
	Parse(token string) (*jwt.SessionClaims, error)
}

// Claimer is the session guard surface the hub relies on. The hub claims with
// its per-connection id as the holder.
type Claimer interface {
	TryClaim(ctx context.Context, uid, holder string) (bool, error)
	Refresh(ctx context.Context, uid, holder string) (bool, error)
	Release(ctx context.Context, uid, holder string) error
	TTL() time.Duration
}

// PresenceDropper forgets an account's cached peer presence.
type PresenceDropper interface {
	Drop(owner string)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSendQueue sets the per-connection outbound queue size.
func WithSendQueue(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendQueue = n
		}
	}
}

// WithHeartbeat sets the ping/claim-refresh interval. The default is a third
// of the guard's claim TTL.
func WithHeartbeat(every time.Duration) Option {
	return func(h *Hub) {
		if every > 0 {
			h.heartbeatEvery = every
		}
	}
}

// WithOriginPatterns authorizes cross-origin hosts for the upgrade.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = append([]string(nil), patterns...) }
}

// WithConnectionGauge reports the number of local connections.
func WithConnectionGauge(g prometheus.Gauge) Option {
	return func(h *Hub) { h.gauge = g }
}

// Hub tracks live connections keyed by account UID.
type Hub struct {
	log      *slog.Logger
	tokens   TokenParser
	guard    Claimer
	presence PresenceDropper
	gauge    prometheus.Gauge

	sendQueue      int
	writeTimeout   time.Duration
	heartbeatEvery time.Duration
	originPatterns []string

	mu     sync.RWMutex
	conns  map[string]*client
	closed bool
	active sync.WaitGroup // handlers between admission and claim release
}

var _ Pusher = (*Hub)(nil)

// NewHub builds a Hub.
func NewHub(tokens TokenParser, guard Claimer, presence PresenceDropper, opts ...Option) (*Hub, error) {
	if tokens == nil || guard == nil {
		return nil, fmt.Errorf("realtime: token parser and guard are required")
	}
	h := &Hub{
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		tokens:       tokens,
		guard:        guard,
		presence:     presence,
		sendQueue:    defaultSendQueue,
		writeTimeout: defaultWriteTimeout,
		conns:        make(map[string]*client),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.heartbeatEvery <= 0 {
		h.heartbeatEvery = guard.TTL() / 3
	}
	return h, nil
}

// IsOnline reports whether uid has a live connection on this shard.
func (h *Hub) IsOnline(uid string) bool {
	h.mu.RLock()
	_, ok := h.conns[uid]
	h.mu.RUnlock()
	return ok
}

// Online returns the number of local connections.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendAll enqueues env on every connection.
func (h *Hub) SendAll(ctx context.Context, env Envelope) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(ctx, env) {
			sent++
		}
	}
	return sent
}

// SendTo enqueues env on uid's connection.
func (h *Hub) SendTo(ctx context.Context, uid string, env Envelope) bool {
	c := h.lookup(uid)
	if c == nil {
		return false
	}
	if !c.enqueue(ctx, env) {
		h.log.Warn("push dropped", "uid", uid, "type", env.Type)
		return false
	}
	return true
}

// PushSystemInfo broadcasts a SystemInfo update.
func (h *Hub) PushSystemInfo(ctx context.Context, info SystemInfo) (int, error) {
	env, err := NewEnvelope(TypeSystemInfo, info)
	if err != nil {
		return 0, err
	}
	return h.SendAll(ctx, env), nil
}

// PushServerMessage sends an operator notice to uid, or to everyone when uid
// is empty.
func (h *Hub) PushServerMessage(ctx context.Context, uid string, msg ServerMessage) (int, error) {
	env, err := NewEnvelope(TypeServerMessage, msg)
	if err != nil {
		return 0, err
	}
	if uid == "" {
		return h.SendAll(ctx, env), nil
	}
	if h.SendTo(ctx, uid, env) {
		return 1, nil
	}
	return 0, nil
}

// NotifyVerification pushes an account-claim verification code to uid.
func (h *Hub) NotifyVerification(ctx context.Context, uid, code string) error {
	env, err := NewEnvelope(TypeVerificationCode, VerificationCode{Code: code})
	if err != nil {
		return err
	}
	if !h.SendTo(ctx, uid, env) {
		return ErrNotConnected
	}
	return nil
}

// ForceReconnect tells uid's client to reconnect and closes its connection.
func (h *Hub) ForceReconnect(uid, reason string) bool {
	c := h.lookup(uid)
	if c == nil {
		return false
	}
	c.kick(reason)
	return true
}

// ForceReconnectAll kicks every local connection, e.g. before shutdown.
func (h *Hub) ForceReconnectAll(reason string) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.kick(reason)
	}
	return len(targets)
}

// Shutdown refuses new connections, tells every client to reconnect and waits
// until each handler has released its session claim or ctx is done. It
// returns the number of connections that were asked to leave.
func (h *Hub) Shutdown(ctx context.Context, reason string) (int, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrHubClosed
	}
	h.closed = true
	h.mu.Unlock()

	n := h.ForceReconnectAll(reason)

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return n, nil
	case <-ctx.Done():
		return n, ctx.Err()
	}
}

// admit counts a handler in unless the hub is shutting down.
func (h *Hub) admit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.active.Add(1)
	return true
}

func (h *Hub) lookup(uid string) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[uid]
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.conns[c.uid]
	h.conns[c.uid] = c
	n := len(h.conns)
	h.mu.Unlock()

	if prev != nil {
		prev.kick("replaced by a newer connection")
	}
	h.setGauge(n)
}

// unregister reports whether c was still the account's current connection.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	cur, ok := h.conns[c.uid]
	current := ok && cur == c
	if current {
		delete(h.conns, c.uid)
	}
	n := len(h.conns)
	h.mu.Unlock()
	h.setGauge(n)
	return current
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

// ServeHTTP upgrades an authenticated request and runs the connection until
// either side closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.Parse(token)
	if err != nil {
		h.log.Info("ws.reject.token", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.AccessType != jwt.AccessSecretKey || claims.UID == "" {
		http.Error(w, "access type cannot hold a connection", http.StatusForbidden)
		return
	}
	if !h.admit() {
		http.Error(w, "shard shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.active.Done()

	c := newClient(claims.UID, claims.CharacterIdentity, h.sendQueue)
	ok, err := h.guard.TryClaim(r.Context(), c.uid, c.id)
	if err != nil {
		h.log.Error("ws.claim.fail", "uid", claims.UID, "err", err)
		http.Error(w, "session guard unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		h.log.Info("ws.reject.duplicate", "uid", claims.UID)
		http.Error(w, "account already connected", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Error("ws.accept.fail", "uid", claims.UID, "err", err)
		h.release(c)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	h.register(c)
	h.log.Info("ws.connected", "uid", c.uid, "conn_id", c.id)

	h.run(r.Context(), conn, c)

	if h.unregister(c) {
		h.release(c)
		if h.presence != nil {
			h.presence.Drop(c.uid)
		}
	}
	h.log.Info("ws.disconnected", "uid", c.uid, "conn_id", c.id)
}

func (h *Hub) release(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultReleaseTimeout)
	defer cancel()
	if err := h.guard.Release(ctx, c.uid, c.id); err != nil {
		h.log.Warn("ws.release.fail", "uid", c.uid, "conn_id", c.id, "err", err)
	}
}

func (h *Hub) run(parent context.Context, conn *websocket.Conn, c *client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			c.close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case reason := <-c.kicks:
				env, err := NewEnvelope(TypeForcedReconnect, ForcedReconnect{Reason: reason})
				if err == nil {
					_ = writeEnvelope(ctx, conn, env, h.writeTimeout)
				}
				shutdown(websocket.StatusServiceRestart, "reconnect")
				return
			case env := <-c.send:
				if err := writeEnvelope(ctx, conn, env, h.writeTimeout); err != nil {
					h.log.Info("ws.write.fail", "uid", c.uid, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(h.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, defaultHeartbeatTimeout)
				err := conn.Ping(hbCtx)
				if err == nil {
					var held bool
					held, err = h.guard.Refresh(hbCtx, c.uid, c.id)
					if err == nil && !held {
						hbCancel()
						h.log.Warn("ws.claim.lost", "uid", c.uid)
						c.kick("session claimed elsewhere")
						return
					}
				}
				hbCancel()

				if err != nil {
					failures++
					h.log.Info("ws.heartbeat.fail", "uid", c.uid, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				shutdown(websocket.StatusNormalClosure, "bye")
			} else {
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break
		}
	}

	<-writerDone
	<-heartbeatDone
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		if tok, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// client is one live connection.
type client struct {
	id    string
	uid   string
	ident string
	send  chan Envelope
	kicks chan string

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(uid, ident string, queue int) *client {
	return &client{
		id:    uuid.NewString(),
		uid:   uid,
		ident: ident,
		send:  make(chan Envelope, queue),
		kicks: make(chan string, 1),
		done:  make(chan struct{}),
	}
}

func (c *client) enqueue(ctx context.Context, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) kick(reason string) {
	select {
	case c.kicks <- reason:
	default:
	}
}

// close does NOT close send.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
