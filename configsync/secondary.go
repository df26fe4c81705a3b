package configsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPollInterval is the delay between two fetch cycles.
	DefaultPollInterval = 30 * time.Minute
	// DefaultRequestTimeout bounds a single request to the primary.
	DefaultRequestTimeout = 10 * time.Second

	maxEntryBytes = 1 << 20
)

var (
	// ErrAlreadyRunning is returned when Run is called on a Secondary whose
	// poll loop is already active.
	ErrAlreadyRunning = errors.New("config poll loop already running")
	// ErrNoMainServer is returned when a Secondary is built without a primary address.
	ErrNoMainServer = errors.New("main server address required")
)

// TokenSource returns the bearer credential used against the primary.
type TokenSource func() (string, error)

type cachedValue struct {
	value     any
	fetchedAt time.Time
}

// SecondaryOption configures a Secondary.
type SecondaryOption func(*Secondary)

// WithHTTPClient overrides the HTTP client used to reach the primary.
func WithHTTPClient(c *http.Client) SecondaryOption {
	return func(s *Secondary) {
		if c != nil {
			s.client = c
		}
	}
}

// WithPollInterval overrides the delay between fetch cycles.
func WithPollInterval(d time.Duration) SecondaryOption {
	return func(s *Secondary) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(d time.Duration) SecondaryOption {
	return func(s *Secondary) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(log *slog.Logger) SecondaryOption {
	return func(s *Secondary) {
		if log != nil {
			s.log = log
		}
	}
}

// Secondary serves configuration on a non-primary shard.
type Secondary struct {
	local    Settings
	baseURL  string
	token    TokenSource
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedValue

	cycleMu   sync.Mutex
	running   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewSecondary creates a Secondary polling local.MainServerAddress.
func NewSecondary(local Settings, token TokenSource, opts ...SecondaryOption) (*Secondary, error) {
	base := strings.TrimRight(strings.TrimSpace(local.MainServerAddress), "/")
	if base == "" {
		return nil, ErrNoMainServer
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if token == nil {
		return nil, errors.New("token source required")
	}

	s := &Secondary{
		local:    local,
		baseURL:  base,
		token:    token,
		client:   &http.Client{},
		interval: DefaultPollInterval,
		timeout:  DefaultRequestTimeout,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		cache:    make(map[string]cachedValue),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IsMain always reports false.
func (s *Secondary) IsMain() bool { return false }

// Lookup implements Source. Non-remote fields come from local settings;
// remote fields come from the cache and are absent until fetched.
func (s *Secondary) Lookup(name string) (any, bool) {
	f, ok := schema[name]
	if !ok {
		return nil, false
	}
	if !f.Remote() {
		return f.localValue(&s.local), true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.cache[name]
	if !ok {
		return nil, false
	}
	return cached.value, true
}

// LastFetched returns when name was last fetched successfully.
func (s *Secondary) LastFetched(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.cache[name]
	return cached.fetchedAt, ok
}

// Run fetches immediately and then every poll interval until ctx is done.
func (s *Secondary) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.FetchAll(ctx)
	s.readyOnce.Do(func() { close(s.ready) })

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.FetchAll(ctx)
		}
	}
}

// WaitReady blocks until the first fetch cycle completed, timeout elapsed or
// ctx is done. It reports whether the first cycle completed.
func (s *Secondary) WaitReady(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return true
	case <-timer.C:
		s.log.Warn("config.sync.ready_timeout", "timeout", timeout.String())
		return false
	case <-ctx.Done():
		return false
	}
}

// FetchAll runs one fetch cycle over every remote field and returns how many
// fields were updated and how many failed. A cycle that would overlap a
// running one is skipped.
func (s *Secondary) FetchAll(ctx context.Context) (updated, failed int) {
	if !s.cycleMu.TryLock() {
		return 0, 0
	}
	defer s.cycleMu.Unlock()

	for _, name := range RemoteFields() {
		if ctx.Err() != nil {
			return updated, failed
		}
		v, err := s.fetch(ctx, schema[name])
		if err != nil {
			failed++
			s.log.Warn("config.sync.fetch_failed", "key", name, "err", err)
			continue
		}

		s.mu.Lock()
		s.cache[name] = cachedValue{value: v, fetchedAt: s.now()}
		s.mu.Unlock()
		updated++
	}
	s.log.Debug("config.sync.cycle", "updated", updated, "failed", failed)
	return updated, failed
}

func (s *Secondary) fetch(parent context.Context, f fieldDef) (any, error) {
	token, err := s.token()
	if err != nil {
		return nil, fmt.Errorf("internal token: %w", err)
	}

	def, err := json.Marshal(f.defaultValue())
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("key", f.Name())
	q.Set("defaultValue", string(def))
	endpoint := s.baseURL + "/configuration/" + url.PathEscape(ConfigName) + "/GetConfigurationEntry?" + q.Encode()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEntryBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("primary answered %d", resp.StatusCode)
	}
	return f.decode(body)
}
