package cleanup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultInterval is the wall-clock boundary passes align to.
	DefaultInterval = 10 * time.Minute
	// DefaultTaskTimeout bounds each task's store calls.
	DefaultTaskTimeout = 2 * time.Minute

	EphemeralRoomMaxAge = 12 * time.Hour
	AccountClaimMaxAge  = 15 * time.Minute
	PairRequestMaxAge   = 3 * 24 * time.Hour
)

// Task names, in execution order.
const (
	TaskUploadCounters = "upload_counters"
	TaskEphemeralRooms = "ephemeral_rooms"
	TaskPurgeAccounts  = "purge_accounts"
	TaskAccountClaims  = "account_claims"
	TaskPairRequests   = "pair_requests"
)

// Store is the set of record-store operations a pass uses.
type Store interface {
	ResetUploadCounters(ctx context.Context, before time.Time) (int64, error)
	DeleteEphemeralRooms(ctx context.Context, before time.Time) (int64, error)
	InactiveAccounts(ctx context.Context, before time.Time) ([]string, error)
	SecondaryAccounts(ctx context.Context, primaryUID string) ([]string, error)
	DeleteAccount(ctx context.Context, uid string) error
	DeleteStaleAccountClaims(ctx context.Context, before time.Time) (int64, error)
	DeletePairRequests(ctx context.Context, before time.Time) (int64, error)
}

// Policy carries the configurable thresholds of one pass.
type Policy struct {
	UploadWindow        time.Duration
	PurgeUnusedAccounts bool
	PurgeInactiveAfter  time.Duration
}

// PolicyFunc returns the current thresholds.
type PolicyFunc func() Policy

// TaskResult reports one task of a pass.
type TaskResult struct {
	Name     string
	Affected int64
	Skipped  bool
	Err      error
}

// Report is the outcome of RunOnce.
type Report struct {
	StartedAt time.Time
	Tasks     []TaskResult
}

// Failed reports whether any task returned an error or panicked.
func (r Report) Failed() bool {
	for _, t := range r.Tasks {
		if t.Err != nil {
			return true
		}
	}
	return false
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInterval sets the boundary passes align to.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTaskTimeout bounds each task.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// WithReportHook registers a callback invoked after every pass.
func WithReportHook(fn func(Report)) Option {
	return func(s *Scheduler) { s.onReport = fn }
}

// Scheduler runs cleanup passes.
type Scheduler struct {
	store       Store
	policy      PolicyFunc
	log         *slog.Logger
	now         func() time.Time
	interval    time.Duration
	taskTimeout time.Duration
	onReport    func(Report)

	runMu sync.Mutex
}

// New builds a Scheduler.
func New(st Store, policy PolicyFunc, opts ...Option) (*Scheduler, error) {
	if st == nil {
		return nil, fmt.Errorf("cleanup: nil store")
	}
	if policy == nil {
		return nil, fmt.Errorf("cleanup: nil policy")
	}
	s := &Scheduler{
		store:       st,
		policy:      policy,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		interval:    DefaultInterval,
		taskTimeout: DefaultTaskTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Run executes a pass, then sleeps until the next interval boundary, until
// ctx is cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return fmt.Errorf("cleanup: scheduler already running")
	}
	defer s.runMu.Unlock()

	s.log.Info("cleanup scheduler started", "interval", s.interval)
	for {
		s.RunOnce(ctx)

		wait := s.untilNextBoundary()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("cleanup scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce executes every task once, in order.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	now := s.now()
	p := s.policy()
	rep := Report{StartedAt: now}

	tasks := []struct {
		name string
		run  func(context.Context) (int64, bool, error)
	}{
		{TaskUploadCounters, func(ctx context.Context) (int64, bool, error) {
			if p.UploadWindow <= 0 {
				return 0, true, nil
			}
			n, err := s.store.ResetUploadCounters(ctx, now.Add(-p.UploadWindow))
			return n, false, err
		}},
		{TaskEphemeralRooms, func(ctx context.Context) (int64, bool, error) {
			n, err := s.store.DeleteEphemeralRooms(ctx, now.Add(-EphemeralRoomMaxAge))
			return n, false, err
		}},
		{TaskPurgeAccounts, func(ctx context.Context) (int64, bool, error) {
			if !p.PurgeUnusedAccounts || p.PurgeInactiveAfter <= 0 {
				return 0, true, nil
			}
			n, err := s.purgeInactive(ctx, now.Add(-p.PurgeInactiveAfter))
			return n, false, err
		}},
		{TaskAccountClaims, func(ctx context.Context) (int64, bool, error) {
			n, err := s.store.DeleteStaleAccountClaims(ctx, now.Add(-AccountClaimMaxAge))
			return n, false, err
		}},
		{TaskPairRequests, func(ctx context.Context) (int64, bool, error) {
			n, err := s.store.DeletePairRequests(ctx, now.Add(-PairRequestMaxAge))
			return n, false, err
		}},
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		res := s.runTask(ctx, task.name, task.run)
		rep.Tasks = append(rep.Tasks, res)
	}

	if s.onReport != nil {
		s.onReport(rep)
	}
	return rep
}

func (s *Scheduler) runTask(parent context.Context, name string, fn func(context.Context) (int64, bool, error)) (res TaskResult) {
	res.Name = name
	ctx, cancel := context.WithTimeout(parent, s.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("cleanup: task %s panicked: %v", name, r)
			s.log.Error("cleanup task panicked", "task", name, "panic", r)
		}
	}()

	started := time.Now()
	res.Affected, res.Skipped, res.Err = fn(ctx)
	switch {
	case res.Err != nil:
		s.log.Error("cleanup task failed", "task", name, "err", res.Err)
	case res.Skipped:
		s.log.Debug("cleanup task skipped", "task", name)
	default:
		s.log.Info("cleanup task done", "task", name, "affected", res.Affected, "took", time.Since(started))
	}
	return res
}

func (s *Scheduler) untilNextBoundary() time.Duration {
	now := s.now()
	next := now.Truncate(s.interval).Add(s.interval)
	return next.Sub(now)
}

// purgeInactive deletes every inactive primary and its secondaries. Each
// ownership tree is walked with an explicit stack; a node is deleted only
// after all of its children.
func (s *Scheduler) purgeInactive(ctx context.Context, before time.Time) (int64, error) {
	roots, err := s.store.InactiveAccounts(ctx, before)
	if err != nil {
		return 0, err
	}

	var (
		deleted  int64
		firstErr error
	)
	visited := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if _, seen := visited[root]; seen {
			continue
		}
		n, err := s.deleteTree(ctx, root, visited)
		deleted += n
		if err != nil {
			s.log.Warn("account purge aborted for tree", "root", root, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return deleted, firstErr
}

type frame struct {
	uid      string
	expanded bool
}

func (s *Scheduler) deleteTree(ctx context.Context, root string, visited map[string]struct{}) (int64, error) {
	var deleted int64
	stack := []frame{{uid: root}}
	visited[root] = struct{}{}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if !top.expanded {
			top.expanded = true
			uid := top.uid
			children, err := s.store.SecondaryAccounts(ctx, uid)
			if err != nil {
				return deleted, err
			}
			for _, child := range children {
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				stack = append(stack, frame{uid: child})
			}
			continue
		}

		uid := top.uid
		stack = stack[:len(stack)-1]
		if err := s.store.DeleteAccount(ctx, uid); err != nil {
			return deleted, err
		}
		deleted++
		s.log.Info("purged inactive account", "uid", uid)
	}
	return deleted, nil
}
