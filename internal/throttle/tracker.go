package throttle

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Policy holds the tunable thresholds read on every call.
type Policy struct {
	FailedAuthForTempBan int
	TempBanDuration      time.Duration
	AllowList            []string
}

// PolicyFunc returns the policy in effect right now. Values usually come
// from the configuration sync service and may change between calls.
type PolicyFunc func() Policy

type record struct {
	attempts      atomic.Int64
	resetInFlight atomic.Bool
}

// Tracker counts failed attempts per IP. It is safe for concurrent use.
type Tracker struct {
	policy  PolicyFunc
	records sync.Map // ip -> *record

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	scheduled atomic.Int64
}

// New creates a Tracker using policy for thresholds.
func New(policy PolicyFunc) *Tracker {
	if policy == nil {
		policy = func() Policy { return Policy{FailedAuthForTempBan: 5, TempBanDuration: 5 * time.Minute} }
	}
	return &Tracker{
		policy: policy,
		done:   make(chan struct{}),
	}
}

// RecordFailure increments the failure counter for ip. Allow-listed IPs are
// never tracked.
func (t *Tracker) RecordFailure(ip string) {
	ip = strings.TrimSpace(ip)
	if t == nil || ip == "" {
		return
	}
	p := t.policy()
	if allowListed(p.AllowList, ip) {
		return
	}

	v, _ := t.records.LoadOrStore(ip, &record{})
	rec := v.(*record)
	n := rec.attempts.Add(1)

	if n > int64(p.FailedAuthForTempBan) && rec.resetInFlight.CompareAndSwap(false, true) {
		t.scheduleReset(ip, rec, p.TempBanDuration)
	}
}

// IsBanned reports whether ip is currently temporarily banned together with
// its failure count. A ban that only exists because the threshold was lowered
// after the failures were recorded gets its reset scheduled here.
func (t *Tracker) IsBanned(ip string) (bool, int) {
	ip = strings.TrimSpace(ip)
	if t == nil || ip == "" {
		return false, 0
	}
	v, ok := t.records.Load(ip)
	if !ok {
		return false, 0
	}
	rec := v.(*record)
	attempts := rec.attempts.Load()

	p := t.policy()
	if allowListed(p.AllowList, ip) {
		return false, int(attempts)
	}
	banned := attempts > int64(p.FailedAuthForTempBan)
	if banned && rec.resetInFlight.CompareAndSwap(false, true) {
		t.scheduleReset(ip, rec, p.TempBanDuration)
	}
	return banned, int(attempts)
}

// Close stops every pending reset worker and waits for them to exit.
// Records are left in place.
func (t *Tracker) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		close(t.done)
	})
	t.wg.Wait()
}

func (t *Tracker) scheduleReset(ip string, rec *record, after time.Duration) {
	select {
	case <-t.done:
		return
	default:
	}

	t.scheduled.Add(1)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		timer := time.NewTimer(after)
		defer timer.Stop()

		select {
		case <-timer.C:
			// Only remove the record this worker was scheduled for.
			t.records.CompareAndDelete(ip, rec)
		case <-t.done:
		}
	}()
}

func allowListed(list []string, ip string) bool {
	for _, allowed := range list {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}
