package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fixedPolicy(threshold int, d time.Duration, allow ...string) PolicyFunc {
	return func() Policy {
		return Policy{FailedAuthForTempBan: threshold, TempBanDuration: d, AllowList: allow}
	}
}

func TestTrackerBansAfterThreshold(t *testing.T) {
	tr := New(fixedPolicy(3, time.Hour))
	defer tr.Close()

	for i := 0; i < 3; i++ {
		tr.RecordFailure("10.0.0.1")
		if banned, _ := tr.IsBanned("10.0.0.1"); banned {
			t.Fatalf("banned after %d failures, threshold is 3", i+1)
		}
	}

	tr.RecordFailure("10.0.0.1")
	banned, attempts := tr.IsBanned("10.0.0.1")
	if !banned {
		t.Fatal("expected ban after threshold+1 failures")
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}

	if banned, _ := tr.IsBanned("10.0.0.2"); banned {
		t.Fatal("ban leaked to another IP")
	}
}

func TestTrackerResetStartsClean(t *testing.T) {
	tr := New(fixedPolicy(1, 50*time.Millisecond))
	defer tr.Close()

	tr.RecordFailure("10.0.0.1")
	tr.RecordFailure("10.0.0.1")
	if banned, _ := tr.IsBanned("10.0.0.1"); !banned {
		t.Fatal("expected ban")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		banned, _ := tr.IsBanned("10.0.0.1")
		if !banned {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ban did not clear after duration")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tr.RecordFailure("10.0.0.1")
	if _, attempts := tr.IsBanned("10.0.0.1"); attempts != 1 {
		t.Fatalf("expected counter to restart at 1, got %d", attempts)
	}
}

func TestTrackerSchedulesSingleResetUnderRace(t *testing.T) {
	tr := New(fixedPolicy(2, time.Hour))
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordFailure("192.168.1.9")
		}()
	}
	wg.Wait()

	banned, attempts := tr.IsBanned("192.168.1.9")
	if !banned || attempts != 64 {
		t.Fatalf("expected banned with 64 attempts, got banned=%v attempts=%d", banned, attempts)
	}
	if got := tr.scheduled.Load(); got != 1 {
		t.Fatalf("expected exactly one reset worker, got %d", got)
	}
}

func TestTrackerIgnoresAllowListedIP(t *testing.T) {
	tr := New(fixedPolicy(0, time.Hour, "127.0.0.1"))
	defer tr.Close()

	for i := 0; i < 10; i++ {
		tr.RecordFailure("127.0.0.1")
	}
	if banned, attempts := tr.IsBanned("127.0.0.1"); banned || attempts != 0 {
		t.Fatalf("allow-listed IP tracked: banned=%v attempts=%d", banned, attempts)
	}
}

func TestTrackerCloseStopsWorkers(t *testing.T) {
	tr := New(fixedPolicy(0, time.Hour))
	tr.RecordFailure("10.1.1.1")

	done := make(chan struct{})
	go func() {
		tr.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a pending reset worker")
	}

	tr.RecordFailure("10.1.1.2")
	if got := tr.scheduled.Load(); got != 1 {
		t.Fatalf("expected no workers scheduled after Close, got %d total", got)
	}
}

func TestTrackerLoweredThresholdStillClears(t *testing.T) {
	var threshold atomic.Int64
	threshold.Store(10)
	tr := New(func() Policy {
		return Policy{FailedAuthForTempBan: int(threshold.Load()), TempBanDuration: 50 * time.Millisecond}
	})
	defer tr.Close()

	for i := 0; i < 7; i++ {
		tr.RecordFailure("10.2.2.2")
	}
	if banned, _ := tr.IsBanned("10.2.2.2"); banned {
		t.Fatal("banned below threshold")
	}
	if got := tr.scheduled.Load(); got != 0 {
		t.Fatalf("expected no reset worker yet, got %d", got)
	}

	threshold.Store(5)
	if banned, attempts := tr.IsBanned("10.2.2.2"); !banned || attempts != 7 {
		t.Fatalf("expected ban under lowered threshold, got banned=%v attempts=%d", banned, attempts)
	}
	if got := tr.scheduled.Load(); got != 1 {
		t.Fatalf("expected one reset worker after lowered threshold, got %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		banned, _ := tr.IsBanned("10.2.2.2")
		if !banned {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ban under lowered threshold never cleared")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := tr.scheduled.Load(); got != 1 {
		t.Fatalf("expected a single reset worker, got %d", got)
	}
}
