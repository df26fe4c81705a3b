package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSyncAuth/store"
)

type fakeSub struct {
	payloads chan string
	closed   chan struct{}
	once     sync.Once
}

func newFakeSub(payloads ...string) *fakeSub {
	s := &fakeSub{payloads: make(chan string, len(payloads)), closed: make(chan struct{})}
	for _, p := range payloads {
		s.payloads <- p
	}
	return s
}

func (s *fakeSub) Next(ctx context.Context) (string, error) {
	select {
	case p, ok := <-s.payloads:
		if !ok {
			return "", errors.New("connection lost")
		}
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *fakeSub) Close(context.Context) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeFeed struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	subs      []*fakeSub
}

func (f *fakeFeed) Subscribe(context.Context) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, errors.New("dial refused")
	}
	if len(f.subs) == 0 {
		return newFakeSub(), nil
	}
	s := f.subs[0]
	f.subs = f.subs[1:]
	return s, nil
}

type fakeOwners map[string]string

func (o fakeOwners) ResolveClaimOwner(_ context.Context, linkKey string) (string, error) {
	uid, ok := o[linkKey]
	if !ok {
		return "", store.ErrNotFound
	}
	return uid, nil
}

type pushed struct{ uid, code string }

type fakeNotifier struct {
	mu     sync.Mutex
	online map[string]bool
	sent   []pushed
}

func (n *fakeNotifier) IsOnline(uid string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online[uid]
}

func (n *fakeNotifier) NotifyVerification(_ context.Context, uid, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, pushed{uid, code})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func TestHandle(t *testing.T) {
	notifier := &fakeNotifier{online: map[string]bool{"UID1": true}}
	b, err := New(&fakeFeed{}, fakeOwners{"lk1": "UID1", "lk2": "UID2"}, notifier)
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, b.Handle(ctx, "{not json"), ErrMalformedPayload)
	require.ErrorIs(t, b.Handle(ctx, `{"id":1,"link_key":"","verification_code":"1"}`), ErrEmptyLinkKey)

	require.NoError(t, b.Handle(ctx, `{"id":2,"link_key":"lk1","verification_code":"424242"}`))
	require.Equal(t, []pushed{{"UID1", "424242"}}, notifier.sent)

	// Owner resolved but connected elsewhere.
	require.NoError(t, b.Handle(ctx, `{"id":3,"link_key":"lk2","verification_code":"9"}`))
	// No owner at all.
	require.NoError(t, b.Handle(ctx, `{"id":4,"link_key":"unknown","verification_code":"9"}`))
	require.Len(t, notifier.sent, 1)

	st := b.Stats()
	require.Equal(t, uint64(1), st.Delivered)
	require.Equal(t, uint64(1), st.Offline)
	require.Equal(t, uint64(2), st.Rejected)
	require.Equal(t, uint64(1), st.ResolveMiss)
}

func TestRunReconnectsAfterFailures(t *testing.T) {
	lost := newFakeSub(`{"id":1,"link_key":"lk1","verification_code":"1"}`)
	close(lost.payloads)
	feed := &fakeFeed{
		failFirst: 2,
		subs:      []*fakeSub{lost, newFakeSub(`{"id":2,"link_key":"lk1","verification_code":"2"}`)},
	}
	notifier := &fakeNotifier{online: map[string]bool{"UID1": true}}
	b, err := New(feed, fakeOwners{"lk1": "UID1"}, notifier, WithBackoff(time.Millisecond, 4*time.Millisecond), WithSeed(7))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return notifier.count() == 2 }, 2*time.Second, 2*time.Millisecond)
	require.ErrorContains(t, b.Run(ctx), "already running")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}

	require.GreaterOrEqual(t, b.Stats().Reconnects, uint64(3))
	select {
	case <-lost.closed:
	default:
		t.Fatal("lost subscription was not closed")
	}
}

func TestBackoffIsCappedAndJittered(t *testing.T) {
	b, err := New(&fakeFeed{}, fakeOwners{}, &fakeNotifier{}, WithBackoff(100*time.Millisecond, time.Second), WithSeed(1))
	require.NoError(t, err)

	for n := 0; n < 12; n++ {
		ceiling := 100 * time.Millisecond << n
		if ceiling > time.Second {
			ceiling = time.Second
		}
		for i := 0; i < 20; i++ {
			d := b.backoff(n)
			require.GreaterOrEqual(t, d, ceiling/2)
			require.LessOrEqual(t, d, ceiling)
		}
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, fakeOwners{}, &fakeNotifier{})
	require.Error(t, err)
}
