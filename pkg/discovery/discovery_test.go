package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleblus/breezechat/pkg/coordination"
)

// fakeStore is an in-memory coordination.Store double used to drive
// Discovery deterministically without a live etcd cluster.
type fakeStore struct {
	mu       sync.Mutex
	snapshot []coordination.KV
	watchers []chan *coordination.Event
}

func newFakeStore(snapshot ...coordination.KV) *fakeStore {
	return &fakeStore{snapshot: snapshot}
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]coordination.KV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]coordination.KV, len(f.snapshot))
	copy(out, f.snapshot)
	return out, nil
}

func (f *fakeStore) Watch(ctx context.Context, prefix string) <-chan *coordination.Event {
	ch := make(chan *coordination.Event, 16)
	f.mu.Lock()
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
	}()
	return ch
}

func (f *fakeStore) push(e *coordination.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.watchers {
		w <- e
	}
}

// TestDiscoverySeedThenWatch implements scenario S1.
func TestDiscoverySeedThenWatch(t *testing.T) {
	store := newFakeStore(coordination.KV{Key: "echo/i1", Value: "1.1.1.1:9000"})

	var mu sync.Mutex
	var puts []string
	var deletes []string

	d := New(store, "echo",
		func(key, value string) {
			mu.Lock()
			defer mu.Unlock()
			puts = append(puts, key+"="+value)
		},
		func(key, address string) {
			mu.Lock()
			defer mu.Unlock()
			deletes = append(deletes, key+"="+address)
		},
	)
	require.NoError(t, d.Start())
	defer d.Stop()

	mu.Lock()
	assert.Equal(t, []string{"echo/i1=1.1.1.1:9000"}, puts)
	mu.Unlock()

	store.push(&coordination.Event{Kind: coordination.EventPut, Key: "echo/i2", Value: "2.2.2.2:9001"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(puts) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, "echo/i2=2.2.2.2:9001", puts[1])
	mu.Unlock()

	store.push(&coordination.Event{Kind: coordination.EventDelete, Key: "echo/i1", PrevValue: "1.1.1.1:9000"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deletes) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"echo/i1=1.1.1.1:9000"}, deletes)
	mu.Unlock()
}

// TestRegisterThenDestroyFiresOnePutOneDelete covers invariant 5 at the
// Discovery side: the fake store emits the one PUT and one DELETE that a
// Registry register followed by a destroy produces, and a concurrently
// subscribed Discovery dispatches exactly one put and then one delete.
func TestRegisterThenDestroyFiresOnePutOneDelete(t *testing.T) {
	store := newFakeStore()

	var mu sync.Mutex
	var events []string

	d := New(store, "svc",
		func(key, value string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "put:"+key)
		},
		func(key, address string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "delete:"+key)
		},
	)
	require.NoError(t, d.Start())
	defer d.Stop()

	store.push(&coordination.Event{Kind: coordination.EventPut, Key: "svc/i1", Value: "1.2.3.4:9000"})
	store.push(&coordination.Event{Kind: coordination.EventDelete, Key: "svc/i1", PrevValue: "1.2.3.4:9000"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"put:svc/i1", "delete:svc/i1"}, events)
}
