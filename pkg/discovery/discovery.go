// Package discovery streams service-instance membership for a prefix: an
// initial snapshot via List, then ordered PUT/DELETE events via Watch. This
// is component C3 of the fabric design.
package discovery

import (
	"context"
	"fmt"

	"github.com/littleblus/breezechat/pkg/coordination"
	"github.com/littleblus/breezechat/pkg/log"
)

// OnPut is invoked once per initial snapshot entry and once per later PUT
// event. OnDelete is invoked per DELETE event with the address the deleted
// key last held (coordination.Event.PrevValue). Both MUST return promptly:
// they run synchronously on the watch dispatch goroutine and typically
// forward straight into a balancer.ServiceManager, which is O(n) in pool
// size (spec.md §5).
type OnPut func(key, value string)
type OnDelete func(key, address string)

// Store is the subset of pkg/coordination's Client that Discovery needs.
// It exists so tests can substitute an in-memory fake without a live etcd.
type Store interface {
	List(ctx context.Context, prefix string) ([]coordination.KV, error)
	Watch(ctx context.Context, prefix string) <-chan *coordination.Event
}

// Discovery watches one coordination-store prefix and dispatches add/remove
// callbacks in store order, with the initial-snapshot invocations
// happens-before any watch-delivered event.
type Discovery struct {
	coord    Store
	prefix   string
	onPut    OnPut
	onDelete OnDelete

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Discovery for prefix. Start must be called to begin the
// list-then-watch sequence.
func New(coord Store, prefix string, onPut OnPut, onDelete OnDelete) *Discovery {
	ctx, cancel := context.WithCancel(context.Background())
	return &Discovery{
		coord:    coord,
		prefix:   prefix,
		onPut:    onPut,
		onDelete: onDelete,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start performs the initial List (invoking onPut for every pre-existing
// entry) and then starts the watch loop on a background goroutine. A List
// failure is fatal, per spec.md §4.3.
func (d *Discovery) Start() error {
	entries, err := d.coord.List(d.ctx, d.prefix)
	if err != nil {
		return fmt.Errorf("discovery: initial list of %q failed: %w", d.prefix, err)
	}
	for _, e := range entries {
		d.onPut(e.Key, e.Value)
	}

	go d.run()
	return nil
}

// Stop cancels the watch loop and waits for it to exit.
func (d *Discovery) Stop() {
	d.cancel()
	<-d.done
}

func (d *Discovery) run() {
	defer close(d.done)
	dlog := log.WithComponent("discovery").With().Str("prefix", d.prefix).Logger()

	events := d.coord.Watch(d.ctx, d.prefix)
	for ev := range events {
		if ev == nil {
			// Restart sentinel: the underlying watch was cancelled or
			// errored. Re-reconcile idempotently by re-listing and
			// re-watching, unless the caller already cancelled us.
			dlog.Warn().Msg("watch restarted, re-reconciling")
			if d.ctx.Err() != nil {
				return
			}
			entries, err := d.coord.List(d.ctx, d.prefix)
			if err != nil {
				dlog.Error().Err(err).Msg("re-list after watch restart failed")
				continue
			}
			for _, e := range entries {
				d.onPut(e.Key, e.Value)
			}
			events = d.coord.Watch(d.ctx, d.prefix)
			continue
		}

		switch ev.Kind {
		case coordination.EventPut:
			d.onPut(ev.Key, ev.Value)
		case coordination.EventDelete:
			d.onDelete(ev.Key, ev.PrevValue)
		}
	}
}
