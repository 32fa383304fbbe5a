// Package coordination is a thin, typed facade over an etcd cluster: leased
// puts, prefix listing, lease grant/keepalive, and ordered prefix watches.
// It is the strongly-consistent coordination store C1 in the fabric design;
// pkg/registry and pkg/discovery are built entirely on top of this port.
package coordination

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/littleblus/breezechat/pkg/log"
)

// EventKind discriminates a watch notification.
type EventKind int

const (
	EventPut EventKind = iota
	EventDelete
)

// Event is one ordered watch notification. PrevValue is always populated on
// a DELETE event (etcd WithPrevKV), per the port's contract.
type Event struct {
	Kind      EventKind
	Key       string
	Value     string
	PrevValue string
}

// KV is a single (key, value) pair as returned by List.
type KV struct {
	Key   string
	Value string
}

// Client wraps an etcd v3 client with the operations the fabric needs.
type Client struct {
	etcd    *clientv3.Client
	timeout time.Duration
}

// Config configures a new coordination Client.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// New dials an etcd cluster and returns a Client. Dial failure is a
// Fatal-class error by the caller's convention (C1 has no independent
// recovery path if the coordination store is unreachable at startup).
func New(cfg Config) (*Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	opTimeout := cfg.OpTimeout
	if opTimeout == 0 {
		opTimeout = 3 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Client{etcd: cli, timeout: opTimeout}, nil
}

// Close releases the underlying etcd connection.
func (c *Client) Close() error { return c.etcd.Close() }

// Put writes key=value under the given lease. leaseID of 0 means no lease.
func (c *Client) Put(ctx context.Context, key, value string, leaseID clientv3.LeaseID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []clientv3.OpOption{}
	if leaseID != 0 {
		opts = append(opts, clientv3.WithLease(leaseID))
	}
	_, err := c.etcd.Put(ctx, key, value, opts...)
	return err
}

// List returns every key/value currently stored under prefix, a snapshot at
// a single logical revision.
func (c *Client) List(ctx context.Context, prefix string) ([]KV, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.etcd.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: string(kv.Value)})
	}
	return out, nil
}

// GrantLease creates a lease with the given TTL (seconds) and returns its id.
func (c *Client) GrantLease(ctx context.Context, ttlSeconds int64) (clientv3.LeaseID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.etcd.Grant(ctx, ttlSeconds)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// KeepAlive refreshes leaseID until ctx is cancelled or the lease is lost.
// It blocks; callers run it on its own goroutine.
func (c *Client) KeepAlive(ctx context.Context, leaseID clientv3.LeaseID) error {
	ch, err := c.etcd.KeepAlive(ctx, leaseID)
	if err != nil {
		return err
	}
	for {
		select {
		case resp, ok := <-ch:
			if !ok || resp == nil {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Revoke releases a lease, deleting every key attached to it and firing
// DELETE watches at subscribers.
func (c *Client) Revoke(ctx context.Context, leaseID clientv3.LeaseID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.etcd.Revoke(ctx, leaseID)
	return err
}

// Watch streams ordered PUT/DELETE events for prefix until ctx is
// cancelled. On channel closure (etcd restart/compaction) it sends a single
// nil event down events and returns; callers must treat that as a restart
// sentinel and idempotently re-List before watching again.
func (c *Client) Watch(ctx context.Context, prefix string) <-chan *Event {
	out := make(chan *Event, 64)
	wch := c.etcd.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithPrevKV())

	go func() {
		defer close(out)
		wlog := log.WithComponent("coordination.watch")
		for resp := range wch {
			if resp.Canceled {
				wlog.Warn().Str("prefix", prefix).Msg("watch channel canceled, restart sentinel")
				out <- nil
				return
			}
			if err := resp.Err(); err != nil {
				wlog.Error().Err(err).Str("prefix", prefix).Msg("watch error, restart sentinel")
				out <- nil
				return
			}
			for _, ev := range resp.Events {
				e := &Event{Key: string(ev.Kv.Key), Value: string(ev.Kv.Value)}
				switch ev.Type {
				case clientv3.EventTypePut:
					e.Kind = EventPut
				case clientv3.EventTypeDelete:
					e.Kind = EventDelete
					if ev.PrevKv != nil {
						e.PrevValue = string(ev.PrevKv.Value)
					}
				}
				out <- e
			}
		}
	}()

	return out
}
