// Package registry publishes one service instance's address under a leased
// etcd key and refreshes the lease until the process shuts down. This is
// component C2 of the fabric design.
package registry

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/littleblus/breezechat/pkg/coordination"
	"github.com/littleblus/breezechat/pkg/log"
)

// Instance identifies the key/value this Registry publishes:
// <ServiceName>/<InstanceName> -> Address.
type Instance struct {
	ServiceName  string
	InstanceName string
	Address      string // host:port
}

// Key returns the etcd key this instance registers under.
func (i *Instance) Key() string {
	return fmt.Sprintf("%s/%s", i.ServiceName, i.InstanceName)
}

func (i *Instance) validate() error {
	if i.ServiceName == "" || i.InstanceName == "" || i.Address == "" {
		return fmt.Errorf("registry: instance requires ServiceName, InstanceName, and Address")
	}
	return nil
}

// Registry owns one lease for one instance and keeps it alive until
// Unregister is called.
type Registry struct {
	coord    *coordination.Client
	instance *Instance
	ttl      int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

const defaultTTLSeconds = 60
const shutdownTimeout = 3 * time.Second

// New builds a Registry for instance, backed by coord. ttlSeconds defaults
// to 60 when zero; register() leaves lease refresh to the etcd client's
// KeepAlive, which renews at ttl/3, comfortably under the "< ttl/2"
// requirement in spec.md §4.2.
func New(coord *coordination.Client, instance *Instance, ttlSeconds int64) (*Registry, error) {
	if err := instance.validate(); err != nil {
		return nil, err
	}
	if ttlSeconds <= 0 {
		ttlSeconds = defaultTTLSeconds
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		coord:    coord,
		instance: instance,
		ttl:      ttlSeconds,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Register starts the lease-grant/put/keepalive loop on a background
// goroutine and returns immediately.
func (r *Registry) Register() {
	go r.register()
}

// Unregister cancels the keepalive loop and waits (bounded) for it to
// finish, which revokes the lease and causes a prompt DELETE at watchers.
func (r *Registry) Unregister() {
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(shutdownTimeout):
		log.Error("registry: unregister timed out waiting for shutdown")
	}
}

func (r *Registry) register() {
	defer close(r.done)
	rlog := log.WithComponent("registry").With().Str("key", r.instance.Key()).Logger()

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		leaseID, err := r.coord.GrantLease(r.ctx, r.ttl)
		if err == nil {
			if err = r.coord.Put(r.ctx, r.instance.Key(), r.instance.Address, leaseID); err == nil {
				rlog.Info().Int64("lease", int64(leaseID)).Msg("instance registered")
				if kerr := r.keepalive(leaseID); kerr != nil {
					rlog.Warn().Err(kerr).Msg("keepalive stopped")
				}
				backoff = time.Second
			} else {
				rlog.Error().Err(err).Msg("put failed")
			}
			r.coord.Revoke(context.Background(), leaseID)
		} else {
			rlog.Error().Err(err).Msg("grant lease failed")
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) keepalive(leaseID clientv3.LeaseID) error {
	return r.coord.KeepAlive(r.ctx, leaseID)
}
