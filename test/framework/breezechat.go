package framework

import (
	"fmt"
	"time"
)

// DaemonSpec describes one BreezeChat daemon binary to spawn as part of a
// Cluster: its built binary path, the listen address it should bind, and
// any extra BREEZECHAT_-prefixed environment overrides (see pkg/config).
type DaemonSpec struct {
	// Name identifies the daemon in lookups and is exported as
	// BREEZECHAT_SERVICE_NAME, e.g. "user".
	Name string
	// Binary is the path to the built daemon binary.
	Binary string
	// ListenAddr is exported as BREEZECHAT_SERVICE_LISTEN_ADDR.
	ListenAddr string
	// Env holds additional BREEZECHAT_-prefixed overrides, e.g.
	// {"BREEZECHAT_COORDINATION_ENDPOINTS": "127.0.0.1:2379"}.
	Env map[string]string
	// ReadyPattern is the log substring WaitReady looks for; defaults to
	// "listening" (every daemon logs a "... listening" line once its RPC
	// server is up). storaged also logs "storaged consuming" after that, once
	// its broker consumer has started.
	ReadyPattern string
}

// Cluster is a set of BreezeChat daemon processes started together for an
// S1-S6 scenario test, sharing one coordination/broker/relational backend
// supplied by the caller (docker-compose, testcontainers, or a local dev
// stack — out of scope for this harness).
type Cluster struct {
	specs     []DaemonSpec
	processes map[string]*Process
}

// NewCluster builds a Cluster from the given daemon specs, without
// starting any of them.
func NewCluster(specs ...DaemonSpec) *Cluster {
	return &Cluster{specs: specs, processes: make(map[string]*Process, len(specs))}
}

// Start launches every daemon in the cluster and returns as soon as all
// processes have been spawned; it does not wait for readiness.
func (c *Cluster) Start() error {
	for _, spec := range c.specs {
		p := NewProcess(spec.Binary)
		p.Env = append(p.Env, fmt.Sprintf("BREEZECHAT_SERVICE_NAME=%s", spec.Name))
		p.Env = append(p.Env, fmt.Sprintf("BREEZECHAT_SERVICE_LISTEN_ADDR=%s", spec.ListenAddr))
		for k, v := range spec.Env {
			p.Env = append(p.Env, fmt.Sprintf("%s=%s", k, v))
		}
		if err := p.Start(); err != nil {
			_ = c.Stop()
			return fmt.Errorf("start %s: %w", spec.Name, err)
		}
		c.processes[spec.Name] = p
	}
	return nil
}

// Stop sends SIGTERM to every running daemon in the cluster, ignoring
// daemons that already exited.
func (c *Cluster) Stop() error {
	var firstErr error
	for name, p := range c.processes {
		if !p.IsRunning() {
			continue
		}
		if err := p.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", name, err)
		}
	}
	return firstErr
}

// Process returns the spawned process for the named daemon, or nil if it
// was never started.
func (c *Cluster) Process(name string) *Process {
	return c.processes[name]
}

// WaitReady waits until every daemon has logged its listening line within
// timeout, using each process's own log buffer.
func (c *Cluster) WaitReady(timeout time.Duration) error {
	for _, spec := range c.specs {
		p := c.processes[spec.Name]
		if p == nil {
			continue
		}
		pattern := spec.ReadyPattern
		if pattern == "" {
			pattern = "listening"
		}
		if err := p.WaitForLog(pattern, timeout); err != nil {
			return fmt.Errorf("%s: %w", spec.Name, err)
		}
	}
	return nil
}
