// Package fabric bundles the coordination/registry/discovery/balancer/
// metrics bootstrap sequence every BreezeChat service process stands up
// identically at startup. cmd/warren's cluster/manager/worker subcommands
// each hand-wire this kind of sequence inline; here it is factored into one
// helper since five independent daemon binaries (cmd/userd, cmd/filed,
// cmd/transmitd, cmd/storaged, cmd/speechd) need the exact same steps:
// dial coordination (C1), register this instance (C2), declare interest in
// and discover the peer services this process calls (C3/C4/C5), and start
// the Prometheus/health HTTP surface (metrics.Collector).
package fabric

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/littleblus/breezechat/pkg/balancer"
	"github.com/littleblus/breezechat/pkg/config"
	"github.com/littleblus/breezechat/pkg/coordination"
	"github.com/littleblus/breezechat/pkg/discovery"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/metrics"
	"github.com/littleblus/breezechat/pkg/registry"
	"github.com/littleblus/breezechat/pkg/security"
)

// Fabric holds the machinery a process tears down in reverse order on
// shutdown: the discovery watch, the registry lease, and the metrics
// collector.
type Fabric struct {
	Coord     *coordination.Client
	Registry  *registry.Registry
	Discovery *discovery.Discovery
	Manager   *balancer.ServiceManager
	Collector *metrics.Collector

	metricsAddr string
	metricsPath string
}

// Start dials coordination, registers this process instance under
// cfg.Service, declares peer on the balancer for every name this process
// calls over RPC, and starts whole-namespace discovery dispatching
// directly into the balancer (balancer.ServiceManager.Online/Offline
// already filter events down to declared names, per spec.md §4.5).
func Start(cfg config.Config, peers ...string) (*Fabric, error) {
	coord, err := coordination.New(coordination.Config{
		Endpoints:   cfg.Coord.Endpoints,
		DialTimeout: cfg.Coord.DialTimeout,
	})
	if err != nil {
		metrics.RegisterComponent("coordination", false, err.Error())
		return nil, fmt.Errorf("fabric: coordination dial: %w", err)
	}
	metrics.RegisterComponent("coordination", true, "connected")

	instance := &registry.Instance{
		ServiceName:  cfg.Service.Name,
		InstanceName: cfg.Service.InstanceName,
		Address:      cfg.Service.PublicAddr,
	}
	reg, err := registry.New(coord, instance, cfg.Coord.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("fabric: registry: %w", err)
	}
	reg.Register()

	var dialer balancer.Dialer
	if cfg.TLS.Enabled {
		cert, err := security.LoadCertFromFile(cfg.TLS.CertDir)
		if err != nil {
			reg.Unregister()
			return nil, fmt.Errorf("fabric: load client cert: %w", err)
		}
		// Every BreezeChat process shares the same cfg.TLS.CertDir cert
		// (no internal CA, see DESIGN.md), so the client pins trust to
		// that same certificate rather than a CA chain. ServerName is
		// left empty: with no CA-issued per-instance certs there is no
		// meaningful hostname to verify against, so hostname checking is
		// skipped while chain verification against the pinned cert still
		// applies.
		tlsCfg := security.ClientTLSConfig("", cert.Leaf, cert)
		dialer = balancer.TLSDialer(grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	}

	manager := balancer.NewServiceManager(dialer)
	for _, name := range peers {
		manager.Declare(name)
	}

	disc := discovery.New(coord, "", manager.Online, manager.Offline)
	if err := disc.Start(); err != nil {
		reg.Unregister()
		return nil, fmt.Errorf("fabric: discovery start: %w", err)
	}

	collector := metrics.NewCollector(manager)
	collector.Start()

	return &Fabric{
		Coord:       coord,
		Registry:    reg,
		Discovery:   disc,
		Manager:     manager,
		Collector:   collector,
		metricsAddr: cfg.Metrics.ListenAddr,
		metricsPath: cfg.Metrics.Endpoint,
	}, nil
}

// ServeMetrics brings up the Prometheus/health HTTP surface on a background
// goroutine, the same http.Handle-then-ListenAndServe shape cmd/warren
// uses for its own metrics endpoint, and is a no-op when metrics are
// disabled in config.
func (f *Fabric) ServeMetrics(enabled bool) {
	if !enabled || f.metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	path := f.metricsPath
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	addr := f.metricsAddr
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithComponent("fabric").Error().Err(err).Msg("metrics server exited")
		}
	}()
}

// Stop tears everything down in reverse order: stop polling, stop
// watching, and revoke this instance's lease.
func (f *Fabric) Stop() {
	f.Collector.Stop()
	f.Discovery.Stop()
	f.Registry.Unregister()
}
