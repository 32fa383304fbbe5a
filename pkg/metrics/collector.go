package metrics

import (
	"time"

	"github.com/littleblus/breezechat/pkg/balancer"
)

// Collector periodically snapshots a ServiceManager's pool sizes into
// ServiceInstancesTotal, the same polling-ticker shape the teacher used for
// cluster-wide node/service counts, repointed at this fabric's one
// meaningful gauge-worthy state: how many instances each declared service
// currently has online.
type Collector struct {
	manager *balancer.ServiceManager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector bound to manager.
func NewCollector(manager *balancer.ServiceManager) *Collector {
	return &Collector{
		manager: manager,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds, collecting once
// immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, name := range c.manager.Names() {
		pool := c.manager.Pool(name)
		if pool == nil {
			continue
		}
		ServiceInstancesTotal.WithLabelValues(name).Set(float64(pool.Size()))
	}
}
