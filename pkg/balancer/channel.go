// Package balancer implements the client-side load balancer: ServiceChannel
// (C4), a per-service min-heap of pooled connections ordered by in-flight
// busy_level, and ServiceManager (C5), which routes discovery events into
// the right ServiceChannel and exposes Pick to callers.
package balancer

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/littleblus/breezechat/pkg/log"
)

// Conn is one pooled connection plus its in-flight busy_level, the unit the
// ServiceChannel heap orders by. It satisfies heap.Interface's element
// contract via the owning heap wrapper below.
type Conn struct {
	Address   string
	BusyLevel int
	GRPC      *grpc.ClientConn

	index int // position in the heap, maintained by container/heap
}

// Dialer builds a *grpc.ClientConn for an address. Production code uses the
// default grpc.NewClient dialer or TLSDialer; tests substitute a fake that
// never actually connects.
type Dialer func(address string) (*grpc.ClientConn, error)

// connHeap implements container/heap.Interface, ordered by BusyLevel with a
// deterministic tie-break on Address so that a pick among equal-level
// entries is reproducible within a single call.
type connHeap []*Conn

func (h connHeap) Len() int { return len(h) }
func (h connHeap) Less(i, j int) bool {
	if h[i].BusyLevel != h[j].BusyLevel {
		return h[i].BusyLevel < h[j].BusyLevel
	}
	return h[i].Address < h[j].Address
}
func (h connHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *connHeap) Push(x any) {
	c := x.(*Conn)
	c.index = len(*h)
	*h = append(*h, c)
}
func (h *connHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// ServiceChannel maintains, for one service name, a min-heap of connections
// keyed by busy_level plus a map keyed by address, with the invariant that
// every heap entry has exactly one matching map entry and vice versa.
type ServiceChannel struct {
	mu          sync.Mutex
	serviceName string
	heap        connHeap
	byAddress   map[string]*Conn
	dial        Dialer
}

// NewServiceChannel constructs an empty channel for serviceName. dial is
// used by Append to build new connections; if nil, grpc.NewClient is used.
func NewServiceChannel(serviceName string, dial Dialer) *ServiceChannel {
	if dial == nil {
		dial = defaultDialer
	}
	return &ServiceChannel{
		serviceName: serviceName,
		byAddress:   make(map[string]*Conn),
		dial:        dial,
	}
}

func defaultDialer(address string) (*grpc.ClientConn, error) {
	return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// TLSDialer builds a Dialer that dials every address with creds, for a
// ServiceManager serving a fabric where cfg.TLS.Enabled (see pkg/config
// and pkg/security.ClientTLSConfig).
func TLSDialer(creds grpc.DialOption) Dialer {
	return func(address string) (*grpc.ClientConn, error) {
		return grpc.NewClient(address, creds)
	}
}

// Append builds a connection to address and, on success, pushes it into the
// heap at busy_level 0. Construction failures are logged and the address is
// treated as unusable (spec.md §4.4) rather than returned as an error, since
// Discovery's on_put callback has nowhere useful to propagate a failure to.
func (c *ServiceChannel) Append(address string) {
	c.mu.Lock()
	if _, exists := c.byAddress[address]; exists {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, err := c.dial(address)
	if err != nil {
		log.WithComponent("balancer").Error().Err(err).
			Str("service", c.serviceName).Str("address", address).
			Msg("connection construction failed, address discarded")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byAddress[address]; exists {
		conn.Close()
		return
	}
	entry := &Conn{Address: address, GRPC: conn}
	heap.Push(&c.heap, entry)
	c.byAddress[address] = entry
}

// Remove drops the connection for address from both the map and the heap.
// O(n) over the heap, acceptable per spec.md §4.4's design note (pools are
// tens of replicas, not thousands).
func (c *ServiceChannel) Remove(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byAddress[address]
	if !ok {
		return
	}
	delete(c.byAddress, address)
	if entry.index >= 0 && entry.index < len(c.heap) && c.heap[entry.index] == entry {
		heap.Remove(&c.heap, entry.index)
	}
	if entry.GRPC != nil {
		entry.GRPC.Close()
	}
}

// Pick pops the global minimum by busy_level, re-pushes it with
// busy_level+1, and returns it. Returns nil if the pool is empty.
func (c *ServiceChannel) Pick() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heap.Len() == 0 {
		return nil
	}
	entry := heap.Pop(&c.heap).(*Conn)
	entry.BusyLevel++
	heap.Push(&c.heap, entry)
	return entry
}

// Complete decrements the busy_level of conn (floored at 0) and
// re-heapifies. O(n) over the heap, per spec.md §4.4.
func (c *ServiceChannel) Complete(conn *Conn) {
	if conn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byAddress[conn.Address]
	if !ok {
		return
	}
	if entry.BusyLevel > 0 {
		entry.BusyLevel--
	}
	heap.Fix(&c.heap, entry.index)
}

// Size reports the number of pooled connections.
func (c *ServiceChannel) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byAddress)
}

// ServiceName derives the service name from a coordination-store key by
// taking the substring up to the last '/', or the whole key if there is no
// '/' (spec.md §4.5, invariant 4 in §8).
func ServiceName(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[:idx]
}

// validate checks that the heap and map sizes agree; used by tests.
func (c *ServiceChannel) validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.heap) != len(c.byAddress) {
		return fmt.Errorf("heap/map size mismatch: heap=%d map=%d", len(c.heap), len(c.byAddress))
	}
	return nil
}
