package balancer

import "sync"

// ServiceManager tracks the set of service names a process declares
// interest in (focus) and owns one ServiceChannel pool per declared name.
// It routes Discovery's on_put/on_delete callbacks into the right pool and
// exposes Pick to RPC callers.
type ServiceManager struct {
	mu     sync.Mutex
	focus  map[string]struct{}
	pools  map[string]*ServiceChannel
	dialer Dialer
}

// NewServiceManager constructs an empty manager. dialer is forwarded to
// every ServiceChannel it creates; nil uses the default grpc dialer.
func NewServiceManager(dialer Dialer) *ServiceManager {
	return &ServiceManager{
		focus: make(map[string]struct{}),
		pools: make(map[string]*ServiceChannel),
		dialer: dialer,
	}
}

// Declare adds name to the focus set.
func (m *ServiceManager) Declare(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focus[name] = struct{}{}
}

// Undeclare removes name from the focus set. The pool, if any, is left in
// place so in-flight picks on it keep working; a pool exists only for a
// name that was at some point in focus, matching spec.md §3's invariant.
func (m *ServiceManager) Undeclare(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.focus, name)
}

// Online handles a discovery on_put event: key's service name is derived,
// and if it is in focus, the address is appended to that pool (creating the
// pool on first sight). Events for names outside focus are dropped silently.
func (m *ServiceManager) Online(key, address string) {
	name := ServiceName(key)

	m.mu.Lock()
	if _, inFocus := m.focus[name]; !inFocus {
		m.mu.Unlock()
		return
	}
	pool, ok := m.pools[name]
	if !ok {
		pool = NewServiceChannel(name, m.dialer)
		m.pools[name] = pool
	}
	m.mu.Unlock()

	// Append dials out; the manager lock must not be held across it.
	pool.Append(address)
}

// Offline handles a discovery on_delete event, removing address from the
// pool if one exists for the derived service name.
func (m *ServiceManager) Offline(key, address string) {
	name := ServiceName(key)

	m.mu.Lock()
	pool, ok := m.pools[name]
	m.mu.Unlock()
	if !ok {
		return
	}
	pool.Remove(address)
}

// Pick returns the least-busy connection in name's pool, or nil if there is
// no pool for name. Callers must not hold any manager lock while
// dispatching the RPC on the returned connection.
func (m *ServiceManager) Pick(name string) *Conn {
	m.mu.Lock()
	pool, ok := m.pools[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return pool.Pick()
}

// Pool returns the ServiceChannel for name, or nil if none exists.
func (m *ServiceManager) Pool(name string) *ServiceChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pools[name]
}

// Names returns the service names with a live pool, for metrics collection.
func (m *ServiceManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	return names
}
