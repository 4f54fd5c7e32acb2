package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/socketgate/socketgate/internal/domain/connection"
)

// DefaultSweepInterval is how often closed connections left behind in the
// registry are pruned.
const DefaultSweepInterval = time.Minute

// ConnectionRegistry is the in-process id -> connection map shared by all
// connection managers.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*connection.Manager

	sweepInterval time.Duration
	logger        *slog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(logger *slog.Logger) *ConnectionRegistry {
	return NewConnectionRegistryWithConfig(logger, DefaultSweepInterval)
}

// NewConnectionRegistryWithConfig creates an empty registry with a custom
// sweep interval.
func NewConnectionRegistryWithConfig(logger *slog.Logger, sweepInterval time.Duration) *ConnectionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionRegistry{
		conns:         make(map[string]*connection.Manager),
		sweepInterval: sweepInterval,
		logger:        logger.With("component", "connection_registry"),
		stopChan:      make(chan struct{}),
	}
}

// Register adds m under its id, replacing any entry with the same id.
func (r *ConnectionRegistry) Register(m *connection.Manager) {
	r.mu.Lock()
	r.conns[m.ID()] = m
	r.mu.Unlock()
}

// Unregister removes id and reports whether it was present.
func (r *ConnectionRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	return ok
}

// Get returns the connection registered under id.
func (r *ConnectionRegistry) Get(id string) (*connection.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.conns[id]
	return m, ok
}

// List returns a snapshot of registered connections, oldest first.
func (r *ConnectionRegistry) List() []*connection.Manager {
	r.mu.RLock()
	out := make([]*connection.Manager, 0, len(r.conns))
	for _, m := range r.conns {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt().Equal(out[j].OpenedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].OpenedAt().Before(out[j].OpenedAt())
	})
	return out
}

// Size returns the number of registered connections.
func (r *ConnectionRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast emits event to every open connection and returns how many
// connections accepted it.
func (r *ConnectionRegistry) Broadcast(event string, v any) int {
	sent := 0
	for _, m := range r.List() {
		if err := m.Emit(event, v); err == nil {
			sent++
		}
	}
	return sent
}

// DisconnectAll disconnects every registered connection.
func (r *ConnectionRegistry) DisconnectAll() {
	for _, m := range r.List() {
		m.Disconnect()
	}
}

// StartCleanup prunes closed connections every sweep interval until ctx is
// done or Stop is called.
func (r *ConnectionRegistry) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// sweep checks connection state outside the registry lock.
func (r *ConnectionRegistry) sweep() {
	var stale []string
	for _, m := range r.List() {
		if !m.IsOpen() {
			stale = append(stale, m.ID())
		}
	}
	if len(stale) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range stale {
		delete(r.conns, id)
	}
	remaining := len(r.conns)
	r.mu.Unlock()

	r.logger.Debug("pruned closed connections", "count", len(stale), "remaining", remaining)
}

// Stop ends the sweep and waits for it to exit. Safe to call more than once.
func (r *ConnectionRegistry) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

var _ connection.Registry = (*ConnectionRegistry)(nil)
