// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/socketgate/socketgate/internal/domain/connection"
)

// StatsService tracks runtime statistics using lock-free atomic counters.
// It is a connection.Observer, so every connection manager reports into it.
type StatsService struct {
	opened         atomic.Int64
	closed         atomic.Int64
	requests       atomic.Int64
	serverErrors   atomic.Int64
	dropped        atomic.Int64
	rejected       atomic.Int64
	cookieFailures atomic.Int64

	mu             sync.Mutex
	protocolCounts map[string]int64
	methodCounts   map[string]int64
}

// NewStatsService creates a StatsService with all counters at zero.
func NewStatsService() *StatsService {
	return &StatsService{
		protocolCounts: make(map[string]int64),
		methodCounts:   make(map[string]int64),
	}
}

// ConnectionOpened counts a booted connection by protocol.
func (s *StatsService) ConnectionOpened(version string) {
	s.opened.Add(1)
	if version == "" {
		return
	}
	s.mu.Lock()
	s.protocolCounts[version]++
	s.mu.Unlock()
}

// ConnectionClosed counts a disconnected connection.
func (s *StatsService) ConnectionClosed(time.Duration) {
	s.closed.Add(1)
}

// RequestCompleted counts a delivered response by method.
func (s *StatsService) RequestCompleted(method string, status int, _ time.Duration) {
	s.requests.Add(1)
	if status >= 500 {
		s.serverErrors.Add(1)
	}
	s.mu.Lock()
	s.methodCounts[method]++
	s.mu.Unlock()
}

// ResponseDropped counts a response discarded after disconnect.
func (s *StatsService) ResponseDropped() {
	s.dropped.Add(1)
}

// RequestRejected counts a request refused before injection.
func (s *StatsService) RequestRejected(string) {
	s.rejected.Add(1)
}

// CookieParseFailed counts an unparseable cookie header.
func (s *StatsService) CookieParseFailed(string) {
	s.cookieFailures.Add(1)
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	ConnectionsOpened int64            `json:"connections_opened"`
	ConnectionsClosed int64            `json:"connections_closed"`
	Requests          int64            `json:"requests"`
	ServerErrors      int64            `json:"server_errors"`
	DroppedResponses  int64            `json:"dropped_responses"`
	RejectedRequests  int64            `json:"rejected_requests"`
	CookieFailures    int64            `json:"cookie_parse_failures"`
	ProtocolCounts    map[string]int64 `json:"protocol_counts"`
	MethodCounts      map[string]int64 `json:"method_counts"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	pc := make(map[string]int64, len(s.protocolCounts))
	for k, v := range s.protocolCounts {
		pc[k] = v
	}
	mc := make(map[string]int64, len(s.methodCounts))
	for k, v := range s.methodCounts {
		mc[k] = v
	}
	s.mu.Unlock()

	return Stats{
		ConnectionsOpened: s.opened.Load(),
		ConnectionsClosed: s.closed.Load(),
		Requests:          s.requests.Load(),
		ServerErrors:      s.serverErrors.Load(),
		DroppedResponses:  s.dropped.Load(),
		RejectedRequests:  s.rejected.Load(),
		CookieFailures:    s.cookieFailures.Load(),
		ProtocolCounts:    pc,
		MethodCounts:      mc,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	for _, c := range []*atomic.Int64{&s.opened, &s.closed, &s.requests, &s.serverErrors, &s.dropped, &s.rejected, &s.cookieFailures} {
		c.Store(0)
	}

	s.mu.Lock()
	s.protocolCounts = make(map[string]int64)
	s.methodCounts = make(map[string]int64)
	s.mu.Unlock()
}

var _ connection.Observer = (*StatsService)(nil)
