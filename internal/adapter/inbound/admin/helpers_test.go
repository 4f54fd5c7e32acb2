package admin

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/domain/protocol/protocoltest"
	"github.com/socketgate/socketgate/internal/domain/protocol/sails"
	"github.com/socketgate/socketgate/internal/port/outbound"
)

// fakeStore keeps managers even after they close, so handlers can be
// exercised against closed connections.
type fakeStore struct {
	mu       sync.Mutex
	managers map[string]*connection.Manager
}

func newFakeStore() *fakeStore {
	return &fakeStore{managers: make(map[string]*connection.Manager)}
}

func (s *fakeStore) Register(m *connection.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.managers[m.ID()] = m
}

func (s *fakeStore) Unregister(string) bool { return true }

func (s *fakeStore) Get(id string) (*connection.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[id]
	return m, ok
}

func (s *fakeStore) List() []*connection.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*connection.Manager, 0, len(s.managers))
	for _, m := range s.managers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *fakeStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.managers)
}

func (s *fakeStore) Broadcast(event string, v any) int {
	n := 0
	for _, m := range s.List() {
		if m.Emit(event, v) == nil {
			n++
		}
	}
	return n
}

var _ ConnectionStore = (*fakeStore)(nil)
var _ connection.Registry = (*fakeStore)(nil)

var okInjector = outbound.InjectorFunc(func(context.Context, *protocol.Request) (*protocol.RawResponse, error) {
	return &protocol.RawResponse{StatusCode: http.StatusOK}, nil
})

// boot opens a sails connection with the given id on a test socket.
func boot(t *testing.T, store *fakeStore, id string) (*connection.Manager, *protocoltest.Socket) {
	t.Helper()
	sock := protocoltest.NewSocket(&protocol.Handshake{
		Headers: protocol.Header{},
		Query:   url.Values{sails.Marker: {"0.11.0"}},
		Address: "10.1.1.1:4000",
	})
	m := connection.NewManager(sock, okInjector, connection.Config{}, connection.WithID(id))
	if err := m.Boot(context.Background(), store); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	t.Cleanup(m.Disconnect)
	return m, sock
}
