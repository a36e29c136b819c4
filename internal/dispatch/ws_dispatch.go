package dispatch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/observability"
)

const writeWait = 5 * time.Second

// Conn is the part of *websocket.Conn a session writes through.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WSSession represents one connected client of a profile.
type WSSession struct {
	conn Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(map[string]any{"event": "INSERT", "table": "notifications", "record": n})
}

// WSRegistry holds open sessions per profile. A profile may have several
// devices connected at once.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{})}
}

func (r *WSRegistry) Add(profileID string, conn Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[profileID] == nil {
		r.sessions[profileID] = make(map[*WSSession]struct{})
	}
	r.sessions[profileID][s] = struct{}{}
	observability.RealtimeSessions.Inc()
	return s
}

func (r *WSRegistry) Remove(profileID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[profileID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, profileID)
	}
	_ = s.conn.Close()
	observability.RealtimeSessions.Dec()
}

// Publish sends n to every session of its profile and returns how many
// sessions received it. Sessions that fail to write are dropped.
func (r *WSRegistry) Publish(n models.Notification) int {
	r.mu.RLock()
	targets := make([]*WSSession, 0, len(r.sessions[n.ProfileID]))
	for s := range r.sessions[n.ProfileID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Send(n); err != nil {
			r.Remove(n.ProfileID, s)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *WSRegistry) Count(profileID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[profileID])
}

var _ Conn = (*websocket.Conn)(nil)
