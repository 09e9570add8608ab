package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/attaboy/warden/internal/relay"
	"github.com/google/uuid"
)

// Link is the game-server side of a live connection.
type Link interface {
	Disconnect(message string) error
	SendPluginMessage(frame []byte) error
}

// Session is a connected player.
type Session struct {
	UUID   uuid.UUID
	Name   string
	IP     string
	Exempt bool
	Link   Link

	seq uint64
}

// Registry tracks connected sessions. It doubles as the relay carrier source:
// any session whose link accepts plugin messages can forward proxy frames.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	seq      uint64
	logger   *slog.Logger

	onCarrier func()
}

// NewRegistry creates an empty registry. onCarrier runs after every join and
// may be nil.
func NewRegistry(onCarrier func(), logger *slog.Logger) *Registry {
	return &Registry{
		sessions:  make(map[uuid.UUID]*Session),
		logger:    logger,
		onCarrier: onCarrier,
	}
}

// SetOnCarrier replaces the join callback.
func (r *Registry) SetOnCarrier(fn func()) {
	r.mu.Lock()
	r.onCarrier = fn
	r.mu.Unlock()
}

// Join registers s, replacing any previous session for the same identity.
func (r *Registry) Join(s Session) {
	r.mu.Lock()
	r.seq++
	s.seq = r.seq
	r.sessions[s.UUID] = &s
	cb := r.onCarrier
	r.mu.Unlock()

	r.logger.Debug("session joined", "uuid", s.UUID, "name", s.Name)
	if cb != nil {
		cb()
	}
}

// Leave removes the session for id.
func (r *Registry) Leave(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// SetExempt updates the exemption flag of a connected identity.
func (r *Registry) SetExempt(id uuid.UUID, exempt bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.Exempt = exempt
	}
	return ok
}

// Lookup reports whether id is connected and, if so, whether it is exempt.
func (r *Registry) Lookup(id uuid.UUID) (online, exempt bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, false
	}
	return true, s.Exempt
}

// Address returns the IP address of the connected session for id.
func (r *Registry) Address(id uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	return s.IP, true
}

// Get returns a copy of the session for id.
func (r *Registry) Get(id uuid.UUID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Kick disconnects id with message and removes it. Returns false when the
// identity is not connected here.
func (r *Registry) Kick(id uuid.UUID, message string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := s.Link.Disconnect(message); err != nil {
		r.logger.Warn("session disconnect failed", "uuid", id, "error", err)
	}
	return true
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Carriers lists connected sessions in join order.
func (r *Registry) Carriers() []relay.Carrier {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]relay.Carrier, len(list))
	for i, s := range list {
		out[i] = carrier{s}
	}
	return out
}

// Shutdown disconnects every session with message.
func (r *Registry) Shutdown(message string) {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	for id, s := range all {
		if err := s.Link.Disconnect(message); err != nil {
			r.logger.Warn("session disconnect failed", "uuid", id, "error", err)
		}
	}
}

type carrier struct {
	s *Session
}

func (c carrier) Relay(frame []byte) error {
	if err := c.s.Link.SendPluginMessage(frame); err != nil {
		return fmt.Errorf("relay via %s: %w", c.s.Name, err)
	}
	return nil
}
