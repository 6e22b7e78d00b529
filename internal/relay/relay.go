// Package relay owns the connection→session and session→members mappings
// and brokers signaling traffic between the members of a session.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carelink/callsignal/internal/domain"
	"github.com/carelink/callsignal/internal/monitoring"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotAMember     = errors.New("not a member of session")
	ErrSessionFull    = errors.New("session full")
	ErrClosed         = errors.New("relay closed")
)

// Sender pushes one event towards a single connection. Implementations must
// not block; a full queue is reported as an error and the frame is dropped.
type Sender interface {
	TrySend(event string, data any) error
}

type session struct {
	id        domain.SessionID
	members   []domain.ConnectionID // insertion order; first member is the callee
	createdAt time.Time
}

type conn struct {
	sender  Sender
	session domain.SessionID // empty while idle
}

// Relay is a single-goroutine actor. All map access happens on the Run loop,
// so every operation observes and leaves a consistent state.
type Relay struct {
	capacity int

	cmds   chan func()
	closed chan struct{}

	conns    map[domain.ConnectionID]*conn
	sessions map[domain.SessionID]*session
}

// New builds a relay with the given session capacity (members per session).
// Anything below 2 is raised to 2; a call needs both parties.
func New(capacity int) *Relay {
	if capacity < 2 {
		capacity = 2
	}
	return &Relay{
		capacity: capacity,
		cmds:     make(chan func(), 64),
		closed:   make(chan struct{}),
		conns:    make(map[domain.ConnectionID]*conn),
		sessions: make(map[domain.SessionID]*session),
	}
}

// Run processes operations until ctx is canceled. Must be called exactly once.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.closed)
	log.Info().Str("module", "relay").Msg("relay loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay").Msg("relay loop stopped")
			return
		case fn := <-r.cmds:
			fn()
		}
	}
}

// do runs fn on the relay loop and waits for it to complete.
func (r *Relay) do(fn func()) error {
	done := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(done) }:
	case <-r.closed:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-r.closed:
		return ErrClosed
	}
}

// Register makes a fresh connection known to the relay. Called by the
// transport adapter right after the handshake.
func (r *Relay) Register(id domain.ConnectionID, s Sender) error {
	return r.do(func() {
		r.conns[id] = &conn{sender: s}
		monitoring.ActiveConnections.Inc()
		log.Info().Str("module", "relay").Str("conn", string(id)).Msg("connection registered")
	})
}

// Join adds the connection to the session, creating it if absent. A
// connection already in another session is moved (implicit leave first).
// Joining the session it is already in is a no-op.
func (r *Relay) Join(id domain.ConnectionID, sid domain.SessionID) error {
	var opErr error
	if err := r.do(func() { opErr = r.join(id, sid) }); err != nil {
		return err
	}
	return opErr
}

func (r *Relay) join(id domain.ConnectionID, sid domain.SessionID) error {
	c, ok := r.conns[id]
	if !ok || sid == "" {
		return ErrInvalidRequest
	}
	if c.session == sid {
		return nil
	}
	if s, ok := r.sessions[sid]; ok && len(s.members) >= r.capacity {
		// Checked before the implicit leave so a rejected join leaves the
		// caller's current membership untouched.
		return ErrSessionFull
	}
	if c.session != "" {
		r.leave(id)
	}

	s, ok := r.sessions[sid]
	if !ok {
		s = &session{id: sid, createdAt: time.Now()}
		r.sessions[sid] = s
		monitoring.ActiveSessions.Inc()
		log.Info().Str("module", "relay").Str("session", string(sid)).Msg("session created")
	}
	for _, other := range s.members {
		r.send(other, domain.EventPeerJoined, domain.PeerJoined{ConnectionID: id})
	}
	s.members = append(s.members, id)
	c.session = sid
	log.Info().Str("module", "relay").Str("conn", string(id)).Str("session", string(sid)).Int("members", len(s.members)).Msg("joined session")
	return nil
}

// Relay forwards a signaling message verbatim to every other member of the
// session, tagged with the sender's connection id. A lone sender's message
// is dropped silently; delivery is fire-and-forget.
func (r *Relay) Relay(id domain.ConnectionID, sid domain.SessionID, kind domain.SignalKind, payload json.RawMessage) error {
	var opErr error
	if err := r.do(func() { opErr = r.relay(id, sid, kind, payload) }); err != nil {
		return err
	}
	return opErr
}

func (r *Relay) relay(id domain.ConnectionID, sid domain.SessionID, kind domain.SignalKind, payload json.RawMessage) error {
	c, ok := r.conns[id]
	if !ok || sid == "" || kind == "" {
		return ErrInvalidRequest
	}
	if c.session != sid {
		return ErrNotAMember
	}
	msg := domain.PeerSignal{From: id, Kind: kind, Payload: payload}
	for _, other := range r.sessions[sid].members {
		if other == id {
			continue
		}
		r.send(other, domain.EventSignal, msg)
	}
	monitoring.RelayedMessages.Inc()
	return nil
}

// Leave detaches the connection from its session, if any. Remaining members
// get a peer-left notification; an emptied session is deleted immediately.
func (r *Relay) Leave(id domain.ConnectionID) error {
	return r.do(func() { r.leave(id) })
}

func (r *Relay) leave(id domain.ConnectionID) {
	c, ok := r.conns[id]
	if !ok || c.session == "" {
		return
	}
	s := r.sessions[c.session]
	members := s.members[:0]
	for _, m := range s.members {
		if m != id {
			members = append(members, m)
		}
	}
	s.members = members
	c.session = ""

	for _, other := range s.members {
		r.send(other, domain.EventPeerLeft, domain.PeerLeft{ConnectionID: id})
	}
	if len(s.members) == 0 {
		delete(r.sessions, s.id)
		monitoring.ActiveSessions.Dec()
		log.Info().Str("module", "relay").Str("session", string(s.id)).Msg("session deleted")
	}
	log.Info().Str("module", "relay").Str("conn", string(id)).Str("session", string(s.id)).Msg("left session")
}

// Disconnect is the transport-close path: leave plus removal of all
// bookkeeping. Safe to call more than once; only the first call acts.
func (r *Relay) Disconnect(id domain.ConnectionID) error {
	return r.do(func() {
		if _, ok := r.conns[id]; !ok {
			return
		}
		r.leave(id)
		delete(r.conns, id)
		monitoring.ActiveConnections.Dec()
		log.Info().Str("module", "relay").Str("conn", string(id)).Msg("connection removed")
	})
}

// Sessions returns a snapshot of live sessions for the ops API.
func (r *Relay) Sessions() []domain.SessionInfo {
	var out []domain.SessionInfo
	_ = r.do(func() {
		out = make([]domain.SessionInfo, 0, len(r.sessions))
		for _, s := range r.sessions {
			out = append(out, domain.SessionInfo{
				ID:          s.id,
				MemberCount: len(s.members),
				CreatedAt:   s.createdAt,
			})
		}
	})
	return out
}

func (r *Relay) send(to domain.ConnectionID, event string, data any) {
	c, ok := r.conns[to]
	if !ok {
		return
	}
	if err := c.sender.TrySend(event, data); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("conn", string(to)).Str("event", event).Msg("dropped outbound event")
	}
}
