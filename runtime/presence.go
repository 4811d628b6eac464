package runtime

import (
	"educonnect/contract"
	"educonnect/domain"
	"log/slog"
	"sync"
)

// ConnectionSink is the outbound side of a connection owned by the transport.
type ConnectionSink interface {
	contract.EventSink
	Close()
}

// Presence registers connections as they open and cleans them up when they go away.
type Presence struct {
	log         *slog.Logger
	registry    contract.IRegistry
	resolver    contract.IRoomResolver
	broadcaster contract.IBroadcaster
	history     HistoryRequester
	policy      domain.PostingPolicy

	mu       sync.Mutex
	sessions map[domain.ConnectionID]*Session
	sinks    map[domain.ConnectionID]ConnectionSink
}

func NewPresence(
	log *slog.Logger,
	registry contract.IRegistry,
	resolver contract.IRoomResolver,
	broadcaster contract.IBroadcaster,
	history HistoryRequester,
	policy domain.PostingPolicy) *Presence {
	return &Presence{
		log:         log,
		registry:    registry,
		resolver:    resolver,
		broadcaster: broadcaster,
		history:     history,
		policy:      policy,
		sessions:    make(map[domain.ConnectionID]*Session),
		sinks:       make(map[domain.ConnectionID]ConnectionSink),
	}
}

// Connect registers the connection and returns its session.
// A nil identity gives a session stuck in the Connected state.
func (p *Presence) Connect(connID domain.ConnectionID, identity *domain.Identity, sink ConnectionSink) *Session {
	session := &Session{
		connID:      connID,
		state:       StateConnected,
		sink:        sink,
		registry:    p.registry,
		resolver:    p.resolver,
		broadcaster: p.broadcaster,
		history:     p.history,
		policy:      p.policy,
		log:         p.log,
	}
	if identity != nil && identity.UserID != "" {
		copied := *identity
		session.identity = &copied
		session.state = StateAuthenticated
	}

	p.mu.Lock()
	p.sessions[connID] = session
	p.sinks[connID] = sink
	p.mu.Unlock()

	p.registry.Register(connID, sink)
	p.log.Debug("Connection opened", "conn_id", connID, "state", session.state)
	return session
}

// Disconnect removes the connection from the room it occupied and releases its sink.
// Calling it for an unknown or already closed connection is a no-op.
func (p *Presence) Disconnect(connID domain.ConnectionID) {
	p.mu.Lock()
	session, ok := p.sessions[connID]
	sink := p.sinks[connID]
	delete(p.sessions, connID)
	delete(p.sinks, connID)
	p.mu.Unlock()
	if !ok {
		return
	}

	session.close()
	roomID, inRoom := p.registry.Unregister(connID)
	sink.Close()
	if inRoom {
		p.log.Debug("Connection closed, left room", "conn_id", connID, "room_id", roomID)
		return
	}
	p.log.Debug("Connection closed", "conn_id", connID)
}

// DisconnectUser closes every connection opened by the user and returns how many there were.
// Once it returns, none of them can post anymore.
func (p *Presence) DisconnectUser(userID string) int {
	p.mu.Lock()
	var ids []domain.ConnectionID
	for connID, session := range p.sessions {
		if session.identity != nil && session.identity.UserID == userID {
			ids = append(ids, connID)
		}
	}
	p.mu.Unlock()
	for _, connID := range ids {
		p.Disconnect(connID)
	}
	if len(ids) > 0 {
		p.log.Info("User connections closed", "user_id", userID, "connections", len(ids))
	}
	return len(ids)
}

// DisconnectAll closes every open connection, used on shutdown.
func (p *Presence) DisconnectAll() {
	p.mu.Lock()
	ids := make([]domain.ConnectionID, 0, len(p.sessions))
	for connID := range p.sessions {
		ids = append(ids, connID)
	}
	p.mu.Unlock()
	for _, connID := range ids {
		p.Disconnect(connID)
	}
}

func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
