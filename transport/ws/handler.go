// Package ws serves the real-time chat over WebSocket.
// Each connection gets a read pump feeding its session and a write pump
// draining its sink; the two only share the sink.
package ws

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/runtime"
	"educonnect/sink"
	goerrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// IdentityResolver reads who is behind an upgrade request, once, before the session exists.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, r *http.Request) (domain.Identity, error)
}

type Config struct {
	AllowedOrigins []string
	MaxFrameSize   int64
	BufferSize     int
	RateBurst      int
	RateInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 8 * 1024
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.RateInterval <= 0 {
		c.RateInterval = time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// pingPeriod must stay below PongWait.
func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

type Handler struct {
	log        *slog.Logger
	presence   *runtime.Presence
	identities IdentityResolver
	upgrader   websocket.Upgrader
	cfg        Config
}

func NewHandler(log *slog.Logger, presence *runtime.Presence, identities IdentityResolver, cfg Config) *Handler {
	cfg = cfg.withDefaults()
	origins := newOriginPolicy(cfg.AllowedOrigins)
	return &Handler{
		log:        log,
		presence:   presence,
		identities: identities,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if origins.check(r) {
					return true
				}
				log.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
				return false
			},
		},
	}
}

// ServeHTTP upgrades the request. A request without a valid session still gets a
// connection, it just can't join or post until it reconnects authenticated.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	var identity *domain.Identity
	resolved, err := h.identities.ResolveIdentity(r.Context(), r)
	switch {
	case err == nil:
		identity = &resolved
	case goerrors.Is(err, errors.ErrUnauthenticated), goerrors.Is(err, errors.ErrNotApproved):
		h.log.Debug("Anonymous WebSocket connection", "remote_addr", r.RemoteAddr, "reason", err)
	default:
		h.log.Error("Unable to resolve identity", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	connID := domain.ConnectionID(uuid.NewString())
	connSink := sink.NewConnectionSink(connID, h.cfg.BufferSize, h.log)
	c := &connection{
		conn:     conn,
		connID:   connID,
		sink:     connSink,
		session:  h.presence.Connect(connID, identity, connSink),
		presence: h.presence,
		limiter:  rate.NewLimiter(rate.Every(h.cfg.RateInterval/time.Duration(h.cfg.RateBurst)), h.cfg.RateBurst),
		cfg:      h.cfg,
		log:      h.log.With("conn_id", connID, "remote_addr", r.RemoteAddr),
	}
	go c.writePump()
	go c.readPump()
}
