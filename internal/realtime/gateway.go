package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// Authenticator resolves a handshake token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// GatewayDependencies wires the websocket gateway.
type GatewayDependencies struct {
	Hub           *Hub
	Authenticator Authenticator
	Config        config.RealtimeConfig
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// Gateway upgrades authenticated HTTP requests into hub subscribers.
type Gateway struct {
	hub      *Hub
	authn    Authenticator
	cfg      config.RealtimeConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// NewGateway constructs a gateway.
func NewGateway(deps GatewayDependencies) *Gateway {
	g := &Gateway{
		hub:     deps.Hub,
		authn:   deps.Authenticator,
		cfg:     deps.Config,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Routes returns the gateway's HTTP handler.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/ws", g.HandleConnect)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// HandleConnect authenticates the handshake, upgrades, and serves the connection until the
// peer disconnects. Room memberships are dropped on the way out.
func (g *Gateway) HandleConnect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}

	user, err := g.authn.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws, *user, g.cfg.SendBuffer, g.cfg.PingInterval(), g.cfg.WriteTimeout(), g.logger)
	g.metrics.ConnectionOpened()
	conn.logger.Debug("websocket connected", zap.String("role", string(user.Role)))

	defer func() {
		g.hub.Remove(conn)
		g.metrics.ConnectionClosed()
		conn.logger.Debug("websocket disconnected")
	}()

	conn.serve(g.handleControl)
}

// handleControl applies join and join-role. A connection may only enter its own identity room
// and the room of the role it authenticated with.
func (g *Gateway) handleControl(c *Conn, env events.Envelope) {
	var arg string
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &arg); err != nil {
			c.reply(events.ServerError, errorFrame{Event: env.Event, Message: "payload must be a string"})
			return
		}
	}

	switch env.Event {
	case events.ClientJoin:
		if arg != c.user.ID {
			c.reply(events.ServerError, errorFrame{Event: env.Event, Message: "cannot join another user's room"})
			return
		}
		g.hub.Join(c, events.UserRoom(arg))
	case events.ClientJoinRole:
		if domain.Role(arg) != c.user.Role {
			c.reply(events.ServerError, errorFrame{Event: env.Event, Message: "cannot join another role's room"})
			return
		}
		g.hub.Join(c, events.RoleRoom(c.user.Role))
	default:
		c.reply(events.ServerError, errorFrame{Event: env.Event, Message: "unknown event"})
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
