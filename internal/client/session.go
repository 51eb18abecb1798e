package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

// QueryKey names a cached server view the session can invalidate.
type QueryKey string

const (
	QueryNotifications QueryKey = "notifications"
	QueryMyChats       QueryKey = "my-chats"
	QueryTickets       QueryKey = "tickets"
)

// TicketQuery is the cache key of one ticket's detail view.
func TicketQuery(ticketID string) QueryKey {
	return QueryKey("ticket:" + ticketID)
}

// Alert is a transient, user-facing heads-up.
type Alert struct {
	Event    events.EventName
	Title    string
	Message  string
	TicketID string
	At       time.Time
}

// Alerter surfaces alerts, e.g. as a toast or a printed line.
type Alerter interface {
	Alert(Alert)
}

// Cache holds server views that are refetched when invalidated.
type Cache interface {
	Invalidate(key QueryKey)
	InvalidateAll()
}

// SessionConfig configures a live session.
type SessionConfig struct {
	// URL is the gateway endpoint, e.g. ws://localhost:8081/ws.
	URL    string
	Token  string
	UserID string
	Role   domain.Role

	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *zap.Logger
}

// Session keeps one identity's websocket connection alive and applies incoming events to the
// alerter, the cache and the open transcript.
type Session struct {
	cfg     SessionConfig
	alerter Alerter
	cache   Cache
	logger  *zap.Logger

	mu         sync.Mutex
	transcript *Transcript
	connects   int
}

// NewSession builds a session. It does not dial until Run.
func NewSession(cfg SessionConfig, alerter Alerter, cache Cache) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, alerter: alerter, cache: cache, logger: logger.With(zap.String("user_id", cfg.UserID))}
}

// Open makes t the visible chat window. Pass nil to close it.
func (s *Session) Open(t *Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = t
}

// Connects counts successful handshakes.
func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Run connects and reconnects until ctx is cancelled. Every reconnect drops all cached views,
// since events missed while offline are never replayed.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var hsErr *handshakeError
		if errors.As(err, &hsErr) && hsErr.status == http.StatusUnauthorized {
			return err
		}
		s.logger.Warn("session disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string { return e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

func (s *Session) runOnce(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.Token)
	ws, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return &handshakeError{status: resp.StatusCode, err: err}
		}
		return err
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := s.declare(ws); err != nil {
		return err
	}

	s.mu.Lock()
	s.connects++
	reconnect := s.connects > 1
	s.mu.Unlock()
	if reconnect {
		s.cache.InvalidateAll()
	}
	s.logger.Debug("session connected", zap.Bool("reconnect", reconnect))

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		s.Dispatch(frame)
	}
}

// declare joins the identity room, then the role room.
func (s *Session) declare(ws *websocket.Conn) error {
	for _, ev := range []struct {
		name string
		arg  string
	}{
		{events.ClientJoin, s.cfg.UserID},
		{events.ClientJoinRole, string(s.cfg.Role)},
	} {
		data, err := json.Marshal(ev.arg)
		if err != nil {
			return err
		}
		if err := ws.WriteJSON(events.Envelope{Event: ev.name, Data: data}); err != nil {
			return err
		}
	}
	return nil
}

// alertFields is the subset every alerting payload carries.
type alertFields struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TicketID  string    `json:"ticket_id"`
	Timestamp time.Time `json:"timestamp"`
	Ticket    struct {
		Title  string              `json:"title"`
		Status domain.TicketStatus `json:"status"`
	} `json:"ticket"`
}

// Dispatch applies one server frame.
func (s *Session) Dispatch(frame []byte) {
	var env events.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		s.logger.Warn("malformed frame", zap.Error(err))
		return
	}

	name := events.EventName(env.Event)
	switch name {
	case events.EventTicketCreated:
		fields, ok := s.decodeAlert(env)
		if !ok {
			return
		}
		if s.cfg.Role.IsStaff() {
			s.alert(name, fields, "New Ticket")
			s.cache.Invalidate(QueryNotifications)
		}
		s.cache.Invalidate(QueryTickets)

	case events.EventTicketUpdated, events.EventTicketStatusChanged:
		fields, ok := s.decodeAlert(env)
		if !ok {
			return
		}
		title := fields.Title
		if name == events.EventTicketStatusChanged {
			title = "Status Changed"
		}
		s.alert(name, fields, title)
		s.cache.Invalidate(TicketQuery(fields.TicketID))
		s.cache.Invalidate(QueryTickets)

	case events.EventNotificationNew:
		s.cache.Invalidate(QueryNotifications)

	case events.EventMessageNew:
		var payload events.MessageNewPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("malformed message:new", zap.Error(err))
			return
		}
		s.mu.Lock()
		open := s.transcript
		s.mu.Unlock()
		if open != nil && open.TicketID() == payload.TicketID {
			open.Merge(EntryFromRecord(payload.Record))
		}
		s.cache.Invalidate(QueryMyChats)

	case events.ServerError:
		s.logger.Warn("gateway rejected request", zap.ByteString("data", env.Data))

	default:
		s.logger.Debug("ignoring event", zap.String("event", env.Event))
	}
}

func (s *Session) decodeAlert(env events.Envelope) (alertFields, bool) {
	var fields alertFields
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		s.logger.Warn("malformed event", zap.String("event", env.Event), zap.Error(err))
		return fields, false
	}
	return fields, true
}

func (s *Session) alert(name events.EventName, fields alertFields, title string) {
	if title == "" {
		title = fields.Ticket.Title
	}
	message := fields.Message
	if name == events.EventTicketStatusChanged && fields.Ticket.Title != "" {
		message = "\"" + fields.Ticket.Title + "\" is now " + string(fields.Ticket.Status)
	}
	s.alerter.Alert(Alert{
		Event:    name,
		Title:    title,
		Message:  message,
		TicketID: fields.TicketID,
		At:       fields.Timestamp,
	})
}
