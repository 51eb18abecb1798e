package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type tokenTable map[string]domain.User

func (t tokenTable) Authenticate(_ context.Context, token string) (*domain.User, error) {
	user, ok := t[token]
	if !ok {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	return &user, nil
}

func newTestGateway(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := NewHub(logger, nil)
	gw := NewGateway(GatewayDependencies{
		Hub: hub,
		Authenticator: tokenTable{
			"tok-admin": {ID: "a1", Name: "Ada", Role: domain.RoleAdmin},
			"tok-user":  {ID: "u1", Name: "Uma", Role: domain.RoleUser},
		},
		Config: config.RealtimeConfig{AllowedOrigins: []string{"*"}, SendBuffer: 8, PingIntervalSeconds: 5, WriteTimeoutSeconds: 2},
		Logger: logger,
	})
	srv := httptest.NewServer(gw.Routes())
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sendControl(t *testing.T, ws *websocket.Conn, event, arg string) {
	t.Helper()
	data, err := json.Marshal(arg)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(events.Envelope{Event: event, Data: data}))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	_, srv := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayJoinAndDeliver(t *testing.T) {
	hub, srv := newTestGateway(t)
	ws := dial(t, srv, "tok-admin")

	sendControl(t, ws, events.ClientJoin, "a1")
	sendControl(t, ws, events.ClientJoinRole, "admin")
	require.Eventually(t, func() bool {
		return hub.RoomSize(events.UserRoom("a1")) == 1 && hub.RoomSize(events.RoleRoom(domain.RoleAdmin)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish([]events.Room{events.UserRoom("a1"), events.RoleRoom(domain.RoleAdmin)},
		events.EventTicketCreated, map[string]string{"ticket_id": "t1"})

	env := readEnvelope(t, ws)
	assert.Equal(t, string(events.EventTicketCreated), env.Event)
	assert.JSONEq(t, `{"ticket_id":"t1"}`, string(env.Data))
}

func TestGatewayRefusesForeignRooms(t *testing.T) {
	hub, srv := newTestGateway(t)
	ws := dial(t, srv, "tok-user")

	sendControl(t, ws, events.ClientJoin, "a1")
	env := readEnvelope(t, ws)
	assert.Equal(t, string(events.ServerError), env.Event)

	sendControl(t, ws, events.ClientJoinRole, "admin")
	env = readEnvelope(t, ws)
	assert.Equal(t, string(events.ServerError), env.Event)
	assert.Equal(t, 0, hub.RoomSize(events.RoleRoom(domain.RoleAdmin)))

	// the connection survives a rejected join
	sendControl(t, ws, events.ClientJoin, "u1")
	require.Eventually(t, func() bool {
		return hub.RoomSize(events.UserRoom("u1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayDisconnectLeavesRooms(t *testing.T) {
	hub, srv := newTestGateway(t)
	ws := dial(t, srv, "tok-user")

	sendControl(t, ws, events.ClientJoin, "u1")
	sendControl(t, ws, events.ClientJoinRole, "user")
	require.Eventually(t, func() bool {
		return hub.RoomSize(events.RoleRoom(domain.RoleUser)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		return hub.RoomSize(events.UserRoom("u1")) == 0 && hub.RoomSize(events.RoleRoom(domain.RoleUser)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
