package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

type fakeSub struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSub) last(t *testing.T) events.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	var env events.Envelope
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &env))
	return env
}

func TestPublishDeliversOncePerConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	c1, c2, c3, c4 := &fakeSub{id: "c1"}, &fakeSub{id: "c2"}, &fakeSub{id: "c3"}, &fakeSub{id: "c4"}

	hub.Join(c1, events.UserRoom("42"))
	hub.Join(c2, events.RoleRoom(domain.RoleAdmin))
	hub.Join(c3, events.UserRoom("42"))
	hub.Join(c3, events.RoleRoom(domain.RoleAdmin))
	hub.Join(c4, events.RoleRoom(domain.RoleAnalyst))

	hub.Publish([]events.Room{events.UserRoom("42"), events.RoleRoom(domain.RoleAdmin)},
		events.EventNotificationNew, map[string]string{"title": "hi"})

	assert.Equal(t, 1, c1.count())
	assert.Equal(t, 1, c2.count())
	assert.Equal(t, 1, c3.count())
	assert.Equal(t, 0, c4.count())

	env := c3.last(t)
	assert.Equal(t, string(events.EventNotificationNew), env.Event)
	assert.JSONEq(t, `{"title":"hi"}`, string(env.Data))
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	assert.NotPanics(t, func() {
		hub.Publish([]events.Room{events.UserRoom("nobody")}, events.EventTicketCreated, struct{}{})
	})
	assert.Equal(t, 0, hub.Deliver(nil, []byte(`{}`)))
}

func TestJoinIsIdempotentAndRemoveClearsMemberships(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	sub := &fakeSub{id: "c1"}

	hub.Join(sub, events.UserRoom("7"))
	hub.Join(sub, events.UserRoom("7"))
	hub.Join(sub, events.RoleRoom(domain.RoleUser))
	assert.Equal(t, 1, hub.RoomSize(events.UserRoom("7")))
	assert.Len(t, hub.RoomsOf(sub), 2)

	hub.Publish([]events.Room{events.UserRoom("7")}, events.EventTicketUpdated, struct{}{})
	assert.Equal(t, 1, sub.count())

	hub.Leave(sub, events.RoleRoom(domain.RoleUser))
	assert.Equal(t, 0, hub.RoomSize(events.RoleRoom(domain.RoleUser)))

	hub.Remove(sub)
	assert.Equal(t, 0, hub.RoomSize(events.UserRoom("7")))
	assert.Empty(t, hub.RoomsOf(sub))

	hub.Publish([]events.Room{events.UserRoom("7")}, events.EventTicketUpdated, struct{}{})
	assert.Equal(t, 1, sub.count())
}

func TestFullBufferDropsOnlyThatConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hub := NewHub(zaptest.NewLogger(t), metrics)

	slow := &fakeSub{id: "slow", full: true}
	fast := &fakeSub{id: "fast"}
	hub.Join(slow, events.RoleRoom(domain.RoleAnalyst))
	hub.Join(fast, events.RoleRoom(domain.RoleAnalyst))

	delivered := hub.Deliver([]events.Room{events.RoleRoom(domain.RoleAnalyst)}, []byte(`{"event":"x"}`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, fast.count())
	count, err := testutil.GatherAndCount(reg, "helpdesk_realtime_deliveries_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHubConcurrentJoinPublishRemove(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	room := events.RoleRoom(domain.RoleAdmin)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := &fakeSub{id: fmt.Sprintf("c%d", i)}
			hub.Join(sub, room)
			hub.Join(sub, events.UserRoom(sub.id))
			hub.Publish([]events.Room{room}, events.EventTicketCreated, struct{}{})
			hub.Remove(sub)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.RoomSize(room))
}
