package events

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBusDispatchesLocally(t *testing.T) {
	bus := NewBus(nil, "gema:assess", zerolog.Nop())

	var received []AssessmentCompleted
	bus.Subscribe(TopicAssessmentCompleted, func(ctx context.Context, envelope Envelope) {
		event, err := Decode[AssessmentCompleted](envelope)
		require.NoError(t, err)
		received = append(received, event)
	})

	completedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	err := bus.Publish(context.Background(), TopicAssessmentCompleted, AssessmentCompleted{
		UserID: 3, AssessmentID: 9, TotalScore: 66, Trigger: "submit", CompletedAt: completedAt,
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), TopicSessionExpired, SessionExpired{UserID: 3, AssessmentID: 9}))

	require.Len(t, received, 1)
	require.Equal(t, uint(9), received[0].AssessmentID)
	require.Equal(t, 66, received[0].TotalScore)
	require.True(t, completedAt.Equal(received[0].CompletedAt))
}

func TestBusSubject(t *testing.T) {
	require.Equal(t, "gema.assess.session.expired", NewBus(nil, "gema:assess", zerolog.Nop()).Subject(TopicSessionExpired))
	require.Equal(t, "proctoring.violation", NewBus(nil, "", zerolog.Nop()).Subject(TopicProctoringViolation))
}

func TestBusStartWithoutConnection(t *testing.T) {
	require.NoError(t, NewBus(nil, "x", zerolog.Nop()).Start(context.Background()))
	require.NoError(t, Nop{}.Publish(context.Background(), TopicSessionExpired, nil))
}

// memoryConn delivers every published message to every subscriber, like
// plain NATS subscriptions without a queue group.
type memoryConn struct {
	mu       sync.Mutex
	handlers map[string][]nats.MsgHandler
}

func newMemoryConn() *memoryConn {
	return &memoryConn{handlers: make(map[string][]nats.MsgHandler)}
}

func (m *memoryConn) Publish(subject string, data []byte) error {
	m.mu.Lock()
	var targets []nats.MsgHandler
	for pattern, handlers := range m.handlers {
		if strings.HasSuffix(pattern, ">") && strings.HasPrefix(subject, strings.TrimSuffix(pattern, ">")) {
			targets = append(targets, handlers...)
		}
	}
	m.mu.Unlock()

	for _, handler := range targets {
		handler(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (m *memoryConn) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = append(m.handlers[subject], handler)
	return &nats.Subscription{Subject: subject}, nil
}

func TestBusDeliversToEveryOtherNode(t *testing.T) {
	conn := newMemoryConn()
	ctx := context.Background()

	nodes := []*Bus{
		newBus(conn, "assess", zerolog.Nop()),
		newBus(conn, "assess", zerolog.Nop()),
		newBus(conn, "assess", zerolog.Nop()),
	}
	var mu sync.Mutex
	received := make([]int, len(nodes))
	for i, node := range nodes {
		node.Subscribe(TopicSessionExpired, func(context.Context, Envelope) {
			mu.Lock()
			received[i]++
			mu.Unlock()
		})
		require.NoError(t, node.Start(ctx))
	}

	require.NoError(t, nodes[0].Publish(ctx, TopicSessionExpired, SessionExpired{UserID: 1, AssessmentID: 2}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 1, 1}, received)
}

func TestBusReceiveSkipsMalformedEvents(t *testing.T) {
	bus := newBus(newMemoryConn(), "assess", zerolog.Nop())
	called := false
	bus.Subscribe(TopicSessionExpired, func(context.Context, Envelope) { called = true })

	bus.receive(context.Background(), &nats.Msg{Subject: "assess.session.expired", Data: []byte("{")})
	require.False(t, called)
}
