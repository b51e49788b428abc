package picker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/push"
	"github.com/wms-platform/pick-floor/pkg/logging"
)

func hubServer(t *testing.T, hub *push.Hub) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestPushClient_ReceivesQueueUpdates(t *testing.T) {
	hub := push.NewHub("1.0.0", logging.Discard(), nil)
	url := hubServer(t, hub)

	updates := make(chan push.Message, 4)
	client := NewPushClient(url, PushOptions{
		OnQueueUpdated: func(msg push.Message) { updates <- msg },
	}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return client.Version() == "1.0.0" }, 2*time.Second, 10*time.Millisecond)

	hub.QueueUpdated("WU-9", "wms.picking.unit.claimed")
	select {
	case msg := <-updates:
		assert.Equal(t, "WU-9", msg.UnitID)
	case <-time.After(2 * time.Second):
		t.Fatal("queue update not delivered")
	}
}

func TestPushClient_ReconnectsAndDetectsNewVersion(t *testing.T) {
	first := push.NewHub("1.0.0", logging.Discard(), nil)
	second := push.NewHub("1.1.0", logging.Discard(), nil)
	var current atomic.Pointer[push.Hub]
	current.Store(first)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current.Load().ServeWS(w, r)
	}))
	defer server.Close()

	var connects atomic.Int32
	versions := make(chan string, 2)
	client := NewPushClient("ws"+strings.TrimPrefix(server.URL, "http"), PushOptions{
		InitialInterval:  5 * time.Millisecond,
		MaxInterval:      20 * time.Millisecond,
		OnConnect:        func() { connects.Add(1) },
		OnVersionChanged: func(v string) { versions <- v },
	}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool { return first.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	current.Store(second)
	first.Close()

	require.Eventually(t, func() bool { return second.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, connects.Load(), int32(2))
	select {
	case v := <-versions:
		assert.Equal(t, "1.1.0", v)
	case <-time.After(2 * time.Second):
		t.Fatal("version change not reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestPushClient_BackoffHasJitterAndNoDeadline(t *testing.T) {
	client := NewPushClient("ws://unused", PushOptions{}, logging.Discard())
	b := client.newBackOff()

	for i := 0; i < 20; i++ {
		d := b.NextBackOff()
		require.Positive(t, d, "the device never gives up reconnecting")
		assert.LessOrEqual(t, d, 45*time.Second)
	}
}
