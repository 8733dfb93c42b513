package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestHub(t *testing.T) (*Hub, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub()
	go h.Serve(ctx, "127.0.0.1:0")

	deadline := time.Now().Add(2 * time.Second)
	for h.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return h, ctx
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "feed closed before an event arrived")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesListener(t *testing.T) {
	h, ctx := startTestHub(t)

	events, err := Listen(ctx, h.Addr())
	require.NoError(t, err)

	// The join snapshot is empty; the first delivery is the live event.
	h.Publish(Event{Type: EventPhase, Phase: "waiting_for_scene", Round: 1})

	ev := recvEvent(t, events)
	assert.Equal(t, EventPhase, ev.Type)
	assert.Equal(t, "waiting_for_scene", ev.Phase)
	assert.Equal(t, 1, ev.Round)
	assert.False(t, ev.At.IsZero(), "publish stamps a time when none is set")
}

func TestSnapshotReplayOnJoin(t *testing.T) {
	h, ctx := startTestHub(t)

	h.Publish(Event{Type: EventCoordinate, Lat: 48.8566, Lon: 2.3522})
	h.Publish(Event{Type: EventRound, Round: 1, Score: 4200})

	// Give the hub loop a moment to fold the events into the backlog.
	time.Sleep(100 * time.Millisecond)

	events, err := Listen(ctx, h.Addr())
	require.NoError(t, err)

	first := recvEvent(t, events)
	assert.Equal(t, EventCoordinate, first.Type)
	assert.Equal(t, 48.8566, first.Lat)

	second := recvEvent(t, events)
	assert.Equal(t, EventRound, second.Type)
	assert.Equal(t, 4200, second.Score)
}

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	// No Serve, no consumers. Saturate well past the queue capacity; Publish
	// must drop rather than stall the automation.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(Event{Type: EventPhase, Round: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without a running hub")
	}
}
