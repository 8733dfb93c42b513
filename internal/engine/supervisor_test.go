package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
)

type fakeFeed struct {
	last time.Time
}

func (f *fakeFeed) LastAccepted(string) time.Time { return f.last }

type fakeReconnector struct {
	calls int
}

func (f *fakeReconnector) Reconnect(*browser.Tab) error {
	f.calls++
	return nil
}

func newTestSupervisor(feed *fakeFeed, rec *fakeReconnector) *Supervisor {
	return &Supervisor{
		AC:                NewContext(nil, "geoai", 5),
		Merger:            feed,
		Inspector:         rec,
		Log:               zerolog.Nop(),
		StuckTimeout:      time.Hour,
		DuplicateLimit:    3,
		StaleCoordTimeout: 10 * time.Second,
		NullCoordLimit:    2,
		ReconnectSettle:   time.Millisecond,
	}
}

func TestStaleCoordinatesReconnectOncePerEpisode(t *testing.T) {
	feed := &fakeFeed{last: time.Now().Add(-time.Minute)}
	rec := &fakeReconnector{}
	s := newTestSupervisor(feed, rec)

	assert.True(t, s.CheckCycle(context.Background()), "stale feed must skip the cycle")
	assert.Equal(t, 1, rec.calls)

	// Still stale, same episode: exactly one reconnect allowed.
	assert.False(t, s.CheckCycle(context.Background()))
	assert.False(t, s.CheckCycle(context.Background()))
	assert.Equal(t, 1, rec.calls)
}

func TestAcceptedObservationRearmsReconnect(t *testing.T) {
	feed := &fakeFeed{last: time.Now().Add(-time.Minute)}
	rec := &fakeReconnector{}
	s := newTestSupervisor(feed, rec)

	assert.True(t, s.CheckCycle(context.Background()))
	assert.Equal(t, 1, rec.calls)

	// Fresh data ends the episode; a later stall gets its own reconnect.
	s.ObservationAccepted()
	assert.True(t, s.CheckCycle(context.Background()))
	assert.Equal(t, 2, rec.calls)
}

func TestFreshCoordinatesNeverReconnect(t *testing.T) {
	feed := &fakeFeed{last: time.Now()}
	rec := &fakeReconnector{}
	s := newTestSupervisor(feed, rec)

	assert.False(t, s.CheckCycle(context.Background()))
	assert.Equal(t, 0, rec.calls)
}

func TestNoDataYetNeverReconnects(t *testing.T) {
	// A tab that has not produced anything is not stale, it is starting up.
	feed := &fakeFeed{}
	rec := &fakeReconnector{}
	s := newTestSupervisor(feed, rec)

	assert.False(t, s.CheckCycle(context.Background()))
	assert.Equal(t, 0, rec.calls)
}

func TestNoteMissingCoordinates(t *testing.T) {
	feed := &fakeFeed{last: time.Now()}
	rec := &fakeReconnector{}
	s := newTestSupervisor(feed, rec)

	assert.False(t, s.NoteMissingCoordinates(context.Background(), 1))
	assert.Equal(t, 0, rec.calls)

	assert.True(t, s.NoteMissingCoordinates(context.Background(), 2))
	assert.Equal(t, 1, rec.calls)
}

func TestObservationAcceptedClearsNullRun(t *testing.T) {
	feed := &fakeFeed{last: time.Now()}
	s := newTestSupervisor(feed, &fakeReconnector{})

	s.AC.NoteCoordinateMissing()
	s.AC.NoteCoordinateMissing()
	s.ObservationAccepted()
	assert.Equal(t, 1, s.AC.NoteCoordinateMissing())
}
