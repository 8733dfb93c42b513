package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taimoss/geoguessr-ai-1/internal/geo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "geoai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestObservationRoundtrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.LatestObservation("tab-1")
	require.NoError(t, err)
	assert.False(t, ok)

	first := geo.Observation{
		Lat:        48.8566,
		Lon:        2.3522,
		Place:      "Paris, France",
		Language:   "fr",
		Source:     geo.SourcePageHook,
		CapturedAt: time.Now().UTC().Truncate(time.Second),
		TabID:      "tab-1",
	}
	require.NoError(t, s.SaveObservation(first))

	second := first
	second.Lat = -33.8688
	second.Lon = 151.2093
	second.Place = "Sydney, Australia"
	second.Source = geo.SourceDebugger
	require.NoError(t, s.SaveObservation(second))

	got, ok, err := s.LatestObservation("tab-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -33.8688, got.Lat)
	assert.Equal(t, "Sydney, Australia", got.Place)
	assert.Equal(t, geo.SourceDebugger, got.Source)
	assert.Equal(t, "tab-1", got.TabID)
}

func TestObservationsIsolatedByTab(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveObservation(geo.Observation{
		Lat: 1, Lon: 2, Source: geo.SourcePageHook, CapturedAt: time.Now(), TabID: "tab-a",
	}))

	_, ok, err := s.LatestObservation("tab-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTabSessionUpsertAndResume(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.TabSessionFor("tab-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveTabSession(TabSession{
		TabID:         "tab-1",
		InstanceToken: "tok-1",
		ResumePending: true,
		SessionID:     "geoai-abc123",
		RoundIndex:    3,
	}))

	ts, ok, err := s.TabSessionFor("tab-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.ResumePending)
	assert.Equal(t, "geoai-abc123", ts.SessionID)
	assert.Equal(t, 3, ts.RoundIndex)

	// Upsert replaces the row.
	require.NoError(t, s.SaveTabSession(TabSession{
		TabID:         "tab-1",
		InstanceToken: "tok-2",
		ResumePending: false,
		SessionID:     "geoai-abc123",
		RoundIndex:    4,
	}))
	ts, ok, err = s.TabSessionFor("tab-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-2", ts.InstanceToken)
	assert.False(t, ts.ResumePending)
	assert.Equal(t, 4, ts.RoundIndex)
}

func TestSetResumePending(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveTabSession(TabSession{
		TabID:         "tab-1",
		InstanceToken: "tok",
		ResumePending: true,
		SessionID:     "geoai-abc123",
		RoundIndex:    2,
	}))
	require.NoError(t, s.SetResumePending("tab-1", false))

	ts, ok, err := s.TabSessionFor("tab-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, ts.ResumePending)
	assert.Equal(t, 2, ts.RoundIndex, "round counter survives the flag flip")
}

func TestClearTab(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveTabSession(TabSession{TabID: "tab-1", InstanceToken: "tok"}))
	require.NoError(t, s.SaveObservation(geo.Observation{
		Lat: 1, Lon: 2, Source: geo.SourcePageHook, CapturedAt: time.Now(), TabID: "tab-1",
	}))

	require.NoError(t, s.ClearTab("tab-1"))

	_, ok, err := s.TabSessionFor("tab-1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.LatestObservation("tab-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundUpsertAndListing(t *testing.T) {
	s := openTestStore(t)

	base := RoundRecord{
		RoundID:     "geoai-abc123/round-2",
		SessionID:   "geoai-abc123",
		RoundIndex:  2,
		GTLat:       48.8566,
		GTLon:       2.3522,
		GTCountry:   "FR",
		PredLat:     50.0,
		PredLon:     3.0,
		PredCountry: "FR",
		DistanceKm:  135.2,
		Score:       4520,
	}
	require.NoError(t, s.SaveRound(base))

	require.NoError(t, s.SaveRound(RoundRecord{
		RoundID:    "geoai-abc123/round-1",
		SessionID:  "geoai-abc123",
		RoundIndex: 1,
		GTLat:      -33.8688,
		GTLon:      151.2093,
		GTCountry:  "AU",
		Score:      100,
	}))

	// Re-logging round 2 overwrites it.
	updated := base
	updated.Score = 5000
	updated.DistanceKm = 0.4
	require.NoError(t, s.SaveRound(updated))

	rounds, err := s.RoundsForSession("geoai-abc123")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].RoundIndex)
	assert.Equal(t, "AU", rounds[0].GTCountry)
	assert.Equal(t, 2, rounds[1].RoundIndex)
	assert.Equal(t, 5000, rounds[1].Score)
	assert.Equal(t, 0.4, rounds[1].DistanceKm)
}
