package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taimoss/geoguessr-ai-1/internal/geo"
)

func TestClassifyResultEmpty(t *testing.T) {
	_, ok := ClassifyResult(nil, nil)
	assert.False(t, ok)
}

func TestClassifyResultExplicitKinds(t *testing.T) {
	markers := []Marker{
		{Lat: 40.0, Lon: -3.7, Kind: MarkerGuess, Scope: ScopeResultMap},
		{Lat: 48.8566, Lon: 2.3522, Kind: MarkerResult, Scope: ScopeResultMap},
	}

	res, ok := ClassifyResult(markers, nil)
	require.True(t, ok)
	assert.Equal(t, 48.8566, res.Actual.Lat)
	require.NotNil(t, res.Guess)
	assert.Equal(t, 40.0, res.Guess.Lat)
}

func TestClassifyResultFallsBackToTruthDistance(t *testing.T) {
	// No marker carries an explicit result kind; the one closest to the
	// trusted coordinate is taken as the actual location.
	markers := []Marker{
		{Lat: -33.8688, Lon: 151.2093, Kind: MarkerUnknown, Scope: ScopeResultMap},
		{Lat: 48.86, Lon: 2.35, Kind: MarkerUnknown, Scope: ScopeResultMap},
	}
	truth := &geo.Observation{Lat: 48.8566, Lon: 2.3522}

	res, ok := ClassifyResult(markers, truth)
	require.True(t, ok)
	assert.Equal(t, 48.86, res.Actual.Lat)
	require.NotNil(t, res.Guess)
	assert.Equal(t, -33.8688, res.Guess.Lat)
}

func TestClassifyResultFirstMarkerFallback(t *testing.T) {
	markers := []Marker{
		{Lat: 10.0, Lon: 20.0, Kind: MarkerUnknown, Scope: ScopeResultMap},
		{Lat: 30.0, Lon: 40.0, Kind: MarkerUnknown, Scope: ScopeResultMap},
	}

	res, ok := ClassifyResult(markers, nil)
	require.True(t, ok)
	assert.Equal(t, 10.0, res.Actual.Lat)
	require.NotNil(t, res.Guess)
	assert.Equal(t, 30.0, res.Guess.Lat)
}

func TestClassifyResultSingleMarker(t *testing.T) {
	markers := []Marker{
		{Lat: 48.8566, Lon: 2.3522, Kind: MarkerResult, Scope: ScopeResultMap},
	}

	res, ok := ClassifyResult(markers, nil)
	require.True(t, ok)
	assert.Equal(t, 48.8566, res.Actual.Lat)
	assert.Nil(t, res.Guess)
}

func TestClassifyResultPrefersGuessKindOverPosition(t *testing.T) {
	markers := []Marker{
		{Lat: 1.0, Lon: 1.0, Kind: MarkerResult, Scope: ScopeResultMap},
		{Lat: 2.0, Lon: 2.0, Kind: MarkerUnknown, Scope: ScopeResultMap},
		{Lat: 3.0, Lon: 3.0, Kind: MarkerGuess, Scope: ScopeResultMap},
	}

	res, ok := ClassifyResult(markers, nil)
	require.True(t, ok)
	require.NotNil(t, res.Guess)
	assert.Equal(t, 3.0, res.Guess.Lat)
}
