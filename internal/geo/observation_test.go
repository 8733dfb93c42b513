package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservationValidate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"paris", 48.8566, 2.3522, false},
		{"poles", -90, 180, false},
		{"lat too big", 90.0001, 0, true},
		{"lon too big", 0, 180.5, true},
		{"lat nan", math.NaN(), 0, true},
		{"lon inf", 0, math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Observation{Lat: tt.lat, Lon: tt.lon, Source: SourceDebugger}.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestObservationSignature(t *testing.T) {
	a := Observation{Lat: 48.8566, Lon: 2.3522, Source: SourcePageHook}
	b := Observation{Lat: 48.8566, Lon: 2.3522, Source: SourceDebugger}

	assert.Equal(t, "48.85660:2.35220:page_hook", a.Signature())
	// Same physical point, different channel: distinct signatures, the
	// channels dedup independently.
	assert.NotEqual(t, a.Signature(), b.Signature())

	// Differences below 5 decimal places collapse into one signature.
	c := Observation{Lat: 48.856601, Lon: 2.352199, Source: SourcePageHook}
	assert.Equal(t, a.Signature(), c.Signature())
}
