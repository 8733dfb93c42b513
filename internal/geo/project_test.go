package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectToViewportCenter(t *testing.T) {
	x, y := ProjectToViewport(0, 0, 800, 600)
	assert.InDelta(t, 400, x, 0.5)
	assert.InDelta(t, 300, y, 0.5)
}

func TestProjectToViewportEdges(t *testing.T) {
	// Date line, west edge.
	x, _ := ProjectToViewport(0, -180, 800, 600)
	assert.InDelta(t, 0, x, 0.5)

	// Date line, east edge.
	x, _ = ProjectToViewport(0, 180, 800, 600)
	assert.InDelta(t, 800, x, 0.5)

	// Northern hemisphere lands in the top half.
	_, y := ProjectToViewport(48.8566, 2.3522, 800, 600)
	assert.Less(t, y, 300.0)
}

func TestProjectToViewportClampsPoles(t *testing.T) {
	_, yPole := ProjectToViewport(90, 0, 800, 600)
	_, yClamp := ProjectToViewport(MaxMercatorLat, 0, 800, 600)
	assert.InDelta(t, yClamp, yPole, 1e-9)
	assert.GreaterOrEqual(t, yPole, 0.0)

	_, ySouth := ProjectToViewport(-90, 0, 800, 600)
	assert.LessOrEqual(t, ySouth, 600.0)

	x, _ := ProjectToViewport(0, 180, 800, 600)
	assert.LessOrEqual(t, x, 800.0)
	x, _ = ProjectToViewport(0, -180, 800, 600)
	assert.GreaterOrEqual(t, x, 0.0)
}

func TestHaversineKm(t *testing.T) {
	// Paris to London, roughly 344 km.
	d := HaversineKm(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 344, d, 5)

	assert.InDelta(t, 0, HaversineKm(10, 20, 10, 20), 1e-9)
}
