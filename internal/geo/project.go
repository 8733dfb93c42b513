package geo

import (
	"math"

	"github.com/wroge/wgs84"
)

// Spherical Mercator breaks down at the poles; the map library clamps at
// the same latitude, so clicks computed past it would land off-map anyway.
const MaxMercatorLat = 85.05113

// Half-extent of the EPSG:3857 plane in meters.
const mercatorHalfExtent = 20037508.342789244

var toWebMercator = wgs84.EPSG().Transform(4326, 3857)

// ProjectToViewport maps a coordinate to pixel offsets inside a map
// viewport that shows the whole world, which is what the guess minimap
// shows before the player interacts with it. Latitude is clamped to the
// Mercator singularity bound first.
func ProjectToViewport(lat, lon, width, height float64) (x, y float64) {
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	mx, my, _ := toWebMercator(lon, lat, 0)
	fx := (mx + mercatorHalfExtent) / (2 * mercatorHalfExtent)
	fy := (mercatorHalfExtent - my) / (2 * mercatorHalfExtent)
	// The transform overshoots the plane extent by a hair at the clamp
	// latitude, which would put the point just outside the viewport.
	fx = math.Max(0, math.Min(1, fx))
	fy = math.Max(0, math.Min(1, fy))
	return fx * width, fy * height
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}
