package geo

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureBody mirrors a real target-service response: comment-prefixed
// callback wrapper around the nested array shape with the coordinate pair
// buried at the known position.
const fixtureBody = `/**/_callbacks____foo([null,[[null,null,null,null,null,[[null,[[null,[null,null,48.8566,2.3522]]]]]]]])`

func TestStripJSONP(t *testing.T) {
	inner, ok := StripJSONP(fixtureBody)
	require.True(t, ok)
	assert.Equal(t, `[null,[[null,null,null,null,null,[[null,[[null,[null,null,48.8566,2.3522]]]]]]]]`, inner)
}

func TestStripJSONPRawArrayNotAnEnvelope(t *testing.T) {
	body := `[1,2,3]`
	out, ok := StripJSONP(body)
	assert.False(t, ok)
	assert.Equal(t, body, out)
}

func TestExtractFixedFromFixture(t *testing.T) {
	v, err := ParsePayload(fixtureBody)
	require.NoError(t, err)

	lat, lon, err := ExtractFixed(v)
	require.NoError(t, err)
	assert.InDelta(t, 48.8566, lat, 1e-9)
	assert.InDelta(t, 2.3522, lon, 1e-9)
}

func TestDeepSearchMatchesFixedOnFixture(t *testing.T) {
	v, err := ParsePayload(fixtureBody)
	require.NoError(t, err)

	fLat, fLon, err := ExtractFixed(v)
	require.NoError(t, err)
	dLat, dLon, err := DeepSearchCoords(v)
	require.NoError(t, err)

	assert.Equal(t, fLat, dLat)
	assert.Equal(t, fLon, dLon)
}

func TestDeepSearchRejectsOutOfRange(t *testing.T) {
	v, err := ParsePayload(`[[null,null,123.0,456.0],[null,null,-33.8688,151.2093]]`)
	require.NoError(t, err)

	lat, lon, err := DeepSearchCoords(v)
	require.NoError(t, err)
	assert.InDelta(t, -33.8688, lat, 1e-9)
	assert.InDelta(t, 151.2093, lon, 1e-9)
}

func TestDeepSearchNoCoordinates(t *testing.T) {
	v, err := ParsePayload(`[["just","strings"],[1,2]]`)
	require.NoError(t, err)

	_, _, err = DeepSearchCoords(v)
	assert.ErrorIs(t, err, ErrNoCoordinates)
}

func TestParsePayloadFallsBackToArrayScan(t *testing.T) {
	body := `garbage prefix [null,[null,null,12.5,-70.1]] trailing junk`
	v, err := ParsePayload(body)
	require.NoError(t, err)

	lat, lon, err := DeepSearchCoords(v)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, lat, 1e-9)
	assert.InDelta(t, -70.1, lon, 1e-9)
}

func TestScanArrayLiteralIgnoresBracketsInStrings(t *testing.T) {
	lit, ok := ScanArrayLiteral(`x ["a ] b", 2] y`)
	require.True(t, ok)
	assert.Equal(t, `["a ] b", 2]`, lit)
}

func TestScanArrayLiteralIgnoresQuotedPrefix(t *testing.T) {
	// A quoted bracket before any array literal must not shift the start.
	lit, ok := ScanArrayLiteral(`error "unexpected [token" then [1,2]`)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, lit)
}

func TestDeepSearchPlace(t *testing.T) {
	payload := `[
		["© 2024 Somebody", "en"],
		["Paris, France", "fr"],
		["Rue de Rivoli, Paris, France", "en"],
		["x", "en"]
	]`
	v, err := ParsePayload(payload)
	require.NoError(t, err)

	langs := []string{"en", "en-US", "fr"}

	place := DeepSearchPlace(v, langs, 30)
	require.NotNil(t, place)
	assert.Equal(t, "Rue de Rivoli, Paris, France", place.Text)
	assert.Equal(t, "en", place.Language)

	// Language priority beats length when the preferred language exists.
	place = DeepSearchPlace(v, []string{"fr"}, 30)
	require.NotNil(t, place)
	assert.Equal(t, "Paris, France", place.Text)
}

func TestDeepSearchPlaceNoCandidates(t *testing.T) {
	v, err := ParsePayload(`[["copyright 2024 xyz corp", "en"], [1, 2]]`)
	require.NoError(t, err)
	assert.Nil(t, DeepSearchPlace(v, []string{"en"}, 30))
}

func TestDecodeBody(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(fixtureBody))
	assert.Equal(t, fixtureBody, DecodeBody(encoded, true))

	// Plain transport passes through.
	assert.Equal(t, fixtureBody, DecodeBody(fixtureBody, false))

	// Mislabeled bodies fall back to the raw text.
	assert.Equal(t, "not base64!!!", DecodeBody("not base64!!!", true))
}
