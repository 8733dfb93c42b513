package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictRoundtrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/inference", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req InferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "geoai-abc123", req.SessionID)
		assert.Equal(t, "round-2", req.RoundID)

		conf := 0.91
		json.NewEncoder(w).Encode(Prediction{
			InferenceID:     "inf-1",
			Lat:             48.8566,
			Lon:             2.3522,
			Country:         ClassificationResult{ID: "FR", Name: "France", Confidence: &conf},
			ModelVersion:    "v3",
			InferenceTimeMS: 120,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	pred, err := c.Predict(context.Background(), InferenceRequest{
		ImageBase64: "aGVsbG8=",
		SessionID:   "geoai-abc123",
		RoundID:     "round-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "inf-1", pred.InferenceID)
	assert.Equal(t, 48.8566, pred.Lat)
	assert.Equal(t, "FR", pred.Country.ID)
	require.NotNil(t, pred.Country.Confidence)
	assert.Equal(t, 0.91, *pred.Country.Confidence)
}

func TestPredictSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Predict(context.Background(), InferenceRequest{ImageBase64: "x"})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "model not loaded", se.Body)
}

func TestSaveScreenshotLatchesOn404(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	_, err := c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	assert.ErrorIs(t, err, ErrScreenshotGone)

	// Later calls short-circuit without touching the server.
	_, err = c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	assert.ErrorIs(t, err, ErrScreenshotGone)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSaveScreenshotLatchesOnNotFoundBody(t *testing.T) {
	// Some proxies rewrite the status; the body still says what happened.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Not Found"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	assert.ErrorIs(t, err, ErrScreenshotGone)

	_, err = c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	assert.ErrorIs(t, err, ErrScreenshotGone)
}

func TestSaveScreenshotOtherErrorsDoNotLatch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrScreenshotGone)

	_, err = c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load(), "transient failures keep retrying")
}

func TestSaveScreenshotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ScreenshotResponse{ScreenshotPath: "shots/round-1.jpg"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	resp, err := c.SaveScreenshot(context.Background(), ScreenshotRequest{ImageBase64: "x"})
	require.NoError(t, err)
	assert.Equal(t, "shots/round-1.jpg", resp.ScreenshotPath)
}

func TestLogRoundRoundtrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rounds", r.URL.Path)

		var entry RoundLog
		require.NoError(t, json.NewDecoder(r.Body).Decode(&entry))
		assert.Equal(t, 3, entry.RoundIndex)
		assert.Equal(t, "FR", entry.GroundTruth.Country)

		dist := 12.4
		correct := true
		json.NewEncoder(w).Encode(RoundLogResult{
			RoundID:          entry.RoundID,
			SessionID:        entry.SessionID,
			StoredPrediction: true,
			StoredRound:      true,
			DistanceKm:       &dist,
			IsCorrect:        &correct,
			Score:            4890,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.LogRound(context.Background(), RoundLog{
		SessionID:   "geoai-abc123",
		RoundID:     "round-3",
		RoundIndex:  3,
		GroundTruth: GroundTruth{Lat: 48.8566, Lon: 2.3522, Country: "FR"},
		Score:       4890,
	})
	require.NoError(t, err)
	assert.True(t, res.StoredRound)
	require.NotNil(t, res.IsCorrect)
	assert.True(t, *res.IsCorrect)
	assert.Equal(t, 4890, res.Score)
}

func TestLogCoordinateSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	// Must not panic or block; failures are telemetry only.
	c.LogCoordinate(context.Background(), CoordinateSample{Lat: 1, Lon: 2})
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	assert.NoError(t, c.Healthy(context.Background()))

	bad := NewClient(srv.URL+"/missing", 5*time.Second)
	err := bad.Healthy(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}
