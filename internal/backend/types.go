package backend

import "time"

// CoordinateSample is a captured Street View coordinate pushed to the
// ingest endpoint.
type CoordinateSample struct {
	Lat        float64        `json:"lat"`
	Lon        float64        `json:"lon"`
	Source     string         `json:"source,omitempty"`
	CapturedAt *time.Time     `json:"captured_at,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	RoundID    string         `json:"round_id,omitempty"`
	RoundIndex int            `json:"round_index,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// InferenceRequest asks the model service for a location prediction from a
// base64 screenshot.
type InferenceRequest struct {
	ImageBase64 string         `json:"image_base64"`
	SessionID   string         `json:"session_id,omitempty"`
	RoundID     string         `json:"round_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ClassificationResult is one labelled head of the model output.
type ClassificationResult struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Prediction is the model's answer for a single frame.
type Prediction struct {
	InferenceID     string                 `json:"inference_id"`
	Lat             float64                `json:"lat"`
	Lon             float64                `json:"lon"`
	Continent       ClassificationResult   `json:"continent"`
	Country         ClassificationResult   `json:"country"`
	GridL4          ClassificationResult   `json:"grid_l4"`
	GridL6          ClassificationResult   `json:"grid_l6"`
	ConfidenceLat   *float64               `json:"confidence_lat,omitempty"`
	ConfidenceLon   *float64               `json:"confidence_lon,omitempty"`
	ModelVersion    string                 `json:"model_version"`
	InferenceTimeMS int                    `json:"inference_time_ms"`
	ScreenshotPath  string                 `json:"screenshot_path,omitempty"`
	TopCountries    []ClassificationResult `json:"top_countries,omitempty"`
}

// ScreenshotRequest stores a frame without running inference.
type ScreenshotRequest struct {
	ImageBase64 string         `json:"image_base64"`
	SessionID   string         `json:"session_id,omitempty"`
	RoundID     string         `json:"round_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ScreenshotResponse echoes where the backend stored the frame.
type ScreenshotResponse struct {
	ScreenshotPath string `json:"screenshot_path"`
	SessionID      string `json:"session_id,omitempty"`
	RoundID        string `json:"round_id,omitempty"`
}

// GroundTruth is the actual round location, from the capture channels.
type GroundTruth struct {
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Country    string     `json:"country"`
	Continent  string     `json:"continent,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// RoundLog pairs a finished round's ground truth with the prediction that
// was submitted for it.
type RoundLog struct {
	SessionID      string      `json:"session_id"`
	RoundID        string      `json:"round_id"`
	RoundIndex     int         `json:"round_index"`
	GroundTruth    GroundTruth `json:"ground_truth"`
	Prediction     Prediction  `json:"prediction"`
	Score          int         `json:"score"`
	ScreenshotPath string      `json:"screenshot_path,omitempty"`
	Mode           string      `json:"mode,omitempty"`
	Player         string      `json:"player,omitempty"`
}

// RoundLogResult reports how the backend scored and stored a round.
type RoundLogResult struct {
	RoundID          string   `json:"round_id"`
	SessionID        string   `json:"session_id"`
	StoredPrediction bool     `json:"stored_prediction"`
	StoredRound      bool     `json:"stored_round"`
	DistanceKm       *float64 `json:"distance_km,omitempty"`
	IsCorrect        *bool    `json:"is_correct,omitempty"`
	Score            int      `json:"score"`
}
