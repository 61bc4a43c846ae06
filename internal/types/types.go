package types

import (
	"errors"
	"image"
	"time"
)

// Mode selects the speed/accuracy trade-off for capture and polling.
type Mode string

const (
	ModeSpeed    Mode = "speed"
	ModeAccuracy Mode = "accuracy"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeSpeed:
		return ModeSpeed, true
	case ModeAccuracy:
		return ModeAccuracy, true
	default:
		return "", false
	}
}

// ErrSourceNotReady is returned by a frame source before its first frame
// arrives. It is not an inference failure and must not feed the error streak.
var ErrSourceNotReady = errors.New("capture source not ready")

// Box holds normalized detection coordinates on the 0-1000 scale,
// ordered ymin, xmin, ymax, xmax. Upstream does not guarantee
// ymin <= ymax or xmin <= xmax.
type Box struct {
	YMin float64 `json:"ymin" cbor:"ymin"`
	XMin float64 `json:"xmin" cbor:"xmin"`
	YMax float64 `json:"ymax" cbor:"ymax"`
	XMax float64 `json:"xmax" cbor:"xmax"`
}

type DetectedObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// DetectionFrame is the latest complete inference response. A new response
// replaces it wholesale; there is no incremental merge.
type DetectionFrame struct {
	Objects    []DetectedObject `json:"objects"`
	ReceivedAt time.Time        `json:"received_at"`
}

// CameraFrame is one decoded frame from the capture feed.
type CameraFrame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Snapshot is a downscaled, JPEG-encoded frame ready for inference.
type Snapshot struct {
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// InferenceResult is what the detection service returns for one image.
// Summary is only populated on the batch path.
type InferenceResult struct {
	Objects []DetectedObject `json:"objects"`
	Summary string           `json:"summary,omitempty"`
}

// ResultBundle is the unit handed to the task archive after a batch analysis.
type ResultBundle struct {
	ID                    string           `json:"id"`
	Timestamp             time.Time        `json:"timestamp"`
	Objects               []DetectedObject `json:"objects"`
	Summary               string           `json:"summary"`
	ProcessingTimeSeconds float64          `json:"processing_time_seconds"`
	SourceMediaRef        string           `json:"source_media_ref"`
}
