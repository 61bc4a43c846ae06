package types

import "time"

// Telemetry is published to the host UI once per capture cycle.
type Telemetry struct {
	Scanning          bool      `json:"scanning"`
	Mode              Mode      `json:"mode"`
	LatencyMs         int64     `json:"latency_ms"`
	InferenceFps      float64   `json:"inference_fps"`
	ObjectCount       int       `json:"object_count"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Message           string    `json:"message,omitempty"`
	LastFrameAt       time.Time `json:"last_frame_at,omitempty"`
}

// UIFrame is one websocket push: the rendered overlay plus telemetry.
// Image is a base64 JPEG; empty when no camera frame has arrived yet.
type UIFrame struct {
	Type      string    `json:"type"`
	Image     string    `json:"image,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Telemetry Telemetry `json:"telemetry"`
}
