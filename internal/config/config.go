package config

import "time"

type AppConfig struct {
	Port            int
	FeedEndpoint    string
	InferURL        string
	InferTimeout    time.Duration
	HealthInterval  time.Duration
	UIRate          time.Duration
	Threshold       float64
	ShowLabels      bool
	Mode            string
	Debug           bool
	DebugFrameRate  float64
	DebugWidth      int
	DebugHeight     int
	ArchiveDir      string
	RawLogEnabled   bool
	RawLogDir       string
	IngestLogEvery  int
	IngestFallback  bool
	AutoStart       bool
}
