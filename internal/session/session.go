package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"detmap-go/internal/types"
)

// FrameSource supplies inference-ready snapshots of the live feed.
type FrameSource interface {
	Snapshot(mode types.Mode) (types.Snapshot, error)
}

// Inferrer is the detection inference collaborator.
type Inferrer interface {
	Infer(ctx context.Context, snap types.Snapshot, mode types.Mode) (types.InferenceResult, error)
}

// Config carries the loop's tuning knobs. The defaults are carried over
// from field use, not derived from measurements.
type Config struct {
	SpeedDelay       time.Duration
	AccuracyDelay    time.Duration
	SourceRetryDelay time.Duration
	InferTimeout     time.Duration
	HighLatency      time.Duration
	WidenedDelay     time.Duration
	BackoffStep      time.Duration
	BackoffCap       time.Duration
	AdvisoryAfter    int
	AdvisoryTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		SpeedDelay:       300 * time.Millisecond,
		AccuracyDelay:    1 * time.Second,
		SourceRetryDelay: 250 * time.Millisecond,
		InferTimeout:     8 * time.Second,
		HighLatency:      2500 * time.Millisecond,
		WidenedDelay:     1500 * time.Millisecond,
		BackoffStep:      500 * time.Millisecond,
		BackoffCap:       3 * time.Second,
		AdvisoryAfter:    3,
		AdvisoryTTL:      3 * time.Second,
	}
}

type advisory struct {
	text      string
	sticky    bool
	expiresAt time.Time
}

// Loop owns the scan/stop state machine: capture a snapshot, invoke
// inference with a bounded timeout, keep the latest detection frame, and
// compute the next poll delay from measured latency and the error streak.
// The loop is the single writer of session state; the render cycle and the
// UI read through Telemetry and Latest.
type Loop struct {
	clk      clock.Clock
	cfg      Config
	source   FrameSource
	inferrer Inferrer
	onCycle  func(ok bool, latency time.Duration)

	mu          sync.Mutex
	scanning    bool
	generation  uint64
	stop        chan struct{}
	mode        types.Mode
	errStreak   int
	lastLatency time.Duration
	lastSuccess time.Time
	fps         float64
	latest      *types.DetectionFrame
	note        advisory
}

// NewLoop builds an idle loop in accuracy mode. onCycle, if non-nil, is
// called once per completed inference attempt (for metrics).
func NewLoop(clk clock.Clock, cfg Config, source FrameSource, inferrer Inferrer, onCycle func(ok bool, latency time.Duration)) *Loop {
	return &Loop{
		clk:      clk,
		cfg:      cfg,
		source:   source,
		inferrer: inferrer,
		onCycle:  onCycle,
		mode:     types.ModeAccuracy,
	}
}

// Start flips the session to SCANNING. It does not drive the loop; spawn
// Run for that. Returns false if already scanning.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scanning {
		return false
	}
	l.scanning = true
	l.generation++
	l.stop = make(chan struct{})
	return true
}

// Stop returns the session to IDLE: the pending wait is cancelled, the
// latest detection frame is discarded, and a result from an inference call
// still in flight will be dropped when it resolves.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.scanning {
		return
	}
	l.scanning = false
	l.generation++
	l.latest = nil
	l.errStreak = 0
	l.lastLatency = 0
	l.lastSuccess = time.Time{}
	l.fps = 0
	l.note = advisory{}
	close(l.stop)
	l.stop = nil
}

// Run steps the loop until Stop or ctx cancellation. Attempts are strictly
// sequential: the next capture is only scheduled after the previous one
// fully resolves, so at most one inference call is ever in flight.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.mu.Lock()
		stopCh := l.stop
		l.mu.Unlock()
		if stopCh == nil {
			return
		}

		delay, ok := l.step(ctx)
		if !ok {
			return
		}

		timer := l.clk.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// step runs one capture/inference cycle and returns the delay before the
// next one. ok=false means the session stopped.
func (l *Loop) step(ctx context.Context) (time.Duration, bool) {
	l.mu.Lock()
	if !l.scanning {
		l.mu.Unlock()
		return 0, false
	}
	gen := l.generation
	mode := l.mode
	l.mu.Unlock()

	snap, err := l.source.Snapshot(mode)
	if err != nil {
		if !errors.Is(err, types.ErrSourceNotReady) {
			log.Printf("session snapshot failed: %v", err)
		}
		// Not an inference failure: fixed short retry, no streak.
		return l.cfg.SourceRetryDelay, l.current(gen)
	}

	start := l.clk.Now()
	ictx, cancel := context.WithTimeout(ctx, l.cfg.InferTimeout)
	result, err := l.inferrer.Infer(ictx, snap, mode)
	cancel()
	latency := l.clk.Now().Sub(start)

	if l.onCycle != nil {
		l.onCycle(err == nil, latency)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.scanning || gen != l.generation {
		// Stopped (or restarted) while the call was in flight; the
		// result no longer has a session to land in.
		return 0, false
	}

	if err != nil {
		l.errStreak++
		log.Printf("inference cycle failed (streak %d): %v", l.errStreak, err)
		if l.errStreak >= l.cfg.AdvisoryAfter {
			l.note = advisory{text: "detection service unreachable, retrying", sticky: true}
		}
		return l.nextDelayLocked(), true
	}

	// A successful-but-empty response does not blank a previously
	// populated display unless we were already in an error streak.
	keep := len(result.Objects) > 0 || l.errStreak > 0 || l.latest == nil || len(l.latest.Objects) == 0
	if keep {
		l.latest = &types.DetectionFrame{Objects: result.Objects, ReceivedAt: l.clk.Now()}
	}

	now := l.clk.Now()
	if !l.lastSuccess.IsZero() {
		if dt := now.Sub(l.lastSuccess); dt > 0 {
			l.fps = float64(time.Second) / float64(dt)
		}
	}
	l.lastSuccess = now
	l.lastLatency = latency
	l.errStreak = 0
	l.note = advisory{}

	if latency > l.cfg.HighLatency && l.mode == types.ModeAccuracy {
		l.mode = types.ModeSpeed
		l.note = advisory{
			text:      "high latency detected, switching to speed mode",
			expiresAt: now.Add(l.cfg.AdvisoryTTL),
		}
		log.Printf("inference latency %v above threshold, auto-switching to speed mode", latency)
	}

	return l.nextDelayLocked(), true
}

func (l *Loop) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scanning && gen == l.generation
}

// nextDelayLocked trades polling cadence against latency and errors: a
// tighter base in speed mode, widened when the last call was slow, and
// linear-capped backoff while in an error streak.
func (l *Loop) nextDelayLocked() time.Duration {
	delay := l.cfg.AccuracyDelay
	if l.mode == types.ModeSpeed {
		delay = l.cfg.SpeedDelay
	}
	if l.lastLatency > l.cfg.HighLatency && delay < l.cfg.WidenedDelay {
		delay = l.cfg.WidenedDelay
	}
	if l.errStreak > 0 {
		backoff := time.Duration(l.errStreak) * l.cfg.BackoffStep
		if backoff > l.cfg.BackoffCap {
			backoff = l.cfg.BackoffCap
		}
		delay = backoff
	}
	return delay
}

// Latest returns the current detection frame, or nil when idle or before
// the first successful response. The frame is immutable once published.
func (l *Loop) Latest() *types.DetectionFrame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// Mode returns the active performance mode.
func (l *Loop) Mode() types.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetMode is the manual toggle; unlike the automatic downgrade it works in
// both directions.
func (l *Loop) SetMode(mode types.Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = mode
}

// Scanning reports whether the session is live.
func (l *Loop) Scanning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scanning
}

// Telemetry snapshots the values published to the host UI once per cycle.
func (l *Loop) Telemetry() types.Telemetry {
	l.mu.Lock()
	defer l.mu.Unlock()

	message := l.note.text
	if !l.note.sticky && !l.note.expiresAt.IsZero() && l.clk.Now().After(l.note.expiresAt) {
		message = ""
	}
	count := 0
	var lastAt time.Time
	if l.latest != nil {
		count = len(l.latest.Objects)
		lastAt = l.latest.ReceivedAt
	}
	return types.Telemetry{
		Scanning:          l.scanning,
		Mode:              l.mode,
		LatencyMs:         l.lastLatency.Milliseconds(),
		InferenceFps:      l.fps,
		ObjectCount:       count,
		ConsecutiveErrors: l.errStreak,
		Message:           message,
		LastFrameAt:       lastAt,
	}
}
