package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"detmap-go/internal/types"
)

type fakeSource struct {
	err error
}

func (f *fakeSource) Snapshot(types.Mode) (types.Snapshot, error) {
	if f.err != nil {
		return types.Snapshot{}, f.err
	}
	return types.Snapshot{JPEG: []byte{0xff, 0xd8}, Width: 320, Height: 240}, nil
}

type fakeInferrer struct {
	objects []types.DetectedObject
	err     error
	latency time.Duration
	mock    *clock.Mock
	onInfer func()
}

func (f *fakeInferrer) Infer(context.Context, types.Snapshot, types.Mode) (types.InferenceResult, error) {
	if f.latency > 0 && f.mock != nil {
		f.mock.Add(f.latency)
	}
	if f.onInfer != nil {
		f.onInfer()
	}
	if f.err != nil {
		return types.InferenceResult{}, f.err
	}
	return types.InferenceResult{Objects: f.objects}, nil
}

func carObjects() []types.DetectedObject {
	return []types.DetectedObject{
		{Label: "car", Confidence: 0.92, Box: types.Box{YMin: 100, XMin: 100, YMax: 400, XMax: 600}},
	}
}

func newTestLoop(mock *clock.Mock, source FrameSource, inf Inferrer) *Loop {
	return NewLoop(mock, DefaultConfig(), source, inf, nil)
}

func TestStepKeepsSuccessfulFrame(t *testing.T) {
	mock := clock.NewMock()
	loop := newTestLoop(mock, &fakeSource{}, &fakeInferrer{objects: carObjects()})
	loop.Start()

	delay, ok := loop.step(context.Background())
	if !ok {
		t.Fatal("step reported stopped session")
	}
	if delay != time.Second {
		t.Fatalf("unexpected accuracy-mode delay: %v", delay)
	}
	frame := loop.Latest()
	if frame == nil || len(frame.Objects) != 1 {
		t.Fatalf("latest frame not kept: %+v", frame)
	}
	tel := loop.Telemetry()
	if tel.ObjectCount != 1 || tel.ConsecutiveErrors != 0 {
		t.Fatalf("unexpected telemetry: %+v", tel)
	}
}

func TestSourceNotReadyIsNotAnError(t *testing.T) {
	mock := clock.NewMock()
	loop := newTestLoop(mock, &fakeSource{err: types.ErrSourceNotReady}, &fakeInferrer{})
	loop.Start()

	delay, ok := loop.step(context.Background())
	if !ok {
		t.Fatal("step reported stopped session")
	}
	if delay != 250*time.Millisecond {
		t.Fatalf("unexpected retry delay: %v", delay)
	}
	if tel := loop.Telemetry(); tel.ConsecutiveErrors != 0 {
		t.Fatalf("not-ready source incremented streak: %+v", tel)
	}
}

func TestHighLatencyAutoDowngrade(t *testing.T) {
	mock := clock.NewMock()
	inf := &fakeInferrer{objects: carObjects(), latency: 2600 * time.Millisecond, mock: mock}
	loop := newTestLoop(mock, &fakeSource{}, inf)
	loop.Start()

	delay, ok := loop.step(context.Background())
	if !ok {
		t.Fatal("step reported stopped session")
	}
	if loop.Mode() != types.ModeSpeed {
		t.Fatalf("mode not downgraded: %v", loop.Mode())
	}
	tel := loop.Telemetry()
	if tel.Message == "" {
		t.Fatal("expected advisory message after downgrade")
	}
	if tel.LatencyMs != 2600 {
		t.Fatalf("unexpected latency: %d", tel.LatencyMs)
	}
	// High last latency widens the next delay past the speed-mode base.
	if delay != 1500*time.Millisecond {
		t.Fatalf("unexpected widened delay: %v", delay)
	}

	// The advisory is transient: gone after its TTL.
	mock.Add(3100 * time.Millisecond)
	if tel := loop.Telemetry(); tel.Message != "" {
		t.Fatalf("advisory not cleared: %q", tel.Message)
	}
}

func TestManualModeToggleBothWays(t *testing.T) {
	loop := newTestLoop(clock.NewMock(), &fakeSource{}, &fakeInferrer{})
	loop.SetMode(types.ModeSpeed)
	if loop.Mode() != types.ModeSpeed {
		t.Fatal("manual switch to speed failed")
	}
	loop.SetMode(types.ModeAccuracy)
	if loop.Mode() != types.ModeAccuracy {
		t.Fatal("manual switch back to accuracy failed")
	}
}

func TestErrorStreakBackoff(t *testing.T) {
	mock := clock.NewMock()
	inf := &fakeInferrer{err: errors.New("connection refused")}
	loop := newTestLoop(mock, &fakeSource{}, inf)
	loop.Start()

	var delay time.Duration
	for i := 0; i < 5; i++ {
		var ok bool
		delay, ok = loop.step(context.Background())
		if !ok {
			t.Fatalf("step %d reported stopped session", i)
		}
	}
	if delay != 2500*time.Millisecond {
		t.Fatalf("streak-5 delay: got %v want 2.5s", delay)
	}
	tel := loop.Telemetry()
	if tel.ConsecutiveErrors != 5 {
		t.Fatalf("unexpected streak: %d", tel.ConsecutiveErrors)
	}
	if tel.Message == "" {
		t.Fatal("expected persistent advisory after repeated failures")
	}

	// Another failure hits the backoff cap.
	if delay, _ = loop.step(context.Background()); delay != 3*time.Second {
		t.Fatalf("capped delay: got %v want 3s", delay)
	}

	// One success resets the streak and clears the advisory.
	inf.err = nil
	inf.objects = carObjects()
	if _, ok := loop.step(context.Background()); !ok {
		t.Fatal("recovery step reported stopped session")
	}
	tel = loop.Telemetry()
	if tel.ConsecutiveErrors != 0 || tel.Message != "" {
		t.Fatalf("streak not reset: %+v", tel)
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	mock := clock.NewMock()
	inf := &fakeInferrer{objects: carObjects()}
	loop := newTestLoop(mock, &fakeSource{}, inf)
	loop.Start()
	// Stop lands while the inference call is in flight; its result must
	// not be applied once it resolves.
	inf.onInfer = loop.Stop

	if delay, ok := loop.step(context.Background()); ok {
		t.Fatalf("step after stop reported ok (delay %v)", delay)
	}
	if loop.Latest() != nil {
		t.Fatal("in-flight result applied after stop")
	}
}

func TestEmptyResultDoesNotBlankDisplay(t *testing.T) {
	mock := clock.NewMock()
	inf := &fakeInferrer{objects: carObjects()}
	loop := newTestLoop(mock, &fakeSource{}, inf)
	loop.Start()

	if _, ok := loop.step(context.Background()); !ok {
		t.Fatal("populating step failed")
	}

	// Empty success with no error streak: previous frame stays.
	inf.objects = nil
	if _, ok := loop.step(context.Background()); !ok {
		t.Fatal("empty step failed")
	}
	if frame := loop.Latest(); frame == nil || len(frame.Objects) != 1 {
		t.Fatalf("empty response blanked the display: %+v", frame)
	}

	// With a streak in progress, an empty success is trusted.
	inf.err = errors.New("timeout")
	if _, ok := loop.step(context.Background()); !ok {
		t.Fatal("failing step failed")
	}
	inf.err = nil
	if _, ok := loop.step(context.Background()); !ok {
		t.Fatal("recovery step failed")
	}
	if frame := loop.Latest(); frame == nil || len(frame.Objects) != 0 {
		t.Fatalf("empty response after streak was not applied: %+v", frame)
	}
}

func TestStopDiscardsFrameAndStartIsFresh(t *testing.T) {
	mock := clock.NewMock()
	loop := newTestLoop(mock, &fakeSource{}, &fakeInferrer{objects: carObjects()})
	loop.Start()
	if _, ok := loop.step(context.Background()); !ok {
		t.Fatal("step failed")
	}
	loop.Stop()
	if loop.Latest() != nil {
		t.Fatal("frame survived stop")
	}
	if loop.Scanning() {
		t.Fatal("still scanning after stop")
	}
	tel := loop.Telemetry()
	if tel.ObjectCount != 0 || tel.LatencyMs != 0 || tel.Scanning {
		t.Fatalf("telemetry not reset: %+v", tel)
	}
	if !loop.Start() {
		t.Fatal("restart failed")
	}
	if loop.Start() {
		t.Fatal("double start succeeded")
	}
}

func TestSpeedModeBaseDelay(t *testing.T) {
	mock := clock.NewMock()
	loop := newTestLoop(mock, &fakeSource{}, &fakeInferrer{objects: carObjects()})
	loop.SetMode(types.ModeSpeed)
	loop.Start()

	delay, ok := loop.step(context.Background())
	if !ok {
		t.Fatal("step failed")
	}
	if delay != 300*time.Millisecond {
		t.Fatalf("unexpected speed-mode delay: %v", delay)
	}
}
