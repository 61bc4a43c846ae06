package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"detmap-go/internal/types"
)

// Capture profiles per performance mode. Speed trades resolution and JPEG
// quality for minimum payload; accuracy sends a larger, cleaner image.
const (
	speedMaxDim     = 320
	speedQuality    = 50
	accuracyMaxDim  = 640
	accuracyQuality = 80
)

// Feed retains only the newest decoded camera frame. The consume goroutine
// is the single writer; snapshots and the render cycle read.
type Feed struct {
	mu  sync.RWMutex
	img image.Image
	at  time.Time
}

func NewFeed() *Feed {
	return &Feed{}
}

// Consume drains the frame channel into the feed. Run it on its own
// goroutine; it returns when the channel closes or ctx is done.
func (f *Feed) Consume(ctx context.Context, frames <-chan types.CameraFrame, onFrame func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			f.mu.Lock()
			f.img = frame.Image
			f.at = frame.CapturedAt
			f.mu.Unlock()
			if onFrame != nil {
				onFrame()
			}
		}
	}
}

// Latest returns the newest frame, or ok=false before the first one.
func (f *Feed) Latest() (image.Image, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.img == nil {
		return nil, time.Time{}, false
	}
	return f.img, f.at, true
}

// Snapshot downscales and JPEG-encodes the newest frame according to the
// performance mode. Returns types.ErrSourceNotReady before the first frame.
func (f *Feed) Snapshot(mode types.Mode) (types.Snapshot, error) {
	img, at, ok := f.Latest()
	if !ok {
		return types.Snapshot{}, types.ErrSourceNotReady
	}

	maxDim, quality := accuracyMaxDim, accuracyQuality
	if mode == types.ModeSpeed {
		maxDim, quality = speedMaxDim, speedQuality
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Linear)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
		return types.Snapshot{}, err
	}
	bounds := resized.Bounds()
	return types.Snapshot{
		JPEG:       buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: at,
	}, nil
}
