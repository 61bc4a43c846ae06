package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"detmap-go/internal/types"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

func TestDecodePayloadRawRGBA(t *testing.T) {
	data := make([]byte, 2*2*4)
	for i := 0; i < len(data); i += 4 {
		data[i] = 200
		data[i+3] = 255
	}
	img, err := DecodePayload("rgba", 2, 2, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds: %v", img.Bounds())
	}
	r, _, _, _ := img.At(1, 1).RGBA()
	if r>>8 != 200 {
		t.Fatalf("unexpected red channel: %d", r>>8)
	}
}

func TestDecodePayloadRawSizeMismatch(t *testing.T) {
	if _, err := DecodePayload("rgba", 4, 4, make([]byte, 3)); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestDecodePayloadUnknownEncoding(t *testing.T) {
	if _, err := DecodePayload("tiff", 1, 1, nil); err == nil {
		t.Fatal("expected unsupported encoding error")
	}
}

func TestDecodeFrameMessageJPEG(t *testing.T) {
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, solidImage(8, 6, color.RGBA{10, 200, 30, 255}), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	payload, err := cbor.Marshal(map[string]any{
		"type":        "frame",
		"captured_at": 1700000000.5,
		"encoding":    "jpeg",
		"data":        jpegBuf.Bytes(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	frame, ok := decodeFrameMessage(payload, 1)
	if !ok {
		t.Fatal("decodeFrameMessage returned ok=false")
	}
	if frame.Image.Bounds().Dx() != 8 || frame.Image.Bounds().Dy() != 6 {
		t.Fatalf("unexpected bounds: %v", frame.Image.Bounds())
	}
	if frame.CapturedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected capture time: %v", frame.CapturedAt)
	}
}

func TestDecodeFrameMessageIgnoresOtherTypes(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{"type": "status"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, ok := decodeFrameMessage(payload, 1); ok {
		t.Fatal("non-frame message was decoded")
	}
}

func TestFeedSnapshotNotReady(t *testing.T) {
	feed := NewFeed()
	_, err := feed.Snapshot(types.ModeSpeed)
	if !errors.Is(err, types.ErrSourceNotReady) {
		t.Fatalf("expected ErrSourceNotReady, got %v", err)
	}
}

func TestFeedSnapshotModes(t *testing.T) {
	feed := NewFeed()
	frames := make(chan types.CameraFrame, 1)
	frames <- types.CameraFrame{Image: solidImage(1280, 720, color.RGBA{80, 80, 80, 255}), CapturedAt: time.Now()}
	close(frames)
	feed.Consume(context.Background(), frames, nil)

	speed, err := feed.Snapshot(types.ModeSpeed)
	if err != nil {
		t.Fatalf("speed snapshot: %v", err)
	}
	if speed.Width > 320 || speed.Height > 320 {
		t.Fatalf("speed snapshot too large: %dx%d", speed.Width, speed.Height)
	}

	accuracy, err := feed.Snapshot(types.ModeAccuracy)
	if err != nil {
		t.Fatalf("accuracy snapshot: %v", err)
	}
	if accuracy.Width > 640 || accuracy.Height > 640 {
		t.Fatalf("accuracy snapshot too large: %dx%d", accuracy.Width, accuracy.Height)
	}
	if accuracy.Width <= speed.Width {
		t.Fatalf("accuracy snapshot (%d) not larger than speed (%d)", accuracy.Width, speed.Width)
	}
	if len(speed.JPEG) == 0 || len(accuracy.JPEG) == 0 {
		t.Fatal("empty JPEG payload")
	}
}
