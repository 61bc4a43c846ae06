package simulator

import (
	"context"
	"testing"
	"time"

	"detmap-go/internal/types"
)

func TestObjectsDeterministic(t *testing.T) {
	at := time.Unix(1700000000, 0)
	first := Objects(at)
	second := Objects(at)
	if len(first) != len(blobs) {
		t.Fatalf("unexpected object count: %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("objects differ for identical time: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestObjectsStayInBounds(t *testing.T) {
	for s := 0; s < 120; s += 7 {
		for _, obj := range Objects(time.Unix(int64(1700000000+s), 0)) {
			b := obj.Box
			if b.YMin < 0 || b.XMin < 0 || b.YMax > 1000 || b.XMax > 1000 {
				t.Fatalf("box out of normalized range: %+v", b)
			}
			if b.YMin > b.YMax || b.XMin > b.XMax {
				t.Fatalf("non-monotonic box: %+v", b)
			}
			if obj.Confidence <= 0 || obj.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", obj.Confidence)
			}
		}
	}
}

func TestStreamProducesFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := Stream(ctx, 64, 48, 100)
	select {
	case frame := <-frames:
		if frame.Image.Bounds().Dx() != 64 || frame.Image.Bounds().Dy() != 48 {
			t.Fatalf("unexpected frame bounds: %v", frame.Image.Bounds())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame produced")
	}
}

func TestInferrerMatchesScene(t *testing.T) {
	at := time.Unix(1700000123, 0)
	inf := &Inferrer{}
	res, err := inf.Infer(context.Background(), types.Snapshot{CapturedAt: at}, types.ModeSpeed)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	want := Objects(at)
	if len(res.Objects) != len(want) {
		t.Fatalf("object count mismatch: %d vs %d", len(res.Objects), len(want))
	}
	for i := range want {
		if res.Objects[i] != want[i] {
			t.Fatalf("object %d mismatch", i)
		}
	}
}
