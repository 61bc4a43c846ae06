package capture

import (
	"context"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"detmap-go/internal/types"
)

// RawRecorder receives every raw feed message before decoding, for replay
// and diagnostics.
type RawRecorder interface {
	Record(payload []byte) error
}

// frameMessage is the wire shape published by the camera daemon:
// { "type": "frame", "captured_at": <unix seconds>, "encoding": "jpeg",
//   "width": <int>, "height": <int>, "data": <bytes> }
type frameMessage struct {
	Type       string  `cbor:"type"`
	CapturedAt float64 `cbor:"captured_at"`
	Encoding   string  `cbor:"encoding"`
	Width      int     `cbor:"width"`
	Height     int     `cbor:"height"`
	Data       []byte  `cbor:"data"`
}

// Stream returns a channel of decoded camera frames from a ZMQ feed.
func Stream(ctx context.Context, endpoint string) (<-chan types.CameraFrame, error) {
	return StreamWithLogEveryAndRecorder(ctx, endpoint, 1, nil)
}

// StreamWithLogEveryAndRecorder is Stream with decode-error log sampling
// and an optional raw message recorder.
func StreamWithLogEveryAndRecorder(ctx context.Context, endpoint string, logEvery int, recorder RawRecorder) (<-chan types.CameraFrame, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.CameraFrame, 8)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				logEveryN(logEvery, "capture recv error: %v", err)
				continue
			}
			if recorder != nil {
				if err := recorder.Record(msg); err != nil {
					logEveryN(logEvery, "capture raw record failed: %v", err)
				}
			}

			frame, ok := decodeFrameMessage(msg, logEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()

	return out, nil
}

func decodeFrameMessage(msg []byte, logEvery int) (types.CameraFrame, bool) {
	var payload frameMessage
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		logEveryN(logEvery, "capture CBOR decode error: %v", err)
		return types.CameraFrame{}, false
	}
	if payload.Type != "frame" {
		logEveryN(logEvery, "capture ignoring message type %q", payload.Type)
		return types.CameraFrame{}, false
	}

	img, err := DecodePayload(payload.Encoding, payload.Width, payload.Height, payload.Data)
	if err != nil {
		logEveryN(logEvery, "capture payload decode error: %v", err)
		return types.CameraFrame{}, false
	}

	capturedAt := time.Now()
	if payload.CapturedAt > 0 {
		capturedAt = time.Unix(0, int64(payload.CapturedAt*float64(time.Second)))
	}
	return types.CameraFrame{Image: img, CapturedAt: capturedAt}, true
}

var logCounter int

func logEveryN(n int, format string, args ...any) {
	logCounter++
	if logCounter%n == 0 {
		log.Printf(format, args...)
	}
}
