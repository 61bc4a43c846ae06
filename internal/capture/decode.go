package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// DecodePayload turns a feed payload into an image. Supported encodings:
// "jpeg"/"jpg", "png", and "rgba" (raw non-premultiplied RGBA, which needs
// the width/height fields from the message envelope).
func DecodePayload(encoding string, width, height int, data []byte) (image.Image, error) {
	switch encoding {
	case "jpeg", "jpg":
		return jpeg.Decode(bytes.NewReader(data))
	case "png":
		return png.Decode(bytes.NewReader(data))
	case "rgba", "raw":
		return decodeRawRGBA(width, height, data)
	default:
		return nil, fmt.Errorf("unsupported frame encoding %q", encoding)
	}
}

func decodeRawRGBA(width, height int, data []byte) (image.Image, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid raw frame dimensions %dx%d", width, height)
	}
	if len(data) != width*height*4 {
		return nil, fmt.Errorf("raw frame size mismatch: have %d bytes, want %d", len(data), width*height*4)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data)
	return img, nil
}
