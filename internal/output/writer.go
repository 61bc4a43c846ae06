package output

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// WriteImagePNG saves a rendered image (annotated frame or heat-map) next
// to the archived result bundles and returns the file path, which goes into
// the bundle's source media reference.
func WriteImagePNG(outputDir string, id string, kind string, img image.Image) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", id, kind))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
