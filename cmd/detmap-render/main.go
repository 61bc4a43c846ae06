package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"

	"detmap-go/internal/annotate"
	"detmap-go/internal/heatmap"
	"detmap-go/internal/output"
	"detmap-go/internal/types"
)

// detectionFile is the on-disk detection format: the JSON body an
// inference service returns, saved as-is.
type detectionFile struct {
	Objects []types.DetectedObject `json:"objects"`
	Summary string                 `json:"summary"`
}

func main() {
	var (
		imagePath  = flag.String("image", "", "Path to the source image (JPEG or PNG)")
		detections = flag.String("detections", "", "Path to a detections JSON file")
		outDir     = flag.String("out", ".", "Output directory")
		threshold  = flag.Float64("threshold", 0.5, "Minimum confidence to draw a detection")
		labels     = flag.Bool("labels", true, "Draw label chips")
		hud        = flag.Bool("hud", false, "Draw corner-bracket style boxes")
	)
	flag.Parse()

	if *imagePath == "" || *detections == "" {
		log.Fatal("both -image and -detections are required")
	}

	imgData, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatalf("read image: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Fatalf("decode image: %v", err)
	}

	detData, err := os.ReadFile(*detections)
	if err != nil {
		log.Fatalf("read detections: %v", err)
	}
	var det detectionFile
	if err := json.Unmarshal(detData, &det); err != nil {
		log.Fatalf("decode detections: %v", err)
	}

	id := strings.TrimSuffix(filepath.Base(*imagePath), filepath.Ext(*imagePath))

	annotated := annotate.Render(img, det.Objects, annotate.Options{
		Threshold:  *threshold,
		ShowLabels: *labels,
		HUD:        *hud,
		Opacity:    1,
	})
	annotatedPath, err := output.WriteImagePNG(*outDir, id, "annotated", annotated)
	if err != nil {
		log.Fatalf("write annotated: %v", err)
	}

	bounds := img.Bounds()
	heat := heatmap.Synthesize(det.Objects, bounds.Dx(), bounds.Dy())
	heatPath, err := output.WriteImagePNG(*outDir, id, "heatmap", heat)
	if err != nil {
		log.Fatalf("write heatmap: %v", err)
	}

	drawn := 0
	for _, obj := range det.Objects {
		if obj.Confidence >= *threshold {
			drawn++
		}
	}
	fmt.Printf("objects=%d drawn=%d\n", len(det.Objects), drawn)
	fmt.Printf("annotated: %s\n", annotatedPath)
	fmt.Printf("heatmap:   %s\n", heatPath)
	if det.Summary != "" {
		fmt.Printf("summary: %s\n", det.Summary)
	}
}
