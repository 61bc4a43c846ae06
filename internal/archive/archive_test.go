package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"detmap-go/internal/types"
)

func TestFileStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "results"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	bundle := types.ResultBundle{
		ID:        uuid.NewString(),
		Timestamp: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Objects: []types.DetectedObject{
			{Label: "car", Confidence: 0.92, Box: types.Box{YMin: 100, XMin: 100, YMax: 400, XMax: 600}},
		},
		Summary:               "one car",
		ProcessingTimeSeconds: 1.7,
		SourceMediaRef:        "upload.jpg",
	}
	if err := store.Save(bundle); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "results"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one archived file, got %d (err %v)", len(entries), err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "results", entries[0].Name()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded types.ResultBundle
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != bundle.ID || decoded.Summary != "one car" || len(decoded.Objects) != 1 {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
}

func TestFileStoreRejectsMissingID(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(types.ResultBundle{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}
