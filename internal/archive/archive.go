package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"detmap-go/internal/types"
)

// Store accepts completed result bundles for later listing and reporting.
// Listing, filtering, and report assembly live outside this service; the
// core only produces bundles.
type Store interface {
	Save(bundle types.ResultBundle) error
}

// FileStore writes one JSON file per bundle into a flat directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(bundle types.ResultBundle) error {
	if bundle.ID == "" {
		return fmt.Errorf("bundle has no id")
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s_result_%s.json", bundle.Timestamp.Format("20060102_150405"), bundle.ID)
	return os.WriteFile(filepath.Join(s.dir, name), data, 0o644)
}
