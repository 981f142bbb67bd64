package out

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"leaflog/internal/modules/snapshot/domain"
	snapshotout "leaflog/internal/modules/snapshot/port/out"
	apperrors "leaflog/internal/platform/errors"
)

// FileWriter exports the snapshot with write-temp-then-rename, so a reader
// polling the path never observes a partially written file.
type FileWriter struct {
	path string
}

func NewFileWriter(path string) snapshotout.Writer {
	return &FileWriter{path: path}
}

func (w *FileWriter) Write(_ context.Context, snapshot domain.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot temp: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (w *FileWriter) Read(_ context.Context) (domain.Snapshot, error) {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Snapshot{}, fmt.Errorf("snapshot: %w", apperrors.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snapshot := domain.Snapshot{}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}
