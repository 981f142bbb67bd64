package out

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
)

const defaultTailLimit = 200

// FileActivityStore is the append-only audit trail of the sync channel, one
// JSON event per line. Events arrive fully stamped; the store only persists.
type FileActivityStore struct {
	path string
}

func NewFileActivityStore(syncDir string) syncout.ActivityStore {
	return &FileActivityStore{path: filepath.Join(syncDir, "activity.log")}
}

func (s *FileActivityStore) Append(_ context.Context, event domain.ActivityEvent) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create activity dir: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	defer file.Close()
	if err := json.NewEncoder(file).Encode(event); err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}
	return nil
}

// Tail returns the last matching events in file order. A fixed ring keeps
// memory bounded however long the log has grown.
func (s *FileActivityStore) Tail(_ context.Context, query syncout.ActivityQuery) ([]domain.ActivityEvent, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultTailLimit
	}
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ActivityEvent{}, nil
		}
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	defer file.Close()

	ring := make([]domain.ActivityEvent, limit)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event domain.ActivityEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if query.Kind != "" && event.Kind != query.Kind {
			continue
		}
		ring[total%limit] = event
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan activity log: %w", err)
	}
	if total <= limit {
		return ring[:total], nil
	}
	out := make([]domain.ActivityEvent, 0, limit)
	for i := total - limit; i < total; i++ {
		out = append(out, ring[i%limit])
	}
	return out, nil
}
