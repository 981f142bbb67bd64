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

// FileQueueStore is the offline outbound buffer: one JSON message per line,
// appended in publish order and drained front to back.
type FileQueueStore struct {
	path string
}

func NewFileQueueStore(syncDir string) syncout.QueueStore {
	return &FileQueueStore{path: filepath.Join(syncDir, "queue.jsonl")}
}

func (s *FileQueueStore) Append(_ context.Context, msg domain.Message) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer file.Close()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queued message: %w", err)
	}
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

func (s *FileQueueStore) List(_ context.Context) ([]domain.Message, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Message{}, nil
		}
		return nil, fmt.Errorf("open queue: %w", err)
	}
	defer file.Close()

	out := []domain.Message{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := domain.Message{}
		if err := json.Unmarshal(line, &msg); err != nil {
			// A torn write on the last line must not wedge the queue.
			continue
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	return out, nil
}

// Replace rewrites the queue through a temp file and rename, the same
// swap-in-place idiom the snapshot writer uses.
func (s *FileQueueStore) Replace(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return s.Clear(ctx)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create queue temp: %w", err)
	}
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("encode queued message: %w", err)
		}
		if _, err := tmp.Write(append(payload, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("write queue temp: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close queue temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("swap queue: %w", err)
	}
	return nil
}

func (s *FileQueueStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}
