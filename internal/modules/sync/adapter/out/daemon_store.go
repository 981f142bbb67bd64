package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	syncout "leaflog/internal/modules/sync/port/out"
)

// FileDaemonStore keeps the background-process bookkeeping (pid file, control
// socket, log) side by side in the sync directory.
type FileDaemonStore struct {
	dir string
}

func NewFileDaemonStore(syncDir string) syncout.DaemonStore {
	return &FileDaemonStore{dir: syncDir}
}

func (s *FileDaemonStore) WritePID(_ context.Context, pid int) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create daemon dir: %w", err)
	}
	return os.WriteFile(s.pidPath(), []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func (s *FileDaemonStore) ReadPID(_ context.Context) (int, error) {
	raw, err := os.ReadFile(s.pidPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("decode daemon pid: %w", err)
	}
	return pid, nil
}

func (s *FileDaemonStore) ClearPID(_ context.Context) error {
	if err := os.Remove(s.pidPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove daemon pid: %w", err)
	}
	return nil
}

func (s *FileDaemonStore) pidPath() string { return filepath.Join(s.dir, "daemon.pid") }

func (s *FileDaemonStore) SocketPath() string { return filepath.Join(s.dir, "daemon.sock") }

func (s *FileDaemonStore) LogPath() string { return filepath.Join(s.dir, "daemon.log") }
