package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
	apperrors "leaflog/internal/platform/errors"
)

const reconcileInterval = 15 * time.Second

// RunDaemon hosts the transport in this process and blocks until the context
// is cancelled or a Stop arrives over IPC.
func (s *SyncService) RunDaemon(ctx context.Context) error {
	pairing, identity, err := s.deps.Pairs.Load(ctx)
	if errors.Is(err, domain.ErrNotPaired) {
		return apperrors.ErrNotPaired
	}
	if err != nil {
		return err
	}
	key, err := pairing.Key()
	if err != nil {
		return err
	}
	peers, err := s.deps.Peers.List(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.pairing = pairing
	s.identity = identity
	s.key = key
	s.runCancel = cancel
	s.mu.Unlock()

	runtime, err := s.deps.Transport.Start(runCtx, syncout.TransportStartInput{
		Pairing:  pairing,
		Identity: identity,
		Peers:    peers,
	}, syncout.TransportHandlers{
		OnMessage: s.ingestRemote,
		OnStatus: func(status syncout.NetworkStatus) {
			s.mu.Lock()
			s.lastStatus = status
			s.mu.Unlock()
		},
	})
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	s.mu.Lock()
	s.runtime = runtime
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runtime = nil
		s.runCancel = nil
		s.mu.Unlock()
		runtime.Stop()
		s.deps.Daemons.ClearPID(context.Background())
	}()

	if err := s.deps.Daemons.WritePID(ctx, currentPID()); err != nil {
		return err
	}
	go func() {
		if err := s.deps.IPCServer.Serve(runCtx, s.deps.Daemons.SocketPath(), daemonHandler{svc: s}); err != nil && !errors.Is(err, context.Canceled) {
			s.note(domain.ActivityFault, "", fmt.Sprintf("ipc server: %v", err))
		}
	}()

	// Reconcile on start so a device coming back from a gap converges before
	// the first tick.
	if _, err := s.flushAndRepublish(runCtx); err != nil && !errors.Is(err, apperrors.ErrChannelUnavailable) {
		s.note(domain.ActivityFault, "", fmt.Sprintf("initial reconcile: %v", err))
	}

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.flushAndRepublish(runCtx); err != nil && !errors.Is(err, apperrors.ErrChannelUnavailable) {
				s.note(domain.ActivityFault, "", fmt.Sprintf("reconcile tick: %v", err))
			}
		}
	}
}

// StartDaemon re-executes this binary as a detached background process and
// waits for its socket to come up.
func (s *SyncService) StartDaemon(ctx context.Context) (syncout.DaemonStatus, error) {
	if status, err := s.Status(ctx); err == nil && status.Running {
		return status, nil
	}
	if _, _, err := s.deps.Pairs.Load(ctx); err != nil {
		if errors.Is(err, domain.ErrNotPaired) {
			return syncout.DaemonStatus{}, apperrors.ErrNotPaired
		}
		return syncout.DaemonStatus{}, err
	}

	execPath, err := os.Executable()
	if err != nil {
		return syncout.DaemonStatus{}, fmt.Errorf("resolve executable: %w", err)
	}
	logPath := s.deps.Daemons.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return syncout.DaemonStatus{}, fmt.Errorf("create daemon dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return syncout.DaemonStatus{}, fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, "sync", "daemon", "__run", "--data", s.dataPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return syncout.DaemonStatus{}, fmt.Errorf("spawn daemon: %w", err)
	}

	socket := s.deps.Daemons.SocketPath()
	if err := waitForSocket(socket, 5*time.Second); err != nil {
		return syncout.DaemonStatus{}, err
	}
	return s.deps.IPCClient.Status(ctx, socket)
}

// StopDaemon tries the gentlest handle first: in-process cancel, then IPC,
// then signals against the recorded PID.
func (s *SyncService) StopDaemon(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		return nil
	}

	socket := s.deps.Daemons.SocketPath()
	if socketReachable(socket) {
		if err := s.deps.IPCClient.Stop(ctx, socket); err == nil {
			s.awaitShutdown(socket)
			return nil
		}
	}

	pid, err := s.deps.Daemons.ReadPID(ctx)
	if err != nil || !processAlive(pid) {
		s.deps.Daemons.ClearPID(ctx)
		os.Remove(socket)
		return apperrors.ErrDaemonNotRunning
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		syscall.Kill(pid, syscall.SIGKILL)
	}
	s.deps.Daemons.ClearPID(ctx)
	os.Remove(socket)
	return nil
}

func (s *SyncService) awaitShutdown(socket string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !socketReachable(socket) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// daemonHandler exposes the running daemon over the local socket.
type daemonHandler struct {
	svc *SyncService
}

func (h daemonHandler) Status(ctx context.Context) (syncout.DaemonStatus, error) {
	return h.svc.runtimeStatus(ctx), nil
}

func (h daemonHandler) SyncNow(ctx context.Context) (int, error) {
	return h.svc.flushAndRepublish(ctx)
}

func (h daemonHandler) Stop(ctx context.Context) error {
	_ = ctx
	h.svc.mu.Lock()
	cancel := h.svc.runCancel
	h.svc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if socketReachable(path) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon socket %s did not come up within %s", path, timeout)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

func currentPID() int {
	return os.Getpid()
}
