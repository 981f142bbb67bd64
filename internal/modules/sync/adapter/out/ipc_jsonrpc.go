package out

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"time"

	syncout "leaflog/internal/modules/sync/port/out"
)

type JSONRPCServer struct{}

type JSONRPCClient struct{}

func NewJSONRPCServer() syncout.IPCServer {
	return &JSONRPCServer{}
}

func NewJSONRPCClient() syncout.IPCClient {
	return &JSONRPCClient{}
}

type rpcHandler struct {
	h syncout.IPCHandler
}

type statusResp struct {
	Status syncout.DaemonStatus
}

type syncNowResp struct {
	Flushed int
}

type empty struct{}

func (s *rpcHandler) Status(_ empty, resp *statusResp) error {
	status, err := s.h.Status(context.Background())
	if err != nil {
		return err
	}
	resp.Status = status
	return nil
}

func (s *rpcHandler) SyncNow(_ empty, resp *syncNowResp) error {
	flushed, err := s.h.SyncNow(context.Background())
	if err != nil {
		return err
	}
	resp.Flushed = flushed
	return nil
}

func (s *rpcHandler) Stop(_ empty, _ *empty) error {
	return s.h.Stop(context.Background())
}

func (s *JSONRPCServer) Serve(ctx context.Context, socketPath string, handler syncout.IPCHandler) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("Sync", &rpcHandler{h: handler}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

func (c *JSONRPCClient) Status(ctx context.Context, socketPath string) (syncout.DaemonStatus, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return syncout.DaemonStatus{}, err
	}
	defer client.Close()
	resp := statusResp{}
	if err := client.Call("Sync.Status", empty{}, &resp); err != nil {
		return syncout.DaemonStatus{}, err
	}
	return resp.Status, nil
}

func (c *JSONRPCClient) SyncNow(ctx context.Context, socketPath string) (int, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	resp := syncNowResp{}
	if err := client.Call("Sync.SyncNow", empty{}, &resp); err != nil {
		return 0, err
	}
	return resp.Flushed, nil
}

func (c *JSONRPCClient) Stop(ctx context.Context, socketPath string) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call("Sync.Stop", empty{}, &empty{})
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	client := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return client, nil
}
