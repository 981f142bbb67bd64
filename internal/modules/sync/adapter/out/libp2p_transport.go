package out

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
	apperrors "leaflog/internal/platform/errors"
)

const (
	authProtocol protocol.ID = "/leaflog/sync/auth/1.0.0"
	msgProtocol  protocol.ID = "/leaflog/sync/msg/1.0.0"

	initialReconnectBackoff = 500 * time.Millisecond
	maxReconnectBackoff     = 15 * time.Second
	steadyPeerCheckInterval = 5 * time.Second
)

type Libp2pTransport struct{}

func NewLibp2pTransport() syncout.Transport {
	return &Libp2pTransport{}
}

type libp2pRuntime struct {
	host     host.Host
	pairID   string
	key      []byte
	handlers syncout.TransportHandlers

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	peers         map[string]domain.Peer
	authenticated map[peer.ID]struct{}
	watchers      map[string]context.CancelFunc
	status        syncout.NetworkStatus
	stopOnce      sync.Once
}

// The auth handshake proves both sides hold the same pairing key before any
// session state crosses the wire.
type authRequest struct {
	PairID string `json:"pair_id"`
	Nonce  string `json:"nonce"`
	Tag    string `json:"tag"`
}

type authResponse struct {
	PairID   string `json:"pair_id"`
	Nonce    string `json:"nonce"`
	Tag      string `json:"tag"`
	DeviceID string `json:"device_id"`
	Rejected bool   `json:"rejected,omitempty"`
}

func (t *Libp2pTransport) Start(ctx context.Context, input syncout.TransportStartInput, handlers syncout.TransportHandlers) (syncout.RuntimeTransport, error) {
	key, err := input.Pairing.Key()
	if err != nil {
		return nil, err
	}
	decodedPriv, err := base64.StdEncoding.DecodeString(input.Identity.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode device private key: %w", err)
	}
	privKey, err := crypto.UnmarshalEd25519PrivateKey(decodedPriv)
	if err != nil {
		return nil, fmt.Errorf("unmarshal device private key: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings("/ip4/0.0.0.0/tcp/0", "/ip6/::/tcp/0"),
	)
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &libp2pRuntime{
		host:          h,
		pairID:        input.Pairing.PairID,
		key:           key,
		handlers:      handlers,
		ctx:           runCtx,
		cancel:        cancel,
		peers:         map[string]domain.Peer{},
		authenticated: map[peer.ID]struct{}{},
		watchers:      map[string]context.CancelFunc{},
		status: syncout.NetworkStatus{
			Online:      true,
			LastSyncAt:  time.Now().UTC(),
			ListenAddrs: renderListenAddrs(h),
		},
	}

	h.SetStreamHandler(authProtocol, r.handleAuth)
	h.SetStreamHandler(msgProtocol, r.handleMessage)

	for _, configured := range input.Peers {
		r.startPeerWatcher(configured)
	}
	r.emitStatus()

	go func() {
		<-runCtx.Done()
		_ = r.Stop()
	}()

	return r, nil
}

func (r *libp2pRuntime) Send(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ids := r.authenticatedPeers()
	if len(ids) == 0 {
		return apperrors.ErrChannelUnavailable
	}
	delivered := 0
	for _, id := range ids {
		if err := r.writeMessage(ctx, id, msgProtocol, payload); err != nil {
			r.incrementCounter(func(c *syncout.ValidationCounters) { c.SendErrors++ })
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return apperrors.ErrChannelUnavailable
	}
	r.markSynced()
	return nil
}

func (r *libp2pRuntime) AddPeer(ctx context.Context, peerInfo domain.Peer) error {
	addr, err := multiaddr.NewMultiaddr(peerInfo.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPeerAddress, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPeerAddress, err)
	}
	peerInfo.PeerID = info.ID.String()
	r.startPeerWatcher(peerInfo)
	return nil
}

func (r *libp2pRuntime) RemovePeer(_ context.Context, peerID string) error {
	r.mu.Lock()
	cancel, ok := r.watchers[peerID]
	if ok {
		cancel()
		delete(r.watchers, peerID)
	}
	delete(r.peers, peerID)
	pid, decodeErr := peer.Decode(peerID)
	if decodeErr == nil {
		delete(r.authenticated, pid)
	}
	r.status.PeerCount = len(r.authenticated)
	r.mu.Unlock()

	if decodeErr == nil {
		_ = r.host.Network().ClosePeer(pid)
	}
	r.emitStatus()
	return nil
}

func (r *libp2pRuntime) Status() syncout.NetworkStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *libp2pRuntime) Stop() error {
	var stopErr error
	r.stopOnce.Do(func() {
		r.cancel()
		r.mu.Lock()
		for _, cancel := range r.watchers {
			cancel()
		}
		r.watchers = map[string]context.CancelFunc{}
		r.status.Online = false
		r.status.PeerCount = 0
		r.mu.Unlock()
		r.emitStatus()
		stopErr = r.host.Close()
	})
	return stopErr
}

func (r *libp2pRuntime) startPeerWatcher(peerInfo domain.Peer) {
	r.mu.Lock()
	if existingCancel, exists := r.watchers[peerInfo.PeerID]; exists {
		existingCancel()
	}
	watchCtx, cancel := context.WithCancel(r.ctx)
	r.watchers[peerInfo.PeerID] = cancel
	r.peers[peerInfo.PeerID] = peerInfo
	r.mu.Unlock()

	go func() {
		backoff := initialReconnectBackoff
		for {
			select {
			case <-watchCtx.Done():
				return
			default:
			}

			r.incrementCounter(func(c *syncout.ValidationCounters) { c.ReconnectAttempts++ })
			err := r.connectAndAuthenticate(watchCtx, peerInfo)
			if err == nil {
				r.incrementCounter(func(c *syncout.ValidationCounters) { c.ReconnectSuccesses++ })
				backoff = initialReconnectBackoff
				if !r.waitUntilDisconnected(watchCtx, peerInfo.PeerID) {
					return
				}
				continue
			}

			select {
			case <-time.After(backoff):
			case <-watchCtx.Done():
				return
			}
			backoff *= 2
			if backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
		}
	}()
}

func (r *libp2pRuntime) connectAndAuthenticate(ctx context.Context, peerInfo domain.Peer) error {
	addr, err := multiaddr.NewMultiaddr(peerInfo.Address)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return err
	}
	r.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	if err := r.host.Connect(ctx, *info); err != nil {
		return err
	}
	if err := r.authenticatePeer(ctx, info.ID); err != nil {
		_ = r.host.Network().ClosePeer(info.ID)
		return err
	}
	return nil
}

func (r *libp2pRuntime) waitUntilDisconnected(ctx context.Context, peerID string) bool {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return true
	}
	ticker := time.NewTicker(steadyPeerCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if r.host.Network().Connectedness(pid) != network.Connected {
				r.mu.Lock()
				delete(r.authenticated, pid)
				r.status.PeerCount = len(r.authenticated)
				r.mu.Unlock()
				r.emitStatus()
				return true
			}
		}
	}
}

func (r *libp2pRuntime) authenticatePeer(ctx context.Context, peerID peer.ID) error {
	stream, err := r.host.NewStream(ctx, peerID, authProtocol)
	if err != nil {
		return err
	}
	defer stream.Close()
	encoder := json.NewEncoder(stream)
	decoder := json.NewDecoder(stream)

	nonceRaw := make([]byte, 16)
	if _, err := rand.Read(nonceRaw); err != nil {
		return err
	}
	nonce := hex.EncodeToString(nonceRaw)
	req := authRequest{PairID: r.pairID, Nonce: nonce, Tag: signAuth(r.key, r.pairID, nonce)}
	if err := encoder.Encode(req); err != nil {
		return err
	}
	resp := authResponse{}
	if err := decoder.Decode(&resp); err != nil {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.DecodeErrors++ })
		if errors.Is(err, io.EOF) {
			return domain.ErrInvalidAuthTag
		}
		return err
	}
	if resp.Rejected {
		return domain.ErrInvalidAuthTag
	}
	if resp.PairID != r.pairID || resp.Nonce != nonce {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.PairMismatch++ })
		return domain.ErrPairMismatch
	}
	if !verifyAuth(r.key, r.pairID, resp.Nonce, resp.Tag) {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.InvalidAuthTag++ })
		return domain.ErrInvalidAuthTag
	}

	r.mu.Lock()
	r.authenticated[peerID] = struct{}{}
	r.status.PeerCount = len(r.authenticated)
	r.mu.Unlock()
	r.emitStatus()
	return nil
}

func (r *libp2pRuntime) handleAuth(stream network.Stream) {
	defer stream.Close()
	decoder := json.NewDecoder(stream)
	encoder := json.NewEncoder(stream)
	reject := func() {
		_ = encoder.Encode(authResponse{PairID: r.pairID, Rejected: true})
	}
	req := authRequest{}
	if err := decoder.Decode(&req); err != nil {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.DecodeErrors++ })
		reject()
		return
	}
	if req.PairID != r.pairID {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.PairMismatch++ })
		reject()
		return
	}
	if !verifyAuth(r.key, req.PairID, req.Nonce, req.Tag) {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.InvalidAuthTag++ })
		reject()
		return
	}

	peerID := stream.Conn().RemotePeer()
	r.mu.Lock()
	r.authenticated[peerID] = struct{}{}
	r.status.PeerCount = len(r.authenticated)
	r.mu.Unlock()
	r.emitStatus()

	_ = encoder.Encode(authResponse{
		PairID:   r.pairID,
		Nonce:    req.Nonce,
		Tag:      signAuth(r.key, r.pairID, req.Nonce),
		DeviceID: r.host.ID().String(),
	})
}

func (r *libp2pRuntime) handleMessage(stream network.Stream) {
	defer stream.Close()
	if !r.isAuthenticated(stream.Conn().RemotePeer()) {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.UnauthenticatedPeer++ })
		return
	}
	msg := domain.Message{}
	if err := json.NewDecoder(stream).Decode(&msg); err != nil {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.DecodeErrors++ })
		return
	}
	if msg.PairID != r.pairID {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.PairMismatch++ })
		return
	}
	if err := msg.Verify(r.key); err != nil {
		r.incrementCounter(func(c *syncout.ValidationCounters) { c.InvalidAuthTag++ })
		return
	}
	if r.handlers.OnMessage != nil {
		r.handlers.OnMessage(msg)
	}
	r.markSynced()
}

func (r *libp2pRuntime) writeMessage(ctx context.Context, id peer.ID, p protocol.ID, payload []byte) error {
	stream, err := r.host.NewStream(ctx, id, p)
	if err != nil {
		return err
	}
	defer stream.Close()
	if _, err := stream.Write(payload); err != nil {
		return err
	}
	return nil
}

func (r *libp2pRuntime) authenticatedPeers() []peer.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]peer.ID, 0, len(r.authenticated))
	for id := range r.authenticated {
		out = append(out, id)
	}
	return out
}

func (r *libp2pRuntime) isAuthenticated(id peer.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.authenticated[id]
	return ok
}

func (r *libp2pRuntime) markSynced() {
	r.mu.Lock()
	r.status.LastSyncAt = time.Now().UTC()
	r.mu.Unlock()
	r.emitStatus()
}

func (r *libp2pRuntime) incrementCounter(update func(c *syncout.ValidationCounters)) {
	r.mu.Lock()
	update(&r.status.Counters)
	r.mu.Unlock()
	r.emitStatus()
}

func (r *libp2pRuntime) emitStatus() {
	if r.handlers.OnStatus == nil {
		return
	}
	r.handlers.OnStatus(r.Status())
}

func renderListenAddrs(h host.Host) []string {
	out := make([]string, 0, len(h.Addrs()))
	for _, addr := range h.Addrs() {
		full := addr.Encapsulate(multiaddr.StringCast("/p2p/" + h.ID().String()))
		out = append(out, full.String())
	}
	return out
}

func signAuth(key []byte, pairID, nonce string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(pairID + "|" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyAuth(key []byte, pairID, nonce, tag string) bool {
	given, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(signAuth(key, pairID, nonce))
	if err != nil {
		return false
	}
	return hmac.Equal(given, want)
}
