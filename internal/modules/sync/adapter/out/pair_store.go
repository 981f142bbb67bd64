package out

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
)

type deviceFile struct {
	DeviceID string `json:"device_id"`
	Surface  string `json:"surface"`
}

// FilePairStore keeps the pairing secret and device identity under the sync
// directory. The private key file is the only secret that never leaves disk.
type FilePairStore struct {
	pairingPath   string
	devicePath    string
	deviceKeyPath string
}

func NewFilePairStore(syncDir string) syncout.PairStore {
	return &FilePairStore{
		pairingPath:   filepath.Join(syncDir, "pairing.json"),
		devicePath:    filepath.Join(syncDir, "device.json"),
		deviceKeyPath: filepath.Join(syncDir, "device.ed25519"),
	}
}

func (s *FilePairStore) Init(ctx context.Context, surface string) (domain.Pairing, domain.DeviceIdentity, error) {
	if existing, identity, err := s.Load(ctx); err == nil {
		return existing, identity, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.pairingPath), 0o755); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("create sync dir: %w", err)
	}

	pairID, err := randomHex(16)
	if err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, err
	}
	keyMaterial := make([]byte, 32)
	if _, err := rand.Read(keyMaterial); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("generate pairing key: %w", err)
	}
	pairing := domain.Pairing{
		PairID:    pairID,
		KeyBase64: base64.StdEncoding.EncodeToString(keyMaterial),
		CreatedAt: time.Now().UTC(),
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("generate device key: %w", err)
	}
	identity := domain.DeviceIdentity{
		DeviceID:   hex.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		Surface:    surface,
	}

	if err := writeJSON(s.pairingPath, pairing, 0o600); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, err
	}
	if err := writeJSON(s.devicePath, deviceFile{DeviceID: identity.DeviceID, Surface: surface}, 0o644); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, err
	}
	if err := os.WriteFile(s.deviceKeyPath, []byte(identity.PrivateKey), 0o600); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("write device key: %w", err)
	}
	return pairing, identity, nil
}

func (s *FilePairStore) Load(_ context.Context) (domain.Pairing, domain.DeviceIdentity, error) {
	raw, err := os.ReadFile(s.pairingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Pairing{}, domain.DeviceIdentity{}, domain.ErrNotPaired
		}
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("read pairing: %w", err)
	}
	pairing := domain.Pairing{}
	if err := json.Unmarshal(raw, &pairing); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("decode pairing: %w", err)
	}
	if _, err := pairing.Key(); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, err
	}

	deviceRaw, err := os.ReadFile(s.devicePath)
	if err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("read device identity: %w", err)
	}
	device := deviceFile{}
	if err := json.Unmarshal(deviceRaw, &device); err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("decode device identity: %w", err)
	}

	rawKey, err := os.ReadFile(s.deviceKeyPath)
	if err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("read device key: %w", err)
	}
	private := strings.TrimSpace(string(rawKey))
	decoded, err := base64.StdEncoding.DecodeString(private)
	if err != nil {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("decode device key: %w", err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return domain.Pairing{}, domain.DeviceIdentity{}, fmt.Errorf("invalid device key size")
	}
	identity := domain.DeviceIdentity{
		DeviceID:   device.DeviceID,
		PrivateKey: private,
		Surface:    device.Surface,
	}
	if identity.DeviceID == "" {
		identity.DeviceID = hex.EncodeToString(decoded[32:])
	}
	return pairing, identity, nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, payload, perm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func randomHex(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
