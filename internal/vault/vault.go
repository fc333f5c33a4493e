package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/hkdf"

	"github.com/xxxsen/feedhub/internal/config"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

const (
	payloadTag  = "fhv1"
	deriveLabel = "feedhub/credential-vault"
	keySize     = 32
	nonceSize   = 12
	tagSize     = 16
)

var encoding = base64.RawURLEncoding

// Vault encrypts tenant credentials with AES-GCM under a key derived per key version
// from the master secret.
type Vault struct {
	master    []byte
	current   string
	supported map[string]struct{}
	keys      *expirable.LRU[string, []byte]
}

func New(cfg config.VaultConfig) (*Vault, error) {
	if len(cfg.MasterSecret) < keySize {
		return nil, fmt.Errorf("vault master secret too short")
	}
	if cfg.CurrentVersion == "" {
		return nil, fmt.Errorf("vault current version is required")
	}
	supported := make(map[string]struct{}, len(cfg.SupportedVersions)+1)
	for _, v := range cfg.SupportedVersions {
		supported[v] = struct{}{}
	}
	supported[cfg.CurrentVersion] = struct{}{}
	size := cfg.KeyCacheSize
	if size <= 0 {
		size = 16
	}
	ttl := time.Duration(cfg.KeyCacheTTLSecond) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Vault{
		master:    []byte(cfg.MasterSecret),
		current:   cfg.CurrentVersion,
		supported: supported,
		keys:      expirable.NewLRU[string, []byte](size, nil, ttl),
	}, nil
}

func (v *Vault) CurrentVersion() string {
	return v.current
}

// IsStale reports whether a payload stored under version should be re-encrypted.
func (v *Vault) IsStale(version string) bool {
	return version != v.current
}

func (v *Vault) Supports(version string) bool {
	_, ok := v.supported[version]
	return ok
}

func (v *Vault) Encrypt(plaintext, version string) (string, error) {
	aead, err := v.aead(version)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), []byte(version))
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		payloadTag,
		encoding.EncodeToString(nonce),
		encoding.EncodeToString(tag),
		encoding.EncodeToString(ct),
	}, ":"), nil
}

func (v *Vault) Decrypt(payload, version string) (string, error) {
	aead, err := v.aead(version)
	if err != nil {
		return "", err
	}
	parts := strings.Split(payload, ":")
	if len(parts) != 4 || parts[0] != payloadTag {
		return "", fmt.Errorf("decrypt credential: unrecognized payload format: %w", appErr.ErrInvalid)
	}
	nonce, err := encoding.DecodeString(parts[1])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("decrypt credential: bad nonce: %w", appErr.ErrInvalid)
	}
	tag, err := encoding.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("decrypt credential: bad auth tag: %w", appErr.ErrInvalid)
	}
	ct, err := encoding.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("decrypt credential: bad ciphertext: %w", appErr.ErrInvalid)
	}
	plain, err := aead.Open(nil, nonce, append(ct, tag...), []byte(version))
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", appErr.ErrInvalid)
	}
	return string(plain), nil
}

func (v *Vault) aead(version string) (cipher.AEAD, error) {
	if !v.Supports(version) {
		return nil, &appErr.KeyVersionError{Version: version}
	}
	key, err := v.deriveKey(version)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (v *Vault) deriveKey(version string) ([]byte, error) {
	if key, ok := v.keys.Get(version); ok {
		return key, nil
	}
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, v.master, nil, []byte(deriveLabel+"|"+version))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	v.keys.Add(version, key)
	return key, nil
}
