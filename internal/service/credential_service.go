package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/metrics"
	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/vault"
)

type CredentialStore interface {
	Upsert(ctx context.Context, cred *model.StoredCredential) error
	Get(ctx context.Context, workspaceID, provider string) (*model.StoredCredential, error)
	UpdateSecretIf(ctx context.Context, workspaceID, provider, fromVersion, secret, toVersion string, mtime int64) (bool, error)
	Delete(ctx context.Context, workspaceID, provider string) error
}

type ConnectionStatus struct {
	Connected  bool   `json:"connected"`
	KeyVersion string `json:"key_version,omitempty"`
	Stale      bool   `json:"stale,omitempty"`
	Mtime      int64  `json:"mtime,omitempty"`
}

// ResolvedKey is a decrypted stored credential.
type ResolvedKey struct {
	APIKey     string
	KeyVersion string
}

type CredentialService struct {
	store   CredentialStore
	vault   *vault.Vault
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCredentialService(store CredentialStore, v *vault.Vault, m *metrics.Metrics) *CredentialService {
	return &CredentialService{
		store:   store,
		vault:   v,
		metrics: m,
		now:     time.Now,
	}
}

// Save encrypts apiKey under the current key version and replaces any stored key.
func (s *CredentialService) Save(ctx context.Context, workspaceID, provider, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if workspaceID == "" || provider == "" || apiKey == "" {
		return appErr.ErrInvalid
	}
	version := s.vault.CurrentVersion()
	secret, err := s.vault.Encrypt(apiKey, version)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	now := s.now().Unix()
	return s.store.Upsert(ctx, &model.StoredCredential{
		WorkspaceID: workspaceID,
		Provider:    provider,
		Secret:      secret,
		KeyVersion:  version,
		Ctime:       now,
		Mtime:       now,
	})
}

func (s *CredentialService) Status(ctx context.Context, workspaceID, provider string) (*ConnectionStatus, error) {
	cred, err := s.store.Get(ctx, workspaceID, provider)
	if err != nil {
		if appErr.IsNotFound(err) {
			return &ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}
	return &ConnectionStatus{
		Connected:  true,
		KeyVersion: cred.KeyVersion,
		Stale:      s.vault.IsStale(cred.KeyVersion),
		Mtime:      cred.Mtime,
	}, nil
}

func (s *CredentialService) Delete(ctx context.Context, workspaceID, provider string) error {
	return s.store.Delete(ctx, workspaceID, provider)
}

// Resolve decrypts the stored key. A missing row maps to ErrCredentialMissing; an
// unsupported key version fails closed with *appErr.KeyVersionError.
func (s *CredentialService) Resolve(ctx context.Context, workspaceID, provider string) (*ResolvedKey, error) {
	cred, err := s.store.Get(ctx, workspaceID, provider)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrCredentialMissing
		}
		return nil, err
	}
	plain, err := s.vault.Decrypt(cred.Secret, cred.KeyVersion)
	if err != nil {
		var kvErr *appErr.KeyVersionError
		if errors.As(err, &kvErr) {
			return nil, err
		}
		return nil, fmt.Errorf("stored credential unreadable: %w", err)
	}
	return &ResolvedKey{APIKey: plain, KeyVersion: cred.KeyVersion}, nil
}

// RekeyIfStale re-encrypts a key that was just used successfully when its version is
// no longer current. Losing a race against another re-key is not an error.
func (s *CredentialService) RekeyIfStale(ctx context.Context, workspaceID, provider string, key *ResolvedKey) bool {
	if key == nil || !s.vault.IsStale(key.KeyVersion) {
		return false
	}
	current := s.vault.CurrentVersion()
	secret, err := s.vault.Encrypt(key.APIKey, current)
	if err != nil {
		logutil.GetLogger(ctx).Warn("re-encrypt credential failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return false
	}
	ok, err := s.store.UpdateSecretIf(ctx, workspaceID, provider, key.KeyVersion, secret, current, s.now().Unix())
	if err != nil {
		logutil.GetLogger(ctx).Warn("store re-encrypted credential failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return false
	}
	if ok {
		s.metrics.Rekeyed()
		logutil.GetLogger(ctx).Info("credential re-encrypted",
			zap.String("workspace_id", workspaceID),
			zap.String("provider", provider),
			zap.String("from", key.KeyVersion),
			zap.String("to", current))
	}
	return ok
}
