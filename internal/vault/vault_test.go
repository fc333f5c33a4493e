package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef-master"

func newTestVault(t *testing.T, current string, supported ...string) *Vault {
	t.Helper()
	v, err := New(config.VaultConfig{
		MasterSecret:      testSecret,
		CurrentVersion:    current,
		SupportedVersions: supported,
	})
	require.NoError(t, err)
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t, "v1")
	payload, err := v.Encrypt("ntr_live_secret", "v1")
	require.NoError(t, err)
	require.NotContains(t, payload, "ntr_live_secret")

	parts := strings.Split(payload, ":")
	require.Len(t, parts, 4)
	require.Equal(t, payloadTag, parts[0])

	plain, err := v.Decrypt(payload, "v1")
	require.NoError(t, err)
	require.Equal(t, "ntr_live_secret", plain)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := newTestVault(t, "v1")
	a, err := v.Encrypt("same", "v1")
	require.NoError(t, err)
	b, err := v.Encrypt("same", "v1")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptUnknownVersionFailsClosed(t *testing.T) {
	v := newTestVault(t, "v1")
	payload, err := v.Encrypt("secret", "v1")
	require.NoError(t, err)

	plain, err := v.Decrypt(payload, "v9")
	require.Error(t, err)
	require.Empty(t, plain)
	var kvErr *appErr.KeyVersionError
	require.True(t, errors.As(err, &kvErr))
	require.Equal(t, "v9", kvErr.Version)
	require.ErrorIs(t, err, appErr.ErrUnsupportedKeyVersion)
}

func TestVersionsDeriveDifferentKeys(t *testing.T) {
	v := newTestVault(t, "v2", "v1")
	payload, err := v.Encrypt("secret", "v1")
	require.NoError(t, err)

	_, err = v.Decrypt(payload, "v2")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	plain, err := v.Decrypt(payload, "v1")
	require.NoError(t, err)
	require.Equal(t, "secret", plain)
	require.True(t, v.IsStale("v1"))
	require.False(t, v.IsStale("v2"))
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	v := newTestVault(t, "v1")
	payload, err := v.Encrypt("secret", "v1")
	require.NoError(t, err)
	parts := strings.Split(payload, ":")
	ct := []byte(parts[3])
	if ct[0] == 'A' {
		ct[0] = 'B'
	} else {
		ct[0] = 'A'
	}
	parts[3] = string(ct)

	_, err = v.Decrypt(strings.Join(parts, ":"), "v1")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = v.Decrypt("garbage", "v1")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New(config.VaultConfig{MasterSecret: "short", CurrentVersion: "v1"})
	require.Error(t, err)
}
