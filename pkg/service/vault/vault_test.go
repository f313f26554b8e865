package vault_test

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/flowlens/pkg/service/vault"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	gt.NoError(t, err).Required()

	v, err := vault.New(key)
	gt.NoError(t, err).Required()
	return v
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)

	plaintext := "ya29.a0AfH6SMB-example-access-token"
	sealed, err := v.EncryptString(plaintext)
	gt.NoError(t, err).Required()
	gt.String(t, sealed).NotEqual(plaintext)

	opened, err := v.DecryptString(sealed)
	gt.NoError(t, err).Required()
	gt.Value(t, opened).Equal(plaintext)
}

func TestVaultNonceFreshness(t *testing.T) {
	v := newTestVault(t)

	first, err := v.EncryptString("same-token")
	gt.NoError(t, err).Required()
	second, err := v.EncryptString("same-token")
	gt.NoError(t, err).Required()

	gt.String(t, first).NotEqual(second)
}

func TestVaultRejectsTamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	sealed, err := v.EncryptString("token")
	gt.NoError(t, err).Required()

	raw, err := base64.StdEncoding.DecodeString(sealed)
	gt.NoError(t, err).Required()
	raw[len(raw)-1] ^= 0xff

	_, err = v.DecryptString(base64.StdEncoding.EncodeToString(raw))
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, vault.ErrDecryptionFailed)).True()
}

func TestVaultRejectsMalformedInput(t *testing.T) {
	v := newTestVault(t)

	_, err := v.DecryptString("not-base64!!")
	gt.Bool(t, errors.Is(err, vault.ErrInvalidCiphertext)).True()

	_, err = v.DecryptString(base64.StdEncoding.EncodeToString([]byte("short")))
	gt.Bool(t, errors.Is(err, vault.ErrInvalidCiphertext)).True()
}

func TestVaultRejectsWrongKey(t *testing.T) {
	v1 := newTestVault(t)
	v2 := newTestVault(t)

	sealed, err := v1.EncryptString("token")
	gt.NoError(t, err).Required()

	_, err = v2.DecryptString(sealed)
	gt.Bool(t, errors.Is(err, vault.ErrDecryptionFailed)).True()
}

func TestVaultKeyRequirements(t *testing.T) {
	_, err := vault.New(make([]byte, 16))
	gt.Error(t, err)

	_, err = vault.NewFromBase64("%%%")
	gt.Error(t, err)

	key := make([]byte, 32)
	_, readErr := rand.Read(key)
	gt.NoError(t, readErr).Required()
	v, err := vault.NewFromBase64(base64.StdEncoding.EncodeToString(key))
	gt.NoError(t, err).Required()
	gt.Value(t, v).NotNil()
}
