package encryption

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{Key: testKey(t), BaseDir: t.TempDir()})
	require.NoError(t, err)
	return e
}

func TestNew_KeyProvisioning(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "production without key fails fast",
			cfg:     Config{BaseDir: t.TempDir(), Production: true, AllowEphemeralKey: true},
			wantErr: ErrKeyRequired,
		},
		{
			name:    "missing key without opt-in fails",
			cfg:     Config{BaseDir: t.TempDir()},
			wantErr: ErrKeyRequired,
		},
		{
			name: "explicit ephemeral opt-in succeeds outside production",
			cfg:  Config{BaseDir: t.TempDir(), AllowEphemeralKey: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, e)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, e)
		})
	}

	t.Run("short key rejected", func(t *testing.T) {
		_, err := New(Config{Key: []byte("too-short"), BaseDir: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestEngine_RoundTrip(t *testing.T) {
	e := newTestEngine(t)

	payloads := [][]byte{
		[]byte("hello world"),
		{},
		bytes.Repeat([]byte{0xAB}, 2048),
	}
	for _, payload := range payloads {
		path, alg, err := e.Encrypt(bytes.NewReader(payload), ".pdf")
		require.NoError(t, err)
		assert.Equal(t, Algorithm, alg)
		assert.True(t, strings.HasSuffix(path, ".pdf"))

		got, err := e.Decrypt(path)
		require.NoError(t, err)
		assert.NotNil(t, got, "successful decrypt never yields a nil payload")
		assert.Equal(t, payload, got)
	}
}

func TestEngine_StorageNameIndependentOfOriginal(t *testing.T) {
	e := newTestEngine(t)

	path, _, err := e.Encrypt(strings.NewReader("content"), filepath.Ext("invoice-2026.pdf"))
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.NotContains(t, base, "invoice")
	// 64 hex chars of SHA-256 plus the extension.
	assert.Len(t, strings.TrimSuffix(base, ".pdf"), 64)
}

func TestEngine_TamperDetection(t *testing.T) {
	e := newTestEngine(t)

	path, _, err := e.Encrypt(strings.NewReader("sensitive receipt data"), ".pdf")
	require.NoError(t, err)

	original, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip one bit in the tag region and in the ciphertext region.
	offsets := []int{nonceSize + 3, headerSize + 5}
	for _, off := range offsets {
		tampered := append([]byte(nil), original...)
		tampered[off] ^= 0x01
		require.NoError(t, os.WriteFile(path, tampered, 0o600))

		got, err := e.Decrypt(path)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
		assert.Nil(t, got, "tampered container must never yield plaintext")
	}
}

func TestEngine_NonceUniqueness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10k-encrypt nonce sweep in short mode")
	}
	e := newTestEngine(t)

	const n = 10000
	seen := make(map[string]struct{}, n)
	payload := []byte("x")
	for i := 0; i < n; i++ {
		path, _, err := e.Encrypt(bytes.NewReader(payload), "")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		nonce := string(data[:nonceSize])
		_, dup := seen[nonce]
		require.False(t, dup, "nonce reused at iteration %d", i)
		seen[nonce] = struct{}{}

		_, err = os.Stat(path)
		require.NoError(t, err)
		require.NoError(t, os.Remove(path))
	}
}

func TestEngine_DecryptErrors(t *testing.T) {
	e := newTestEngine(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := e.Decrypt(filepath.Join(t.TempDir(), "absent"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("truncated container", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short")
		require.NoError(t, os.WriteFile(path, make([]byte, headerSize-1), 0o600))

		_, err := e.Decrypt(path)
		assert.ErrorIs(t, err, ErrMalformedContainer)
	})

	t.Run("wrong key", func(t *testing.T) {
		path, _, err := e.Encrypt(strings.NewReader("data"), "")
		require.NoError(t, err)

		other, err := New(Config{Key: testKey(t), BaseDir: t.TempDir()})
		require.NoError(t, err)

		_, err = other.Decrypt(path)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	})
}

func TestEngine_SecureDelete(t *testing.T) {
	e := newTestEngine(t)

	path, _, err := e.Encrypt(strings.NewReader("wipe me"), ".txt")
	require.NoError(t, err)

	wiped, err := e.SecureDelete(path)
	require.NoError(t, err)
	assert.True(t, wiped)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	wiped, err = e.SecureDelete(path)
	require.NoError(t, err)
	assert.False(t, wiped, "absent file is non-fatal")
}
