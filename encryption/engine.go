// Package encryption implements authenticated encryption of document
// payloads and secure removal of the resulting container files.
//
// Containers are laid out as [nonce 12][tag 16][ciphertext] so a reader can
// slice the fixed-width header without a length prefix. Files shorter than
// the header are rejected as malformed before any decryption is attempted.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm is the identifier recorded on documents encrypted by the engine.
const Algorithm = "ChaCha20-Poly1305"

const (
	// KeySize is the required symmetric key length (256 bits).
	KeySize = chacha20poly1305.KeySize

	nonceSize  = chacha20poly1305.NonceSize
	tagSize    = chacha20poly1305.Overhead
	headerSize = nonceSize + tagSize

	// wipePasses is the number of random overwrite passes SecureDelete
	// performs before unlinking a container.
	wipePasses = 3
)

var (
	// ErrAuthenticationFailed indicates the authentication tag did not
	// verify: the container was tampered with or corrupted. It is never
	// returned for I/O problems.
	ErrAuthenticationFailed = errors.New("encryption: authentication failed")

	// ErrMalformedContainer indicates the file is too small to hold the
	// nonce and tag header.
	ErrMalformedContainer = errors.New("encryption: malformed container")

	// ErrNotFound indicates the container path does not exist.
	ErrNotFound = errors.New("encryption: container not found")

	// ErrKeyRequired is returned by New when no key is configured and an
	// ephemeral key is not permitted.
	ErrKeyRequired = errors.New("encryption: key required")
)

// Config controls engine construction.
type Config struct {
	// Key is the 256-bit symmetric key. Required in production.
	Key []byte

	// BaseDir is the directory container files are written to.
	BaseDir string

	// Production rejects missing keys outright: an ephemeral key would make
	// every previously written container unreadable after restart.
	Production bool

	// AllowEphemeralKey permits generating a throwaway key outside
	// production. It is an explicit opt-in, never a default.
	AllowEphemeralKey bool

	Logger *slog.Logger
}

// Engine performs authenticated encryption of byte streams. The key is fixed
// at construction and never mutated; the engine is safe for concurrent use.
type Engine struct {
	key     []byte
	baseDir string
	logger  *slog.Logger
}

// New validates key provisioning and returns a ready engine.
//
// With no key configured it fails in production mode. Outside production it
// still fails unless AllowEphemeralKey is set, in which case a throwaway key
// is generated and a loud warning is logged: everything encrypted under it
// is unreadable after the process exits.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "encryption"))

	key := cfg.Key
	switch {
	case len(key) == 0 && cfg.Production:
		return nil, fmt.Errorf("%w: refusing to start without a configured key in production", ErrKeyRequired)
	case len(key) == 0 && !cfg.AllowEphemeralKey:
		return nil, fmt.Errorf("%w: set AllowEphemeralKey to generate a throwaway key", ErrKeyRequired)
	case len(key) == 0:
		key = make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		logger.Warn("using EPHEMERAL encryption key; all containers written now become unreadable after restart")
	case len(key) != KeySize:
		return nil, fmt.Errorf("encryption: key must be %d bytes, got %d", KeySize, len(key))
	}

	if cfg.BaseDir == "" {
		return nil, errors.New("encryption: base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	e := &Engine{
		key:     append([]byte(nil), key...),
		baseDir: cfg.BaseDir,
		logger:  logger,
	}
	return e, nil
}

// Encrypt reads the full plaintext, encrypts it under a fresh random nonce
// and writes the container file under a newly generated unpredictable name.
// It returns the container path and the algorithm identifier used.
func (e *Engine) Encrypt(r io.Reader, originalExt string) (string, string, error) {
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", "", fmt.Errorf("read plaintext: %w", err)
	}

	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return "", "", fmt.Errorf("cipher setup: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal yields ciphertext||tag; the container stores the tag before the
	// ciphertext so the header is fixed-width.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	name, err := randomFileName(originalExt)
	if err != nil {
		return "", "", err
	}
	path := filepath.Join(e.baseDir, name)

	container := make([]byte, 0, headerSize+len(ciphertext))
	container = append(container, nonce...)
	container = append(container, tag...)
	container = append(container, ciphertext...)

	// Write to a temp name then rename so a crash never leaves a partial
	// container at the final path.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, container, 0o600); err != nil {
		return "", "", fmt.Errorf("write container: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("commit container: %w", err)
	}

	return path, Algorithm, nil
}

// Decrypt reads a container, verifies its authentication tag and returns the
// plaintext. Tag verification failure is reported as ErrAuthenticationFailed
// and is never degraded to empty or partial plaintext.
func (e *Engine) Decrypt(storagePath string) ([]byte, error) {
	data, err := os.ReadFile(storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("read container: %w", err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedContainer, len(data), headerSize)
	}

	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return nil, fmt.Errorf("cipher setup: %w", err)
	}

	nonce := data[:nonceSize]
	tag := data[nonceSize:headerSize]
	ciphertext := data[headerSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		e.logger.Error("container failed authentication",
			slog.String("path", storagePath),
			slog.Int("size", len(data)),
		)
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, storagePath)
	}
	if plaintext == nil {
		// Open returns a nil slice for a zero-length plaintext; callers get
		// an empty one so a successful decrypt is never a nil payload.
		plaintext = []byte{}
	}
	return plaintext, nil
}

// SecureDelete overwrites the container with fresh random data across
// multiple passes before unlinking it, so plaintext remnants that may have
// shared physical sectors cannot be recovered. It returns false without an
// error when the file is already absent.
func (e *Engine) SecureDelete(storagePath string) (bool, error) {
	info, err := os.Stat(storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat container: %w", err)
	}

	f, err := os.OpenFile(storagePath, os.O_WRONLY, 0)
	if err != nil {
		return false, fmt.Errorf("open container for wipe: %w", err)
	}

	size := info.Size()
	buf := make([]byte, 32*1024)
	for pass := 0; pass < wipePasses; pass++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return false, fmt.Errorf("wipe pass %d: %w", pass+1, err)
		}
		remaining := size
		for remaining > 0 {
			chunk := buf
			if remaining < int64(len(buf)) {
				chunk = buf[:remaining]
			}
			if _, err := rand.Read(chunk); err != nil {
				_ = f.Close()
				return false, fmt.Errorf("wipe pass %d: %w", pass+1, err)
			}
			n, err := f.Write(chunk)
			if err != nil {
				_ = f.Close()
				return false, fmt.Errorf("wipe pass %d: %w", pass+1, err)
			}
			remaining -= int64(n)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return false, fmt.Errorf("sync wipe pass %d: %w", pass+1, err)
		}
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close container: %w", err)
	}

	if err := os.Remove(storagePath); err != nil {
		return false, fmt.Errorf("unlink container: %w", err)
	}
	return true, nil
}

// randomFileName hashes fresh random bytes so storage names cannot be
// predicted or collide, independent of the original upload name.
func randomFileName(originalExt string) (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("generate file name: %w", err)
	}
	sum := sha256.Sum256(seed)

	ext := strings.ToLower(filepath.Ext(originalExt))
	if ext == "" && originalExt != "" {
		ext = "." + strings.ToLower(strings.TrimPrefix(originalExt, "."))
	}
	return hex.EncodeToString(sum[:]) + ext, nil
}
