// Package credential seals provider API keys so they can be kept in the
// memory database instead of the environment.
//
// Keys are encrypted with AES-256-GCM under a key derived from the host and
// user, so a copied database cannot be opened on another machine.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// SealedPrefix marks a sealed value and its format version.
const SealedPrefix = "sealed:v1:"

var (
	ErrOpenFailed = errors.New("credential: cannot unseal value")
	ErrFormat     = errors.New("credential: malformed sealed value")
)

// Backend persists sealed values by provider name.
type Backend interface {
	SetCredential(ctx context.Context, name, sealed string) error
	GetCredential(ctx context.Context, name string) (string, bool, error)
	DeleteCredential(ctx context.Context, name string) error
}

// Vault seals values before they reach the backend.
type Vault struct {
	aead    cipher.AEAD
	backend Backend
}

// NewVault derives the machine key. backend may be nil when only Seal and
// Open are needed.
func NewVault(backend Backend) (*Vault, error) {
	return newVault(machineKey(), backend)
}

func newVault(key []byte, backend Backend) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	return &Vault{aead: aead, backend: backend}, nil
}

func (v *Vault) Seal(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credential: nonce: %w", err)
	}
	out := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

func (v *Vault) Open(sealed string) (string, error) {
	enc, ok := strings.CutPrefix(sealed, SealedPrefix)
	if !ok {
		return "", ErrFormat
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	n := v.aead.NonceSize()
	if len(raw) < n {
		return "", ErrFormat
	}
	plain, err := v.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// Store seals key and saves it under provider.
func (v *Vault) Store(ctx context.Context, provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("credential: empty key")
	}
	sealed, err := v.Seal(key)
	if err != nil {
		return err
	}
	return v.backend.SetCredential(ctx, provider, sealed)
}

// Lookup returns the unsealed key for provider. ok is false when none is
// stored.
func (v *Vault) Lookup(ctx context.Context, provider string) (key string, ok bool, err error) {
	sealed, ok, err := v.backend.GetCredential(ctx, provider)
	if err != nil || !ok {
		return "", false, err
	}
	key, err = v.Open(sealed)
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

func (v *Vault) Remove(ctx context.Context, provider string) error {
	return v.backend.DeleteCredential(ctx, provider)
}

func machineKey() []byte {
	var b strings.Builder
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	b.WriteString(host)
	b.WriteString(home)
	b.WriteString(runtime.GOOS)
	b.WriteString(runtime.GOARCH)
	fmt.Fprintf(&b, "uid:%d", os.Getuid())
	b.WriteString("commandecho-vault-v1")
	sum := sha256.Sum256([]byte(b.String()))
	return sum[:]
}

// Mask hides all but the ends of a secret for display.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
