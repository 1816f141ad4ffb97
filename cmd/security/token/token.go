package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// FlashKeyEnv names the env var holding the flash signing key.
// #nosec G101 -- not a credential; it's an environment variable name.
const FlashKeyEnv = "CLUBHOUSE_FLASH_KEY"

// MinKeyBytes is the smallest key accepted for HMAC-SHA256.
const MinKeyBytes = 32

// NewOpaqueHex returns n random bytes, hex encoded.
func NewOpaqueHex(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token: invalid length %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Equal compares two tokens in constant time. Empty tokens never match.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// KeyFromEnv returns the trimmed key in env, enforcing minBytes.
func KeyFromEnv(env string, minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return nil, ErrKeyMissing
	}
	if len(raw) < minBytes {
		return nil, ErrKeyTooShort
	}
	return []byte(raw), nil
}

// Signer produces and checks "<base64url payload>.<hex mac>" strings.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	return &Signer{key: append([]byte(nil), key...)}, nil
}

// NewRandomSigner returns a Signer with a process-local random key.
func NewRandomSigner() (*Signer, error) {
	key := make([]byte, MinKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Sign(payload []byte) string {
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + s.mac(body)
}

// Open verifies signed and returns its payload.
func (s *Signer) Open(signed string) ([]byte, error) {
	body, mac, ok := strings.Cut(signed, ".")
	if !ok || body == "" || mac == "" {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(mac), []byte(s.mac(body))) {
		return nil, ErrBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrBadSignature
	}
	return payload, nil
}

func (s *Signer) mac(body string) string {
	m := hmac.New(sha256.New, s.key)
	_, _ = m.Write([]byte(body))
	return hex.EncodeToString(m.Sum(nil))
}
