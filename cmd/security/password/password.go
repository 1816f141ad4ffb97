package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcVersion = 19 // argon2.Version

	// MaxLength bounds input before hashing so a kiosk request cannot make us hash megabytes.
	MaxLength = 256
)

var b64 = base64.RawStdEncoding

// Hasher hashes with fixed Params and verifies hashes made with any sane params.
type Hasher struct {
	params Params
}

func NewHasher(p Params) *Hasher {
	return &Hasher{params: p}
}

// Hash returns the PHC encoding of password under the hasher's params.
func (h *Hasher) Hash(password string) (string, error) {
	if err := checkInput(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcVersion, h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed hash, or one
// whose cost is far above the hasher's own, yields ErrInvalidHash.
func (h *Hasher) Verify(encoded, password string) (bool, error) {
	if err := checkInput(password); err != nil {
		return false, err
	}
	p, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !h.acceptable(p) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with different params.
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, _, _, err := parsePHC(encoded)
	return err != nil || p != h.params
}

// acceptable rejects attacker-sized costs while still verifying older, cheaper hashes.
func (h *Hasher) acceptable(p Params) bool {
	return p.MemoryKiB <= h.params.MemoryKiB*2 &&
		p.Iterations <= h.params.Iterations*2 &&
		p.Parallelism <= h.params.Parallelism*2 &&
		p.SaltLength >= 8 && p.SaltLength <= 64 &&
		p.KeyLength >= 16 && p.KeyLength <= 128
}

func checkInput(password string) error {
	switch {
	case password == "":
		return ErrEmptyPassword
	case len(password) > MaxLength:
		return ErrPasswordTooLong
	}
	return nil
}

func parsePHC(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", phcVersion) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, iter, lanes uint32
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &lanes); err != nil || n != 3 {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || lanes == 0 || lanes > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(lanes),      // #nosec G115 -- checked <= 255 above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by input length.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by input length.
	}, salt, key, nil
}
