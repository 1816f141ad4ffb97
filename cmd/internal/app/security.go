package app

import (
	"errors"
	"fmt"

	"clubhouse/cmd/security/token"
)

// newFlashSigner returns the signer for flash cookies.
//
// With RequireFlashKey set, a missing or short CLUBHOUSE_FLASH_KEY stops startup.
// Otherwise a process-local random key is used and flashes do not survive a restart.
func newFlashSigner(cfg Config, log Logger) (*token.Signer, error) {
	key, err := token.KeyFromEnv(token.FlashKeyEnv, token.MinKeyBytes)
	if err == nil {
		return token.NewSigner(key)
	}

	if cfg.RequireFlashKey {
		switch {
		case errors.Is(err, token.ErrKeyMissing):
			return nil, fmt.Errorf("security policy: CLUBHOUSE_REQUIRE_FLASH_KEY=true but %s is missing", token.FlashKeyEnv)
		case errors.Is(err, token.ErrKeyTooShort):
			return nil, fmt.Errorf("security policy: CLUBHOUSE_REQUIRE_FLASH_KEY=true but %s is too short (min %d bytes)", token.FlashKeyEnv, token.MinKeyBytes)
		default:
			return nil, err
		}
	}

	log.Warn("security.flash_key.random", "reason", err.Error())
	return token.NewRandomSigner()
}
