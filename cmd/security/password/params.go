package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params is the argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is a baseline for interactive logins on small hosts.
func DefaultParams() Params {
	threads := min(max(runtime.NumCPU(), 1), 4)
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ParamsFromEnv overrides DefaultParams with CLUBHOUSE_ARGON2_MEMORY_KIB,
// CLUBHOUSE_ARGON2_ITERATIONS and CLUBHOUSE_ARGON2_PARALLELISM.
func ParamsFromEnv() (Params, error) {
	p := DefaultParams()

	fields := []struct {
		key      string
		lo, hi   uint32
		assignTo func(uint32)
	}{
		{"CLUBHOUSE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(v uint32) { p.MemoryKiB = v }},
		{"CLUBHOUSE_ARGON2_ITERATIONS", 1, 20, func(v uint32) { p.Iterations = v }},
		{"CLUBHOUSE_ARGON2_PARALLELISM", 1, 64, func(v uint32) { p.Parallelism = uint8(v) }}, // #nosec G115 -- bounded to 64.
	}
	for _, f := range fields {
		raw, ok := os.LookupEnv(f.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil || uint32(n) < f.lo || uint32(n) > f.hi {
			return Params{}, fmt.Errorf("%s: want integer in [%d..%d]", f.key, f.lo, f.hi)
		}
		f.assignTo(uint32(n))
	}
	return p, nil
}
