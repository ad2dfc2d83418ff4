package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
// Lengths count runes.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak enables a minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// MaxBcryptCost bounds the cost accepted when verifying legacy bcrypt hashes.
	MaxBcryptCost int
}

// DefaultConfig returns the baseline used for account passwords.
// Parallelism follows the CPU count, clamped to [1..4] for container hosts.
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
		MaxBcryptCost: 14,
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - VIDTUBE_PASSWORD_MIN_LEN, VIDTUBE_PASSWORD_MAX_LEN
// - VIDTUBE_PASSWORD_REJECT_VERY_WEAK (true/false)
// - VIDTUBE_ARGON2_MEMORY_KIB, VIDTUBE_ARGON2_ITERATIONS, VIDTUBE_ARGON2_PARALLELISM
// - VIDTUBE_ARGON2_SALT_LEN, VIDTUBE_ARGON2_KEY_LEN
// - VIDTUBE_BCRYPT_MAX_COST
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	parallelism := uint32(cfg.Params.Parallelism)
	minLen, maxLen, bcryptCost := cfg.Policy.MinLength, cfg.Policy.MaxLength, cfg.MaxBcryptCost

	ints := []struct {
		key    string
		lo, hi int
		dst    *int
	}{
		{"VIDTUBE_PASSWORD_MIN_LEN", 1, 1024, &minLen},
		{"VIDTUBE_PASSWORD_MAX_LEN", 1, 4096, &maxLen},
		{"VIDTUBE_BCRYPT_MAX_COST", 4, 31, &bcryptCost},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := parseIntRange(v, e.lo, e.hi)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	u32s := []struct {
		key    string
		lo, hi uint32
		dst    *uint32
	}{
		{"VIDTUBE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB}, // 8 MiB .. 1 GiB
		{"VIDTUBE_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"VIDTUBE_ARGON2_PARALLELISM", 1, math.MaxUint8, &parallelism},
		{"VIDTUBE_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"VIDTUBE_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, e := range u32s {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		u, err := parseUint32Range(v, e.lo, e.hi)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = u
	}

	if v, ok := os.LookupEnv("VIDTUBE_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("VIDTUBE_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	cfg.Params.Parallelism = uint8(parallelism) // #nosec G115 -- bounded by MaxUint8 above.
	cfg.Policy.MinLength = minLen
	cfg.Policy.MaxLength = maxLen
	cfg.MaxBcryptCost = bcryptCost

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}
	return cfg, nil
}

func parseIntRange(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return n, nil
}

func parseUint32Range(s string, lo, hi uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < lo || u > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return u, nil
}

func parseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	if err == nil {
		return b, nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean")
}
