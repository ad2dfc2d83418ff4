package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "this is a strong password 123!")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "wrong password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := DefaultConfig()

	ok, err := cfg.Verify("not-a-hash", "whatever")
	if err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if ok {
		t.Fatalf("expected false")
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	if err := cfg.Validate("password"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("11111111"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestLooksVeryWeak(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		weak bool
	}{
		{in: "VidTube123", weak: true},
		{in: "abcabcabc", weak: true},
		{in: "abababab", weak: true},
		{in: "12345678", weak: true},
		{in: "hgfedcba", weak: true},
		{in: "20240101", weak: true},
		{in: "123456789012", weak: false},
		{in: "correct horse battery", weak: false},
		{in: "abcdefgz", weak: false},
	}
	for _, tc := range cases {
		if got := looksVeryWeak(tc.in); got != tc.weak {
			t.Fatalf("looksVeryWeak(%q)=%v want=%v", tc.in, got, tc.weak)
		}
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-school-pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := cfg.Verify(string(legacy), "old-school-pw")
	if err != nil || !ok {
		t.Fatalf("expected legacy match, ok=%v err=%v", ok, err)
	}
	ok, err = cfg.Verify(string(legacy), "nope")
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, ok=%v err=%v", ok, err)
	}
	if !cfg.NeedsRehash(string(legacy)) {
		t.Fatalf("bcrypt hash should need rehash")
	}
}

func TestVerify_BcryptCostBound(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxBcryptCost = 4
	h, err := bcrypt.GenerateFromPassword([]byte("pw-pw-pw-pw"), 5)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := cfg.Verify(string(h), "pw-pw-pw-pw"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestNeedsRehash_Argon2(t *testing.T) {
	t.Parallel()

	weak := fastConfig()
	h, err := weak.Hash("a fine password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if weak.NeedsRehash(h) {
		t.Fatalf("hash with current params should not need rehash")
	}

	stronger := weak
	stronger.Params.Iterations = 2
	if !stronger.NeedsRehash(h) {
		t.Fatalf("weaker hash should need rehash")
	}
	if !weak.NeedsRehash("garbage") {
		t.Fatalf("malformed hash should need rehash")
	}
}

func TestVerify_RejectsOversizedParams(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	h, err := cfg.Hash("a fine password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	inflated := strings.Replace(h, "m=8192", "m=999999", 1)
	if _, err := cfg.Verify(inflated, "a fine password"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestHash_EnforcesPolicy(t *testing.T) {
	t.Parallel()

	if _, err := fastConfig().Hash("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}
