package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password against the policy. Lengths count runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

// commonPasswords are rejected case-insensitively when RejectVeryWeak is set.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"passw0rd":    {},
	"qwerty":      {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"letmein":     {},
	"iloveyou":    {},
	"welcome1":    {},
	"vidtube":     {},
	"vidtube123":  {},
}

// looksVeryWeak flags a small set of trivially guessable shapes. It is not a
// strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.ToLower(strings.TrimSpace(pw))
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[s]; ok {
		return true
	}

	runes := []rune(s)
	if repeatsUnit(runes) || isSequential(runes) {
		return true
	}

	// PIN-like: digits only and shorter than 12.
	digits := true
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			digits = false
			break
		}
	}
	return digits && len(runes) < 12
}

// repeatsUnit reports whether s is one short chunk (up to 3 runes) repeated,
// e.g. "aaaaaaaa" or "abcabcabc".
func repeatsUnit(s []rune) bool {
	for unit := 1; unit <= 3 && unit < len(s); unit++ {
		if len(s)%unit != 0 {
			continue
		}
		same := true
		for i := unit; i < len(s); i++ {
			if s[i] != s[i-unit] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// isSequential reports whether every rune steps by +1 or every rune by -1,
// e.g. "12345678" or "hgfedcba".
func isSequential(s []rune) bool {
	if len(s) < 2 {
		return false
	}
	step := s[1] - s[0]
	if step != 1 && step != -1 {
		return false
	}
	for i := 2; i < len(s); i++ {
		if s[i]-s[i-1] != step {
			return false
		}
	}
	return true
}
