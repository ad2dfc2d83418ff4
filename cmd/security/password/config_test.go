package password

import (
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv := []string{
		"VIDTUBE_PASSWORD_MIN_LEN",
		"VIDTUBE_PASSWORD_MAX_LEN",
		"VIDTUBE_PASSWORD_REJECT_VERY_WEAK",
		"VIDTUBE_ARGON2_MEMORY_KIB",
		"VIDTUBE_ARGON2_ITERATIONS",
		"VIDTUBE_ARGON2_PARALLELISM",
		"VIDTUBE_ARGON2_SALT_LEN",
		"VIDTUBE_ARGON2_KEY_LEN",
	}
	for _, k := range clearEnv {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	def := DefaultConfig()
	if cfg.Policy.MinLength != def.Policy.MinLength || cfg.Policy.MinLength != 8 {
		t.Fatalf("min length mismatch: %d", cfg.Policy.MinLength)
	}
	if cfg.Params.MemoryKiB != def.Params.MemoryKiB {
		t.Fatalf("memory mismatch")
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("VIDTUBE_PASSWORD_MIN_LEN", "10")
	t.Setenv("VIDTUBE_PASSWORD_MAX_LEN", "200")
	t.Setenv("VIDTUBE_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("VIDTUBE_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("VIDTUBE_ARGON2_ITERATIONS", "4")
	t.Setenv("VIDTUBE_ARGON2_PARALLELISM", "2")
	t.Setenv("VIDTUBE_ARGON2_SALT_LEN", "24")
	t.Setenv("VIDTUBE_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("VIDTUBE_PASSWORD_MIN_LEN", "20")
	t.Setenv("VIDTUBE_PASSWORD_MAX_LEN", "10")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnv_RejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"VIDTUBE_PASSWORD_MIN_LEN":          "eight",
		"VIDTUBE_ARGON2_MEMORY_KIB":         "16",
		"VIDTUBE_ARGON2_PARALLELISM":        "300",
		"VIDTUBE_PASSWORD_REJECT_VERY_WEAK": "maybe",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", k, v)
			}
		})
	}
}
