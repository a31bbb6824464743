package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DailySchedule != "0 8 * * *" {
		t.Errorf("DailySchedule = %q", cfg.DailySchedule)
	}
	if cfg.MaxAttempts != 3 || cfg.RetryDelay != 120*time.Second || cfg.RetryMode != "edge" {
		t.Errorf("retry defaults = %d %v %q", cfg.MaxAttempts, cfg.RetryDelay, cfg.RetryMode)
	}
	if cfg.WindowDays != 7 {
		t.Errorf("WindowDays = %d", cfg.WindowDays)
	}
	if cfg.Location == nil || cfg.Location.String() != "Europe/Paris" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.PartnerLastName != "Dupont" || cfg.PartnerFirstName != "Jean" {
		t.Errorf("partner = %q %q", cfg.PartnerLastName, cfg.PartnerFirstName)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOOKING_RETRY_DELAY", "2s")
	t.Setenv("BOOKING_RETRY_MODE", "always")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EMAIL_LOGGING", "me@example.com")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.RetryDelay != 2*time.Second || cfg.RetryMode != "always" || cfg.StoreDriver != "memory" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.LegacyEmail != "me@example.com" {
		t.Fatalf("LegacyEmail = %q", cfg.LegacyEmail)
	}
}

func TestFromEnv_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SITE_LOCATION=Suzanne Lenglen\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITE_LOCATION", "")
	os.Unsetenv("SITE_LOCATION")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.SiteLocation != "Suzanne Lenglen" {
		t.Fatalf("SiteLocation = %q", cfg.SiteLocation)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"timezone", "TIMEZONE", "Mars/Olympus", "TIMEZONE"},
		{"driver", "STORE_DRIVER", "sqlite", "STORE_DRIVER"},
		{"mode", "BOOKING_RETRY_MODE", "sometimes", "BOOKING_RETRY_MODE"},
		{"attempts", "BOOKING_MAX_ATTEMPTS", "0", "BOOKING_MAX_ATTEMPTS"},
		{"admin", "ADMIN_AUTH", "true", "COOKIE_HASH_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := config.FromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestSecret_DecodeFromFile(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var s config.Secret
	if err := s.Decode(path); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(s) != 32 || s[31] != 31 {
		t.Fatalf("decoded = %v", []byte(s))
	}
}

func TestSecret_WrongLengthRejected(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CRED_ENC_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := config.FromEnv(); err == nil || !strings.Contains(err.Error(), "CRED_ENC_KEY") {
		t.Fatalf("err = %v", err)
	}
}
