package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "unit-test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "giganotes.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
	if cfg.TokenIssuer != "giganotes-auth" || cfg.TokenAudience != "giganotes-api" {
		t.Fatalf("unexpected token metadata: %#v", cfg)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "unit-test-secret")
	configViper.Set("http.address", "127.0.0.1:9999")
	configViper.Set("database.path", "/tmp/notes.db")
	configViper.Set("log.level", "debug")
	configViper.Set("token.ttl_minutes", 5)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" || cfg.DatabasePath != "/tmp/notes.db" {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	if cfg.TokenTTL != 5*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected missing signing secret to fail validation")
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "unit-test-secret")
	configViper.Set("log.level", "chatty")
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected unknown log level to fail validation")
	}
}

func TestLoadRejectsNegativeTokenTTL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "unit-test-secret")
	configViper.Set("token.ttl_minutes", -5)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected negative token ttl to fail validation")
	}
}
