package config

import (
	"strings"
	"testing"
)

func TestDBConfigEnsureDSNFromLegacyParts(t *testing.T) {
	cfg := DBConfig{
		LegacyHost:     "db.internal",
		LegacyPort:     5433,
		LegacyUser:     "ledger",
		LegacyPassword: "s3cret",
		LegacyName:     "ledgercore",
		LegacySSLMode:  "require",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN error: %v", err)
	}
	for _, want := range []string{"postgres://", "ledger:s3cret@db.internal:5433/ledgercore", "sslmode=require"} {
		if !strings.Contains(cfg.DSN, want) {
			t.Fatalf("dsn %q missing %q", cfg.DSN, want)
		}
	}
}

func TestDBConfigEnsureDSNMissingParts(t *testing.T) {
	cfg := DBConfig{LegacyHost: "db.internal"}
	err := cfg.ensureDSN()
	if err == nil {
		t.Fatal("expected error for missing legacy vars")
	}
	if !strings.Contains(err.Error(), EnvDBUser) || !strings.Contains(err.Error(), EnvDBName) {
		t.Fatalf("error should name missing vars, got %v", err)
	}
}

func TestDBConfigEnsureDSNSkipsSQLite(t *testing.T) {
	cfg := DBConfig{Driver: DBDriverSQLite}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("sqlite should not require a DSN: %v", err)
	}
}

func TestStripeSquareEnvironmentNormalization(t *testing.T) {
	if got := (StripeConfig{Env: " LIVE "}).Environment(); got != "live" {
		t.Fatalf("stripe env = %q", got)
	}
	if got := (StripeConfig{}).Environment(); got != "test" {
		t.Fatalf("stripe default env = %q", got)
	}
	if got := (SquareConfig{Env: "Production"}).Environment(); got != "production" {
		t.Fatalf("square env = %q", got)
	}
	if got := (SquareConfig{}).Environment(); got != "sandbox" {
		t.Fatalf("square default env = %q", got)
	}
}
