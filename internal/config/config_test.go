package config

import (
	"os"
	"testing"
)

func clearEngineEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PAPER_TRADE", "TRADING_ENABLED", "MIN_SPREAD_THRESHOLD", "ORDER_SIZE_DEFAULT",
		"MAX_EXPOSURE_PER_MARKET", "MAX_TOTAL_EXPOSURE", "PAIR_TIMEOUT_SECONDS",
		"RESOLUTION_BUFFER_SECONDS", "CANCEL_DEADLINE_SECONDS", "SCAN_INTERVAL_SECONDS",
		"MAX_ONE_SIDED_FILLS_BEFORE_HALT", "ASSETS", "SERIES_TICKER",
		"CREDENTIAL_PASSPHRASE", "EXCHANGE_KEY_ID", "EXCHANGE_PRIVATE_KEY_PEM_PATH",
		"DB_PORT",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEngineEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Engine.PaperTrade {
		t.Fatal("expected PaperTrade to default true")
	}
	if cfg.Engine.OrderSizeDefault != 10 {
		t.Fatalf("OrderSizeDefault = %d, want 10", cfg.Engine.OrderSizeDefault)
	}
	if len(cfg.Engine.Assets) != 4 {
		t.Fatalf("expected the default four-asset list, got %v", cfg.Engine.Assets)
	}
}

func TestLoadRequiresSecurityMaterialWhenLive(t *testing.T) {
	clearEngineEnv(t)
	defer clearEngineEnv(t)

	os.Setenv("PAPER_TRADE", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail without CREDENTIAL_PASSPHRASE/EXCHANGE_KEY_ID")
	}

	os.Setenv("CREDENTIAL_PASSPHRASE", "secret")
	os.Setenv("EXCHANGE_KEY_ID", "key-1")
	if _, err := Load(); err != nil {
		t.Fatalf("expected Load to succeed once security material is present: %v", err)
	}
}

func TestLoadRejectsNonPositiveRanges(t *testing.T) {
	clearEngineEnv(t)
	defer clearEngineEnv(t)

	os.Setenv("ORDER_SIZE_DEFAULT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject a non-positive ORDER_SIZE_DEFAULT")
	}
}

func TestLoadRejectsOutOfRangeDBPort(t *testing.T) {
	clearEngineEnv(t)
	defer clearEngineEnv(t)

	os.Setenv("DB_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject an out-of-range DB_PORT")
	}
}

func TestDatabaseConfigDSNWithoutPasswordOmitsPassword(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: 5432, User: "mm", Password: "super-secret", Name: "marketmaker", SSLMode: "disable"}
	dsn := db.DSNWithoutPassword()
	if contains(dsn, "super-secret") {
		t.Fatalf("expected the password to be omitted, got %q", dsn)
	}
	if !contains(dsn, "marketmaker") {
		t.Fatalf("expected dbname to be present, got %q", dsn)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (substr == "" || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
