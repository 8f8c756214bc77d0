package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaultsFileEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	file := `
database_url: postgres://file/db
http_port: 9000
flush_period: 30s
secret_code_max_attempts: 5
kafka_brokers: [k1:9092]
`
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("SIGNUP_IP_BLOCK_PERIOD", "2h")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/db" || cfg.DatabaseReplicaURL != cfg.DatabaseURL {
		t.Fatalf("unexpected database urls %q, %q", cfg.DatabaseURL, cfg.DatabaseReplicaURL)
	}
	if cfg.HTTPPort != 9100 {
		t.Fatalf("environment must override the file, got %d", cfg.HTTPPort)
	}
	if cfg.FlushPeriod != 30*time.Second || cfg.SecretCodeMaxAttempts != 5 {
		t.Fatalf("file values not applied: %v, %d", cfg.FlushPeriod, cfg.SecretCodeMaxAttempts)
	}
	if cfg.SignupIPBlockPeriod != 2*time.Hour {
		t.Fatalf("unexpected block period %v", cfg.SignupIPBlockPeriod)
	}
	if !slices.Equal(cfg.KafkaBrokers, []string{"a:9092", "b:9092"}) {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.PasswordMinLength != 12 || cfg.APIUserIDFieldName != "userId" || cfg.LogLevel != "warn" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.LoginHistoryExpiration() != 92*24*time.Hour {
		t.Fatalf("unexpected history expiration %v", cfg.LoginHistoryExpiration())
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected an error without a database url")
	}

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PASSWORD_MIN_LENGTH", "20")
	t.Setenv("PASSWORD_MAX_LENGTH", "10")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for inverted password bounds")
	}

	t.Setenv("PASSWORD_MAX_LENGTH", "64")
	t.Setenv("DATABASE_REPLICA_URL", "postgres://replica/db")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseReplicaURL != "postgres://replica/db" {
		t.Fatalf("unexpected replica url %q", cfg.DatabaseReplicaURL)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("shown", "module", "bootstrap")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"module":"bootstrap"`) {
		t.Fatalf("unexpected log output %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "bogus", "text").Info("below warn")
	if buf.Len() != 0 {
		t.Fatalf("unknown levels must fall back to warn, got %q", buf.String())
	}
	if !slices.Contains([]string{"json", "text"}, defaultConfig().LogFormat) {
		t.Fatal("default log format must be valid")
	}
}
