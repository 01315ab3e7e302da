package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVER_HOST", "PORT", "GIN_MODE", "LOG_LEVEL", "DB_DRIVER", "DB_DSN", "JWT_SECRET",
		"AI_PROVIDER", "GOOGLE_AI_KEY", "AI_API_KEY", "AI_BASE_URL", "AI_MODEL",
		"LDAP_ENABLED", "LDAP_HOST", "ALLOWED_ORIGINS", "REDIS_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Server.Port)
	}
	if cfg.AI.Provider != "gemini" || cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected AI defaults %+v", cfg.AI)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
	if GlobalConfig != cfg {
		t.Error("Load should set GlobalConfig")
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9000"
database:
  driver: postgres
  dsn: "host=db user=cocode"
realtime:
  allowed_origins: ["http://localhost:5173"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "3000")
	t.Setenv("GOOGLE_AI_KEY", "g-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "3000" {
		t.Errorf("env PORT should win, got %q", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "host=db user=cocode" {
		t.Errorf("unexpected database section %+v", cfg.Database)
	}
	if len(cfg.Realtime.AllowedOrigins) != 1 || cfg.Realtime.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("unexpected origins %v", cfg.Realtime.AllowedOrigins)
	}
	if cfg.Realtime.SendBuffer != 256 {
		t.Errorf("unset keys keep defaults, got send buffer %d", cfg.Realtime.SendBuffer)
	}
	if cfg.AI.APIKey != "g-key" {
		t.Errorf("expected GOOGLE_AI_KEY to set the api key, got %q", cfg.AI.APIKey)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestGoogleKeyIgnoredForOtherProviders(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("GOOGLE_AI_KEY", "g-key")

	cfg := DefaultConfig()
	cfg.overrideFromEnv()
	if cfg.AI.APIKey != "" {
		t.Errorf("expected no api key, got %q", cfg.AI.APIKey)
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url      string
		addr     string
		password string
		db       int
	}{
		{"redis://localhost:6379", "localhost:6379", "", 0},
		{"redis://:secret@redis:6379/2", "redis:6379", "secret", 2},
		{"redis://default:pw@10.0.0.1:6380/0", "10.0.0.1:6380", "pw", 0},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.parseRedisURL(tt.url)
			if cfg.Redis.Addr != tt.addr || cfg.Redis.Password != tt.password || cfg.Redis.DB != tt.db {
				t.Errorf("got %+v", cfg.Redis)
			}
		})
	}
}

func TestRedisURLEnablesRedis(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg := DefaultConfig()
	cfg.overrideFromEnv()
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" || cfg.Redis.DB != 1 {
		t.Errorf("unexpected redis section %+v", cfg.Redis)
	}
}

func TestLoadEnvIgnoresMissingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("COCODE_TEST_VALUE=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COCODE_TEST_VALUE", "")
	os.Unsetenv("COCODE_TEST_VALUE")

	LoadEnv(filepath.Join(dir, "nope.env"), path)
	if got := os.Getenv("COCODE_TEST_VALUE"); got != "from-dotenv" {
		t.Errorf("expected value from .env, got %q", got)
	}
}
