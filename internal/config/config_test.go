package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("DAILY_TEXT_LIMIT", "7")
	t.Setenv("DEFAULT_PROMO_CODE", "welcome")
	t.Setenv("REQUEST_TIMEOUT", "90s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Limits.DailyTextLimit != 7 {
		t.Errorf("Limits.DailyTextLimit = %v, want 7", cfg.Limits.DailyTextLimit)
	}
	if cfg.Limits.DefaultPromoCode != "WELCOME" {
		t.Errorf("Limits.DefaultPromoCode = %v, want WELCOME", cfg.Limits.DefaultPromoCode)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 90s", cfg.Server.RequestTimeout)
	}
	if cfg.Analytics.ClickHouse.Enabled() {
		t.Errorf("ClickHouse should be disabled without CLICKHOUSE_HOST")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Limits.DailyTextLimit != 5 {
		t.Errorf("default DailyTextLimit = %v, want 5", cfg.Limits.DailyTextLimit)
	}
	if cfg.Server.RequestTimeout != 4*time.Minute {
		t.Errorf("default RequestTimeout = %v, want 4m", cfg.Server.RequestTimeout)
	}
}

func TestLoadBotConfigs(t *testing.T) {
	t.Setenv("BOTS", "main, kz ,silent")
	t.Setenv("BOT_MAIN_TOKEN", "123:abc")
	t.Setenv("BOT_MAIN_SECRET", "s3cret")
	t.Setenv("BOT_KZ_TOKEN", "456:def")
	t.Setenv("BOT_KZ_DEFAULT_PROMO", "kzfree")

	registry := loadBotConfigs("TRIAL")

	if got := registry.IDs(); len(got) != 2 || got[0] != "kz" || got[1] != "main" {
		t.Fatalf("IDs() = %v, want [kz main]", got)
	}

	main, ok := registry.Lookup("main")
	if !ok {
		t.Fatal("main bot not loaded")
	}
	if main.WebhookSecret != "s3cret" || main.DefaultPromoCode != "TRIAL" {
		t.Errorf("main bot = %+v", main)
	}

	kz, _ := registry.Lookup("kz")
	if kz.DefaultPromoCode != "KZFREE" {
		t.Errorf("kz DefaultPromoCode = %v, want KZFREE", kz.DefaultPromoCode)
	}

	if _, ok := registry.Lookup("silent"); ok {
		t.Error("bot without token should be skipped")
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Database: "nb", User: "u", Password: "p", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/nb?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T)
	}{
		{
			name:  "int valid",
			key:   "TEST_INT",
			value: "200",
			check: func(t *testing.T) {
				if got := getEnvAsInt("TEST_INT", 100); got != 200 {
					t.Errorf("getEnvAsInt() = %v, want 200", got)
				}
			},
		},
		{
			name:  "int invalid falls back",
			key:   "TEST_INT_INVALID",
			value: "invalid",
			check: func(t *testing.T) {
				if got := getEnvAsInt("TEST_INT_INVALID", 100); got != 100 {
					t.Errorf("getEnvAsInt() = %v, want 100", got)
				}
			},
		},
		{
			name:  "float valid",
			key:   "TEST_FLOAT",
			value: "0.5",
			check: func(t *testing.T) {
				if got := getEnvAsFloat("TEST_FLOAT", 1); got != 0.5 {
					t.Errorf("getEnvAsFloat() = %v, want 0.5", got)
				}
			},
		},
		{
			name:  "duration invalid falls back",
			key:   "TEST_DURATION_INVALID",
			value: "soon",
			check: func(t *testing.T) {
				if got := getEnvAsDuration("TEST_DURATION_INVALID", time.Second); got != time.Second {
					t.Errorf("getEnvAsDuration() = %v, want 1s", got)
				}
			},
		},
		{
			name: "string default when unset",
			key:  "",
			check: func(t *testing.T) {
				if got := getEnv("NONEXISTENT_KEY_FOR_TEST", "default"); got != "default" {
					t.Errorf("getEnv() = %v, want default", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != "" {
				t.Setenv(tt.key, tt.value)
			}
			tt.check(t)
		})
	}
}
