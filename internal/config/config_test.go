package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	if err := os.Setenv("POLICY_PORT", "9123"); err != nil {
		t.Fatalf("Failed to set POLICY_PORT: %v", err)
	}
	if err := os.Setenv("DATABASE_URL", "postgres://test@testhost/db"); err != nil {
		t.Fatalf("Failed to set DATABASE_URL: %v", err)
	}
	if err := os.Setenv("DB_TIMEOUT", "10s"); err != nil {
		t.Fatalf("Failed to set DB_TIMEOUT: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("POLICY_PORT")
		_ = os.Unsetenv("DATABASE_URL")
		_ = os.Unsetenv("DB_TIMEOUT")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Policy.Port != "9123" {
		t.Errorf("Policy.Port = %v, want %v", cfg.Policy.Port, "9123")
	}

	if cfg.Database.PostgresURL != "postgres://test@testhost/db" {
		t.Errorf("Database.PostgresURL = %v, want %v", cfg.Database.PostgresURL, "postgres://test@testhost/db")
	}

	if cfg.Database.Timeout != 10*time.Second {
		t.Errorf("Database.Timeout = %v, want %v", cfg.Database.Timeout, 10*time.Second)
	}
}

func TestLoadConfigRejectsUnknownPreset(t *testing.T) {
	if err := os.Setenv("FEATURE_PRESET", "ultra"); err != nil {
		t.Fatalf("Failed to set FEATURE_PRESET: %v", err)
	}
	defer func() { _ = os.Unsetenv("FEATURE_PRESET") }()

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() expected error for unknown preset, got nil")
	}
}

func TestLoadConfigRejectsBadVectorDim(t *testing.T) {
	if err := os.Setenv("VECTOR_DIM", "32"); err != nil {
		t.Fatalf("Failed to set VECTOR_DIM: %v", err)
	}
	defer func() { _ = os.Unsetenv("VECTOR_DIM") }()

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() expected error for out-of-range dimension, got nil")
	}
}

func TestLoadConfigClampsBatchSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "below lower bound", value: "10", want: 1000},
		{name: "above upper bound", value: "50000", want: 10000},
		{name: "within bounds", value: "2000", want: 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.Setenv("SNAPSHOT_BATCH_SIZE", tt.value); err != nil {
				t.Fatalf("Failed to set SNAPSHOT_BATCH_SIZE: %v", err)
			}
			defer func() { _ = os.Unsetenv("SNAPSHOT_BATCH_SIZE") }()

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Ingest.BatchSize != tt.want {
				t.Errorf("Ingest.BatchSize = %v, want %v", cfg.Ingest.BatchSize, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{name: "valid integer", envValue: "42", defaultValue: 7, want: 42},
		{name: "invalid integer falls back", envValue: "abc", defaultValue: 7, want: 7},
		{name: "unset falls back", envValue: "", defaultValue: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv("TEST_INT_KEY", tt.envValue); err != nil {
					t.Fatalf("Failed to set TEST_INT_KEY: %v", err)
				}
				defer func() { _ = os.Unsetenv("TEST_INT_KEY") }()
			}

			if got := getEnvAsInt("TEST_INT_KEY", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}
