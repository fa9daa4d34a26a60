package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "BOARDSTORE_DATA_DIR=/from/dotenv\nBOARDSTORE_WIDTH=640\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("BOARDSTORE_DATA_DIR")
		os.Unsetenv("BOARDSTORE_WIDTH")
	})

	t.Setenv("BOARDSTORE_HTTP_PORT", "8181")
	t.Setenv("BOARDSTORE_LOG_LEVEL", "debug")
	t.Setenv("DOMAINS", "https://a.example, https://b.example")

	cfg, err := Load(envFile, []string{"-http-port", "9191", "-height", "480"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/from/dotenv" || cfg.Width != 640 {
		t.Errorf(".env values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected env log level, got %q", cfg.LogLevel)
	}
	if cfg.HTTPPort != 9191 {
		t.Errorf("Expected flag to override env, got %d", cfg.HTTPPort)
	}
	if cfg.Height != 480 {
		t.Errorf("Expected flag height, got %d", cfg.Height)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("Origins = %v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env"), nil); err != nil {
		t.Fatalf("Missing .env should be ignored: %v", err)
	}
}

func TestInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"bad port", []string{"-http-port", "70000"}, nil},
		{"no http port", []string{"-http-port", "0"}, nil},
		{"zero width", []string{"-width", "0"}, nil},
		{"huge height", []string{"-height", "100000"}, nil},
		{"bad color", []string{"-background", "chartreuse"}, nil},
		{"negative rate", []string{"-rate-limit", "-1"}, nil},
		{"bad env int", nil, map[string]string{"BOARDSTORE_GRPC_PORT": "fifty"}},
		{"bad env bool", nil, map[string]string{"BOARDSTORE_LOG_PRETTY": "sometimes"}},
		{"bad proxy flag", []string{"-trusted-proxies", "10.0.0.0/33"}, nil},
		{"bad proxy env", nil, map[string]string{"BOARDSTORE_TRUSTED_PROXIES": "gateway"}},
		{"unknown flag", []string{"-nope"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load("", tt.args); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestBurstDefaultsToOne(t *testing.T) {
	cfg, err := Load("", []string{"-rate-limit", "5", "-rate-burst", "0"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateBurst != 1 {
		t.Errorf("Expected burst 1, got %d", cfg.RateBurst)
	}
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("BOARDSTORE_TRUSTED_PROXIES", "192.168.1.1")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []netip.Prefix{netip.MustParsePrefix("192.168.1.1/32")}
	if !reflect.DeepEqual(cfg.TrustedProxies, want) {
		t.Errorf("TrustedProxies = %v, want %v", cfg.TrustedProxies, want)
	}

	cfg, err = Load("", []string{"-trusted-proxies", "10.1.2.3/8, ::1"})
	if err != nil {
		t.Fatal(err)
	}
	want = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	if !reflect.DeepEqual(cfg.TrustedProxies, want) {
		t.Errorf("TrustedProxies = %v, want %v", cfg.TrustedProxies, want)
	}
}
