// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parsr.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Setenv("TEST_PARSR_PASS", "s3cret")

	path := writeTestYAML(t, `
links_file: in.txt
credentials:
  file: creds.json
  passphrase_env: TEST_PARSR_PASS
vk:
  api_version: "5.131"
telegram:
  session_file: tg.json
  delay: 1s
ok:
  delay: 3s
  renderer: chrome
http_timeout: 20s
parallel: true
database:
  driver: sqlite
  dsn: runs.db
listen: ":9090"
schedule: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LinksFile != "in.txt" || cfg.Credentials.File != "creds.json" {
		t.Errorf("files = %q, %q", cfg.LinksFile, cfg.Credentials.File)
	}
	if cfg.Credentials.Passphrase != "s3cret" {
		t.Errorf("passphrase = %q", cfg.Credentials.Passphrase)
	}
	if cfg.VK.APIVersion != "5.131" || cfg.VK.BaseURL != DefaultVKBaseURL {
		t.Errorf("vk = %+v", cfg.VK)
	}
	if cfg.Telegram.Delay.Duration != time.Second || cfg.OK.Delay.Duration != 3*time.Second {
		t.Errorf("delays = %v, %v", cfg.Telegram.Delay, cfg.OK.Delay)
	}
	if cfg.OK.Renderer != RendererChrome || !cfg.Parallel {
		t.Errorf("ok/parallel = %+v, %v", cfg.OK, cfg.Parallel)
	}
	if cfg.HTTPTimeout.Duration != 20*time.Second {
		t.Errorf("http_timeout = %v", cfg.HTTPTimeout)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.DSN != "runs.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Schedule.Duration != time.Hour {
		t.Errorf("schedule = %v", cfg.Schedule)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LinksFile != DefaultLinksFile || cfg.Credentials.File != DefaultCredentialsFile {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Telegram.Delay.Duration != DefaultTelegramDelay || cfg.OK.Delay.Duration != DefaultOKDelay {
		t.Errorf("default delays = %v, %v", cfg.Telegram.Delay, cfg.OK.Delay)
	}
	if cfg.Database.Driver != "" {
		t.Errorf("history store enabled by default: %+v", cfg.Database)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PARSR_LINKS_FILE", "env-links.txt")
	t.Setenv("PARSR_PARALLEL", "true")
	t.Setenv("OK_RENDERER", "chrome")

	cfg, err := Load(writeTestYAML(t, "links_file: file-links.txt\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LinksFile != "env-links.txt" {
		t.Errorf("LinksFile = %q, want env value", cfg.LinksFile)
	}
	if !cfg.Parallel || cfg.OK.Renderer != RendererChrome {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadPostgresFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_DB", "parsr")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_HOST", "localhost")

	cfg, err := Load(writeTestYAML(t, "database:\n  driver: postgres\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := "postgres://u:p@localhost:5432/parsr?sslmode=disable"
	if cfg.Database.DSN != want {
		t.Errorf("DSN = %q, want %q", cfg.Database.DSN, want)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad renderer", "ok:\n  renderer: lynx\n", "ok.renderer"},
		{"bad driver", "database:\n  driver: mysql\n  dsn: x\n", "unsupported database driver"},
		{"sqlite without dsn", "database:\n  driver: sqlite\n", "database.dsn"},
		{"negative delay", "ok:\n  delay: -1s\n", "negative"},
		{"zero timeout", "http_timeout: 0s\n", "http_timeout"},
		{"discord half configured", "discord:\n  token: abc\n", "discord"},
		{"bad duration", "telegram:\n  delay: soon\n", "parse duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTestYAML(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
