package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"example.com/xmpgate/internal/backup"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, t.TempDir(), "storageDir: /srv/xmpd\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Concurrency != runtime.NumCPU() {
		t.Fatalf("Concurrency = %d, want %d", cfg.Concurrency, runtime.NumCPU())
	}
	if want := filepath.Join("/srv/xmpd", "jobs.db"); cfg.Database != want {
		t.Fatalf("Database = %q, want %q", cfg.Database, want)
	}
	if want := filepath.Join("/srv/xmpd", "logs"); cfg.Logs.Directory != want {
		t.Fatalf("Logs.Directory = %q, want %q", cfg.Logs.Directory, want)
	}
	if cfg.Logs.MaxSizeMB != 25 || cfg.Logs.MaxAgeDays != 7 || cfg.Logs.MaxBackups != 5 {
		t.Fatalf("Logs = %+v", cfg.Logs)
	}
	opts, err := cfg.backupOptions()
	if err != nil {
		t.Fatalf("backupOptions: %v", err)
	}
	if opts.Mode != backup.ModeKeep || opts.Compression != backup.CompressionNone {
		t.Fatalf("backup = %+v", opts)
	}
}

func TestLoadConfigResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "studio.jsonc"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile pack: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "rules"), 0o755); err != nil {
		t.Fatalf("MkdirAll rules: %v", err)
	}
	path := writeConfig(t, dir, `port: 9090
storageDir: /srv/xmpd
rulePack: studio.jsonc
ruleRepo: rules
backup:
  mode: overwrite
  compression: zstd
logs:
  compress: true
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("Port = %d, want 9090", cfg.Port)
	}
	if want := filepath.Join(dir, "studio.jsonc"); cfg.RulePack != want {
		t.Fatalf("RulePack = %q, want %q", cfg.RulePack, want)
	}
	if want := filepath.Join(dir, "rules"); cfg.RuleRepo != want {
		t.Fatalf("RuleRepo = %q, want %q", cfg.RuleRepo, want)
	}
	opts, err := cfg.backupOptions()
	if err != nil {
		t.Fatalf("backupOptions: %v", err)
	}
	if opts.Mode != backup.ModeOverwrite || opts.Compression != backup.CompressionZstd {
		t.Fatalf("backup = %+v", opts)
	}
	if !cfg.Logs.Compress {
		t.Fatalf("Logs.Compress not decoded")
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: "porrt: 1\n"},
		{name: "bad backup mode", body: "backup:\n  mode: sometimes\n"},
		{name: "bad compression", body: "backup:\n  compression: rar\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, t.TempDir(), tc.body)); err == nil {
				t.Fatalf("loadConfig accepted %q", tc.body)
			}
		})
	}
}
