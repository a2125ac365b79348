package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/xmpgate/internal/backup"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type backupConfig struct {
	Mode        string `yaml:"mode"`
	Compression string `yaml:"compression"`
	Dir         string `yaml:"dir"`
}

type config struct {
	Port        int          `yaml:"port"`
	StorageDir  string       `yaml:"storageDir"`
	Database    string       `yaml:"database"`
	RulePack    string       `yaml:"rulePack"`
	RuleRepo    string       `yaml:"ruleRepo"`
	Concurrency int          `yaml:"concurrency"`
	AuditLog    string       `yaml:"auditLog"`
	Backup      backupConfig `yaml:"backup"`
	Logs        logConfig    `yaml:"logs"`
}

// loadConfig reads the daemon configuration. Relative paths are resolved
// against the config file's directory when they exist there.
func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.StorageDir, "jobs.db")
	}
	if strings.HasSuffix(strings.ToLower(cfg.RulePack), ".jsonc") || strings.HasSuffix(strings.ToLower(cfg.RulePack), ".json") {
		cfg.RulePack = resolvePath(cfg.RulePack)
	}
	cfg.RuleRepo = resolvePath(cfg.RuleRepo)
	cfg.AuditLog = resolvePath(cfg.AuditLog)
	cfg.Backup.Dir = resolvePath(cfg.Backup.Dir)
	if _, err := cfg.backupOptions(); err != nil {
		return cfg, err
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func (c config) backupOptions() (backup.Options, error) {
	mode, err := backup.ParseMode(c.Backup.Mode)
	if err != nil {
		return backup.Options{}, err
	}
	compression, err := backup.ParseCompression(c.Backup.Compression)
	if err != nil {
		return backup.Options{}, err
	}
	return backup.Options{Mode: mode, Compression: compression, Dir: c.Backup.Dir}, nil
}
