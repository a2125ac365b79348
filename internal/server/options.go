package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"example.com/xmpgate/internal/backup"
	"example.com/xmpgate/internal/rules"
	"example.com/xmpgate/internal/store"
)

// Options configures server creation.
type Options struct {
	StorageDir string
	// RulePack is either a path to a .jsonc rule pack or an installed
	// "id@version" reference. Empty selects the repository default, then the
	// built-in pack.
	RulePack    string
	RuleRepo    string
	Concurrency int
	Backup      backup.Options
	// AuditLog receives one patch entry per written file when set.
	AuditLog string
	Store    *store.Store
}

// loadRulePack resolves opts.RulePack to a validated engine.
func loadRulePack(opts Options) (*rules.Engine, error) {
	req := rules.RulePackRequest{Repo: opts.RuleRepo}
	ref := strings.TrimSpace(opts.RulePack)
	if ref != "" && isRulePackFile(ref) {
		abs, err := filepath.Abs(ref)
		if err != nil {
			return nil, fmt.Errorf("rule pack path: %w", err)
		}
		req.Path = abs
	} else {
		req.Ref = ref
	}
	rp, err := rules.ResolveRulePack(req)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(rp), nil
}

func isRulePackFile(ref string) bool {
	lower := strings.ToLower(ref)
	if strings.HasSuffix(lower, ".jsonc") || strings.HasSuffix(lower, ".json") {
		return true
	}
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir()
}
