package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"example.com/xmpgate/internal/rules"
)

func writePack(t *testing.T, dir, name, id, version string) string {
	t.Helper()
	rp := rules.Default()
	rp.RulePackId = id
	rp.Version = version
	raw, err := json.MarshalIndent(rp, "", "  ")
	if err != nil {
		t.Fatalf("marshal pack: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile pack: %v", err)
	}
	return path
}

func TestLoadRulePackDefault(t *testing.T) {
	engine, err := loadRulePack(Options{})
	if err != nil {
		t.Fatalf("loadRulePack: %v", err)
	}
	if got := engine.RulePack().RulePackId; got != rules.Default().RulePackId {
		t.Fatalf("RulePackId = %q, want %q", got, rules.Default().RulePackId)
	}
}

func TestLoadRulePackFile(t *testing.T) {
	path := writePack(t, t.TempDir(), "custom.jsonc", "custom", "0.1.0")
	engine, err := loadRulePack(Options{RulePack: path})
	if err != nil {
		t.Fatalf("loadRulePack: %v", err)
	}
	if got := engine.RulePack().RulePackId; got != "custom" {
		t.Fatalf("RulePackId = %q, want custom", got)
	}
}

func TestLoadRulePackRepository(t *testing.T) {
	root := t.TempDir()
	repoDir := filepath.Join(root, "repo")
	repo, err := rules.OpenRepository(repoDir)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	src := writePack(t, root, "studio.jsonc", "studio", "2.0.0")
	if _, err := repo.Install(src); err != nil {
		t.Fatalf("Install: %v", err)
	}

	engine, err := loadRulePack(Options{RulePack: "studio@2.0.0", RuleRepo: repoDir})
	if err != nil {
		t.Fatalf("loadRulePack: %v", err)
	}
	rp := engine.RulePack()
	if rp.RulePackId != "studio" || rp.Version != "2.0.0" {
		t.Fatalf("resolved %s@%s, want studio@2.0.0", rp.RulePackId, rp.Version)
	}

	if _, err := loadRulePack(Options{RulePack: "missing@1.0.0", RuleRepo: repoDir}); err == nil {
		t.Fatalf("expected error for a pack that is not installed")
	}
}

func TestLoadRulePackRefWithoutRepository(t *testing.T) {
	if _, err := loadRulePack(Options{RulePack: "studio@2.0.0"}); err == nil {
		t.Fatalf("expected error when no repository is configured")
	}
}
