package rules

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	repoRulepacksDir = "rulepacks"
	repoConfigFile   = "config.json"
	rulePackFileName = "rulepack.jsonc"
)

var ErrRulePackNotFound = errors.New("rule pack not installed")

// Repository manages installation and discovery of rule packs.
type Repository struct {
	root string
}

// RulePackRef identifies a rule pack by id and version.
type RulePackRef struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
}

func (r RulePackRef) String() string {
	if r.Version == "" {
		return r.RulePackId
	}
	return r.RulePackId + "@" + r.Version
}

// ParseRef splits "id@version". The version may be omitted.
func ParseRef(s string) RulePackRef {
	id, version, _ := strings.Cut(s, "@")
	return RulePackRef{RulePackId: id, Version: version}
}

// InstalledRulePack represents a rule pack stored in the repository.
type InstalledRulePack struct {
	RulePack RulePack
	Dir      string
	Path     string
}

type repoConfig struct {
	Default *RulePackRef `json:"default,omitempty"`
}

// DefaultRepository returns the repository rooted in ~/.xmpgate/rules.
func DefaultRepository() (*Repository, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return OpenRepository(filepath.Join(home, ".xmpgate", "rules"))
}

// OpenRepository creates a Repository rooted at path and ensures the required
// subdirectories exist.
func OpenRepository(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Join(path, repoRulepacksDir), 0o755); err != nil {
		return nil, fmt.Errorf("create rulepacks dir: %w", err)
	}
	return &Repository{root: path}, nil
}

func (r *Repository) Root() string {
	if r == nil {
		return ""
	}
	return r.root
}

// Install validates and stores a rule pack. The source is either a JSONC
// file or a .zip archive holding rulepack.jsonc.
func (r *Repository) Install(path string) (InstalledRulePack, error) {
	var installed InstalledRulePack
	if r == nil {
		return installed, errors.New("nil repository")
	}
	var (
		raw []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		raw, err = readArchive(path)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return installed, err
	}
	rp, err := ParseRulePack(raw)
	if err != nil {
		return installed, err
	}
	if err := NewEngine(rp).Validate(); err != nil {
		return installed, err
	}
	if err := validatePathComponent(rp.RulePackId); err != nil {
		return installed, fmt.Errorf("invalid rule pack id: %w", err)
	}
	if err := validatePathComponent(rp.Version); err != nil {
		return installed, fmt.Errorf("invalid rule pack version: %w", err)
	}
	dir := r.packageDir(rp.RulePackId, rp.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return installed, fmt.Errorf("create package dir: %w", err)
	}
	target := filepath.Join(dir, rulePackFileName)
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return installed, fmt.Errorf("write %s: %w", rulePackFileName, err)
	}
	return InstalledRulePack{RulePack: rp, Dir: dir, Path: target}, nil
}

func readArchive(path string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if filepath.Base(f.Name) != rulePackFileName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rulePackFileName, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", rulePackFileName)
}

// ListInstalled returns the installed rule packs ordered by id and version.
func (r *Repository) ListInstalled() ([]InstalledRulePack, error) {
	if r == nil {
		return nil, errors.New("nil repository")
	}
	base := filepath.Join(r.root, repoRulepacksDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var result []InstalledRulePack
	for _, idEntry := range entries {
		if !idEntry.IsDir() {
			continue
		}
		versionDir := filepath.Join(base, idEntry.Name())
		versions, err := os.ReadDir(versionDir)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if !v.IsDir() {
				continue
			}
			path := filepath.Join(versionDir, v.Name(), rulePackFileName)
			rp, err := LoadRulePack(path)
			if err != nil {
				continue
			}
			result = append(result, InstalledRulePack{
				RulePack: rp,
				Dir:      filepath.Dir(path),
				Path:     path,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RulePack.RulePackId == result[j].RulePack.RulePackId {
			return compareVersions(result[i].RulePack.Version, result[j].RulePack.Version) < 0
		}
		return result[i].RulePack.RulePackId < result[j].RulePack.RulePackId
	})
	return result, nil
}

// Remove deletes an installed pack and clears the default if it pointed there.
func (r *Repository) Remove(ref RulePackRef) error {
	if r == nil {
		return errors.New("nil repository")
	}
	if err := validateRef(ref); err != nil {
		return err
	}
	dir := r.packageDir(ref.RulePackId, ref.Version)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRulePackNotFound, ref)
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	cfg, err := r.loadConfig()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if cfg.Default != nil && *cfg.Default == ref {
		cfg.Default = nil
		return r.saveConfig(cfg)
	}
	return nil
}

// Load returns an installed pack. An empty version selects the latest one.
func (r *Repository) Load(ref RulePackRef) (RulePack, error) {
	if r == nil {
		return RulePack{}, errors.New("nil repository")
	}
	if ref.Version == "" {
		latest, err := r.latestVersionFor(ref.RulePackId)
		if err != nil {
			return RulePack{}, err
		}
		if latest == "" {
			return RulePack{}, fmt.Errorf("%w: %s", ErrRulePackNotFound, ref)
		}
		ref.Version = latest
	}
	if err := validateRef(ref); err != nil {
		return RulePack{}, err
	}
	rp, err := LoadRulePack(filepath.Join(r.packageDir(ref.RulePackId, ref.Version), rulePackFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rp, fmt.Errorf("%w: %s", ErrRulePackNotFound, ref)
		}
		return rp, err
	}
	if rp.RulePackId != ref.RulePackId || rp.Version != ref.Version {
		return rp, errors.New("rule pack metadata does not match requested id/version")
	}
	return rp, nil
}

// Default returns the configured default pack reference.
func (r *Repository) Default() (RulePackRef, bool, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RulePackRef{}, false, nil
		}
		return RulePackRef{}, false, err
	}
	if cfg.Default == nil {
		return RulePackRef{}, false, nil
	}
	return *cfg.Default, true, nil
}

// SetDefault records ref as the default pack. The pack must be installed.
func (r *Repository) SetDefault(ref RulePackRef) error {
	if r == nil {
		return errors.New("nil repository")
	}
	if _, err := r.Load(ref); err != nil {
		return err
	}
	cfg, err := r.loadConfig()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	cfg.Default = &ref
	return r.saveConfig(cfg)
}

// Resolve picks the pack to use: the given reference, else the configured
// default, else the embedded pack.
func (r *Repository) Resolve(ref string) (RulePack, error) {
	if ref != "" {
		return r.Load(ParseRef(ref))
	}
	def, ok, err := r.Default()
	if err != nil {
		return RulePack{}, err
	}
	if !ok {
		return Default(), nil
	}
	return r.Load(def)
}

func (r *Repository) latestVersionFor(id string) (string, error) {
	if err := validatePathComponent(id); err != nil {
		return "", fmt.Errorf("invalid rule pack id: %w", err)
	}
	entries, err := os.ReadDir(filepath.Join(r.root, repoRulepacksDir, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	best := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if best == "" || compareVersions(e.Name(), best) > 0 {
			best = e.Name()
		}
	}
	return best, nil
}

func (r *Repository) packageDir(id, version string) string {
	return filepath.Join(r.root, repoRulepacksDir, id, version)
}

func (r *Repository) loadConfig() (repoConfig, error) {
	var cfg repoConfig
	if r == nil {
		return cfg, errors.New("nil repository")
	}
	data, err := os.ReadFile(filepath.Join(r.root, repoConfigFile))
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (r *Repository) saveConfig(cfg repoConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.root, repoConfigFile), data, 0o644)
}

func validateRef(ref RulePackRef) error {
	if err := validatePathComponent(ref.RulePackId); err != nil {
		return fmt.Errorf("invalid rule pack id: %w", err)
	}
	if err := validatePathComponent(ref.Version); err != nil {
		return fmt.Errorf("invalid rule pack version: %w", err)
	}
	return nil
}

func validatePathComponent(s string) error {
	if s == "" {
		return errors.New("empty string")
	}
	if strings.ContainsRune(s, os.PathSeparator) || strings.Contains(s, "/") {
		return errors.New("contains path separator")
	}
	if s == "." || s == ".." || strings.Contains(s, "..") {
		return errors.New("invalid path component")
	}
	return nil
}

// compareVersions orders dotted numeric versions; non-numeric parts compare
// as zero and ties fall back to string order.
func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	ap := parseVersionParts(a)
	bp := parseVersionParts(b)
	n := max(len(ap), len(bp))
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(ap) {
			ai = ap[i]
		}
		if i < len(bp) {
			bi = bp[i]
		}
		if ai != bi {
			if ai > bi {
				return 1
			}
			return -1
		}
	}
	return strings.Compare(a, b)
}

func parseVersionParts(s string) []int {
	parts := strings.Split(s, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			v = 0
		}
		out = append(out, v)
	}
	return out
}

// RulePackRequest selects a rule pack: a JSONC file, an installed
// "id@version" reference, or the embedded default.
type RulePackRequest struct {
	Path string
	Ref  string
	// Repo is the repository directory used for Ref. A Ref without a
	// repository is an error.
	Repo string
}

// ResolveRulePack loads the pack named by req and validates it.
func ResolveRulePack(req RulePackRequest) (RulePack, error) {
	var (
		rp  RulePack
		err error
	)
	switch {
	case req.Path != "" && req.Ref != "":
		return RulePack{}, errors.New("rule pack path and reference cannot be used together")
	case req.Path != "":
		rp, err = LoadRulePack(req.Path)
	case req.Repo != "":
		var repo *Repository
		if repo, err = OpenRepository(req.Repo); err != nil {
			return RulePack{}, fmt.Errorf("open rule repository: %w", err)
		}
		rp, err = repo.Resolve(req.Ref)
	case req.Ref != "":
		return RulePack{}, fmt.Errorf("rule pack %s: no repository configured", req.Ref)
	default:
		rp = Default()
	}
	if err != nil {
		return RulePack{}, err
	}
	if err := NewEngine(rp).Validate(); err != nil {
		return RulePack{}, fmt.Errorf("rule pack %s: %w", rp.RulePackId, err)
	}
	return rp, nil
}
