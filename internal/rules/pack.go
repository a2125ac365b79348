package rules

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"example.com/xmpgate/internal/xmp"
)

// Render selects how a mapping rule writes its target field.
type Render string

const (
	RenderAlt       Render = "alt"
	RenderSeq       Render = "seq"
	RenderBag       Render = "bag"
	RenderTimestamp Render = "timestamp"
)

// SourceNow is the source name of timestamp rules.
const SourceNow = "now"

type Target struct {
	Namespace string `json:"namespace"`
	Prefix    string `json:"prefix"`
	Name      string `json:"name"`
}

type Rule struct {
	RuleId         string `json:"ruleId"`
	Source         string `json:"source"`
	Target         Target `json:"target"`
	Render         Render `json:"render"`
	AllowAttribute bool   `json:"allowAttribute,omitempty"`
	Required       *bool  `json:"required,omitempty"`
	Disabled       bool   `json:"disabled,omitempty"`
	Message        string `json:"message,omitempty"`
}

// IsRequired reports whether the target is written even when the document
// does not have it yet. Rules are required unless they say otherwise.
func (r Rule) IsRequired() bool {
	return r.Required == nil || *r.Required
}

type RulePack struct {
	RulePackId         string `json:"rulePackId"`
	Version            string `json:"version"`
	HierarchySeparator string `json:"hierarchySeparator,omitempty"`
	Rules              []Rule `json:"rules"`
}

// Separator returns the tag path separator, "|" by default.
func (rp RulePack) Separator() string {
	if rp.HierarchySeparator == "" {
		return "|"
	}
	return rp.HierarchySeparator
}

var (
	ErrInvalidRulePack = errors.New("invalid rule pack")
)

//go:embed default.jsonc
var defaultPack []byte

// Default returns the built-in ACDSee to Lightroom mapping.
func Default() RulePack {
	rp, err := ParseRulePack(defaultPack)
	if err != nil {
		panic("rules: embedded default pack: " + err.Error())
	}
	return rp
}

// ParseRulePack decodes a JSONC rule pack and validates its structure.
func ParseRulePack(data []byte) (RulePack, error) {
	var rp RulePack
	if err := json.Unmarshal(jsonc.ToJSON(data), &rp); err != nil {
		return rp, fmt.Errorf("parse rule pack: %w", err)
	}
	if err := rp.Validate(); err != nil {
		return rp, err
	}
	return rp, nil
}

func LoadRulePack(path string) (RulePack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RulePack{}, err
	}
	rp, err := ParseRulePack(b)
	if err != nil {
		return rp, fmt.Errorf("%s: %w", path, err)
	}
	return rp, nil
}

// Validate checks the structure of the pack. Source names are checked by
// Engine.Validate, which knows the registered sources.
func (rp RulePack) Validate() error {
	var problems []string
	if rp.RulePackId == "" || rp.Version == "" {
		problems = append(problems, "missing rulePackId or version")
	}
	ids := make(map[string]bool, len(rp.Rules))
	targets := make(map[xmp.Name]string, len(rp.Rules))
	for i, r := range rp.Rules {
		where := fmt.Sprintf("rule %d", i)
		if r.RuleId != "" {
			where = r.RuleId
		}
		switch {
		case r.RuleId == "":
			problems = append(problems, where+": missing ruleId")
		case ids[r.RuleId]:
			problems = append(problems, where+": duplicate ruleId")
		}
		ids[r.RuleId] = true
		if r.Target.Name == "" || r.Target.Namespace == "" {
			problems = append(problems, where+": target needs namespace and name")
		}
		switch r.Render {
		case RenderAlt, RenderSeq, RenderBag:
			if r.Source == "" || r.Source == SourceNow {
				problems = append(problems, where+": list rules need a data source")
			}
		case RenderTimestamp:
			if r.Source != "" && r.Source != SourceNow {
				problems = append(problems, where+": timestamp rules take no source")
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown render %q", where, r.Render))
		}
		if r.Disabled {
			continue
		}
		key := xmp.Name{Space: r.Target.Namespace, Local: r.Target.Name}
		if other, dup := targets[key]; dup {
			problems = append(problems, fmt.Sprintf("%s: target %s already written by %s", where, key, other))
		}
		targets[key] = where
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRulePack, strings.Join(problems, "; "))
	}
	return nil
}
