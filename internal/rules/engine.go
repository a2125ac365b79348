package rules

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"example.com/xmpgate/internal/acdsee"
	"example.com/xmpgate/internal/xmp"
)

var (
	// ErrNoAcdData means no rule in the pack had a value to write.
	ErrNoAcdData     = errors.New("no acdsee data to convert")
	ErrUnknownSource = errors.New("unknown rule source")
)

// SourceFunc extracts the values a rule writes. It reports false when the
// field is absent.
type SourceFunc func(d *acdsee.Data, rp RulePack) ([]string, bool)

// Mapping is one rule resolved against a file's data.
type Mapping struct {
	RuleId  string   `json:"ruleId"`
	Target  xmp.Name `json:"target"`
	Render  Render   `json:"render"`
	Values  []string `json:"values,omitempty"`
	Message string   `json:"message,omitempty"`
}

type Engine struct {
	rulePack RulePack
	registry map[string]SourceFunc
}

// NewEngine returns an engine for rp with the built-in sources registered.
func NewEngine(rp RulePack) *Engine {
	e := &Engine{
		rulePack: rp,
		registry: make(map[string]SourceFunc),
	}
	RegisterBuiltins(e)
	return e
}

func (e *Engine) RegisterSource(name string, f SourceFunc) {
	e.registry[name] = f
}

func (e *Engine) RulePack() RulePack { return e.rulePack }

// Sources returns the registered source names, sorted.
func (e *Engine) Sources() []string {
	out := make([]string, 0, len(e.registry))
	for name := range e.registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks the pack structure and that every enabled rule names a
// registered source.
func (e *Engine) Validate() error {
	if err := e.rulePack.Validate(); err != nil {
		return err
	}
	for _, r := range e.rulePack.Rules {
		if r.Disabled || r.Render == RenderTimestamp {
			continue
		}
		if _, ok := e.registry[r.Source]; !ok {
			return fmt.Errorf("%w %q in %s", ErrUnknownSource, r.Source, r.RuleId)
		}
	}
	return nil
}

// Eval resolves every enabled rule against d. Data rules without a value are
// left out; timestamp rules always come last.
func (e *Engine) Eval(d *acdsee.Data) ([]Mapping, error) {
	var data, stamps []Mapping
	for _, r := range e.rulePack.Rules {
		if r.Disabled {
			continue
		}
		m := Mapping{
			RuleId:  r.RuleId,
			Target:  xmp.Name{Space: r.Target.Namespace, Local: r.Target.Name, Prefix: r.Target.Prefix},
			Render:  r.Render,
			Message: r.Message,
		}
		if r.Render == RenderTimestamp {
			stamps = append(stamps, m)
			continue
		}
		fn, ok := e.registry[r.Source]
		if !ok {
			return nil, fmt.Errorf("%w %q in %s", ErrUnknownSource, r.Source, r.RuleId)
		}
		values, ok := fn(d, e.rulePack)
		if !ok {
			continue
		}
		m.Values = values
		data = append(data, m)
	}
	return append(data, stamps...), nil
}

// Build turns d into rewrite rules. ErrNoAcdData is returned when no data
// rule produced a value; timestamps alone are never worth a rewrite.
func (e *Engine) Build(d *acdsee.Data) ([]xmp.Rule, error) {
	mappings, err := e.Eval(d)
	if err != nil {
		return nil, err
	}
	byId := make(map[string]Rule, len(e.rulePack.Rules))
	for _, r := range e.rulePack.Rules {
		byId[r.RuleId] = r
	}
	out := make([]xmp.Rule, 0, len(mappings))
	dataRules := 0
	for _, m := range mappings {
		r := byId[m.RuleId]
		rule := xmp.Rule{
			Space:          m.Target.Space,
			Local:          m.Target.Local,
			Prefix:         m.Target.Prefix,
			AllowAttribute: r.AllowAttribute,
			Required:       r.IsRequired(),
		}
		switch m.Render {
		case RenderTimestamp:
			rule.Action = xmp.SetTimestamp()
		case RenderAlt:
			rule.Action = xmp.SetList(xmp.Alt, m.Values)
		case RenderSeq:
			rule.Action = xmp.SetList(xmp.Seq, m.Values)
		case RenderBag:
			rule.Action = xmp.SetList(xmp.Bag, m.Values)
		}
		if m.Render != RenderTimestamp {
			dataRules++
		}
		out = append(out, rule)
	}
	if dataRules == 0 {
		return nil, ErrNoAcdData
	}
	return out, nil
}

func scalar(p *string) ([]string, bool) {
	if p == nil {
		return nil, false
	}
	return []string{*p}, true
}

// RegisterBuiltins registers the sources for every ACDSee field.
func RegisterBuiltins(e *Engine) {
	e.RegisterSource("caption", func(d *acdsee.Data, _ RulePack) ([]string, bool) { return scalar(d.Caption) })
	e.RegisterSource("author", func(d *acdsee.Data, _ RulePack) ([]string, bool) { return scalar(d.Author) })
	e.RegisterSource("notes", func(d *acdsee.Data, _ RulePack) ([]string, bool) { return scalar(d.Notes) })
	e.RegisterSource("collections", func(d *acdsee.Data, _ RulePack) ([]string, bool) { return scalar(d.Collections) })
	e.RegisterSource("keywords", func(d *acdsee.Data, _ RulePack) ([]string, bool) {
		if len(d.Keywords) == 0 {
			return nil, false
		}
		return append([]string(nil), d.Keywords...), true
	})
	e.RegisterSource("categories", func(d *acdsee.Data, rp RulePack) ([]string, bool) {
		if d.Categories == nil {
			return nil, false
		}
		return d.Categories.Joined(rp.Separator()), true
	})
	e.RegisterSource("rating", func(d *acdsee.Data, _ RulePack) ([]string, bool) {
		if d.Rating == nil {
			return nil, false
		}
		return []string{strconv.Itoa(*d.Rating)}, true
	})
	e.RegisterSource("datetime", func(d *acdsee.Data, _ RulePack) ([]string, bool) {
		if d.DateTime == nil {
			return nil, false
		}
		return []string{d.DateTime.Format(acdsee.DateTimeLayout)}, true
	})
}
