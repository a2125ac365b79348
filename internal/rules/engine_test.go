package rules

import (
	"errors"
	"reflect"
	"testing"

	"example.com/xmpgate/internal/acdsee"
	"example.com/xmpgate/internal/xmp"
)

func strp(s string) *string { return &s }

func TestDefaultPackIsValid(t *testing.T) {
	rp := Default()
	if rp.RulePackId != "acdsee-lightroom" || len(rp.Rules) != 6 {
		t.Fatalf("Default = %s@%s with %d rules", rp.RulePackId, rp.Version, len(rp.Rules))
	}
	if err := NewEngine(rp).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBuildDefaultMapping(t *testing.T) {
	data := &acdsee.Data{
		Caption:    strp("cat"),
		Author:     strp("Ana"),
		Categories: acdsee.NewTagHierarchy([]string{"Animals", "Cats"}, []string{"Home"}),
		Keywords:   []string{"pet"},
	}
	got, err := NewEngine(Default()).Build(data)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []xmp.Rule{
		xmp.DCTitle("cat"),
		xmp.DCCreator("Ana"),
		xmp.LRHierarchicalSubject([][]string{{"Animals", "Cats"}, {"Home"}}, "|"),
		xmp.DCSubject([]string{"pet"}),
		xmp.MetadataDate(),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Build =\n%+v\nwant\n%+v", got, want)
	}
}

func TestBuildNoData(t *testing.T) {
	_, err := NewEngine(Default()).Build(&acdsee.Data{Rating: new(int)})
	if !errors.Is(err, ErrNoAcdData) {
		t.Fatalf("Build error = %v, want ErrNoAcdData", err)
	}
}

func TestCustomSourceAndSeparator(t *testing.T) {
	rp := RulePack{
		RulePackId:         "custom",
		Version:            "2",
		HierarchySeparator: "/",
		Rules: []Rule{
			{RuleId: "R1", Source: "categories", Render: RenderBag, Target: Target{Namespace: xmp.NSLR, Prefix: "lr", Name: "hierarchicalSubject"}},
			{RuleId: "R2", Source: "label", Render: RenderAlt, Target: Target{Namespace: xmp.NSXMP, Prefix: "xmp", Name: "Label"}, Required: new(bool)},
			{RuleId: "R3", Source: "caption", Render: RenderAlt, Disabled: true, Target: Target{Namespace: xmp.NSDC, Prefix: "dc", Name: "title"}},
		},
	}
	e := NewEngine(rp)
	if err := e.Validate(); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("Validate error = %v, want ErrUnknownSource", err)
	}
	e.RegisterSource("label", func(d *acdsee.Data, _ RulePack) ([]string, bool) {
		if d.Tagged == nil || !*d.Tagged {
			return nil, false
		}
		return []string{"Tagged"}, true
	})
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	wantSources := []string{"author", "caption", "categories", "collections", "datetime", "keywords", "label", "notes", "rating"}
	if got := e.Sources(); !reflect.DeepEqual(got, wantSources) {
		t.Fatalf("Sources = %q, want %q", got, wantSources)
	}
	tagged := true
	mappings, err := e.Eval(&acdsee.Data{
		Caption:    strp("ignored"),
		Tagged:     &tagged,
		Categories: acdsee.NewTagHierarchy([]string{"A", "B"}),
	})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("Eval returned %d mappings, want 2", len(mappings))
	}
	if !reflect.DeepEqual(mappings[0].Values, []string{"A/B"}) {
		t.Fatalf("categories = %q", mappings[0].Values)
	}
	rules, err := e.Build(&acdsee.Data{Tagged: &tagged})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rules) != 1 || rules[0].Local != "Label" || rules[0].Required {
		t.Fatalf("Build = %+v", rules)
	}
}

func TestRulePackValidate(t *testing.T) {
	target := Target{Namespace: xmp.NSDC, Prefix: "dc", Name: "title"}
	tests := []struct {
		name string
		rp   RulePack
	}{
		{name: "missing id", rp: RulePack{Version: "1"}},
		{name: "duplicate rule id", rp: RulePack{RulePackId: "p", Version: "1", Rules: []Rule{
			{RuleId: "A", Source: "caption", Render: RenderAlt, Target: target},
			{RuleId: "A", Source: "notes", Render: RenderAlt, Target: Target{Namespace: xmp.NSDC, Name: "description"}},
		}}},
		{name: "duplicate target", rp: RulePack{RulePackId: "p", Version: "1", Rules: []Rule{
			{RuleId: "A", Source: "caption", Render: RenderAlt, Target: target},
			{RuleId: "B", Source: "notes", Render: RenderAlt, Target: target},
		}}},
		{name: "unknown render", rp: RulePack{RulePackId: "p", Version: "1", Rules: []Rule{
			{RuleId: "A", Source: "caption", Render: "struct", Target: target},
		}}},
		{name: "timestamp with source", rp: RulePack{RulePackId: "p", Version: "1", Rules: []Rule{
			{RuleId: "A", Source: "caption", Render: RenderTimestamp, Target: target},
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.rp.Validate(); !errors.Is(err, ErrInvalidRulePack) {
				t.Fatalf("Validate error = %v, want ErrInvalidRulePack", err)
			}
		})
	}
}

func TestParseRulePackJSONC(t *testing.T) {
	src := []byte(`{
		// comment
		"rulePackId": "p", "version": "1.2",
		"rules": [
			{"ruleId": "A", "source": "caption", "render": "alt",
			 "target": {"namespace": "http://purl.org/dc/elements/1.1/", "prefix": "dc", "name": "title"}}, /* trailing */
		],
	}`)
	rp, err := ParseRulePack(src)
	if err != nil {
		t.Fatalf("ParseRulePack: %v", err)
	}
	if rp.Separator() != "|" || len(rp.Rules) != 1 || !rp.Rules[0].IsRequired() {
		t.Fatalf("ParseRulePack = %+v", rp)
	}
}
