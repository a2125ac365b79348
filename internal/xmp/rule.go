package xmp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the format written by timestamp actions.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// ErrUnsupported is returned when an action cannot render in the requested
// position.
var ErrUnsupported = errors.New("attributes are not supported by this rule")

// ListKind selects the RDF container used by list actions.
type ListKind string

const (
	Seq ListKind = "Seq"
	Alt ListKind = "Alt"
	Bag ListKind = "Bag"
)

// Valid reports whether k names an RDF container.
func (k ListKind) Valid() bool {
	return k == Seq || k == Alt || k == Bag
}

// ActionKind enumerates rewrite actions.
type ActionKind int

const (
	ActionTimestamp ActionKind = iota
	ActionList
)

// Action is the replacement applied to a matched field.
type Action struct {
	Kind   ActionKind
	List   ListKind
	Values []string
}

// SetTimestamp replaces the field with the current time.
func SetTimestamp() Action {
	return Action{Kind: ActionTimestamp}
}

// SetList replaces the field with an RDF container holding values.
func SetList(kind ListKind, values []string) Action {
	return Action{Kind: ActionList, List: kind, Values: append([]string(nil), values...)}
}

// Rule maps a field identity to an Action. Key identity is (Space, Local).
type Rule struct {
	Space          string
	Local          string
	Prefix         string
	AllowAttribute bool
	Required       bool
	Action         Action
}

// Name returns the element name written for the rule when the input does not
// provide one.
func (r Rule) Name() Name {
	if r.Space == "" {
		return Name{Local: r.Local}
	}
	return Name{Space: r.Space, Local: r.Local, Prefix: r.Prefix}
}

// Key returns the rule identity.
func (r Rule) Key() Name {
	return Name{Space: r.Space, Local: r.Local}
}

// Matches reports whether n has the rule's identity.
func (r Rule) Matches(n Name) bool {
	return n.Space == r.Space && n.Local == r.Local
}

func (r Rule) String() string {
	if r.Prefix != "" {
		return r.Prefix + ":" + r.Local
	}
	return r.Name().String()
}

// RuleError reports an action that rejected its input.
type RuleError struct {
	Space string
	Local string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s failed: %v", Name{Space: e.Space, Local: e.Local}, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

func (r Rule) fail(err error) error {
	return &RuleError{Space: r.Space, Local: r.Local, Err: err}
}

// RenderElement produces the replacement subtree for the rule. Input is the
// matched subtree, or empty when a required field is appended.
func (r Rule) RenderElement(input []Event, now time.Time) ([]Event, error) {
	name := r.Name()
	if len(input) > 0 && input[0].Kind == StartElement {
		name = input[0].Name
	}
	switch r.Action.Kind {
	case ActionTimestamp:
		return []Event{
			Start(name, nil, nil),
			Text(now.Format(TimestampLayout)),
			End(name),
		}, nil
	case ActionList:
		if !r.Action.List.Valid() {
			return nil, r.fail(fmt.Errorf("unknown list kind %q", r.Action.List))
		}
		container := rdfName(string(r.Action.List))
		li := rdfName("li")
		out := make([]Event, 0, 4+3*len(r.Action.Values))
		out = append(out, Start(name, nil, nil), Start(container, nil, nil))
		for _, v := range r.Action.Values {
			out = append(out, Start(li, nil, nil), Text(v), End(li))
		}
		out = append(out, End(container), End(name))
		return out, nil
	default:
		return nil, r.fail(fmt.Errorf("unknown action %d", r.Action.Kind))
	}
}

// RenderAttribute produces the replacement attribute value.
func (r Rule) RenderAttribute(value string, now time.Time) (string, error) {
	switch r.Action.Kind {
	case ActionTimestamp:
		return now.Format(TimestampLayout), nil
	default:
		return "", r.fail(ErrUnsupported)
	}
}

// MetadataDate refreshes xmp:MetadataDate. It is required so every converted
// packet records when it was last written.
func MetadataDate() Rule {
	return Rule{
		Space:          NSXMP,
		Local:          "MetadataDate",
		Prefix:         "xmp",
		AllowAttribute: true,
		Required:       true,
		Action:         SetTimestamp(),
	}
}

func setList(kind ListKind, space, prefix, local string, values []string) Rule {
	return Rule{
		Space:    space,
		Local:    local,
		Prefix:   prefix,
		Required: true,
		Action:   SetList(kind, values),
	}
}

func SetSeq(space, prefix, local string, values []string) Rule {
	return setList(Seq, space, prefix, local, values)
}

func SetAlt(space, prefix, local string, values []string) Rule {
	return setList(Alt, space, prefix, local, values)
}

func SetBag(space, prefix, local string, values []string) Rule {
	return setList(Bag, space, prefix, local, values)
}

func DCTitle(v string) Rule { return SetAlt(NSDC, "dc", "title", []string{v}) }

func DCSubject(values []string) Rule { return SetBag(NSDC, "dc", "subject", values) }

func DCDescription(v string) Rule { return SetAlt(NSDC, "dc", "description", []string{v}) }

func DCCreator(v string) Rule { return SetSeq(NSDC, "dc", "creator", []string{v}) }

// LRHierarchicalSubject writes tag paths joined by sep.
func LRHierarchicalSubject(paths [][]string, sep string) Rule {
	values := make([]string, 0, len(paths))
	for _, p := range paths {
		values = append(values, strings.Join(p, sep))
	}
	return SetBag(NSLR, "lr", "hierarchicalSubject", values)
}
