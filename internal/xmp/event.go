package xmp

import "fmt"

// Name is a namespace-qualified XML name. Space holds the namespace URI and
// is empty for unqualified names. Prefix is only used for serialization.
type Name struct {
	Space  string `json:"space,omitempty"`
	Local  string `json:"local"`
	Prefix string `json:"prefix,omitempty"`
}

// Is reports whether n has the given namespace URI and local name.
func (n Name) Is(space, local string) bool {
	return n.Space == space && n.Local == local
}

// Matches compares identity only; prefixes are ignored.
func (n Name) Matches(o Name) bool {
	return n.Space == o.Space && n.Local == o.Local
}

func (n Name) String() string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

// Attr is an element attribute. Namespace declarations are not attributes;
// they are carried as Bindings.
type Attr struct {
	Name  Name   `json:"name"`
	Value string `json:"value"`
}

// Binding is a namespace declaration. An empty Prefix is the default
// namespace.
type Binding struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

// Kind enumerates markup event types.
type Kind int

const (
	StartDocument Kind = iota
	StartElement
	EndElement
	Characters
	ProcInst
)

func (k Kind) String() string {
	switch k {
	case StartDocument:
		return "StartDocument"
	case StartElement:
		return "StartElement"
	case EndElement:
		return "EndElement"
	case Characters:
		return "Characters"
	case ProcInst:
		return "ProcInst"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one markup event. Which fields are set depends on Kind:
// StartElement uses Name, Attrs and Bindings; EndElement uses Name;
// Characters uses Text; ProcInst uses Target and Text.
type Event struct {
	Kind     Kind
	Name     Name
	Attrs    []Attr
	Bindings []Binding
	Text     string
	Target   string
}

func Start(name Name, attrs []Attr, bindings []Binding) Event {
	return Event{Kind: StartElement, Name: name, Attrs: attrs, Bindings: bindings}
}

func End(name Name) Event {
	return Event{Kind: EndElement, Name: name}
}

func Text(s string) Event {
	return Event{Kind: Characters, Text: s}
}

// IsStart reports whether e starts an element with the given identity.
func (e Event) IsStart(space, local string) bool {
	return e.Kind == StartElement && e.Name.Is(space, local)
}

// IsEnd reports whether e ends an element with the given identity.
func (e Event) IsEnd(space, local string) bool {
	return e.Kind == EndElement && e.Name.Is(space, local)
}

// clone returns a copy of e whose slices are not shared.
func (e Event) clone() Event {
	if e.Attrs != nil {
		e.Attrs = append([]Attr(nil), e.Attrs...)
	}
	if e.Bindings != nil {
		e.Bindings = append([]Binding(nil), e.Bindings...)
	}
	return e
}

func cloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = e.clone()
	}
	return out
}
