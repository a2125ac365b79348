package xmp

// Source tells where a field value was found.
type Source string

const (
	SourceNone      Source = ""
	SourceAttribute Source = "attribute"
	SourceElement   Source = "element"
)

// Trace describes one field read.
type Trace struct {
	Field  Name
	Source Source
	Values []string
	Found  bool
}

// Observer receives a Trace for every field accessor call on a Document.
type Observer interface {
	FieldRead(Trace)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Trace)

func (f ObserverFunc) FieldRead(t Trace) { f(t) }

// Option configures a Document.
type Option func(*Document)

// WithObserver attaches an observer to a parsed document.
func WithObserver(o Observer) Option {
	return func(d *Document) { d.observer = o }
}

// Document is the parsed event sequence of a packet body. It is not modified
// after parsing.
type Document struct {
	events   []Event
	observer Observer
}

// Events returns a copy of the event sequence.
func (d *Document) Events() []Event {
	return cloneEvents(d.events)
}

// Len returns the number of events.
func (d *Document) Len() int { return len(d.events) }

func (d *Document) trace(t Trace) {
	if d.observer != nil {
		d.observer.FieldRead(t)
	}
}

// AttrValue looks for an ACDSee attribute named local on rdf:Description
// elements, in document order.
func (d *Document) AttrValue(local string) (string, bool) {
	for _, e := range d.events {
		if !e.IsStart(NSRDF, "Description") {
			continue
		}
		for _, a := range e.Attrs {
			if a.Name.Is(NSACDSee, local) {
				return a.Value, true
			}
		}
	}
	return "", false
}

// TagValue returns the ACDSee scalar field named local. The attribute form on
// rdf:Description wins over the child element form. For the element form an
// immediately closed element yields an empty value, and any nested markup
// makes the field absent.
func (d *Document) TagValue(local string) (string, bool) {
	field := Name{Space: NSACDSee, Local: local, Prefix: "acdsee"}
	if v, ok := d.AttrValue(local); ok {
		d.trace(Trace{Field: field, Source: SourceAttribute, Values: []string{v}, Found: true})
		return v, true
	}
	v, ok := d.elementValue(NSACDSee, local)
	if ok {
		d.trace(Trace{Field: field, Source: SourceElement, Values: []string{v}, Found: true})
	} else {
		d.trace(Trace{Field: field})
	}
	return v, ok
}

func (d *Document) elementValue(space, local string) (string, bool) {
	for i, e := range d.events {
		if !e.IsStart(space, local) {
			continue
		}
		if i+1 >= len(d.events) {
			return "", false
		}
		switch next := d.events[i+1]; next.Kind {
		case Characters:
			return next.Text, true
		case EndElement:
			return "", true
		default:
			return "", false
		}
	}
	return "", false
}

// BagValues collects every text value inside the first element with the
// given identity, in document order.
func (d *Document) BagValues(space, local string) ([]string, bool) {
	field := Name{Space: space, Local: local}
	if p, ok := DefaultPrefix(space); ok {
		field.Prefix = p
	}
	for i, e := range d.events {
		if !e.IsStart(space, local) {
			continue
		}
		var values []string
		depth := 0
	collect:
		for _, inner := range d.events[i+1:] {
			switch inner.Kind {
			case StartElement:
				depth++
			case EndElement:
				if depth == 0 {
					break collect
				}
				depth--
			case Characters:
				values = append(values, inner.Text)
			}
		}
		d.trace(Trace{Field: field, Source: SourceElement, Values: values, Found: true})
		return values, true
	}
	d.trace(Trace{Field: field})
	return nil, false
}

// HasDescription reports whether the document has an rdf:Description.
func (d *Document) HasDescription() bool {
	for _, e := range d.events {
		if e.IsStart(NSRDF, "Description") {
			return true
		}
	}
	return false
}
