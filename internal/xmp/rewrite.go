package xmp

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateRule = errors.New("duplicate rewrite rule")
	ErrNoDescription = errors.New("no rdf:Description in document")
)

type rewriteConfig struct {
	now func() time.Time
}

// RewriteOption configures Rewrite.
type RewriteOption func(*rewriteConfig)

// WithClock sets the time source used by timestamp actions.
func WithClock(now func() time.Time) RewriteOption {
	return func(c *rewriteConfig) { c.now = now }
}

type rewriteState int

const (
	beforeDescription rewriteState = iota
	insideDescription
	closingDescription
	afterDescription
)

type ruleSlot struct {
	rule     Rule
	consumed bool
	// forced marks element-only rules whose field existed as an attribute; the
	// attribute is dropped and the element is always written. This departs
	// from copying unmatched events verbatim so the value is not lost.
	forced bool
}

type rewriter struct {
	events []Event
	slots  []ruleSlot
	now    time.Time

	out      []Event
	startIdx int
	// outer holds the bindings of the elements enclosing the description.
	outer []Binding
}

// Rewrite applies rules to doc in a single pass and returns the new event
// sequence. Every top-level rdf:Description is merged into the first one.
// Matching attributes and direct child elements are replaced, and required
// rules that matched nothing are appended before the description closes.
// The StartDocument event is dropped.
func Rewrite(doc *Document, rules []Rule, opts ...RewriteOption) ([]Event, error) {
	if !doc.HasDescription() {
		return nil, ErrNoDescription
	}
	cfg := rewriteConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	seen := make(map[Name]struct{}, len(rules))
	slots := make([]ruleSlot, 0, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r)
		}
		seen[r.Key()] = struct{}{}
		slots = append(slots, ruleSlot{rule: r})
	}
	rw := &rewriter{
		events: doc.events,
		slots:  slots,
		now:    cfg.now(),
		out:    make([]Event, 0, len(doc.events)+8*len(rules)),
	}
	return rw.run()
}

// topLevelDescriptions returns the indexes of rdf:Description start events
// that are not nested inside another description.
func topLevelDescriptions(events []Event) map[int]bool {
	top := make(map[int]bool)
	nesting := 0
	for i, e := range events {
		switch {
		case e.IsStart(NSRDF, "Description"):
			if nesting == 0 {
				top[i] = true
			}
			nesting++
		case e.IsEnd(NSRDF, "Description"):
			nesting--
		}
	}
	return top
}

func (rw *rewriter) run() ([]Event, error) {
	top := topLevelDescriptions(rw.events)
	first := -1
	for i := range rw.events {
		if top[i] {
			first = i
			break
		}
	}

	var (
		state   = beforeDescription
		depth   int
		pending Event
		scopes  [][]Binding
	)
	for i := 0; i < len(rw.events); {
		e := rw.events[i]
		switch state {
		case beforeDescription:
			if e.Kind == StartDocument {
				i++
				continue
			}
			if i == first {
				for _, s := range scopes {
					rw.outer = append(rw.outer, s...)
				}
				start, err := rw.mergedStart(top)
				if err != nil {
					return nil, err
				}
				rw.startIdx = len(rw.out)
				rw.out = append(rw.out, start)
				state = insideDescription
				depth = 0
				i++
				continue
			}
			switch e.Kind {
			case StartElement:
				scopes = append(scopes, e.Bindings)
			case EndElement:
				if len(scopes) > 0 {
					scopes = scopes[:len(scopes)-1]
				}
			}
			rw.out = append(rw.out, e.clone())
			i++

		case insideDescription:
			switch e.Kind {
			case StartElement:
				if depth == 0 {
					if slot := rw.match(e.Name); slot != nil {
						end := subtreeEnd(rw.events, i)
						rendered, err := slot.rule.RenderElement(rw.events[i:end], rw.now)
						if err != nil {
							return nil, err
						}
						rw.out = append(rw.out, rendered...)
						slot.consumed = true
						i = end
						continue
					}
				}
				depth++
			case EndElement:
				if depth == 0 {
					pending = e.clone()
					state = closingDescription
					i++
					continue
				}
				depth--
			}
			rw.out = append(rw.out, e.clone())
			i++

		case closingDescription:
			if top[i] {
				// Continuation of the same description written by another
				// producer. Its attributes are already merged.
				state = insideDescription
				depth = 0
				i++
				continue
			}
			if err := rw.flushRequired(); err != nil {
				return nil, err
			}
			rw.out = append(rw.out, pending)
			state = afterDescription

		case afterDescription:
			rw.out = append(rw.out, e.clone())
			i++
		}
	}
	if state == closingDescription {
		if err := rw.flushRequired(); err != nil {
			return nil, err
		}
		rw.out = append(rw.out, pending)
	}
	return rw.out, nil
}

// mergedStart builds the synthetic description start from every top-level
// description and applies attribute-mode rules to it.
func (rw *rewriter) mergedStart(top map[int]bool) (Event, error) {
	var merged Event
	seenAttr := make(map[Name]bool)
	seenPrefix := make(map[string]bool)
	for i, e := range rw.events {
		if !top[i] {
			continue
		}
		if merged.Kind != StartElement {
			merged = Start(e.Name, nil, nil)
		}
		for _, b := range e.Bindings {
			if seenPrefix[b.Prefix] {
				continue
			}
			seenPrefix[b.Prefix] = true
			merged.Bindings = append(merged.Bindings, b)
		}
		for _, a := range e.Attrs {
			key := Name{Space: a.Name.Space, Local: a.Name.Local}
			if seenAttr[key] {
				continue
			}
			seenAttr[key] = true
			merged.Attrs = append(merged.Attrs, a)
		}
	}

	attrs := merged.Attrs[:0:0]
	for _, a := range merged.Attrs {
		slot := rw.match(a.Name)
		if slot == nil {
			attrs = append(attrs, a)
			continue
		}
		if !slot.rule.AllowAttribute {
			slot.forced = true
			continue
		}
		v, err := slot.rule.RenderAttribute(a.Value, rw.now)
		if err != nil {
			return Event{}, err
		}
		slot.consumed = true
		attrs = append(attrs, Attr{Name: a.Name, Value: v})
		merged.Bindings = rw.register(merged.Bindings, slot.rule)
	}
	merged.Attrs = attrs
	return merged, nil
}

// register declares the rule's namespace on the description when it is not
// already in scope and its prefix is free.
func (rw *rewriter) register(bindings []Binding, r Rule) []Binding {
	if r.Space == "" || r.Prefix == "" {
		return bindings
	}
	for _, scope := range [][]Binding{rw.outer, bindings} {
		for _, b := range scope {
			if b.URI == r.Space {
				return bindings
			}
		}
	}
	for _, b := range bindings {
		if b.Prefix == r.Prefix {
			return bindings
		}
	}
	return append(bindings, Binding{Prefix: r.Prefix, URI: r.Space})
}

func (rw *rewriter) match(n Name) *ruleSlot {
	for i := range rw.slots {
		s := &rw.slots[i]
		if !s.consumed && s.rule.Matches(n) {
			return s
		}
	}
	return nil
}

func (rw *rewriter) flushRequired() error {
	for i := range rw.slots {
		s := &rw.slots[i]
		if s.consumed || !(s.rule.Required || s.forced) {
			continue
		}
		rendered, err := s.rule.RenderElement(nil, rw.now)
		if err != nil {
			return err
		}
		start := &rw.out[rw.startIdx]
		start.Bindings = rw.register(start.Bindings, s.rule)
		rw.out = append(rw.out, rendered...)
		s.consumed = true
	}
	return nil
}

// subtreeEnd returns the index just past the end event matching the start
// event at i.
func subtreeEnd(events []Event, i int) int {
	depth := 0
	for j := i; j < len(events); j++ {
		switch events[j].Kind {
		case StartElement:
			depth++
		case EndElement:
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(events)
}
