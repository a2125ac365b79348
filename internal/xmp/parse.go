package xmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SyntaxError reports malformed markup in a packet body.
type SyntaxError struct {
	Offset int64
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("xmp syntax error at offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

var (
	errUnboundPrefix = errors.New("unbound namespace prefix")
	errMismatchedEnd = errors.New("mismatched end element")
	errUnclosed      = errors.New("unclosed element")
)

// nsScope is one level of the namespace stack.
type nsScope struct {
	bindings []Binding
}

type nsStack []nsScope

func (s nsStack) lookup(prefix string) (string, bool) {
	switch prefix {
	case "xml":
		return nsXML, true
	case "xmlns":
		return nsXMLNS, true
	}
	for i := len(s) - 1; i >= 0; i-- {
		for _, b := range s[i].bindings {
			if b.Prefix == prefix {
				return b.URI, true
			}
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// prefixFor returns the innermost prefix bound to uri.
func (s nsStack) prefixFor(uri string) (string, bool) {
	if uri == nsXML {
		return "xml", true
	}
	for i := len(s) - 1; i >= 0; i-- {
		for _, b := range s[i].bindings {
			if b.URI == uri {
				// A prefix is only usable if no inner scope rebinds it.
				if got, _ := s.lookup(b.Prefix); got == uri {
					return b.Prefix, true
				}
			}
		}
	}
	return "", false
}

func isNamespaceDecl(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

// Parse decodes a packet body into a Document. Whitespace-only text is
// dropped, other text is trimmed, CDATA sections become plain text and
// comments are discarded.
func Parse(data []byte, opts ...Option) (*Document, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	events := []Event{{Kind: StartDocument}}
	var (
		scopes  nsStack
		open    []Name
		pending strings.Builder
	)
	fail := func(err error) (*Document, error) {
		return nil, &SyntaxError{Offset: d.InputOffset(), Err: err}
	}
	flushText := func() {
		text := strings.TrimSpace(pending.String())
		pending.Reset()
		if text != "" {
			events = append(events, Text(text))
		}
	}
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			pending.Write(t)
		case xml.StartElement:
			flushText()
			var scope nsScope
			attrs := make([]Attr, 0, len(t.Attr))
			for _, a := range t.Attr {
				if isNamespaceDecl(a) {
					prefix := a.Name.Local
					if a.Name.Space == "" {
						prefix = ""
					}
					scope.bindings = append(scope.bindings, Binding{Prefix: prefix, URI: a.Value})
				}
			}
			scopes = append(scopes, scope)
			name, err := resolve(scopes, t.Name, true)
			if err != nil {
				return fail(err)
			}
			for _, a := range t.Attr {
				if isNamespaceDecl(a) {
					continue
				}
				an, err := resolve(scopes, a.Name, false)
				if err != nil {
					return fail(err)
				}
				attrs = append(attrs, Attr{Name: an, Value: a.Value})
			}
			open = append(open, name)
			events = append(events, Start(name, attrs, scope.bindings))
		case xml.EndElement:
			flushText()
			if len(open) == 0 {
				return fail(fmt.Errorf("%w: </%s>", errMismatchedEnd, rawName(t.Name)))
			}
			name, err := resolve(scopes, t.Name, true)
			if err != nil {
				return fail(err)
			}
			top := open[len(open)-1]
			if !top.Matches(name) || top.Prefix != name.Prefix {
				return fail(fmt.Errorf("%w: </%s> closes <%s>", errMismatchedEnd, rawName(t.Name), top.Local))
			}
			open = open[:len(open)-1]
			scopes = scopes[:len(scopes)-1]
			events = append(events, End(name))
		case xml.ProcInst:
			flushText()
			if t.Target == "xml" {
				// The declaration maps onto the document start.
				continue
			}
			events = append(events, Event{Kind: ProcInst, Target: t.Target, Text: string(t.Inst)})
		case xml.Comment, xml.Directive:
			// dropped
		}
	}
	flushText()
	if len(open) > 0 {
		return fail(fmt.Errorf("%w: <%s>", errUnclosed, open[len(open)-1].Local))
	}
	doc := &Document{events: events}
	for _, opt := range opts {
		opt(doc)
	}
	return doc, nil
}

// resolve maps a raw prefix:local name to a namespace-qualified Name.
// Unprefixed attributes are never in the default namespace.
func resolve(scopes nsStack, n xml.Name, element bool) (Name, error) {
	if n.Space == "" && !element {
		return Name{Local: n.Local}, nil
	}
	uri, ok := scopes.lookup(n.Space)
	if !ok {
		return Name{}, fmt.Errorf("%w %q in <%s>", errUnboundPrefix, n.Space, rawName(n))
	}
	return Name{Space: uri, Local: n.Local, Prefix: n.Space}, nil
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
