package xmp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	padByte       = ' '
	separatorByte = '\n'
)

var (
	ErrNotEnoughSpace = errors.New("not enough space for the new packet body")
	ErrUnbalanced     = errors.New("unbalanced element events")
)

// Strategy is a serialization layout. An empty Indent writes everything on
// one line.
type Strategy struct {
	Name   string
	Indent string
}

var (
	Indented = Strategy{Name: "indented", Indent: " "}
	Compact  = Strategy{Name: "compact"}

	// DefaultStrategies is the preference order used when fitting a body.
	DefaultStrategies = []Strategy{Indented, Compact}
)

// BodyWriter is a fixed-size, writable packet body.
type BodyWriter interface {
	BodyLen() int
	FillBody(b byte)
	WriteBody(off int, p []byte) error
}

// EmitFitting serializes events with the first strategy whose output fits in
// dst, leaving one separator byte on each side. The rest of the body is
// padded with spaces. When nothing fits dst is left untouched and
// ErrNotEnoughSpace is returned.
func EmitFitting(events []Event, dst BodyWriter, strategies ...Strategy) (Strategy, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	budget := dst.BodyLen()
	smallest := -1
	for _, s := range strategies {
		data, err := Serialize(events, s)
		if err != nil {
			return Strategy{}, err
		}
		if smallest < 0 || len(data) < smallest {
			smallest = len(data)
		}
		if budget < 2 || len(data) > budget-2 {
			continue
		}
		dst.FillBody(padByte)
		if err := dst.WriteBody(0, []byte{separatorByte}); err != nil {
			return Strategy{}, err
		}
		if err := dst.WriteBody(budget-1, []byte{separatorByte}); err != nil {
			return Strategy{}, err
		}
		if err := dst.WriteBody(1, data); err != nil {
			return Strategy{}, err
		}
		return s, nil
	}
	return Strategy{}, fmt.Errorf("%w: need %d bytes, body holds %d", ErrNotEnoughSpace, smallest+2, budget)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"\t", "&#x9;",
		"\n", "&#xA;",
		"\r", "&#xD;",
	)
)

type openElement struct {
	qname    string
	children bool
}

type encoder struct {
	buf    bytes.Buffer
	indent string
	scopes nsStack
	open   []openElement
	wrote  bool
}

// Serialize writes events as markup without an XML declaration. Namespace
// prefixes are resolved by URI against the declarations in scope; a prefix is
// declared on the element that first needs it.
func Serialize(events []Event, s Strategy) ([]byte, error) {
	enc := &encoder{indent: s.Indent}
	for i := 0; i < len(events); i++ {
		e := events[i]
		switch e.Kind {
		case StartDocument:
		case StartElement:
			selfClose := i+1 < len(events) && events[i+1].Kind == EndElement
			if err := enc.start(e, selfClose); err != nil {
				return nil, err
			}
			if selfClose {
				i++
			}
		case EndElement:
			if err := enc.end(); err != nil {
				return nil, err
			}
		case Characters:
			textEscaper.WriteString(&enc.buf, e.Text)
			enc.wrote = true
		case ProcInst:
			enc.newline(len(enc.open))
			enc.markChild()
			enc.buf.WriteString("<?" + e.Target)
			if e.Text != "" {
				enc.buf.WriteString(" " + e.Text)
			}
			enc.buf.WriteString("?>")
			enc.wrote = true
		}
	}
	if len(enc.open) > 0 {
		return nil, fmt.Errorf("%w: <%s> not closed", ErrUnbalanced, enc.open[len(enc.open)-1].qname)
	}
	return enc.buf.Bytes(), nil
}

func (enc *encoder) newline(depth int) {
	if enc.indent == "" || !enc.wrote {
		return
	}
	enc.buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		enc.buf.WriteString(enc.indent)
	}
}

func (enc *encoder) markChild() {
	if n := len(enc.open); n > 0 {
		enc.open[n-1].children = true
	}
}

func (enc *encoder) start(e Event, selfClose bool) error {
	enc.newline(len(enc.open))
	enc.markChild()

	scope := nsScope{bindings: append([]Binding(nil), e.Bindings...)}
	enc.scopes = append(enc.scopes, scope)
	qname := enc.qualify(e.Name, true)
	attrs := make([]string, 0, len(e.Attrs))
	for _, a := range e.Attrs {
		attrs = append(attrs, enc.qualify(a.Name, false)+`="`+attrEscaper.Replace(a.Value)+`"`)
	}

	enc.buf.WriteString("<" + qname)
	for _, b := range enc.scopes[len(enc.scopes)-1].bindings {
		if b.Prefix == "" {
			enc.buf.WriteString(` xmlns="`)
		} else {
			enc.buf.WriteString(" xmlns:" + b.Prefix + `="`)
		}
		attrEscaper.WriteString(&enc.buf, b.URI)
		enc.buf.WriteByte('"')
	}
	for _, a := range attrs {
		enc.buf.WriteString(" " + a)
	}
	enc.wrote = true
	if selfClose {
		enc.buf.WriteString("/>")
		enc.scopes = enc.scopes[:len(enc.scopes)-1]
		return nil
	}
	enc.buf.WriteByte('>')
	enc.open = append(enc.open, openElement{qname: qname})
	return nil
}

func (enc *encoder) end() error {
	if len(enc.open) == 0 {
		return fmt.Errorf("%w: end without start", ErrUnbalanced)
	}
	top := enc.open[len(enc.open)-1]
	enc.open = enc.open[:len(enc.open)-1]
	if top.children {
		enc.newline(len(enc.open))
	}
	enc.buf.WriteString("</" + top.qname + ">")
	enc.scopes = enc.scopes[:len(enc.scopes)-1]
	return nil
}

// qualify returns the serialized form of n, declaring a namespace on the
// current element when none in scope fits.
func (enc *encoder) qualify(n Name, element bool) string {
	top := &enc.scopes[len(enc.scopes)-1]
	if n.Space == "" {
		if element {
			if uri, _ := enc.scopes.lookup(""); uri != "" {
				top.bindings = append(top.bindings, Binding{Prefix: "", URI: ""})
			}
		}
		return n.Local
	}
	if n.Space == nsXML {
		return "xml:" + n.Local
	}
	if n.Prefix != "" {
		if uri, ok := enc.scopes.lookup(n.Prefix); ok && uri == n.Space {
			return n.Prefix + ":" + n.Local
		}
	} else if element {
		if uri, _ := enc.scopes.lookup(""); uri == n.Space {
			return n.Local
		}
	}
	if p, ok := enc.scopes.prefixFor(n.Space); ok && p != "" {
		return p + ":" + n.Local
	}
	prefix := enc.freePrefix(n)
	top.bindings = append(top.bindings, Binding{Prefix: prefix, URI: n.Space})
	return prefix + ":" + n.Local
}

func (enc *encoder) freePrefix(n Name) string {
	base := n.Prefix
	if base == "" {
		if p, ok := DefaultPrefix(n.Space); ok {
			base = p
		} else {
			base = "ns"
		}
	}
	candidate := base
	for i := 1; ; i++ {
		if _, bound := enc.scopes.lookup(candidate); !bound {
			return candidate
		}
		candidate = base + strconv.Itoa(i)
	}
}
