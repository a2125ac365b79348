package xpacket

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// HeaderPrefix opens every packet.
	HeaderPrefix = []byte("<?xpacket begin=")

	// FooterMarkers are the accepted packet trailers, in search order.
	FooterMarkers = [][]byte{
		[]byte(`<?xpacket end="w"?>`),
		[]byte(`<?xpacket end='w'?>`),
	}
)

var (
	ErrMissingHeader         = errors.New("missing xpacket header")
	ErrMissingFooter         = errors.New("missing xpacket footer")
	ErrMissingHeaderBoundary = errors.New("missing xpacket header boundary")
	// ErrMissingFooterBoundary is kept for callers matching on it. The footer
	// search in Split does not currently produce it.
	ErrMissingFooterBoundary = errors.New("missing xpacket footer boundary")
	ErrOutOfBounds           = errors.New("write outside packet body")
)

// span is a half-open index range into a packet buffer.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Packet is a parsed XMP packet. Header, body and footer are index ranges into
// a single buffer owned by the Packet.
type Packet struct {
	data   []byte
	header span
	body   span
	footer span
}

// Split parses data as a complete packet. Data is owned by the returned Packet
// and must not be modified by the caller afterwards.
func Split(data []byte) (*Packet, error) {
	header, body, footer, err := offsets(data)
	if err != nil {
		return nil, err
	}
	return &Packet{data: data, header: header, body: body, footer: footer}, nil
}

func offsets(data []byte) (header, body, footer span, err error) {
	value := bytes.TrimSuffix(data, []byte("\n"))
	if !bytes.HasPrefix(value, HeaderPrefix) {
		return span{}, span{}, span{}, ErrMissingHeader
	}
	bodyEnd := -1
	for _, marker := range FooterMarkers {
		if i := bytes.Index(value, marker); i >= 0 {
			bodyEnd = i
			break
		}
	}
	if bodyEnd < 0 {
		return span{}, span{}, span{}, ErrMissingFooter
	}
	gt := bytes.IndexByte(value, '>')
	if gt < 0 {
		return span{}, span{}, span{}, ErrMissingHeaderBoundary
	}
	bodyStart := gt + 1
	if bodyStart > bodyEnd {
		// The only '>' belongs to the footer itself.
		return span{}, span{}, span{}, ErrMissingHeaderBoundary
	}
	return span{0, bodyStart}, span{bodyStart, bodyEnd}, span{bodyEnd, len(value)}, nil
}

func (p *Packet) view(s span) []byte {
	return p.data[s.start:s.end:s.end]
}

// Header returns the header bytes, including the closing '>'.
func (p *Packet) Header() []byte { return p.view(p.header) }

// Body returns the bytes between header and footer.
func (p *Packet) Body() []byte { return p.view(p.body) }

// Footer returns the end marker.
func (p *Packet) Footer() []byte { return p.view(p.footer) }

// Bytes returns the whole packet buffer, including a trailing newline if the
// input had one.
func (p *Packet) Bytes() []byte { return p.data }

// Len returns the length of the whole packet buffer.
func (p *Packet) Len() int { return len(p.data) }

// BodyRange returns the body position relative to the packet start.
func (p *Packet) BodyRange() Range {
	return Range{Start: int64(p.body.start), End: int64(p.body.end)}
}

// MutablePacket is a Packet whose body may be overwritten in place. The body
// length, and therefore the header and footer positions, never change.
type MutablePacket struct {
	Packet
}

// SplitMutable parses data like Split and allows in-place body writes.
func SplitMutable(data []byte) (*MutablePacket, error) {
	p, err := Split(data)
	if err != nil {
		return nil, err
	}
	return &MutablePacket{Packet: *p}, nil
}

// BodyLen returns the fixed body budget in bytes.
func (p *MutablePacket) BodyLen() int { return p.body.len() }

// FillBody sets every body byte to b.
func (p *MutablePacket) FillBody(b byte) {
	body := p.data[p.body.start:p.body.end]
	for i := range body {
		body[i] = b
	}
}

// WriteBody copies src into the body starting at off.
func (p *MutablePacket) WriteBody(off int, src []byte) error {
	if off < 0 || off+len(src) > p.body.len() {
		return fmt.Errorf("%w: %d bytes at %d, body is %d bytes", ErrOutOfBounds, len(src), off, p.body.len())
	}
	copy(p.data[p.body.start+off:], src)
	return nil
}
