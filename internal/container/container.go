// Package container reads and writes XMP metadata held either in a standalone
// .xmp document or in a packet embedded in a host file.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"example.com/xmpgate/internal/xmp"
	"example.com/xmpgate/internal/xpacket"
)

var (
	ErrMissingPacket  = errors.New("missing xpacket")
	ErrNotEnoughSpace = errors.New("not enough space for the new xpacket")
	ErrShortFile      = errors.New("file too short to identify")
)

// sniffLen is how many leading bytes decide the container kind.
const sniffLen = 16

var standaloneMagic = []byte("<x:xmp")

// Handle is an open, writable file. *os.File satisfies it.
type Handle interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

// Kind tells how the metadata is stored.
type Kind int

const (
	KindPacket Kind = iota
	KindStandalone
)

func (k Kind) String() string {
	if k == KindStandalone {
		return "xmp"
	}
	return "xpacket"
}

// Container is an opened metadata holder. It is not safe for concurrent use.
type Container struct {
	h      Handle
	kind   Kind
	packet *xpacket.File
}

// Open identifies the container kind from the first bytes of h. Packet hosts
// are scanned for their packet once, here.
func Open(h Handle) (*Container, error) {
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}
	head := make([]byte, sniffLen)
	if _, err := io.ReadFull(h, head); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrShortFile, err)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if bytes.HasPrefix(head, standaloneMagic) {
		return &Container{h: h, kind: KindStandalone}, nil
	}
	pf, err := xpacket.OpenFile(h)
	if err != nil {
		return nil, fmt.Errorf("locate packet: %w", err)
	}
	return &Container{h: h, kind: KindPacket, packet: pf}, nil
}

func (c *Container) Kind() Kind { return c.kind }

// Location returns the packet range for packet hosts.
func (c *Container) Location() xpacket.Location {
	if c.packet == nil {
		return xpacket.Location{}
	}
	return c.packet.Location()
}

// Current returns the bytes Commit would replace and their file offset: the
// whole document for standalone files, the packet for packet hosts. Data is
// nil when a packet host has no packet.
func (c *Container) Current() (int64, []byte, error) {
	if c.kind == KindStandalone {
		data, err := c.readAll()
		return 0, data, err
	}
	data, err := c.packet.ReadPacket()
	if err != nil {
		return 0, nil, err
	}
	return c.packet.Location().Range.Start, data, nil
}

func (c *Container) readAll() ([]byte, error) {
	if _, err := c.h.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}
	data, err := io.ReadAll(c.h)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

// ReadDocument parses the metadata. It returns nil without error when a packet
// host carries no packet.
func (c *Container) ReadDocument(opts ...xmp.Option) (*xmp.Document, error) {
	if c.kind == KindStandalone {
		data, err := c.readAll()
		if err != nil {
			return nil, err
		}
		return xmp.Parse(data, opts...)
	}
	raw, err := c.packet.ReadPacket()
	if err != nil || raw == nil {
		return nil, err
	}
	p, err := xpacket.Split(raw)
	if err != nil {
		return nil, err
	}
	return xmp.Parse(p.Body(), opts...)
}

// Prepare serializes events into the bytes Commit expects. For packet hosts
// the result has exactly the length of the existing packet.
func (c *Container) Prepare(events []xmp.Event) ([]byte, error) {
	if c.kind == KindStandalone {
		return xmp.Serialize(events, xmp.Indented)
	}
	raw, err := c.packet.ReadPacket()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrMissingPacket
	}
	p, err := xpacket.SplitMutable(raw)
	if err != nil {
		return nil, err
	}
	if _, err := xmp.EmitFitting(events, p); err != nil {
		if errors.Is(err, xmp.ErrNotEnoughSpace) {
			return nil, fmt.Errorf("%w: %w", ErrNotEnoughSpace, err)
		}
		return nil, err
	}
	return p.Bytes(), nil
}

// Commit writes prepared bytes. Standalone documents are truncated and
// replaced; packets are overwritten in place and must keep their length.
func (c *Container) Commit(p []byte) error {
	if c.kind == KindStandalone {
		if err := c.h.Truncate(0); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		if _, err := c.h.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek start: %w", err)
		}
		if _, err := c.h.Write(p); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		if s, ok := c.h.(interface{ Sync() error }); ok {
			return s.Sync()
		}
		return nil
	}
	err := c.packet.WritePacket(p)
	switch {
	case errors.Is(err, xpacket.ErrNoPacket):
		return ErrMissingPacket
	case errors.Is(err, xpacket.ErrWrongPacketSize):
		return fmt.Errorf("%w: %w", ErrNotEnoughSpace, err)
	}
	return err
}
