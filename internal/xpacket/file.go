package xpacket

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrNoPacket        = errors.New("no packet in this file")
	ErrWrongPacketSize = errors.New("packet size does not match physical packet size")
)

// File is a host stream with a located packet range. The range is computed
// once by OpenFile; callers reopen after external modification.
type File struct {
	rw  io.ReadWriteSeeker
	loc Location
}

// OpenFile locates the packet inside rw.
func OpenFile(rw io.ReadWriteSeeker) (*File, error) {
	loc, err := Locate(rw)
	if err != nil {
		return nil, err
	}
	return &File{rw: rw, loc: loc}, nil
}

// Location reports where the packet was found.
func (f *File) Location() Location { return f.loc }

// ReadPacket returns a fresh copy of the packet bytes, or nil when the file
// has no packet.
func (f *File) ReadPacket() ([]byte, error) {
	if !f.loc.Found {
		return nil, nil
	}
	if _, err := f.rw.Seek(f.loc.Range.Start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek packet: %w", err)
	}
	buf := make([]byte, f.loc.Range.Len())
	if _, err := io.ReadFull(f.rw, buf); err != nil {
		return nil, fmt.Errorf("read packet %s: %w", f.loc.Range, err)
	}
	return buf, nil
}

// WritePacket overwrites the packet in place. The new bytes must have exactly
// the length of the located range.
func (f *File) WritePacket(p []byte) error {
	if !f.loc.Found {
		return ErrNoPacket
	}
	if int64(len(p)) != f.loc.Range.Len() {
		return fmt.Errorf("%w: got %d bytes, packet is %d", ErrWrongPacketSize, len(p), f.loc.Range.Len())
	}
	if _, err := f.rw.Seek(f.loc.Range.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek packet: %w", err)
	}
	written := 0
	for written < len(p) {
		n, err := f.rw.Write(p[written:])
		if err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
		written += n
	}
	if s, ok := f.rw.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}
