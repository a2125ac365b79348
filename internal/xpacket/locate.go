package xpacket

import (
	"fmt"
	"io"
)

var (
	locateBegin = []byte("<?xpacket begin")
	locateEnd   = []byte("<?xpacket end")
	locateClose = []byte("?>")
)

// Range is a half-open byte range [Start, End) in a host stream.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Location is the result of Locate. Range is only meaningful when Found is set.
type Location struct {
	Found bool
	Range Range
}

// Locate finds the byte range of the first XMP packet embedded in r. The range
// starts at the begin marker and ends right after the "?>" that closes the end
// marker. A stream with no complete packet yields a Location with Found unset.
func Locate(r io.ReadSeeker) (Location, error) {
	return locateWith(&Scanner{}, r)
}

func locateWith(s *Scanner, r io.ReadSeeker) (Location, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Location{}, fmt.Errorf("seek start: %w", err)
	}
	start, ok, err := s.Find(r, locateBegin)
	if err != nil || !ok {
		return Location{}, err
	}
	// The end marker only advances the stream so "?>" is searched after it.
	if _, ok, err = s.Find(r, locateEnd); err != nil || !ok {
		return Location{}, err
	}
	closeAt, ok, err := s.Find(r, locateClose)
	if err != nil || !ok {
		return Location{}, err
	}
	return Location{
		Found: true,
		Range: Range{Start: start, End: closeAt + int64(len(locateClose))},
	}, nil
}
