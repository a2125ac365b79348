package xpacket

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const defaultScanWindow = 128

var ErrEmptyNeedle = errors.New("empty needle")

// Scanner searches a seekable stream for literal byte sequences without loading
// the stream into memory. The zero value is ready to use.
type Scanner struct {
	// Window is the read window size. It is widened to the needle length when
	// smaller, and defaults to 128 bytes when zero.
	Window int

	buf []byte
}

// Find searches r for needle starting at the current stream position. On
// success r is left positioned at the needle's first byte and its absolute
// offset is returned. When the stream ends first, found is false and err is
// nil.
func (s *Scanner) Find(r io.ReadSeeker, needle []byte) (offset int64, found bool, err error) {
	if len(needle) == 0 {
		return 0, false, ErrEmptyNeedle
	}
	window := s.Window
	if window <= 0 {
		window = defaultScanWindow
	}
	if window < len(needle) {
		window = len(needle)
	}
	if cap(s.buf) < window {
		s.buf = make([]byte, window)
	}
	buf := s.buf[:window]

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false, fmt.Errorf("scanner position: %w", err)
	}
	for {
		n, rerr := io.ReadFull(r, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return 0, false, fmt.Errorf("scanner read at %d: %w", pos, rerr)
		}
		if n < len(needle) {
			return 0, false, nil
		}
		hay := buf[:n]
		rewind := -1
		for idx := 0; idx < n; {
			i := bytes.IndexByte(hay[idx:], needle[0])
			if i < 0 {
				break
			}
			idx += i
			if n-idx < len(needle) {
				// The needle may straddle the window boundary; restart the next
				// read at this candidate.
				rewind = n - idx
				break
			}
			if bytes.Equal(hay[idx:idx+len(needle)], needle) {
				at := pos + int64(idx)
				if _, err := r.Seek(at, io.SeekStart); err != nil {
					return 0, false, fmt.Errorf("scanner seek to %d: %w", at, err)
				}
				return at, true, nil
			}
			idx++
		}
		if rerr != nil {
			// Short read: the stream is exhausted.
			return 0, false, nil
		}
		if rewind > 0 {
			if _, err := r.Seek(int64(-rewind), io.SeekCurrent); err != nil {
				return 0, false, fmt.Errorf("scanner rewind: %w", err)
			}
			pos += int64(n - rewind)
			continue
		}
		pos += int64(n)
	}
}

// Find searches r for needle with a default Scanner.
func Find(r io.ReadSeeker, needle []byte) (int64, bool, error) {
	var s Scanner
	return s.Find(r, needle)
}
