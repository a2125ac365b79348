package common

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Patch modes. A packet patch replaces bytes in place at Offset; a file patch
// replaces the whole file.
const (
	PatchPacket = "packet"
	PatchFile   = "file"
)

var ErrPatchConflict = errors.New("file no longer matches the logged write")

// PatchEntry captures a single metadata write.
type PatchEntry struct {
	File      string    `json:"file"`
	Mode      string    `json:"mode"`
	Offset    int64     `json:"offset,omitempty"`
	BeforeHex string    `json:"beforeHex"`
	AfterHex  string    `json:"afterHex"`
	Digest    string    `json:"digest,omitempty"`
	RulePack  string    `json:"rulePack,omitempty"`
	Ts        time.Time `json:"ts"`
}

// BeforeBytes decodes the bytes present before the write.
func (p PatchEntry) BeforeBytes() ([]byte, error) {
	if strings.TrimSpace(p.BeforeHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.BeforeHex)
}

// AfterBytes decodes the bytes written.
func (p PatchEntry) AfterBytes() ([]byte, error) {
	if strings.TrimSpace(p.AfterHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.AfterHex)
}

// PatchLog provides append-only access to a JSONL audit log.
type PatchLog struct {
	path string
	mu   sync.Mutex
}

func NewPatchLog(path string) *PatchLog {
	return &PatchLog{path: path}
}

func (p *PatchLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes a new entry to the audit log, one JSON object per line.
func (p *PatchLog) Append(entry PatchEntry) error {
	if p == nil {
		return errors.New("nil patch log")
	}
	if entry.File == "" {
		return errors.New("patch entry missing file")
	}
	if entry.Mode != PatchPacket && entry.Mode != PatchFile {
		return fmt.Errorf("patch entry has unknown mode %q", entry.Mode)
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadPatchLog loads every entry from the supplied JSONL file.
func ReadPatchLog(path string) ([]PatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var entries []PatchEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry PatchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode patch entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Restore reverts entries newest first and returns how many were undone.
// Each target must still hold the logged after bytes.
func Restore(entries []PatchEntry) (int, error) {
	undone := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if err := RestoreEntry(entries[i]); err != nil {
			return undone, fmt.Errorf("undo %s: %w", entries[i].File, err)
		}
		undone++
	}
	return undone, nil
}

// RestoreEntry writes back the before bytes of one entry.
func RestoreEntry(e PatchEntry) error {
	before, err := e.BeforeBytes()
	if err != nil {
		return fmt.Errorf("decode before bytes: %w", err)
	}
	after, err := e.AfterBytes()
	if err != nil {
		return fmt.Errorf("decode after bytes: %w", err)
	}
	f, err := os.OpenFile(e.File, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	switch e.Mode {
	case PatchPacket:
		if len(before) != len(after) {
			return fmt.Errorf("packet patch changes length (%d -> %d)", len(before), len(after))
		}
		current := make([]byte, len(after))
		if _, err := f.ReadAt(current, e.Offset); err != nil {
			return fmt.Errorf("read current bytes: %w", err)
		}
		if !bytes.Equal(current, after) {
			return ErrPatchConflict
		}
		if _, err := f.WriteAt(before, e.Offset); err != nil {
			return err
		}
	case PatchFile:
		current, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("read current file: %w", err)
		}
		if !bytes.Equal(current, after) {
			return ErrPatchConflict
		}
		if err := f.Truncate(0); err != nil {
			return err
		}
		if _, err := f.WriteAt(before, 0); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown patch mode %q", e.Mode)
	}
	return f.Sync()
}
