package common

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPatchLogAppendAndRestore(t *testing.T) {
	dir := t.TempDir()
	host := filepath.Join(dir, "photo.jpg")
	original := []byte("HEAD<packet one>TAIL")
	if err := os.WriteFile(host, original, 0o644); err != nil {
		t.Fatalf("write host: %v", err)
	}
	sidecar := filepath.Join(dir, "photo.xmp")
	if err := os.WriteFile(sidecar, []byte("<x:xmpmeta/>"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	log := NewPatchLog(filepath.Join(dir, "audit", "patches.jsonl"))
	first := []byte("<packet two>")
	second := []byte("<packet 3!!>")
	writes := []struct {
		entry PatchEntry
		data  []byte
	}{
		{PatchEntry{File: host, Mode: PatchPacket, Offset: 4, BeforeHex: hex.EncodeToString([]byte("<packet one>")), AfterHex: hex.EncodeToString(first)}, first},
		{PatchEntry{File: host, Mode: PatchPacket, Offset: 4, BeforeHex: hex.EncodeToString(first), AfterHex: hex.EncodeToString(second)}, second},
		{PatchEntry{File: sidecar, Mode: PatchFile, BeforeHex: hex.EncodeToString([]byte("<x:xmpmeta/>")), AfterHex: hex.EncodeToString([]byte("<x:xmpmeta>\n</x:xmpmeta>"))}, nil},
	}
	for _, w := range writes {
		if w.entry.Mode == PatchPacket {
			f, err := os.OpenFile(host, os.O_RDWR, 0)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if _, err := f.WriteAt(w.data, w.entry.Offset); err != nil {
				t.Fatalf("write: %v", err)
			}
			f.Close()
		} else if err := os.WriteFile(sidecar, []byte("<x:xmpmeta>\n</x:xmpmeta>"), 0o644); err != nil {
			t.Fatalf("write sidecar: %v", err)
		}
		if err := log.Append(w.entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := ReadPatchLog(log.Path())
	if err != nil {
		t.Fatalf("ReadPatchLog: %v", err)
	}
	if len(entries) != 3 || entries[0].Ts.IsZero() {
		t.Fatalf("entries = %+v", entries)
	}
	n, err := Restore(entries)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 3 {
		t.Fatalf("Restore undid %d entries, want 3", n)
	}
	if got, _ := os.ReadFile(host); string(got) != string(original) {
		t.Fatalf("host = %q, want %q", got, original)
	}
	if got, _ := os.ReadFile(sidecar); string(got) != "<x:xmpmeta/>" {
		t.Fatalf("sidecar = %q", got)
	}
}

func TestRestoreConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("xxxxCHANGEDxxxx"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	entry := PatchEntry{
		File:      path,
		Mode:      PatchPacket,
		Offset:    4,
		BeforeHex: hex.EncodeToString([]byte("ORIGINAL")),
		AfterHex:  hex.EncodeToString([]byte("WRITTEN!")),
	}
	if err := RestoreEntry(entry); !errors.Is(err, ErrPatchConflict) {
		t.Fatalf("RestoreEntry error = %v, want ErrPatchConflict", err)
	}
}

func TestAppendValidates(t *testing.T) {
	log := NewPatchLog(filepath.Join(t.TempDir(), "p.jsonl"))
	if err := log.Append(PatchEntry{Mode: PatchFile}); err == nil {
		t.Fatalf("Append accepted an entry without file")
	}
	if err := log.Append(PatchEntry{File: "a", Mode: "bytes"}); err == nil {
		t.Fatalf("Append accepted an unknown mode")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.SetTotalFiles(4)
	m.Start()
	m.AddFile("Complete", 100)
	m.AddFile("Complete", 50)
	m.AddFile("NoAcdData", 10)
	m.Stop()
	s := m.Snapshot()
	if s.Files != 3 || s.Bytes != 160 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Completion() != 0.75 {
		t.Fatalf("Completion = %v, want 0.75", s.Completion())
	}
	if got := s.StateSummary(); got != "Complete=2 NoAcdData=1" {
		t.Fatalf("StateSummary = %q", got)
	}
}

func TestDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	data := []byte("metadata")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, n, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	if n != int64(len(data)) || sum != DigestBytes(data) || len(sum) != 64 {
		t.Fatalf("DigestFile = %s, %d", sum, n)
	}
	h := NewHasher()
	h.Write(data)
	if h.Sum() != sum {
		t.Fatalf("Hasher.Sum = %s, want %s", h.Sum(), sum)
	}
}
