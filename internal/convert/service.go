// Package convert drives files through check and apply: read the ACDSee
// fields of a file's XMP packet, rewrite them into Dublin Core and Lightroom
// properties, and write the result back in place.
package convert

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"example.com/xmpgate/internal/acdsee"
	"example.com/xmpgate/internal/backup"
	"example.com/xmpgate/internal/common"
	"example.com/xmpgate/internal/container"
	"example.com/xmpgate/internal/plan"
	"example.com/xmpgate/internal/rules"
	"example.com/xmpgate/internal/xmp"
)

// File is one metadata file and the outcome of its last check or apply.
type File struct {
	Path  string
	State State
	Err   error
	// Prepared holds the bytes to commit when State is Ready: the packet for
	// packet hosts, the whole document for standalone files.
	Prepared   []byte
	Offset     int64
	Kind       container.Kind
	CheckedMod time.Time
	Size       int64
	Digest     string
	Backup     string
}

func NewFile(path string) File {
	return File{Path: path}
}

// Message is the error text, or the state description when there is none.
func (f File) Message() string {
	if f.Err != nil {
		return f.Err.Error()
	}
	return f.State.Description()
}

// Entry converts f for a saved plan.
func (f File) Entry() plan.Entry {
	e := plan.Entry{
		Path:     f.Path,
		State:    f.State.String(),
		ModTime:  f.CheckedMod,
		Size:     f.Size,
		Digest:   f.Digest,
		Offset:   f.Offset,
		Prepared: f.Prepared,
	}
	if f.Err != nil {
		e.Error = f.Err.Error()
	}
	return e
}

// FromEntry restores a file from a saved plan.
func FromEntry(e plan.Entry) (File, error) {
	st, err := ParseState(e.State)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", e.Path, err)
	}
	f := File{
		Path:       e.Path,
		State:      st,
		Prepared:   e.Prepared,
		Offset:     e.Offset,
		CheckedMod: e.ModTime,
		Size:       e.Size,
		Digest:     e.Digest,
	}
	if e.Error != "" {
		f.Err = errors.New(e.Error)
	}
	return f, nil
}

// Service checks and applies conversions. A zero Service uses the embedded
// rule pack, keeps backups next to the files and writes no audit log.
type Service struct {
	Engine   *rules.Engine
	Backup   backup.Options
	Audit    *common.PatchLog
	Observer xmp.Observer
	Now      func() time.Time
	Metrics  *common.Metrics
	// Progress, when set, is called once per file processed by Run.
	Progress func(index int, f File)
}

func NewService(engine *rules.Engine) *Service {
	return &Service{Engine: engine}
}

var (
	defaultEngineOnce sync.Once
	defaultEngine     *rules.Engine
)

func (s *Service) engine() *rules.Engine {
	if s.Engine != nil {
		return s.Engine
	}
	defaultEngineOnce.Do(func() { defaultEngine = rules.NewEngine(rules.Default()) })
	return defaultEngine
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RulePackRef names the rule pack in use, as "id@version".
func (s *Service) RulePackRef() string {
	rp := s.engine().RulePack()
	return rules.RulePackRef{RulePackId: rp.RulePackId, Version: rp.Version}.String()
}

func (s *Service) documentOptions() []xmp.Option {
	if s.Observer == nil {
		return nil
	}
	return []xmp.Option{xmp.WithObserver(s.Observer)}
}

// Check computes the rewrite for f without modifying the file.
func (s *Service) Check(ctx context.Context, f File) File {
	out := File{Path: f.Path}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return fail(out, IoError, err)
	}
	defer fh.Close()
	if err := out.stat(fh); err != nil {
		return fail(out, IoError, err)
	}
	return s.evaluate(out, fh)
}

// evaluate runs the read, extract, rewrite and prepare steps on an open
// handle and returns f with the resulting state.
func (s *Service) evaluate(f File, h container.Handle) File {
	c, err := container.Open(h)
	if err != nil {
		return fail(f, ContainerError, err)
	}
	f.Kind = c.Kind()
	doc, err := c.ReadDocument(s.documentOptions()...)
	if err != nil {
		return fail(f, ContainerError, err)
	}
	if doc == nil {
		f.State = NoXmpData
		return f
	}
	data, err := acdsee.Extract(doc)
	if err != nil {
		return fail(f, InvalidAcdseeData, err)
	}
	rs, err := s.engine().Build(data)
	if errors.Is(err, rules.ErrNoAcdData) {
		f.State = NoAcdData
		return f
	}
	if err != nil {
		return fail(f, XmpRewriteError, err)
	}
	events, err := xmp.Rewrite(doc, rs, xmp.WithClock(s.now))
	if err != nil {
		return fail(f, XmpRewriteError, err)
	}
	prepared, err := c.Prepare(events)
	if err != nil {
		return fail(f, RewriteError, err)
	}
	f.Prepared = prepared
	if c.Kind() == container.KindPacket {
		f.Offset = c.Location().Range.Start
	}
	f.State = Ready
	return f
}

// Apply writes the prepared rewrite of f. The file is checked again first
// when it changed since f was computed, or when f was never checked.
func (s *Service) Apply(ctx context.Context, f File) File {
	if err := ctx.Err(); err != nil {
		f.Err = err
		return f
	}
	fh, err := os.OpenFile(f.Path, os.O_RDWR, 0)
	if err != nil {
		return fail(File{Path: f.Path}, IoError, err)
	}
	defer fh.Close()

	current := File{Path: f.Path}
	if err := current.stat(fh); err != nil {
		return fail(current, IoError, err)
	}
	stale := f.State != Ready || f.CheckedMod.IsZero() ||
		plan.Entry{ModTime: f.CheckedMod, Digest: f.Digest}.Stale(current.CheckedMod, current.Digest)
	if stale {
		f = s.evaluate(current, fh)
	}
	if f.State != Ready {
		return f
	}

	bak, err := backup.Create(f.Path, s.Backup)
	if err != nil {
		return fail(f, BackupError, err)
	}
	f.Backup = bak

	c, err := container.Open(fh)
	if err != nil {
		return fail(f, ContainerError, err)
	}
	offset, before, err := c.Current()
	if err != nil {
		return fail(f, ContainerError, err)
	}
	if err := c.Commit(f.Prepared); err != nil {
		return fail(f, ApplyError, err)
	}
	s.audit(f, c.Kind(), offset, before)

	written := File{Path: f.Path}
	if err := written.stat(fh); err != nil {
		return fail(f, IoError, err)
	}
	f.CheckedMod = written.CheckedMod
	f.Size = written.Size
	f.Digest = written.Digest
	f.Prepared = nil
	f.State = Complete
	f.Err = nil
	return f
}

func (s *Service) audit(f File, kind container.Kind, offset int64, before []byte) {
	if s.Audit == nil {
		return
	}
	entry := common.PatchEntry{
		File:      f.Path,
		Mode:      common.PatchPacket,
		Offset:    offset,
		BeforeHex: hex.EncodeToString(before),
		AfterHex:  hex.EncodeToString(f.Prepared),
		Digest:    common.DigestBytes(f.Prepared),
		RulePack:  s.RulePackRef(),
		Ts:        s.now().UTC(),
	}
	if kind == container.KindStandalone {
		entry.Mode = common.PatchFile
		entry.Offset = 0
	}
	if err := s.Audit.Append(entry); err != nil {
		common.Logf("audit %s: %v", f.Path, err)
	}
}

// stat records size, modification time and digest of the open file and
// rewinds it.
func (f *File) stat(fh *os.File) error {
	info, err := fh.Stat()
	if err != nil {
		return err
	}
	f.CheckedMod = info.ModTime()
	f.Size = info.Size()
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h := common.NewHasher()
	if _, err := io.Copy(h, fh); err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	f.Digest = h.Sum()
	_, err = fh.Seek(0, io.SeekStart)
	return err
}

func fail(f File, st State, err error) File {
	f.State = st
	f.Err = err
	f.Prepared = nil
	return f
}
