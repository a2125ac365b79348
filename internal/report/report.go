package report

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"example.com/xmpgate/internal/common"
	"example.com/xmpgate/internal/convert"
)

// FileResult is the outcome recorded for one file.
type FileResult struct {
	Path    string        `json:"path"`
	State   convert.State `json:"state"`
	Message string        `json:"message,omitempty"`
	Kind    string        `json:"kind,omitempty"`
	Size    int64         `json:"size,omitempty"`
	Digest  string        `json:"digest,omitempty"`
	Backup  string        `json:"backup,omitempty"`
}

func FromFile(f convert.File) FileResult {
	r := FileResult{
		Path:   f.Path,
		State:  f.State,
		Size:   f.Size,
		Digest: f.Digest,
		Backup: f.Backup,
	}
	if f.Err != nil {
		r.Message = f.Err.Error()
	}
	if f.State != convert.Init && f.State != convert.IoError && f.State != convert.ContainerError {
		r.Kind = f.Kind.String()
	}
	return r
}

type Summary struct {
	Total    int            `json:"total"`
	Complete int            `json:"complete"`
	Ready    int            `json:"ready"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	States   map[string]int `json:"states"`
}

// BatchReport summarises a check or apply run.
type BatchReport struct {
	Generated time.Time    `json:"generated"`
	RulePack  string       `json:"rulePack"`
	Summary   Summary      `json:"summary"`
	Files     []FileResult `json:"files"`
	Digest    string       `json:"digest"`
}

// New builds a report over files, sorted by path.
func New(rulePack string, generated time.Time, files []convert.File) BatchReport {
	rep := BatchReport{
		Generated: generated.UTC(),
		RulePack:  rulePack,
		Files:     make([]FileResult, 0, len(files)),
	}
	for _, f := range files {
		rep.Files = append(rep.Files, FromFile(f))
	}
	sort.Slice(rep.Files, func(i, j int) bool { return rep.Files[i].Path < rep.Files[j].Path })
	rep.Summary = summarize(rep.Files)
	rep.Digest = digest(rep.Files)
	return rep
}

func summarize(files []FileResult) Summary {
	s := Summary{Total: len(files), States: make(map[string]int)}
	for _, f := range files {
		s.States[f.State.String()]++
		switch {
		case f.State == convert.Complete:
			s.Complete++
		case f.State == convert.Ready:
			s.Ready++
		case f.State.Failed():
			s.Failed++
		default:
			s.Skipped++
		}
	}
	return s
}

// digest hashes the per-file results so a printed report can be matched to
// its JSON.
func digest(files []FileResult) string {
	b, err := json.Marshal(files)
	if err != nil {
		return ""
	}
	return common.DigestBytes(b)
}

// Verify recomputes the digest of rep's files.
func Verify(rep BatchReport) bool {
	return rep.Digest != "" && rep.Digest == digest(rep.Files)
}

func SaveJSON(rep BatchReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (BatchReport, error) {
	var rep BatchReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
