// Package plan persists check results so a later apply can reuse them.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is written into every plan; Load rejects other versions.
const FormatVersion = 1

var ErrVersion = errors.New("unsupported plan version")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("plan: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("plan: CBOR decoder initialization failed: " + err.Error())
	}
}

// Entry is the check result for one file. Prepared holds the bytes apply
// will write when the file is unchanged.
type Entry struct {
	Path     string    `cbor:"path"`
	State    string    `cbor:"state"`
	Error    string    `cbor:"error,omitempty"`
	ModTime  time.Time `cbor:"modTime"`
	Size     int64     `cbor:"size"`
	Digest   string    `cbor:"digest,omitempty"`
	Offset   int64     `cbor:"offset,omitempty"`
	Prepared []byte    `cbor:"prepared,omitempty"`
}

// Stale reports whether the file changed since the entry was recorded.
func (e Entry) Stale(modTime time.Time, digest string) bool {
	if modTime.After(e.ModTime) {
		return true
	}
	return digest != "" && e.Digest != "" && digest != e.Digest
}

type Plan struct {
	Version  int       `cbor:"version"`
	Created  time.Time `cbor:"created"`
	RulePack string    `cbor:"rulePack"`
	Entries  []Entry   `cbor:"entries"`
}

func New(rulePack string, now time.Time) *Plan {
	return &Plan{Version: FormatVersion, Created: now.UTC(), RulePack: rulePack}
}

// Ready returns the entries apply can write.
func (p *Plan) Ready(readyState string) []Entry {
	var out []Entry
	for _, e := range p.Entries {
		if e.State == readyState {
			out = append(out, e)
		}
	}
	return out
}

func Marshal(p *Plan) ([]byte, error) {
	return encMode.Marshal(p)
}

func Unmarshal(data []byte) (*Plan, error) {
	var p Plan
	if err := decMode.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.Version != FormatVersion {
		return nil, fmt.Errorf("%w %d", ErrVersion, p.Version)
	}
	return &p, nil
}

// Save writes the plan atomically.
func Save(path string, p *Plan) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
