package convert

import (
	"context"
	"fmt"
	"os"

	"example.com/xmpgate/internal/acdsee"
	"example.com/xmpgate/internal/container"
	"example.com/xmpgate/internal/rules"
	"example.com/xmpgate/internal/xmp"
	"example.com/xmpgate/internal/xpacket"
)

// Inspection describes the metadata found in a file without changing it.
type Inspection struct {
	Path     string          `json:"path"`
	Kind     string          `json:"kind"`
	Packet   *xpacket.Range  `json:"packet,omitempty"`
	Data     *acdsee.Data    `json:"acdsee,omitempty"`
	Mappings []rules.Mapping `json:"mappings,omitempty"`
	Reads    []xmp.Trace     `json:"reads,omitempty"`
}

// Inspect reads the ACDSee fields of path and resolves them against the rule
// pack. A file without metadata yields an Inspection with no Data.
func (s *Service) Inspect(ctx context.Context, path string) (*Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	c, err := container.Open(fh)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	ins := &Inspection{Path: path, Kind: c.Kind().String()}
	if loc := c.Location(); loc.Found {
		r := loc.Range
		ins.Packet = &r
	}
	reads := xmp.ObserverFunc(func(t xmp.Trace) {
		ins.Reads = append(ins.Reads, t)
		if s.Observer != nil {
			s.Observer.FieldRead(t)
		}
	})
	doc, err := c.ReadDocument(xmp.WithObserver(reads))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if doc == nil {
		return ins, nil
	}
	data, err := acdsee.Extract(doc)
	if err != nil {
		return nil, err
	}
	ins.Data = data
	mappings, err := s.engine().Eval(data)
	if err != nil {
		return nil, err
	}
	ins.Mappings = mappings
	return ins, nil
}
