package acdsee

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrInvalidCategories is returned when the embedded category markup cannot
// be decoded.
var ErrInvalidCategories = errors.New("invalid acdsee categories")

const pathKeySep = "\x00"

// TagHierarchy is a set of tag paths. Each path lists the category names from
// the root down to the assigned tag.
type TagHierarchy struct {
	paths map[string][]string
}

// NewTagHierarchy returns a hierarchy holding paths.
func NewTagHierarchy(paths ...[]string) *TagHierarchy {
	h := &TagHierarchy{}
	for _, p := range paths {
		h.Add(p)
	}
	return h
}

// Add inserts path. Duplicate paths are ignored.
func (h *TagHierarchy) Add(path []string) {
	if len(path) == 0 {
		return
	}
	if h.paths == nil {
		h.paths = make(map[string][]string)
	}
	key := strings.Join(path, pathKeySep)
	if _, ok := h.paths[key]; ok {
		return
	}
	h.paths[key] = append([]string(nil), path...)
}

// Contains reports whether path is in the hierarchy.
func (h *TagHierarchy) Contains(path []string) bool {
	if h == nil {
		return false
	}
	_, ok := h.paths[strings.Join(path, pathKeySep)]
	return ok
}

func (h *TagHierarchy) Len() int {
	if h == nil {
		return 0
	}
	return len(h.paths)
}

// Paths returns copies of all paths in lexical order.
func (h *TagHierarchy) Paths() [][]string {
	if h == nil {
		return nil
	}
	keys := make([]string, 0, len(h.paths))
	for k := range h.paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, append([]string(nil), h.paths[k]...))
	}
	return out
}

// Joined returns every path flattened with sep, in lexical order.
func (h *TagHierarchy) Joined(sep string) []string {
	paths := h.Paths()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, strings.Join(p, sep))
	}
	return out
}

func (h *TagHierarchy) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Paths())
}

type category struct {
	name     string
	assigned bool
}

// ParseCategories decodes the category markup ACDSee stores as text inside
// acdsee:categories. Every Category element with Assigned="1" contributes
// the path of category names leading to it.
func ParseCategories(s string) (*TagHierarchy, error) {
	h := NewTagHierarchy()
	if strings.TrimSpace(s) == "" {
		return h, nil
	}
	d := xml.NewDecoder(strings.NewReader(s))
	var stack []category
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCategories, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "Category" {
				continue
			}
			c := category{}
			for _, a := range t.Attr {
				if a.Name.Local == "Assigned" {
					c.assigned = a.Value == "1"
				}
			}
			stack = append(stack, c)
		case xml.EndElement:
			if t.Name.Local != "Category" || len(stack) == 0 {
				continue
			}
			if stack[len(stack)-1].assigned {
				path := make([]string, len(stack))
				for i, c := range stack {
					path[i] = c.name
				}
				h.Add(path)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text != "" && len(stack) > 0 {
				stack[len(stack)-1].name = text
			}
		}
	}
	return h, nil
}
