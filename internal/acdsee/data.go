// Package acdsee reads the proprietary ACDSee fields out of a parsed XMP
// document.
package acdsee

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/xmpgate/internal/xmp"
)

// DateTimeLayout is the local timestamp format of acdsee:datetime. Fractional
// seconds are accepted when parsing.
const DateTimeLayout = "2006-01-02T15:04:05"

var ErrInvalidDate = errors.New("invalid acdsee datetime")

// Data holds the ACDSee fields found in a document. Nil fields were absent or
// empty.
type Data struct {
	Caption     *string       `json:"caption,omitempty"`
	DateTime    *time.Time    `json:"datetime,omitempty"`
	Author      *string       `json:"author,omitempty"`
	Rating      *int          `json:"rating,omitempty"`
	Notes       *string       `json:"notes,omitempty"`
	Tagged      *bool         `json:"tagged,omitempty"`
	Categories  *TagHierarchy `json:"categories,omitempty"`
	Collections *string       `json:"collections,omitempty"`
	Keywords    []string      `json:"keywords,omitempty"`
}

// IsEmpty reports whether no field was found.
func (d *Data) IsEmpty() bool {
	return d.Caption == nil &&
		d.DateTime == nil &&
		d.Author == nil &&
		d.Rating == nil &&
		d.Notes == nil &&
		d.Tagged == nil &&
		d.Categories == nil &&
		d.Collections == nil &&
		len(d.Keywords) == 0
}

// Extract reads every ACDSee field of doc. An unparsable rating is treated as
// absent; an unparsable datetime or category block is an error.
func Extract(doc *xmp.Document) (*Data, error) {
	d := &Data{
		Caption:     text(doc, "caption"),
		Author:      text(doc, "author"),
		Notes:       text(doc, "notes"),
		Collections: text(doc, "collections"),
	}
	if v := text(doc, "datetime"); v != nil {
		ts, err := time.ParseInLocation(DateTimeLayout, *v, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidDate, *v, err)
		}
		d.DateTime = &ts
	}
	if v := text(doc, "rating"); v != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(*v)); err == nil {
			d.Rating = &n
		}
	}
	if v := text(doc, "tagged"); v != nil {
		tagged := strings.EqualFold(*v, "true")
		d.Tagged = &tagged
	}
	if v := text(doc, "categories"); v != nil {
		h, err := ParseCategories(*v)
		if err != nil {
			return nil, err
		}
		d.Categories = h
	}
	if kw, ok := doc.BagValues(xmp.NSACDSee, "keywords"); ok {
		d.Keywords = kw
	}
	return d, nil
}

func text(doc *xmp.Document, local string) *string {
	v, ok := doc.TagValue(local)
	if !ok || v == "" {
		return nil
	}
	return &v
}
