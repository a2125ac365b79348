package acdsee

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"example.com/xmpgate/internal/xmp"
)

const fullBody = `<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:acdsee="http://ns.acdsee.com/iptc/1.0/"
    acdsee:caption="Harbour" acdsee:rating="3" acdsee:tagged="True">
   <acdsee:author>Ana</acdsee:author>
   <acdsee:datetime>2019-07-14T18:30:05.120</acdsee:datetime>
   <acdsee:notes></acdsee:notes>
   <acdsee:collections>Trips</acdsee:collections>
   <acdsee:categories>&lt;Categories&gt;&lt;Category Assigned="0"&gt;Places&lt;Category Assigned="1"&gt;Lisbon&lt;/Category&gt;&lt;/Category&gt;&lt;/Categories&gt;</acdsee:categories>
   <acdsee:keywords><rdf:Bag><rdf:li>boat</rdf:li><rdf:li>dusk</rdf:li></rdf:Bag></acdsee:keywords>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>`

func parse(t *testing.T, body string) *xmp.Document {
	t.Helper()
	doc, err := xmp.Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestExtract(t *testing.T) {
	d, err := Extract(parse(t, fullBody))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d.Caption == nil || *d.Caption != "Harbour" {
		t.Fatalf("Caption = %v, want Harbour", d.Caption)
	}
	if d.Author == nil || *d.Author != "Ana" {
		t.Fatalf("Author = %v, want Ana", d.Author)
	}
	if d.Notes != nil {
		t.Fatalf("Notes = %q, want absent", *d.Notes)
	}
	if d.Rating == nil || *d.Rating != 3 {
		t.Fatalf("Rating = %v, want 3", d.Rating)
	}
	if d.Tagged == nil || !*d.Tagged {
		t.Fatalf("Tagged = %v, want true", d.Tagged)
	}
	if d.Collections == nil || *d.Collections != "Trips" {
		t.Fatalf("Collections = %v", d.Collections)
	}
	want := time.Date(2019, 7, 14, 18, 30, 5, 120_000_000, time.Local)
	if d.DateTime == nil || !d.DateTime.Equal(want) {
		t.Fatalf("DateTime = %v, want %v", d.DateTime, want)
	}
	if got := d.Categories.Joined("|"); !reflect.DeepEqual(got, []string{"Places|Lisbon"}) {
		t.Fatalf("Categories = %q", got)
	}
	if !reflect.DeepEqual(d.Keywords, []string{"boat", "dusk"}) {
		t.Fatalf("Keywords = %q", d.Keywords)
	}
	if d.IsEmpty() {
		t.Fatalf("IsEmpty = true")
	}
}

func TestExtractEmpty(t *testing.T) {
	body := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description/></rdf:RDF>`
	d, err := Extract(parse(t, body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !d.IsEmpty() {
		t.Fatalf("IsEmpty = false for %+v", d)
	}
}

func TestExtractInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		attrs   string
		wantErr error
	}{
		{name: "bad date", attrs: `acdsee:datetime="yesterday"`, wantErr: ErrInvalidDate},
		{name: "bad categories", attrs: `acdsee:categories="&lt;Categories&gt;&lt;Category"`, wantErr: ErrInvalidCategories},
		{name: "bad rating", attrs: `acdsee:rating="five"`},
		{name: "tagged false", attrs: `acdsee:tagged="no"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:acdsee="http://ns.acdsee.com/iptc/1.0/"><rdf:Description ` + tc.attrs + `/></rdf:RDF>`
			d, err := Extract(parse(t, body))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if d.Rating != nil {
				t.Fatalf("Rating = %d, want absent", *d.Rating)
			}
			if d.Tagged != nil && *d.Tagged {
				t.Fatalf("Tagged = true")
			}
		})
	}
}
