package xmp

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const singleDescription = `
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:acdsee="http://ns.acdsee.com/iptc/1.0/" acdsee:author="Ana">
   <acdsee:caption>Sunset</acdsee:caption>
   <acdsee:notes/>
   <acdsee:categories><![CDATA[<Categories><Category Assigned="1">Places</Category></Categories>]]></acdsee:categories>
   <acdsee:collections><rdf:Bag/></acdsee:collections>
   <acdsee:keywords>
    <rdf:Bag>
     <rdf:li>sea</rdf:li>
     <rdf:li>sky &amp; clouds</rdf:li>
    </rdf:Bag>
   </acdsee:keywords>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
`

func TestParseEvents(t *testing.T) {
	doc, err := Parse([]byte(singleDescription))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	events := doc.Events()
	if events[0].Kind != StartDocument {
		t.Fatalf("first event = %v, want StartDocument", events[0].Kind)
	}
	for _, e := range events {
		if e.Kind == Characters && (e.Text == "" || e.Text != strings.TrimSpace(e.Text)) {
			t.Fatalf("untrimmed text event %q", e.Text)
		}
	}
	desc := events[3]
	if !desc.IsStart(NSRDF, "Description") {
		t.Fatalf("events[3] = %+v, want rdf:Description start", desc)
	}
	wantBindings := []Binding{{Prefix: "acdsee", URI: NSACDSee}}
	if !reflect.DeepEqual(desc.Bindings, wantBindings) {
		t.Fatalf("Bindings = %+v, want %+v", desc.Bindings, wantBindings)
	}
	wantAttrs := []Attr{
		{Name: Name{Space: NSRDF, Local: "about", Prefix: "rdf"}, Value: ""},
		{Name: Name{Space: NSACDSee, Local: "author", Prefix: "acdsee"}, Value: "Ana"},
	}
	if !reflect.DeepEqual(desc.Attrs, wantAttrs) {
		t.Fatalf("Attrs = %+v, want %+v", desc.Attrs, wantAttrs)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unbound prefix", body: `<rdf:RDF/>`},
		{name: "mismatched end", body: `<a><b></a></b>`},
		{name: "unclosed", body: `<a><b></b>`},
		{name: "garbage", body: `<a attr=novalue/>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			var syn *SyntaxError
			if !errors.As(err, &syn) {
				t.Fatalf("err = %v, want *SyntaxError", err)
			}
		})
	}
}

func TestTagValue(t *testing.T) {
	doc, err := Parse([]byte(singleDescription))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tests := []struct {
		field string
		want  string
		found bool
	}{
		{field: "author", want: "Ana", found: true},
		{field: "caption", want: "Sunset", found: true},
		{field: "notes", want: "", found: true},
		{field: "categories", want: `<Categories><Category Assigned="1">Places</Category></Categories>`, found: true},
		{field: "collections", found: false},
		{field: "rating", found: false},
	}
	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			got, found := doc.TagValue(tc.field)
			if found != tc.found {
				t.Fatalf("found = %v, want %v", found, tc.found)
			}
			if got != tc.want {
				t.Fatalf("TagValue(%s) = %q, want %q", tc.field, got, tc.want)
			}
		})
	}
}

func TestTagValueAttributeWins(t *testing.T) {
	body := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:acdsee="http://ns.acdsee.com/iptc/1.0/">
 <rdf:Description acdsee:caption="from attribute">
  <acdsee:caption>from element</acdsee:caption>
 </rdf:Description>
</rdf:RDF>`
	var traces []Trace
	doc, err := Parse([]byte(body), WithObserver(ObserverFunc(func(tr Trace) { traces = append(traces, tr) })))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, ok := doc.TagValue("caption")
	if !ok || got != "from attribute" {
		t.Fatalf("TagValue = %q, %v; want attribute value", got, ok)
	}
	if len(traces) != 1 || traces[0].Source != SourceAttribute || !traces[0].Found {
		t.Fatalf("traces = %+v, want one attribute trace", traces)
	}
	if traces[0].Field.Local != "caption" {
		t.Fatalf("trace field = %v", traces[0].Field)
	}
}

func TestBagValues(t *testing.T) {
	doc, err := Parse([]byte(singleDescription))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, ok := doc.BagValues(NSACDSee, "keywords")
	if !ok {
		t.Fatalf("keywords not found")
	}
	want := []string{"sea", "sky & clouds"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BagValues = %q, want %q", got, want)
	}
	empty, ok := doc.BagValues(NSACDSee, "collections")
	if !ok || len(empty) != 0 {
		t.Fatalf("collections = %q, %v; want empty and found", empty, ok)
	}
	if _, ok := doc.BagValues(NSDC, "subject"); ok {
		t.Fatalf("dc:subject reported present")
	}
}

func TestDocumentEventsAreCopies(t *testing.T) {
	doc, err := Parse([]byte(singleDescription))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	events := doc.Events()
	events[3].Attrs[1].Value = "changed"
	if got, _ := doc.TagValue("author"); got != "Ana" {
		t.Fatalf("document modified through Events copy: author = %q", got)
	}
}
