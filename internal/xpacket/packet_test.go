package xpacket

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testHeader = `<?xpacket begin="` + "\xef\xbb\xbf" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>`

func buildPacket(body, footer string) []byte {
	return []byte(testHeader + body + footer)
}

func TestLocate(t *testing.T) {
	packet := buildPacket("\n<x:xmpmeta/>\n", `<?xpacket end="w"?>`)
	host := append([]byte("\xff\xd8\xff\xe1 jpeg prefix "), packet...)
	host = append(host, []byte(" trailing image data ?> more")...)

	loc, err := Locate(bytes.NewReader(host))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !loc.Found {
		t.Fatalf("Locate did not find the packet")
	}
	got := host[loc.Range.Start:loc.Range.End]
	if !bytes.Equal(got, packet) {
		t.Fatalf("located %q, want %q", got, packet)
	}
	if !bytes.HasPrefix(got, []byte("<?xpacket begin")) || !bytes.HasSuffix(got, []byte("?>")) {
		t.Fatalf("range %s does not start and end on markers", loc.Range)
	}
}

func TestLocateMissingMarkers(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "no begin", data: "plain image bytes"},
		{name: "no end", data: testHeader + "<x:xmpmeta/>"},
		{name: "no close", data: "<?xpacket begin= <?xpacket end=\"w\""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := Locate(bytes.NewReader([]byte(tc.data)))
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			if loc.Found {
				t.Fatalf("Locate found %s, want nothing", loc.Range)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		body   string
		footer string
	}{
		{name: "double quotes", data: buildPacket("<a/>", `<?xpacket end="w"?>`), body: "<a/>", footer: `<?xpacket end="w"?>`},
		{name: "single quotes", data: buildPacket("<a/>", `<?xpacket end='w'?>`), body: "<a/>", footer: `<?xpacket end='w'?>`},
		{name: "trailing newline", data: buildPacket("\n<a/>\n", "<?xpacket end=\"w\"?>\n"), body: "\n<a/>\n", footer: `<?xpacket end="w"?>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Split(tc.data)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			if string(p.Header()) != testHeader {
				t.Fatalf("Header = %q, want %q", p.Header(), testHeader)
			}
			if string(p.Body()) != tc.body {
				t.Fatalf("Body = %q, want %q", p.Body(), tc.body)
			}
			if string(p.Footer()) != tc.footer {
				t.Fatalf("Footer = %q, want %q", p.Footer(), tc.footer)
			}
			if p.Len() != len(tc.data) {
				t.Fatalf("Len = %d, want %d", p.Len(), len(tc.data))
			}
		})
	}
}

func TestSplitErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "missing header", data: `<x:xmpmeta/><?xpacket end="w"?>`, want: ErrMissingHeader},
		{name: "missing footer", data: testHeader + "<a/>", want: ErrMissingFooter},
		{name: "unquoted footer", data: testHeader + "<a/><?xpacket end=w?>", want: ErrMissingFooter},
		{name: "missing header boundary", data: `<?xpacket begin=""<?xpacket end="w"?>`, want: ErrMissingHeaderBoundary},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split([]byte(tc.data))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMutablePacketBodyWrites(t *testing.T) {
	data := buildPacket("0123456789", `<?xpacket end="w"?>`)
	p, err := SplitMutable(data)
	if err != nil {
		t.Fatalf("SplitMutable: %v", err)
	}
	if p.BodyLen() != 10 {
		t.Fatalf("BodyLen = %d, want 10", p.BodyLen())
	}
	p.FillBody(' ')
	if err := p.WriteBody(1, []byte("xy")); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if got := string(p.Body()); got != " xy       " {
		t.Fatalf("Body = %q", got)
	}
	if err := p.WriteBody(9, []byte("zz")); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("WriteBody past end err = %v, want ErrOutOfBounds", err)
	}
	if string(p.Header()) != testHeader || string(p.Footer()) != `<?xpacket end="w"?>` {
		t.Fatalf("header or footer changed: %q %q", p.Header(), p.Footer())
	}
	if len(p.Bytes()) != len(data) {
		t.Fatalf("packet length changed to %d", len(p.Bytes()))
	}
}

func TestFileReadWritePacket(t *testing.T) {
	packet := buildPacket("<body/>", `<?xpacket end="w"?>`)
	host := append([]byte("HEAD"), packet...)
	host = append(host, []byte("TAIL")...)
	path := filepath.Join(t.TempDir(), "host.jpg")
	if err := os.WriteFile(path, host, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	pf, err := OpenFile(f)
	if err != nil {
		t.Fatalf("xpacket.OpenFile: %v", err)
	}
	got, err := pf.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(got, packet) {
		t.Fatalf("ReadPacket = %q, want %q", got, packet)
	}
	if err := pf.WritePacket([]byte("short")); !errors.Is(err, ErrWrongPacketSize) {
		t.Fatalf("WritePacket short err = %v, want ErrWrongPacketSize", err)
	}
	replacement := buildPacket("<BODY/>", `<?xpacket end="w"?>`)
	if err := pf.WritePacket(replacement); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := append([]byte("HEAD"), replacement...)
	want = append(want, []byte("TAIL")...)
	if !bytes.Equal(out, want) {
		t.Fatalf("file = %q, want %q", out, want)
	}
}

func TestFileWithoutPacket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.tif")
	if err := os.WriteFile(path, []byte("II*\x00 no metadata"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	pf, err := OpenFile(f)
	if err != nil {
		t.Fatalf("xpacket.OpenFile: %v", err)
	}
	data, err := pf.ReadPacket()
	if err != nil || data != nil {
		t.Fatalf("ReadPacket = %q, %v; want nil, nil", data, err)
	}
	if err := pf.WritePacket([]byte("x")); !errors.Is(err, ErrNoPacket) {
		t.Fatalf("WritePacket err = %v, want ErrNoPacket", err)
	}
}
