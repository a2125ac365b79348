package xmp

// Namespace URIs read and written by the converter.
const (
	NSRDF    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSACDSee = "http://ns.acdsee.com/iptc/1.0/"
	NSXMP    = "http://ns.adobe.com/xap/1.0/"
	NSXMPMM  = "http://ns.adobe.com/xap/1.0/mm/"
	NSStEvt  = "http://ns.adobe.com/xap/1.0/sType/ResourceEvent#"
	NSDC     = "http://purl.org/dc/elements/1.1/"
	NSCRS    = "http://ns.adobe.com/camera-raw-settings/1.0/"
	NSLR     = "http://ns.adobe.com/lightroom/1.0/"

	nsXML   = "http://www.w3.org/XML/1998/namespace"
	nsXMLNS = "http://www.w3.org/2000/xmlns/"
)

// Conventional prefixes, used when a namespace has to be declared.
var defaultPrefixes = map[string]string{
	NSRDF:    "rdf",
	NSACDSee: "acdsee",
	NSXMP:    "xmp",
	NSXMPMM:  "xmpMM",
	NSStEvt:  "stEvt",
	NSDC:     "dc",
	NSCRS:    "crs",
	NSLR:     "lr",
}

// DefaultPrefix returns the conventional prefix for a known namespace URI.
func DefaultPrefix(uri string) (string, bool) {
	p, ok := defaultPrefixes[uri]
	return p, ok
}

// Description is the rdf:Description element name.
var Description = Name{Space: NSRDF, Local: "Description", Prefix: "rdf"}

func rdfName(local string) Name {
	return Name{Space: NSRDF, Local: local, Prefix: "rdf"}
}
