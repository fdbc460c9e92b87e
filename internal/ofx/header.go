// Package ofx reads OFX and QFX statements, both the SGML 1.x dialect and
// XML 2.x.
package ofx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cleared-dev/stmtimport/internal/charset"
	"github.com/cleared-dev/stmtimport/internal/model"
)

const formatName = "ofx"

// Header is the KEY:VALUE block that precedes an OFX 1.x body.
type Header struct {
	Fields   map[string]string
	Version  string
	Encoding string
	Charset  string
	// BodyLine is the line number the SGML body starts on.
	BodyLine int
}

// IsV1 reports whether b starts with an OFX 1.x header.
func IsV1(b []byte) bool {
	b = textOf(b)
	return bytes.HasPrefix(bytes.TrimLeft(b, " \t\r\n"), []byte("OFXHEADER:"))
}

// IsV2 reports whether b looks like an OFX 2.x XML document.
func IsV2(b []byte) bool {
	b = textOf(b)
	b = bytes.TrimLeft(b, " \t\r\n")
	upper := bytes.ToUpper(b[:min(len(b), 512)])
	switch {
	case bytes.HasPrefix(upper, []byte("<?OFX")), bytes.HasPrefix(upper, []byte("<OFX>")):
		return true
	case bytes.HasPrefix(upper, []byte("<?XML")):
		return bytes.Contains(upper, []byte("<?OFX")) || bytes.Contains(upper, []byte("<OFX>"))
	}
	return false
}

// textOf strips a byte-order mark, decoding UTF-16 input to UTF-8 so the
// header can be recognised.
func textOf(b []byte) []byte {
	name, rest := charset.SniffBOM(b)
	if isUTF16(name) {
		if text, _, err := charset.Decode(b, "", ""); err == nil {
			return []byte(text)
		}
	}
	return rest
}

func isUTF16(name string) bool {
	return name == charset.UTF16LE || name == charset.UTF16BE
}

// ParseHeader reads the header block of an OFX 1.x file. It returns the
// header and the byte offset of the first '<' of the body.
func ParseHeader(raw []byte) (Header, int, error) {
	end := bytes.IndexByte(raw, '<')
	if end < 0 {
		return Header{}, 0, &model.ParseError{
			Kind:   model.KindMalformedHeader,
			Format: formatName,
			Err:    fmt.Errorf("no OFX body after header"),
		}
	}

	h := Header{Fields: make(map[string]string)}
	lines := strings.Split(string(raw[:end]), "\n")
	for i, line := range lines {
		for _, tok := range strings.Fields(line) {
			key, value, ok := strings.Cut(tok, ":")
			if !ok || key == "" {
				return Header{}, 0, &model.ParseError{
					Kind:   model.KindMalformedHeader,
					Format: formatName,
					Line:   i + 1,
					Value:  tok,
				}
			}
			h.Fields[strings.ToUpper(key)] = value
		}
	}
	h.BodyLine = len(lines)
	h.Version = h.Fields["VERSION"]
	h.Encoding = h.Fields["ENCODING"]
	h.Charset = h.Fields["CHARSET"]

	switch ofxHeader, ok := h.Fields["OFXHEADER"]; {
	case !ok:
		return Header{}, 0, &model.ParseError{
			Kind:   model.KindMalformedHeader,
			Format: formatName,
			Line:   1,
			Err:    fmt.Errorf("missing OFXHEADER"),
		}
	case ofxHeader != "100":
		return Header{}, 0, &model.ParseError{
			Kind:   model.KindUnsupportedVersion,
			Format: formatName,
			Tag:    "OFXHEADER",
			Value:  ofxHeader,
		}
	}
	if h.Version != "" && !strings.HasPrefix(h.Version, "1") {
		return Header{}, 0, &model.ParseError{
			Kind:   model.KindUnsupportedVersion,
			Format: formatName,
			Tag:    "VERSION",
			Value:  h.Version,
		}
	}
	return h, end, nil
}

// checkV2Header validates the attributes of an <?OFX ...?> processing
// instruction.
func checkV2Header(inst string) (string, error) {
	attrs := make(map[string]string)
	for _, tok := range strings.Fields(inst) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		attrs[strings.ToUpper(key)] = strings.Trim(value, `"'`)
	}
	if h, ok := attrs["OFXHEADER"]; ok && h != "200" {
		return "", &model.ParseError{
			Kind:   model.KindUnsupportedVersion,
			Format: formatName,
			Tag:    "OFXHEADER",
			Value:  h,
		}
	}
	version := attrs["VERSION"]
	if version != "" && !strings.HasPrefix(version, "2") {
		return "", &model.ParseError{
			Kind:   model.KindUnsupportedVersion,
			Format: formatName,
			Tag:    "VERSION",
			Value:  version,
		}
	}
	return version, nil
}
