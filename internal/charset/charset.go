// Package charset normalizes statement bytes to UTF-8 text.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// Canonical names returned by Lookup and Decode.
const (
	UTF8        = "UTF-8"
	UTF16LE     = "UTF-16LE"
	UTF16BE     = "UTF-16BE"
	Windows1252 = "windows-1252"
	Latin1      = "ISO-8859-1"
)

type known struct {
	name string
	enc  encoding.Encoding
}

var aliases = map[string]known{
	"UTF-8":        {UTF8, unicode.UTF8},
	"UTF8":         {UTF8, unicode.UTF8},
	"UTF-16":       {UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	"UTF-16LE":     {UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	"UTF-16BE":     {UTF16BE, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	"USASCII":      {Windows1252, charmap.Windows1252},
	"US-ASCII":     {Windows1252, charmap.Windows1252},
	"ASCII":        {Windows1252, charmap.Windows1252},
	"1252":         {Windows1252, charmap.Windows1252},
	"CP1252":       {Windows1252, charmap.Windows1252},
	"WINDOWS-1252": {Windows1252, charmap.Windows1252},
	"ISO-8859-1":   {Latin1, charmap.ISO8859_1},
	"ISO8859-1":    {Latin1, charmap.ISO8859_1},
	"8859-1":       {Latin1, charmap.ISO8859_1},
	"LATIN1":       {Latin1, charmap.ISO8859_1},
	"LATIN-1":      {Latin1, charmap.ISO8859_1},
}

// Lookup resolves a charset label to an encoding and its canonical name.
func Lookup(name string) (encoding.Encoding, string, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
	if k, ok := aliases[key]; ok {
		return k.enc, k.name, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, "", &model.ParseError{Kind: model.KindEncoding, Value: name, Err: err}
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = name
	}
	return enc, canonical, nil
}

// SniffBOM detects a byte-order mark. It returns the encoding name and the
// input with the mark removed, or an empty name when there is none.
func SniffBOM(b []byte) (string, []byte) {
	switch {
	case bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8, b[3:]
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		return UTF16LE, b[2:]
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		return UTF16BE, b[2:]
	}
	return "", b
}

// Decode converts raw bytes to UTF-8 text. A byte-order mark wins over the
// override, which wins over the fallback. It returns the canonical name of
// the encoding that was applied.
func Decode(raw []byte, override, fallback string) (string, string, error) {
	name, body := SniffBOM(raw)
	if name == "" {
		name = override
	}
	if name == "" {
		name = fallback
	}
	if name == "" {
		name = UTF8
	}

	enc, canonical, err := Lookup(name)
	if err != nil {
		return "", "", err
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", "", &model.ParseError{Kind: model.KindEncoding, Value: canonical, Err: err}
	}
	return string(out), canonical, nil
}

// OfxV1Charset maps the ENCODING and CHARSET header values of an OFX 1.x
// file to a charset name.
func OfxV1Charset(encodingHeader, charsetHeader string) string {
	enc := strings.ToUpper(strings.TrimSpace(encodingHeader))
	cs := strings.ToUpper(strings.TrimSpace(charsetHeader))

	switch {
	case enc == "UTF-8" || enc == "UTF8":
		// CSUNICODE is what some banks write for Latin-1 content.
		if cs == "CSUNICODE" {
			return Latin1
		}
		return UTF8
	case enc == "USASCII" || enc == "US-ASCII":
		switch {
		case cs == "1252":
			return Windows1252
		case strings.Contains(cs, "8859-1"):
			return Latin1
		case cs == "NONE":
			return Windows1252
		}
	}
	return Windows1252
}

// XMLCharsetReader plugs into xml.Decoder.CharsetReader.
func XMLCharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, _, err := Lookup(label)
	if err != nil {
		return nil, fmt.Errorf("xml charset %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
