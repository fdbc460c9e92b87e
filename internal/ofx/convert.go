package ofx

import (
	"encoding/xml"
	"fmt"
	"html"
	"strings"

	"github.com/cleared-dev/stmtimport/internal/charset"
	"github.com/cleared-dev/stmtimport/internal/model"
)

const xmlDecl = `<?xml version="1.0" encoding="UTF-8"?>`

type tokenKind int

const (
	tokStart tokenKind = iota
	tokEnd
	tokText
)

type token struct {
	kind tokenKind
	name string
	text string
	line int
}

// Converted is an OFX 1.x file rewritten as XML.
type Converted struct {
	XML      string
	Header   Header
	Encoding string
}

// ConvertV1ToV2 decodes an OFX 1.x file and rewrites its SGML body as a
// well-formed UTF-8 XML document.
func ConvertV1ToV2(raw []byte, opts model.ParseOptions) (*Converted, error) {
	bom, rest := charset.SniffBOM(raw)
	if isUTF16(bom) {
		// The header itself is UTF-16, so decode the whole file first.
		text, enc, err := charset.Decode(raw, "", "")
		if err != nil {
			return nil, fmt.Errorf("decoding OFX: %w", err)
		}
		h, offset, err := ParseHeader([]byte(text))
		if err != nil {
			return nil, err
		}
		return convert(text[offset:], h, enc)
	}

	h, offset, err := ParseHeader(rest)
	if err != nil {
		return nil, err
	}

	name := bom
	if name == "" {
		name = opts.Encoding
	}
	if name == "" {
		name = charset.OfxV1Charset(h.Encoding, h.Charset)
	}
	body, enc, err := charset.Decode(rest[offset:], name, "")
	if err != nil {
		return nil, fmt.Errorf("decoding OFX body: %w", err)
	}
	return convert(body, h, enc)
}

func convert(body string, h Header, enc string) (*Converted, error) {
	doc, err := ConvertBody(body, h.BodyLine)
	if err != nil {
		return nil, err
	}
	return &Converted{XML: doc, Header: h, Encoding: enc}, nil
}

// ConvertBody closes the leaf elements of an SGML body. firstLine is the
// line number of the body's first character in the source file. Elements
// keep their source line numbers in the output.
func ConvertBody(body string, firstLine int) (string, error) {
	toks, err := tokenize(body, firstLine)
	if err != nil {
		return "", err
	}

	closesAhead := make(map[string]int)
	for _, t := range toks {
		if t.kind == tokEnd {
			closesAhead[t.name]++
		}
	}

	var out strings.Builder
	out.WriteString(xmlDecl)
	outLine := 1
	pad := func(line int) {
		for ; outLine < line; outLine++ {
			out.WriteByte('\n')
		}
	}

	var stack []token
	open := make(map[string]int)
	peek := func(i int) *token {
		if i < len(toks) {
			return &toks[i]
		}
		return nil
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		pad(t.line)
		switch t.kind {
		case tokStart:
			if next := peek(i + 1); next != nil && next.kind == tokText {
				i++
				if after := peek(i + 1); after != nil && after.kind == tokEnd && after.name == t.name {
					// Explicitly closed leaf.
					closesAhead[t.name]--
					i++
				}
				writeLeaf(&out, t.name, next.text)
				continue
			}
			if closesAhead[t.name] > open[t.name] {
				stack = append(stack, t)
				open[t.name]++
				fmt.Fprintf(&out, "<%s>", t.name)
				continue
			}
			writeLeaf(&out, t.name, "")

		case tokEnd:
			closesAhead[t.name]--
			if len(stack) == 0 || stack[len(stack)-1].name != t.name {
				return "", &model.ParseError{
					Kind:   model.KindUnbalancedTag,
					Format: formatName,
					Line:   t.line,
					Tag:    "/" + t.name,
					Err:    unexpectedClose(stack),
				}
			}
			stack = stack[:len(stack)-1]
			open[t.name]--
			fmt.Fprintf(&out, "</%s>", t.name)

		case tokText:
			// Stray text directly inside an aggregate.
			escapeText(&out, t.text)
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return "", &model.ParseError{
			Kind:   model.KindUnbalancedTag,
			Format: formatName,
			Line:   top.line,
			Tag:    top.name,
			Err:    fmt.Errorf("aggregate never closed"),
		}
	}
	return out.String(), nil
}

func unexpectedClose(stack []token) error {
	if len(stack) == 0 {
		return fmt.Errorf("no open aggregate")
	}
	top := stack[len(stack)-1]
	return fmt.Errorf("expected </%s> (opened at line %d)", top.name, top.line)
}

func writeLeaf(out *strings.Builder, name, text string) {
	fmt.Fprintf(out, "<%s>", name)
	escapeText(out, text)
	fmt.Fprintf(out, "</%s>", name)
}

func escapeText(out *strings.Builder, text string) {
	// SGML files often carry entities already; decode first so they are
	// not escaped twice.
	_ = xml.EscapeText(out, []byte(html.UnescapeString(text)))
}

// tokenize splits an SGML body into tags and trimmed text runs.
// Whitespace-only text is dropped.
func tokenize(body string, line int) ([]token, error) {
	var toks []token
	var text strings.Builder
	textLine := line
	started := false

	flushText := func() {
		if s := joinLines(text.String()); s != "" {
			toks = append(toks, token{kind: tokText, text: s, line: textLine})
		}
		text.Reset()
		started = false
	}

	for i := 0; i < len(body); {
		c := body[i]
		if c == '<' && i+1 < len(body) && startsTag(body[i+1]) {
			end := strings.IndexByte(body[i:], '>')
			if end < 0 {
				return nil, &model.ParseError{
					Kind:   model.KindUnbalancedTag,
					Format: formatName,
					Line:   line,
					Value:  truncate(body[i:], 20),
					Err:    fmt.Errorf("unterminated tag"),
				}
			}
			flushText()
			raw := body[i+1 : i+end]
			tagLine := line
			line += strings.Count(raw, "\n")
			i += end + 1

			switch {
			case raw[0] == '!' || raw[0] == '?':
				// Comments and processing instructions carry no data.
			case raw[0] == '/':
				toks = append(toks, token{kind: tokEnd, name: tagName(raw[1:]), line: tagLine})
			default:
				toks = append(toks, token{kind: tokStart, name: tagName(raw), line: tagLine})
			}
			continue
		}

		if c == '\n' {
			line++
		}
		if !started && c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			started = true
			textLine = line
		}
		text.WriteByte(c)
		i++
	}
	flushText()
	return toks, nil
}

func startsTag(c byte) bool {
	return c == '/' || c == '!' || c == '?' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func tagName(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// joinLines trims each line of a text run and joins the non-empty ones
// with a single space.
func joinLines(s string) string {
	var parts []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
