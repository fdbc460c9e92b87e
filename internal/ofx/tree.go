package ofx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/stmtimport/internal/charset"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// node is one element of a parsed OFX document.
type node struct {
	name     string
	text     string
	line     int
	children []*node
}

func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// path follows a chain of child names.
func (n *node) path(names ...string) *node {
	for _, name := range names {
		n = n.child(name)
	}
	return n
}

func (n *node) all(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// kids returns the child elements of n, or nil for a missing node.
func (n *node) kids() []*node {
	if n == nil {
		return nil
	}
	return n.children
}

// find returns the first descendant named name, depth first.
func (n *node) find(name string) *node {
	for _, c := range n.kids() {
		if c.name == name {
			return c
		}
		if d := c.find(name); d != nil {
			return d
		}
	}
	return nil
}

// findValue returns the trimmed text of the first descendant named name.
func (n *node) findValue(name string) string {
	c := n.find(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text)
}

// value returns the trimmed text of a child element, or "".
func (n *node) value(name string) string {
	c := n.child(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text)
}

type document struct {
	root    *node
	version string
}

// readTree parses an XML document into a node tree. When decoded is set the
// input is already UTF-8 whatever its declaration says.
func readTree(r io.Reader, decoded bool) (*document, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.XMLCharsetReader
	if decoded {
		d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	}

	doc := &document{root: &node{}}
	stack := []*node{doc.root}
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xmlError(err, d)
		}

		switch t := tok.(type) {
		case xml.ProcInst:
			if strings.EqualFold(t.Target, "OFX") {
				v, err := checkV2Header(string(t.Inst))
				if err != nil {
					return nil, err
				}
				doc.version = v
			}
		case xml.StartElement:
			line, _ := d.InputPos()
			n := &node{name: strings.ToUpper(t.Name.Local), line: line}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.CharData:
			stack[len(stack)-1].text += string(t)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	return doc, nil
}

func xmlError(err error, d *xml.Decoder) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &model.ParseError{Kind: model.KindInvalidXML, Format: formatName, Line: se.Line, Err: errors.New(se.Msg)}
	}
	line, _ := d.InputPos()
	return &model.ParseError{Kind: model.KindInvalidXML, Format: formatName, Line: line, Err: fmt.Errorf("reading XML: %w", err)}
}
