// Package importer selects a statement parser for a file and runs the
// parse, match and commit steps of an import.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cleared-dev/stmtimport/internal/model"
	"github.com/cleared-dev/stmtimport/internal/mt940"
	"github.com/cleared-dev/stmtimport/internal/ofx"
	"github.com/cleared-dev/stmtimport/internal/qif"
)

// Parser converts a statement file into a Statement.
type Parser interface {
	Parse(r io.Reader, opts model.ParseOptions) (*model.Statement, error)
	Format() string
}

// Detector is implemented by parsers that can recognize their format from
// the first bytes of a file.
type Detector interface {
	Detect(head []byte) bool
}

// sniffLen is how much of a file Detect looks at.
const sniffLen = 512

// Registry holds named parsers in registration order.
type Registry struct {
	parsers map[string]Parser
	order   []Parser
}

// FileInfo describes a statement file in the import directory.
type FileInfo struct {
	Name   string
	Path   string
	Size   int64
	Format string
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
	r.order = append(r.order, p)
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// Formats lists the registered format names in registration order.
func (r *Registry) Formats() []string {
	names := make([]string, 0, len(r.order))
	for _, p := range r.order {
		names = append(names, p.Format())
	}
	return names
}

// Detect returns the first parser that recognizes head, or nil.
func (r *Registry) Detect(head []byte) Parser {
	head = head[:min(len(head), sniffLen)]
	for _, p := range r.order {
		if d, ok := p.(Detector); ok && d.Detect(head) {
			return p
		}
	}
	return nil
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ofx.Parser{})
	r.Register(&qif.Parser{})
	r.Register(&mt940.Parser{})
	r.Register(&ChaseParser{})
	return r
}

var extFormats = map[string]string{
	".ofx":   "ofx",
	".qfx":   "ofx",
	".qif":   "qif",
	".sta":   "mt940",
	".mt940": "mt940",
	".940":   "mt940",
	".swi":   "mt940",
	".csv":   "chase",
}

// FormatForFile guesses a format from the file extension. It returns ""
// for files that are not statements.
func FormatForFile(name string) string {
	return extFormats[strings.ToLower(filepath.Ext(name))]
}

// importDir is the subdirectory for statement files waiting to be imported.
const importDir = "import"

// processedDir is the subdirectory for imported files.
const processedDir = "import/processed"

// Scan returns statement files in <repoRoot>/import/.
func Scan(repoRoot string) ([]FileInfo, error) {
	dir := filepath.Join(repoRoot, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		format := FormatForFile(e.Name())
		if format == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name:   e.Name(),
			Path:   filepath.Join(dir, e.Name()),
			Size:   info.Size(),
			Format: format,
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(repoRoot, fileName string) error {
	src := filepath.Join(repoRoot, importDir, fileName)
	dstDir := filepath.Join(repoRoot, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
