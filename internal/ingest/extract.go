// Package ingest feeds local files into the document corpus: an extractor
// registry turns files into bounded text chunks, and the Ingestor pipeline
// hashes, deduplicates, embeds and tracks them.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType indicates no extractor is registered for a file's
// extension. It is returned at selection time, never mid-stream.
var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor produces chunked text from a file. The returned sequence is
// lazy, finite and not restartable; each chunk holds at most chunkSize
// characters. An empty file yields an empty sequence.
type Extractor interface {
	Extract(path string, chunkSize int) iter.Seq2[string, error]
}

// defaultExtensions are the text-like file types indexed out of the box.
var defaultExtensions = []string{
	".txt", ".md", ".go", ".py", ".js", ".ts", ".java",
	".c", ".cpp", ".h", ".hpp", ".rs", ".rb", ".php", ".sh",
	".yaml", ".yml", ".json", ".xml", ".html", ".css", ".sql",
}

// Registry selects an extractor by file extension.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the plain-text extractor bound to the
// default text-like extensions.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor, len(defaultExtensions))}
	for _, ext := range defaultExtensions {
		r.extractors[ext] = TextExtractor{}
	}
	return r
}

// Register binds an extractor to an extension, replacing any existing
// binding. The extension is matched case-insensitively.
func (r *Registry) Register(ext string, e Extractor) {
	r.extractors[strings.ToLower(ext)] = e
}

// Lookup returns the extractor for a path's extension, or
// ErrUnsupportedType when none is registered.
func (r *Registry) Lookup(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return e, nil
}

// Supported reports whether a path's extension has a registered extractor.
func (r *Registry) Supported(path string) bool {
	_, ok := r.extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// TextExtractor chunks a file's content on character boundaries. Chunks are
// measured in runes so multi-byte text never splits inside a character.
type TextExtractor struct{}

func (TextExtractor) Extract(path string, chunkSize int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", fmt.Errorf("failed to open file: %w", err))
			return
		}
		defer f.Close()

		reader := bufio.NewReader(f)
		var chunk strings.Builder
		var runes int
		for {
			r, _, err := reader.ReadRune()
			if err == io.EOF {
				if runes > 0 {
					yield(chunk.String(), nil)
				}
				return
			}
			if err != nil {
				yield("", fmt.Errorf("failed to read file: %w", err))
				return
			}
			chunk.WriteRune(r)
			runes++
			if runes == chunkSize {
				if !yield(chunk.String(), nil) {
					return
				}
				chunk.Reset()
				runes = 0
			}
		}
	}
}
