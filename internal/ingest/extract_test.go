package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Lookup("notes.txt"); err != nil {
		t.Errorf("Lookup(.txt) error = %v", err)
	}
	if _, err := r.Lookup("README.MD"); err != nil {
		t.Errorf("Lookup(.MD) error = %v, want case-insensitive match", err)
	}

	_, err := r.Lookup("image.png")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Lookup(.png) error = %v, want ErrUnsupportedType", err)
	}
	_, err = r.Lookup("Makefile")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Lookup(no extension) error = %v, want ErrUnsupportedType", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if r.Supported("log.csv") {
		t.Fatal("csv supported before Register")
	}
	r.Register(".CSV", TextExtractor{})
	if !r.Supported("log.csv") {
		t.Error("csv not supported after Register")
	}
}

func collectChunks(t *testing.T, path string, chunkSize int) []string {
	t.Helper()
	var chunks []string
	for chunk, err := range (TextExtractor{}).Extract(path, chunkSize) {
		if err != nil {
			t.Fatalf("Extract yielded error = %v", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestTextExtractor_ChunkBounds(t *testing.T) {
	path := writeFile(t, "in.txt", "abcdefghij")

	chunks := collectChunks(t, path, 4)
	want := []string{"abcd", "efgh", "ij"}
	if len(chunks) != len(want) {
		t.Fatalf("len(chunks) = %d, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestTextExtractor_EmptyFile(t *testing.T) {
	path := writeFile(t, "empty.txt", "")

	chunks := collectChunks(t, path, 4)
	if len(chunks) != 0 {
		t.Errorf("chunks = %v, want empty sequence", chunks)
	}
}

func TestTextExtractor_MultiByteRunes(t *testing.T) {
	content := "héllo wörld 日本語テキスト"
	path := writeFile(t, "utf8.txt", content)

	chunks := collectChunks(t, path, 3)
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d = %q is not valid UTF-8", i, c)
		}
		if n := utf8.RuneCountInString(c); n > 3 {
			t.Errorf("chunk %d holds %d runes, want <= 3", i, n)
		}
	}
	if joined := strings.Join(chunks, ""); joined != content {
		t.Errorf("joined chunks = %q, want original content", joined)
	}
}

func TestTextExtractor_EarlyStop(t *testing.T) {
	path := writeFile(t, "in.txt", strings.Repeat("x", 100))

	var got []string
	for chunk, err := range (TextExtractor{}).Extract(path, 10) {
		if err != nil {
			t.Fatalf("Extract yielded error = %v", err)
		}
		got = append(got, chunk)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Errorf("consumed %d chunks, want 2", len(got))
	}
}

func TestTextExtractor_MissingFile(t *testing.T) {
	var errs []error
	for _, err := range (TextExtractor{}).Extract(filepath.Join(t.TempDir(), "absent.txt"), 4) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || errs[0] == nil {
		t.Fatalf("errs = %v, want a single error", errs)
	}
}
