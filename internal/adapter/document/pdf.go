// Package document reads the text of uploaded documents that stand in for a
// run's topic.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
)

// MaxChars bounds the extracted text handed to the narration prompt.
const MaxChars = 20000

// ErrOutsideDir is returned for paths that leave the upload directory.
var ErrOutsideDir = errors.New("pdf_path must name a file inside the upload directory")

// PDFReader extracts text from PDFs stored under one directory.
type PDFReader struct {
	dir string
}

// NewPDFReader creates a reader confined to dir.
func NewPDFReader(dir string) (*PDFReader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	return &PDFReader{dir: abs}, nil
}

// Resolve returns the absolute path of an existing .pdf file. Relative paths
// are taken relative to the upload directory.
func (r *PDFReader) Resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(r.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideDir
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", fmt.Errorf("%s is not a .pdf file", filepath.Base(path))
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("pdf %s: %w", filepath.Base(path), err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("pdf %s is a directory", filepath.Base(path))
	}
	return path, nil
}

// ReadText returns the text of every page, joined by blank lines and cut to
// MaxChars.
func (r *PDFReader) ReadText(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i+1, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		if b.Len() >= MaxChars {
			break
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("pdf %s contains no text", filepath.Base(path))
	}
	return truncate(b.String(), MaxChars), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
