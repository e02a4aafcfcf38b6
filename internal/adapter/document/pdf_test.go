package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePDF writes a one-page PDF per text, each showing its text in
// Helvetica.
func writePDF(t *testing.T, path string, pages ...string) {
	t.Helper()
	var objs []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 18 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	writePDF(t, filepath.Join(dir, "photosynthesis.pdf"), "Plants turn light into sugar", "Chlorophyll absorbs red and blue")

	r, err := NewPDFReader(dir)
	require.NoError(t, err)
	path, err := r.Resolve("photosynthesis.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "photosynthesis.pdf"), path)

	text, err := r.ReadText(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Plants turn light into sugar")
	assert.Contains(t, text, "Chlorophyll absorbs red and blue")
	assert.Less(t, strings.Index(text, "Plants"), strings.Index(text, "Chlorophyll"))
}

func TestReadTextRejectsEmptyDocuments(t *testing.T) {
	dir := t.TempDir()
	writePDF(t, filepath.Join(dir, "blank.pdf"), "")

	r, err := NewPDFReader(dir)
	require.NoError(t, err)
	_, err = r.ReadText(context.Background(), filepath.Join(dir, "blank.pdf"))
	assert.ErrorContains(t, err, "contains no text")
}

func TestResolveStaysInsideDir(t *testing.T) {
	root := t.TempDir()
	uploads := filepath.Join(root, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	writePDF(t, filepath.Join(root, "secret.pdf"), "secret")
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "notes.txt"), []byte("x"), 0o644))

	r, err := NewPDFReader(uploads)
	require.NoError(t, err)

	_, err = r.Resolve("../secret.pdf")
	assert.True(t, errors.Is(err, ErrOutsideDir))
	_, err = r.Resolve(filepath.Join(root, "secret.pdf"))
	assert.True(t, errors.Is(err, ErrOutsideDir))

	_, err = r.Resolve("notes.txt")
	assert.ErrorContains(t, err, "not a .pdf file")
	_, err = r.Resolve("missing.pdf")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTruncateKeepsWholeRunes(t *testing.T) {
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "é", truncate("éé", 3))
	assert.Equal(t, "abc", truncate("abc", 10))
}
