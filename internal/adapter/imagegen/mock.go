package imagegen

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
)

// Mock draws a flat square whose color depends on the description.
type Mock struct {
	dir  string
	size int
}

// NewMock creates a mock generator writing under dir.
func NewMock(dir string) *Mock {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Mock{dir: dir, size: 64}
}

// Generate writes a PNG and returns its absolute path.
func (m *Mock) Generate(ctx context.Context, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := fnv.New32a()
	h.Write([]byte(description))
	sum := h.Sum32()
	fill := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, m.size, m.size))
	for y := 0; y < m.size; y++ {
		for x := 0; x < m.size; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return save(m.dir, buf.Bytes())
}
