// Package imagegen generates the pictures a script asks for.
package imagegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Imagen generates pictures with a Gemini image model and stores them as PNG
// files under one directory.
type Imagen struct {
	client *genai.Client
	model  string
	dir    string
}

// NewImagen creates an Imagen generator writing under dir.
func NewImagen(ctx context.Context, apiKey, model, dir string) (*Imagen, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("imagen: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Imagen{client: client, model: model, dir: abs}, nil
}

// Generate draws one square picture for description and returns its
// absolute path.
func (g *Imagen) Generate(ctx context.Context, description string) (string, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.model, description, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "1:1",
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("genai images: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return "", fmt.Errorf("genai images: empty response")
	}
	img := resp.GeneratedImages[0]
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		if img.RAIFilteredReason != "" {
			return "", fmt.Errorf("genai images: filtered: %s", img.RAIFilteredReason)
		}
		return "", fmt.Errorf("genai images: response carried no image")
	}
	return save(g.dir, img.Image.ImageBytes)
}

func save(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	path := filepath.Join(dir, uuid.New().String()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}
