package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xiaot623/manimate/internal/domain"
)

const (
	narrationTemperature = 0.7
	scriptTemperature    = 0.4
)

// Generator writes narration and scripts through a Client. Repairs go to
// repairModel, everything else to model.
type Generator struct {
	client      Client
	model       string
	repairModel string
}

// NewGenerator creates a generator. An empty repairModel falls back to model.
func NewGenerator(client Client, model, repairModel string) *Generator {
	if repairModel == "" {
		repairModel = model
	}
	return &Generator{client: client, model: model, repairModel: repairModel}
}

// GenerateNarration writes the narration for a topic, or a summary of
// req.Document when set.
func (g *Generator) GenerateNarration(ctx context.Context, req domain.NarrationRequest) (string, error) {
	temp := narrationTemperature
	raw, err := g.client.Complete(ctx, &Request{
		Model:       g.model,
		System:      systemPrompt,
		Prompt:      narrationPrompt(req),
		Temperature: &temp,
		Metadata:    map[string]string{"task": "narration", "topic": req.Topic},
	})
	if err != nil {
		return "", fmt.Errorf("narration: %w", err)
	}
	narration, err := Field(raw, "narration")
	if err != nil {
		return "", fmt.Errorf("narration: %w", err)
	}
	return strings.TrimSpace(narration), nil
}

// GenerateScript writes a scene script, or repairs req.PriorScript when set.
// Only new scripts may ask for images.
func (g *Generator) GenerateScript(ctx context.Context, req domain.ScriptRequest) (domain.GeneratedScript, error) {
	temp := scriptTemperature
	r := &Request{
		Model:       g.model,
		System:      systemPrompt,
		Prompt:      scriptPrompt(req),
		Temperature: &temp,
		Metadata:    map[string]string{"task": "script", "scene": req.SceneName},
	}
	if req.Images {
		r.Metadata["images"] = "true"
	}
	if req.IsRepair() {
		r.Model = g.repairModel
		r.Prompt = repairPrompt(req)
		r.Metadata["task"] = "repair"
		log.Printf("INFO: requesting %s repair from %s", req.FailureKind, r.Model)
	}

	raw, err := g.client.Complete(ctx, r)
	if err != nil {
		return domain.GeneratedScript{}, fmt.Errorf("%s: %w", r.Metadata["task"], err)
	}
	src, err := scriptField(raw)
	if err != nil {
		return domain.GeneratedScript{}, fmt.Errorf("%s: %w", r.Metadata["task"], err)
	}
	out := domain.GeneratedScript{Script: src}
	if req.Images && !req.IsRepair() {
		out.ImagePrompts = imagePrompts(raw)
	}
	return out, nil
}
