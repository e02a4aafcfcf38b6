package tts

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// GeminiBackend synthesizes speech with a Gemini TTS model.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini TTS backend.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini tts: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

// Synthesize requests audio for text and writes it to path as WAV. The API
// returns raw 16-bit PCM; its sample rate comes from the MIME type.
func (g *GeminiBackend) Synthesize(ctx context.Context, text, voice, path string) (float64, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Parts: []*genai.Part{genai.NewPartFromText(text)}, Role: "user"},
	}, cfg)
	if err != nil {
		return 0, fmt.Errorf("genai tts: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, fmt.Errorf("genai tts: empty response")
	}

	var pcm bytes.Buffer
	rate := DefaultSampleRate
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil {
			continue
		}
		if r := sampleRate(p.InlineData.MIMEType); r > 0 {
			rate = r
		}
		pcm.Write(p.InlineData.Data)
	}
	if pcm.Len() == 0 {
		return 0, fmt.Errorf("genai tts: response carried no audio")
	}

	if err := writeWAVFile(path, pcm.Bytes(), rate); err != nil {
		return 0, err
	}
	return PCMDuration(pcm.Len(), rate, DefaultChannels, DefaultBitDepth), nil
}

// sampleRate reads the rate parameter of a MIME type such as
// "audio/L16;codec=pcm;rate=24000".
func sampleRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0
	}
	r, err := strconv.Atoi(strings.TrimSpace(params["rate"]))
	if err != nil {
		return 0
	}
	return r
}

// writeWAVFile writes through a temporary file so a cancelled synthesis never
// leaves a truncated track at path.
func writeWAVFile(path string, pcm []byte, rate int) error {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	if err := WriteWAV(f, pcm, rate, DefaultChannels, DefaultBitDepth); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close audio file: %w", err)
	}
	return os.Rename(tmp, path)
}
