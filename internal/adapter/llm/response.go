package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/xiaot623/manimate/internal/domain"
)

// ErrNoJSON is returned when a model response holds no JSON object.
var ErrNoJSON = errors.New("no JSON object found in model response")

var (
	fencedJSON   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
	bareJSON     = regexp.MustCompile(`(?s)(\{.*\})`)
	fencedPython = regexp.MustCompile("(?s)```(?:python|py)\\s*\\n(.*?)```")
)

// ExtractJSON returns the first JSON object in raw model text, preferring a
// fenced block.
func ExtractJSON(raw string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if m := bareJSON.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	return "", ErrNoJSON
}

// unmarshalJSON unmarshals data into v, repairing malformed JSON on a syntax
// error.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return fmt.Errorf("repair model JSON: %w", rerr)
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// Field extracts a string field from the JSON object in a model response.
func Field(raw, key string) (string, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return "", err
	}
	var fields map[string]any
	if err := unmarshalJSON([]byte(obj), &fields); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("model response is missing %q", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("model response has no usable %q", key)
	}
	return s, nil
}

// scriptField reads the "script" key, accepting a bare fenced Python block
// from models that ignore the JSON instruction.
func scriptField(raw string) (string, error) {
	s, err := Field(raw, "script")
	if err == nil {
		return s, nil
	}
	if m := fencedPython.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		return m[1], nil
	}
	return "", err
}

// imagePrompts reads the optional "image_prompts" list of a script response.
// Entries without a placeholder or a description are dropped.
func imagePrompts(raw string) []domain.ImagePrompt {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil
	}
	var resp struct {
		ImagePrompts []domain.ImagePrompt `json:"image_prompts"`
	}
	if err := unmarshalJSON([]byte(obj), &resp); err != nil {
		return nil
	}
	var out []domain.ImagePrompt
	for _, p := range resp.ImagePrompts {
		p.PlaceholderID = strings.TrimSpace(p.PlaceholderID)
		p.Description = strings.TrimSpace(p.Description)
		if p.PlaceholderID != "" && p.Description != "" {
			out = append(out, p)
		}
	}
	return out
}
