package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"fenced", "Sure!\n```json\n{\"script\": \"x\"}\n```\nDone.", `{"script": "x"}`},
		{"fenced without tag", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare", `Here you go: {"narration": "hi"} thanks`, `{"narration": "hi"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ExtractJSON("no json here")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestFieldRepairsMalformedJSON(t *testing.T) {
	// trailing comma and single quotes
	got, err := Field("```json\n{'narration': 'Light bends.',}\n```", "narration")
	require.NoError(t, err)
	assert.Equal(t, "Light bends.", got)

	_, err = Field(`{"script": ""}`, "script")
	assert.Error(t, err)
	_, err = Field(`{"other": "x"}`, "script")
	assert.Error(t, err)
}

func TestScriptFieldAcceptsFencedPython(t *testing.T) {
	got, err := scriptField("```python\nfrom manim import *\n```")
	require.NoError(t, err)
	assert.Equal(t, "from manim import *\n", got)
}

type recordingClient struct {
	requests []*Request
	reply    string
}

func (c *recordingClient) Complete(ctx context.Context, req *Request) (string, error) {
	c.requests = append(c.requests, req)
	return c.reply, nil
}

func TestGeneratorUsesRepairModel(t *testing.T) {
	client := &recordingClient{reply: `{"script": "from manim import *\n"}`}
	gen := NewGenerator(client, "fast", "strong")

	_, err := gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "t", SceneName: "T"})
	require.NoError(t, err)
	_, err = gen.GenerateScript(context.Background(), domain.ScriptRequest{
		Topic:       "t",
		SceneName:   "T",
		PriorScript: "broken()",
		PriorError:  "NameError: broken",
		FailureKind: domain.FailureRender,
	})
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	assert.Equal(t, "fast", client.requests[0].Model)
	assert.Contains(t, client.requests[0].Prompt, "class T(Scene)")
	assert.Equal(t, "strong", client.requests[1].Model)
	assert.Contains(t, client.requests[1].Prompt, "NameError: broken")
	assert.Contains(t, client.requests[1].Prompt, "broken()")
	assert.Contains(t, client.requests[1].Prompt, "failed to render")
}

func TestMockGenerator(t *testing.T) {
	gen := NewGenerator(NewMockClient(), "mock", "")

	narration, err := gen.GenerateNarration(context.Background(), domain.NarrationRequest{Topic: "optics"})
	require.NoError(t, err)
	assert.Contains(t, narration, "optics")

	out, err := gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "optics", SceneName: "Optics"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Script, "from manim import *"))
	assert.Contains(t, out.Script, "class Optics(Scene):")
	assert.Empty(t, out.ImagePrompts)

	out, err = gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "optics", SceneName: "Optics", Images: true})
	require.NoError(t, err)
	require.Len(t, out.ImagePrompts, 1)
	assert.Contains(t, out.Script, `ImageMobject("`+out.ImagePrompts[0].PlaceholderID+`")`)
}

func TestNarrationPromptForDocuments(t *testing.T) {
	client := &recordingClient{reply: `{"narration": "Plants make sugar."}`}
	gen := NewGenerator(client, "fast", "")

	_, err := gen.GenerateNarration(context.Background(), domain.NarrationRequest{Topic: "photosynthesis", Document: "Chlorophyll absorbs light."})
	require.NoError(t, err)
	_, err = gen.GenerateNarration(context.Background(), domain.NarrationRequest{Topic: "photosynthesis"})
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[0].Prompt, "Chlorophyll absorbs light.")
	assert.Contains(t, client.requests[0].Prompt, "summarizing")
	assert.Contains(t, client.requests[1].Prompt, `"photosynthesis"`)
	assert.NotContains(t, client.requests[1].Prompt, "summarizing")
}

func TestImagePromptsAreParsedForNewScriptsOnly(t *testing.T) {
	reply := "```json\n" + `{"script": "from manim import *\n", "image_prompts": [
		{"placeholder_id": "IMG_1", "description": "a leaf"},
		{"placeholder_id": "", "description": "no id"},
		{"placeholder_id": "IMG_2", "description": "  "}
	]}` + "\n```"
	client := &recordingClient{reply: reply}
	gen := NewGenerator(client, "fast", "")

	out, err := gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "t", SceneName: "T", Images: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.ImagePrompt{{PlaceholderID: "IMG_1", Description: "a leaf"}}, out.ImagePrompts)
	assert.Contains(t, client.requests[0].Prompt, "image_prompts")
	assert.Contains(t, client.requests[0].Prompt, "ImageMobject")

	out, err = gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "t", SceneName: "T"})
	require.NoError(t, err)
	assert.Empty(t, out.ImagePrompts)
	assert.NotContains(t, client.requests[1].Prompt, "image_prompts")

	out, err = gen.GenerateScript(context.Background(), domain.ScriptRequest{
		Topic: "t", SceneName: "T", Images: true, PriorScript: "x", PriorError: "e", FailureKind: domain.FailureRender,
	})
	require.NoError(t, err)
	assert.Empty(t, out.ImagePrompts)
}

func TestHTTPClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[1].Content)

		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: &ChatMessage{Role: "assistant", Content: "world"}}},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", "secret", 5*time.Second)
	got, err := client.Complete(context.Background(), &Request{Model: "m", System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "world", got)
}

func TestHTTPClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "", time.Second).Complete(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
	assert.Contains(t, err.Error(), "429")
}

func TestFactory(t *testing.T) {
	gen, err := NewGeneratorFromConfig(context.Background(), &config.Config{Mode: "MOCK", GeneratorBackend: "gemini"})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, gen.client)

	_, err = NewGeneratorFromConfig(context.Background(), &config.Config{GeneratorBackend: "openai"})
	assert.Error(t, err)

	_, err = NewGeneratorFromConfig(context.Background(), &config.Config{GeneratorBackend: "gemini"})
	assert.Error(t, err, "missing api key")

	_, err = NewGeneratorFromConfig(context.Background(), &config.Config{GeneratorBackend: "carrier-pigeon"})
	assert.Error(t, err)
}
