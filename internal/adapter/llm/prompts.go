package llm

import (
	"fmt"
	"strings"

	"github.com/xiaot623/manimate/internal/domain"
)

const systemPrompt = "You are an expert director for Manim, the mathematical animation engine. " +
	"You answer with a single valid JSON object and nothing else."

var themeInstructions = map[domain.Theme]string{
	domain.ThemeDark:    "Use a dark background (e.g. `#27272a`) and light-colored text and objects (e.g. `WHITE`, `BLUE_C`).",
	domain.ThemePlayful: "Use bright, vibrant colors (e.g. `RED`, `GREEN`, `YELLOW`) and playful animations like `GrowFromCenter` and `SpinInFromNothing`.",
	domain.ThemeDefault: "Use the standard Manim dark background and a balanced color palette.",
}

func themeInstruction(theme domain.Theme) string {
	if s, ok := themeInstructions[theme]; ok {
		return s
	}
	return themeInstructions[domain.ThemeDefault]
}

const narrationRules = `The narration is read aloud over an animation. Keep it clear and concise, at most 120 words, with no stage directions.

Return a JSON object with one key:
- "narration": the narration as a single string.`

func narrationPrompt(req domain.NarrationRequest) string {
	if req.Document != "" {
		return fmt.Sprintf("Write the narration for a short explanatory video summarizing the key ideas of this document:\n---\n%s\n---\n\n%s", req.Document, narrationRules)
	}
	return fmt.Sprintf("Write the narration for a short explanatory video about: %q.\n\n%s", req.Topic, narrationRules)
}

func scriptPrompt(req domain.ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a Manim animation for a short video about: %q.\n\n", req.Topic)
	fmt.Fprintf(&b, "The animation plays under this narration:\n---\n%s\n---\n\n", req.Narration)
	fmt.Fprintf(&b, "Visual theme: %s. %s\n\n", themeOrDefault(req.Theme), themeInstruction(req.Theme))
	if req.Images {
		fmt.Fprintf(&b, `Return a JSON object with two keys:
- "script": a complete, runnable Python script for a single Manim scene named %s.
- "image_prompts": a list of pictures the script shows, each an object with a "placeholder_id" and a "description". Use an empty list when the script needs none.
`, req.SceneName)
	} else {
		fmt.Fprintf(&b, `Return a JSON object with one key:
- "script": a complete, runnable Python script for a single Manim scene named %s.
`, req.SceneName)
	}
	fmt.Fprintf(&b, `
Script requirements:
- Start with `+"`from manim import *`"+` and define `+"`class %s(Scene)`"+` with a `+"`construct(self)`"+` method.
- Pace the animation with self.play(...) and self.wait(...) so it follows the narration.
- Do not add audio; the soundtrack is attached separately.
- Do NOT use SVGMobject. Draw every shape with Manim primitives.
- Use simple, common Manim objects and animations.
- Clear the screen between major ideas with self.play(FadeOut(*self.mobjects)).
- A helper `+"`LayoutManager(self)`"+` is predefined: `+"`place(mobject, region)`"+` moves a mobject to TOP, CENTER, BOTTOM, LEFT, RIGHT or a corner such as TOP_LEFT, and `+"`next_to(mobject, target, direction)`"+` positions it beside another. Do not define it yourself.
`, req.SceneName)
	if req.Images {
		b.WriteString("- To show a picture, use `ImageMobject(\"<placeholder_id>\")` with the exact placeholder_id listed in image_prompts as the file name.\n")
	}
	return b.String()
}

func repairPrompt(req domain.ScriptRequest) string {
	what := "failed to render"
	if req.FailureKind == domain.FailureValidation {
		what = "was rejected by static checks"
	}
	return fmt.Sprintf(`The following Manim script %s. Analyze the error, fix the script, and keep the scene named %s.

Error:
---
%s
---

Original script:
---
%s
---

Return only the corrected, complete Python code in a single JSON object with the key "script".`,
		what, req.SceneName, req.PriorError, req.PriorScript)
}

func themeOrDefault(t domain.Theme) domain.Theme {
	if t == "" {
		return domain.ThemeDefault
	}
	return t
}
