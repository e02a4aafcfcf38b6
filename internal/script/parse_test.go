package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScene = `from manim import *

class Pythagoras(Scene):
    def construct(self):
        title = Text("a; b", font_size=48)  # not a split point
        self.play(Write(title))
        self.wait(2)
        for i in range(3):
            self.play(FadeIn(Dot()), run_time=0.5)
        if True:
            self.wait()
        else: self.wait(duration=1.5)
        self.play(
            Create(Square()),  # inner comment
            run_time=2,
        )
`

func TestParseRoundTripKeepsText(t *testing.T) {
	inputs := []string{
		sampleScene,
		"",
		"\n",
		"x = 1",
		"x = 1\n\n\n",
		"s = '''multi\nline'''\nt = (1,\n     2)\n",
		"a = 1 \\\n    + 2\n",
		"class A:\n\tdef construct(self):\n\t\tself.wait(1)\n",
	}
	for _, src := range inputs {
		s, err := Parse(src)
		require.NoError(t, err, "input %q", src)
		assert.Equal(t, src, s.String())
	}
}

func TestParseDirectives(t *testing.T) {
	s, err := Parse(sampleScene)
	require.NoError(t, err)

	ds := s.Directives()
	require.Len(t, ds, 6)

	want := []struct {
		kind DirectiveKind
		eff  float64
	}{
		{Play, 1}, {Wait, 2}, {Play, 0.5}, {Wait, 1}, {Wait, 1.5}, {Play, 2},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, ds[i].Kind, "directive %d", i)
		assert.InDelta(t, w.eff, ds[i].Effective(), 1e-12, "directive %d", i)
	}
}

func TestParseNotDirectives(t *testing.T) {
	cases := []string{
		"other.wait(1)",
		"self.waiter(1)",
		"x = self.wait(1)",
		"self.wait(1).foo",
		"selfie.play(x)",
	}
	for _, c := range cases {
		s, err := Parse(c + "\n")
		require.NoError(t, err)
		assert.Empty(t, s.Directives(), c)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unterminated string": "x = 'abc\n",
		"unclosed bracket":    "self.play(Write(x)\n",
		"unmatched bracket":   "x = 1)\n",
		"unexpected indent":   "x = 1\n    y = 2\n",
		"missing body":        "class A(Scene):\nx = 1\n",
		"bad dedent":          "if x:\n        a = 1\n    b = 2\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(src)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
		})
	}
}

func TestParseExpr(t *testing.T) {
	e := ParseExpr("2.5")
	assert.True(t, e.IsLiteral)
	assert.Equal(t, 2.5, e.Effective())

	e = ParseExpr("-1")
	assert.Equal(t, 0.0, e.Effective())

	e = ParseExpr("inf")
	assert.False(t, e.IsLiteral)
	assert.Equal(t, DefaultUnit, e.Effective())

	e = ParseExpr("(t / 2) * 3")
	assert.False(t, e.IsLiteral)
	assert.Equal(t, "t / 2", e.Raw)
	assert.Equal(t, 3.0, e.Effective())
	assert.Equal(t, "(t / 2) * 6", e.Scaled(2).String())

	e = ParseExpr("(1.5) * 2")
	assert.True(t, e.IsLiteral)
	assert.Equal(t, 3.0, e.Effective())
}

func TestDirectiveScale(t *testing.T) {
	src := "class S(Scene):\n    def construct(self):\n        self.wait()\n        self.play(Create(c))\n        self.wait(2)  # hold\n        self.play(FadeOut(c), run_time=x)\n        self.wait(stop_condition=done)\n"
	s, err := Parse(src)
	require.NoError(t, err)

	s.EditDirectives(func(d *Directive) bool {
		d.Scale(2)
		return true
	})

	want := "class S(Scene):\n    def construct(self):\n        self.wait(2)\n        self.play(Create(c), run_time=2)\n        self.wait(4)  # hold\n        self.play(FadeOut(c), run_time=(x) * 2)\n        self.wait(stop_condition=done, duration=2)\n"
	assert.Equal(t, want, s.String())

	again, err := Parse(s.String())
	require.NoError(t, err)
	total := 0.0
	for _, d := range again.Directives() {
		total += d.Effective()
	}
	assert.InDelta(t, 12.0, total, 1e-12)
}

func TestEntryRoutine(t *testing.T) {
	src := "class Helper:\n    def build(self):\n        pass\n\nclass First(Scene):\n    def construct(self):\n        pass\n\nclass Target(Scene):\n    def construct(self):\n        self.wait(1)\n"
	s, err := Parse(src)
	require.NoError(t, err)

	entry := s.EntryRoutine("Target")
	require.NotNil(t, entry)
	assert.Len(t, entry.Body, 1)

	assert.Nil(t, s.EntryRoutine("Missing"))
	assert.Nil(t, s.EntryRoutine("Helper"))

	s, err = Parse("x = 1\n")
	require.NoError(t, err)
	assert.Nil(t, s.EntryRoutine("Target"))
}

func TestBlockEdits(t *testing.T) {
	src := "class S(Scene):\n    def construct(self):\n        self.audio_file = \"old.wav\"; self.add_sound(self.audio_file)\n        self.wait(1)\n\n"
	s, err := Parse(src)
	require.NoError(t, err)

	entry := s.EntryRoutine("S")
	removed := entry.RemoveStatements(func(code string) bool {
		return code == "self.add_sound(self.audio_file)" || code == `self.audio_file = "old.wav"`
	})
	assert.Equal(t, 2, removed)

	entry.Prepend(`self.audio_file = "new.wav"`, "self.add_sound(self.audio_file)")
	entry.Append("self.wait(3)")

	want := "class S(Scene):\n    def construct(self):\n        self.audio_file = \"new.wav\"\n        self.add_sound(self.audio_file)\n        self.wait(1)\n        self.wait(3)\n\n"
	assert.Equal(t, want, s.String())
}

func TestInlineBodyExpands(t *testing.T) {
	s, err := Parse("class S(Scene):\n    def construct(self): self.wait(1)\n")
	require.NoError(t, err)

	s.EntryRoutine("S").Append("self.wait(2)")
	assert.Equal(t, "class S(Scene):\n    def construct(self):\n        self.wait(1)\n        self.wait(2)\n", s.String())
}

func TestFacts(t *testing.T) {
	src := "from manim import *\nimport numpy as np, math\n\nclass Demo(Scene):\n    def construct(self):\n        t = Text(\"SVGMobject(x)\")\n        self.play(Write(t))\n"
	s, err := Parse(src)
	require.NoError(t, err)

	f := s.Facts("Demo")
	assert.Equal(t, []string{"manim", "numpy", "math"}, f.Imports)
	assert.True(t, f.HasEntry)
	assert.Equal(t, "Demo", f.EntryClass)

	other := s.Facts("Photosynthesis")
	assert.False(t, other.HasEntry)
	assert.Empty(t, other.EntryClass)
	require.Len(t, other.Classes, 1)
	assert.True(t, other.Classes[0].HasConstruct)
	assert.Equal(t, 1, f.Directives)
	assert.Contains(t, f.Calls, "Text")
	assert.Contains(t, f.Calls, "self.play")
	assert.NotContains(t, f.Calls, "SVGMobject")
	require.Len(t, f.Classes, 1)
	assert.Equal(t, "Scene", f.Classes[0].Bases)
}
