package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLayoutHelpers(t *testing.T) {
	out := WithLayoutHelpers(strings.TrimSuffix(sampleScene, "\n"))
	assert.True(t, strings.HasPrefix(out, strings.TrimSuffix(sampleScene, "\n")), "script text must come first")
	assert.True(t, strings.HasSuffix(out, LayoutHelpers))

	parsed, err := Parse(out)
	require.NoError(t, err)
	assert.NotNil(t, parsed.EntryRoutine("Pythagoras"))

	// Applying twice, or to a script with its own helper, changes nothing.
	assert.Equal(t, out, WithLayoutHelpers(out))
	own := "from manim import *\n\nclass LayoutManager:\n    pass\n"
	assert.Equal(t, own, WithLayoutHelpers(own))
}
