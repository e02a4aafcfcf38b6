package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine used to statically validate animation
// scripts before they are rendered.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// module must define data.script_policy.deny as a set of messages.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.script_policy.deny"),
		rego.Module("script_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks script facts against the policy.
// Input is the JSON form of script.Facts: imports, classes, calls, directives,
// scene, has_entry.
// Returns the sorted violation messages; an empty slice means the script passes.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) ([]string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	var violations []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				violations = append(violations, s)
			}
		}
	case string:
		violations = append(violations, v)
	}
	sort.Strings(violations)
	return violations, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package script_policy

imports_manim {
	startswith(input.imports[_], "manim")
}

deny[msg] {
	not imports_manim
	msg := "script must import manim (from manim import *)"
}

deny[msg] {
	count(input.classes) == 0
	msg := "script must define a Scene class"
}

deny[msg] {
	count(input.classes) > 0
	not input.has_entry
	msg := sprintf("no scene class with a construct(self) method; expected class %s(Scene)", [input.scene])
}

deny[msg] {
	not input.has_entry
	c := input.classes[_]
	c.has_construct
	c.name != input.scene
	msg := sprintf("scene class %s must be renamed to %s; only %s is rendered", [c.name, input.scene, input.scene])
}

# Vector assets are not shipped with the renderer.
deny[msg] {
	input.calls[_] == "SVGMobject"
	msg := "SVGMobject is not supported; draw shapes with Manim primitives"
}

blocked_calls := {"eval", "exec", "os.system", "subprocess.run", "subprocess.Popen", "subprocess.call", "input", "__import__"}

deny[msg] {
	name := input.calls[_]
	blocked_calls[name]
	msg := sprintf("call to %s is not allowed in scene scripts", [name])
}

blocked_imports := {"subprocess", "socket", "requests", "urllib", "shutil"}

deny[msg] {
	mod := input.imports[_]
	blocked_imports[mod]
	msg := sprintf("import of %s is not allowed in scene scripts", [mod])
}
`
