// Package script models animation scripts (the Python subset emitted for
// Manim scenes) as a typed statement tree. The tree keeps every source line
// it does not touch byte-for-byte, so rewriting timed directives never
// disturbs the rest of the program.
package script

import (
	"strconv"
	"strings"
)

// DefaultUnit is the implicit duration of a wait or play without an explicit
// duration, in seconds.
const DefaultUnit = 1.0

// Node is a statement-level element of a script.
type Node interface {
	node()
}

// Blank is an empty or comment-only line.
type Blank struct {
	Raw string
}

// Simple is one logical line holding one or more statements separated by
// semicolons.
type Simple struct {
	Indent  string
	Raw     string
	Comment string
	Stmts   []*Stmt
	Line    int
	dirty   bool
}

// Block is a compound statement: a header ending in a colon plus the body it
// introduces.
type Block struct {
	Indent  string
	Raw     string
	Keyword string // class, def, if, for, while, with, try, ...
	Name    string // class or function name
	Bases   string // class base list, without parentheses
	Header  string // header code up to and including the colon
	Comment string
	Inline  []*Stmt
	Body    []Node
	Line    int
	dirty   bool
}

func (*Blank) node()  {}
func (*Simple) node() {}
func (*Block) node()  {}

// Stmt is a single simple statement. Directive is set when the statement is a
// timed directive.
type Stmt struct {
	Code      string
	Directive *Directive
}

// DirectiveKind tags a timed directive.
type DirectiveKind string

const (
	Wait DirectiveKind = "wait"
	Play DirectiveKind = "play"
)

// Arg is one call argument; Name is empty for positional arguments.
type Arg struct {
	Name  string
	Value string
}

func (a Arg) String() string {
	if a.Name == "" {
		return a.Value
	}
	return a.Name + "=" + a.Value
}

// Directive is a timed call on the scene: self.wait(...) or self.play(...).
type Directive struct {
	Kind     DirectiveKind
	Receiver string
	Args     []Arg
	Duration *Expr
	durArg   int // index of the argument carrying Duration, -1 if none
}

// Effective returns the directive's contribution to the timeline.
func (d *Directive) Effective() float64 {
	if d.Duration == nil {
		return DefaultUnit
	}
	return d.Duration.Effective()
}

// SetDuration replaces or adds the duration argument.
func (d *Directive) SetDuration(e Expr) {
	d.Duration = &e
	if d.durArg >= 0 {
		d.Args[d.durArg].Value = e.String()
		return
	}
	switch {
	case d.Kind == Play:
		d.Args = append(d.Args, Arg{Name: "run_time", Value: e.String()})
	case len(d.Args) == 0:
		d.Args = append(d.Args, Arg{Value: e.String()})
	default:
		d.Args = append(d.Args, Arg{Name: "duration", Value: e.String()})
	}
	d.durArg = len(d.Args) - 1
}

// Scale multiplies the directive's effective duration by f.
func (d *Directive) Scale(f float64) {
	if d.Duration == nil {
		d.SetDuration(Literal(DefaultUnit * f))
		return
	}
	d.SetDuration(d.Duration.Scaled(f))
}

func (d *Directive) String() string {
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	return d.Receiver + "." + string(d.Kind) + "(" + strings.Join(args, ", ") + ")"
}

// Expr is a duration expression: either a numeric literal or an opaque
// expression multiplied by a numeric scale. Opaque expressions cannot be
// evaluated statically and count as DefaultUnit times their scale.
type Expr struct {
	IsLiteral bool
	Value     float64
	Raw       string
	Scale     float64
}

// Literal builds a literal duration.
func Literal(v float64) Expr {
	return Expr{IsLiteral: true, Value: v}
}

// Effective returns the expression's non-negative duration estimate.
func (e Expr) Effective() float64 {
	v := e.Value
	if !e.IsLiteral {
		v = DefaultUnit * e.Scale
	}
	if v < 0 {
		return 0
	}
	return v
}

// Scaled returns e multiplied by f.
func (e Expr) Scaled(f float64) Expr {
	if e.IsLiteral {
		return Literal(e.Value * f)
	}
	return Expr{Raw: e.Raw, Scale: e.Scale * f}
}

func (e Expr) String() string {
	if e.IsLiteral {
		return formatFloat(e.Value)
	}
	if e.Scale == 1 {
		return e.Raw
	}
	return "(" + e.Raw + ") * " + formatFloat(e.Scale)
}

// ParseExpr interprets a duration argument.
func ParseExpr(s string) Expr {
	s = strings.TrimSpace(s)
	if v, ok := parseNumber(s); ok {
		return Literal(v)
	}
	if strings.HasPrefix(s, "(") {
		if end := matchingParen(s, 0); end > 0 {
			rest := strings.TrimSpace(s[end+1:])
			if strings.HasPrefix(rest, "*") && !strings.HasPrefix(rest, "**") {
				if k, ok := parseNumber(strings.TrimSpace(rest[1:])); ok {
					inner := ParseExpr(s[1:end])
					return inner.Scaled(k)
				}
			}
		}
	}
	return Expr{Raw: s, Scale: 1}
}

func parseNumber(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "xXjJ") {
		return 0, false
	}
	digits := strings.TrimLeft(s, "+-")
	if digits == "" || !(digits[0] == '.' || (digits[0] >= '0' && digits[0] <= '9')) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// matchingParen returns the index of the parenthesis closing s[open], or -1.
func matchingParen(s string, open int) int {
	depth := 0
	quote := byte(0)
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if c == ')' {
					return i
				}
				return -1
			}
		}
	}
	return -1
}
