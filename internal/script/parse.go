package script

import (
	"strings"
	"unicode"
)

// Script is a parsed animation script.
type Script struct {
	Nodes []Node

	trailingNewline bool
}

var blockKeywords = map[string]bool{
	"class": true, "def": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "with": true, "try": true, "except": true,
	"finally": true, "async": true, "match": true, "case": true,
}

type parser struct {
	lines []line
	pos   int
}

// Parse builds the statement tree of src.
func Parse(src string) (*Script, error) {
	lines, err := splitLines(src)
	if err != nil {
		return nil, err
	}
	p := &parser{lines: lines}

	nodes, err := p.suite(0)
	if err != nil {
		return nil, err
	}
	return &Script{
		Nodes:           nodes,
		trailingNewline: strings.HasSuffix(strings.ReplaceAll(src, "\r\n", "\n"), "\n"),
	}, nil
}

// suite parses consecutive statements indented at exactly width.
func (p *parser) suite(width int) ([]Node, error) {
	var nodes []Node
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.blank {
			nodes = append(nodes, &Blank{Raw: l.raw})
			p.pos++
			continue
		}

		w := indentWidth(l.indent)
		if w < width {
			return nodes, nil
		}
		if w > width {
			return nil, &SyntaxError{Line: l.num, Msg: "unexpected indent"}
		}

		n, err := p.statement(l, w)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (p *parser) statement(l line, width int) (Node, error) {
	p.pos++

	colon, ok := headerColon(l.code)
	if !ok {
		return &Simple{
			Indent:  l.indent,
			Raw:     l.raw,
			Comment: l.comment,
			Stmts:   parseStmts(l.code),
			Line:    l.num,
		}, nil
	}

	b := &Block{
		Indent:  l.indent,
		Raw:     l.raw,
		Keyword: firstWord(l.code),
		Header:  l.code[:colon+1],
		Comment: l.comment,
		Line:    l.num,
	}
	b.Name, b.Bases = headerName(b.Keyword, l.code[:colon])
	if b.Keyword == "async" {
		rest := strings.TrimSpace(strings.TrimPrefix(l.code, "async"))
		b.Keyword = "async " + firstWord(rest)
		b.Name, b.Bases = headerName(firstWord(rest), rest)
	}

	if inline := strings.TrimSpace(l.code[colon+1:]); inline != "" {
		b.Inline = parseStmts(inline)
		return b, nil
	}

	// The body is indented deeper than the header; blank lines before it
	// belong to the body.
	next := p.pos
	for next < len(p.lines) && p.lines[next].blank {
		next++
	}
	if next == len(p.lines) || indentWidth(p.lines[next].indent) <= width {
		return nil, &SyntaxError{Line: l.num, Msg: "expected an indented block"}
	}

	body, err := p.suite(indentWidth(p.lines[next].indent))
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		w := indentWidth(p.lines[p.pos].indent)
		if w > width && !p.lines[p.pos].blank {
			return nil, &SyntaxError{Line: p.lines[p.pos].num, Msg: "unindent does not match any outer indentation level"}
		}
	}
	b.Body = body
	return b, nil
}

// headerColon finds the colon that ends a compound statement header.
func headerColon(code string) (int, bool) {
	if !blockKeywords[firstWord(code)] {
		return 0, false
	}
	idx := -1
	scanTopLevel(code, func(i int) bool {
		if code[i] == ':' && (i+1 >= len(code) || code[i+1] != '=') {
			idx = i
			return false
		}
		return true
	})
	if idx < 0 {
		return 0, false
	}
	// match and case are soft keywords: "match: int = 3" is an assignment.
	if w := firstWord(code); w == "match" || w == "case" {
		if rest := strings.TrimSpace(code[len(w):]); rest == "" || rest[0] == ':' || rest[0] == '=' {
			return 0, false
		}
	}
	return idx, true
}

func firstWord(code string) string {
	end := strings.IndexFunc(code, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if end < 0 {
		return code
	}
	return code[:end]
}

func headerName(keyword, header string) (name, bases string) {
	if keyword != "class" && keyword != "def" {
		return "", ""
	}
	rest := strings.TrimSpace(strings.TrimPrefix(header, keyword))
	name = firstWord(rest)
	if keyword == "class" {
		if open := strings.IndexByte(rest, '('); open >= 0 {
			if end := matchingParen(rest, open); end > open {
				bases = strings.TrimSpace(rest[open+1 : end])
			}
		}
	}
	return name, bases
}

func parseStmts(code string) []*Stmt {
	var stmts []*Stmt
	for _, part := range splitTopLevel(code, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		stmts = append(stmts, &Stmt{Code: part, Directive: parseDirective(part)})
	}
	return stmts
}

// parseDirective recognizes self.wait(...) and self.play(...) statements.
func parseDirective(code string) *Directive {
	const receiver = "self"
	if !strings.HasPrefix(code, receiver) {
		return nil
	}
	rest := strings.TrimLeft(code[len(receiver):], " \t")
	if !strings.HasPrefix(rest, ".") {
		return nil
	}
	rest = strings.TrimLeft(rest[1:], " \t")

	var kind DirectiveKind
	switch name := firstWord(rest); name {
	case string(Wait):
		kind = Wait
	case string(Play):
		kind = Play
	default:
		return nil
	}
	rest = strings.TrimLeft(rest[len(kind):], " \t")
	if !strings.HasPrefix(rest, "(") || matchingParen(rest, 0) != len(rest)-1 {
		return nil
	}

	d := &Directive{Kind: kind, Receiver: receiver, durArg: -1}
	if inner := strings.TrimSpace(rest[1 : len(rest)-1]); inner != "" {
		for _, a := range splitTopLevel(inner, ',') {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			d.Args = append(d.Args, parseArg(a))
		}
	}

	for i, a := range d.Args {
		switch {
		case kind == Wait && i == 0 && a.Name == "" && !strings.HasPrefix(a.Value, "*"):
			d.durArg = i
		case kind == Wait && a.Name == "duration":
			d.durArg = i
		case kind == Play && a.Name == "run_time":
			d.durArg = i
		default:
			continue
		}
		break
	}
	if d.durArg >= 0 {
		e := ParseExpr(d.Args[d.durArg].Value)
		d.Duration = &e
	}
	return d
}

func parseArg(a string) Arg {
	eq := -1
	scanTopLevel(a, func(i int) bool {
		if a[i] == '=' {
			eq = i
			return false
		}
		return true
	})
	if eq <= 0 || (eq+1 < len(a) && a[eq+1] == '=') {
		return Arg{Value: a}
	}
	name := strings.TrimSpace(a[:eq])
	if name == "" || firstWord(name) != name || unicode.IsDigit(rune(name[0])) {
		return Arg{Value: a}
	}
	return Arg{Name: name, Value: strings.TrimSpace(a[eq+1:])}
}
