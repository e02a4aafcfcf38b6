package script

import "strings"

// String renders the script. Nodes that were not edited keep their original
// text.
func (s *Script) String() string {
	var b strings.Builder
	writeNodes(&b, s.Nodes)
	out := b.String()
	if !s.trailingNewline {
		out = strings.TrimSuffix(out, "\n")
	}
	return out
}

func writeNodes(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Blank:
			b.WriteString(n.Raw)
		case *Simple:
			if n.dirty {
				b.WriteString(n.Indent + joinStmts(n.Stmts) + trailing(n.Comment))
			} else {
				b.WriteString(n.Raw)
			}
		case *Block:
			switch {
			case !n.dirty:
				b.WriteString(n.Raw)
			case len(n.Inline) > 0:
				b.WriteString(n.Indent + n.Header + " " + joinStmts(n.Inline) + trailing(n.Comment))
			default:
				b.WriteString(n.Indent + n.Header + trailing(n.Comment))
			}
			b.WriteByte('\n')
			writeNodes(b, n.Body)
			continue
		}
		b.WriteByte('\n')
	}
}

func joinStmts(stmts []*Stmt) string {
	parts := make([]string, len(stmts))
	for i, st := range stmts {
		parts[i] = st.String()
	}
	return strings.Join(parts, "; ")
}

func trailing(comment string) string {
	if comment == "" {
		return ""
	}
	return "  " + comment
}

func (st *Stmt) String() string {
	if st.Directive != nil {
		return st.Directive.String()
	}
	return st.Code
}

// EditDirectives calls fn for every directive in source order, descending
// into all blocks. Nodes whose directive fn reports as changed are rendered
// from the tree afterwards.
func (s *Script) EditDirectives(fn func(d *Directive) bool) {
	editNodes(s.Nodes, fn)
}

func editNodes(nodes []Node, fn func(d *Directive) bool) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Simple:
			if editStmts(n.Stmts, fn) {
				n.dirty = true
			}
		case *Block:
			if editStmts(n.Inline, fn) {
				n.dirty = true
			}
			editNodes(n.Body, fn)
		}
	}
}

func editStmts(stmts []*Stmt, fn func(d *Directive) bool) bool {
	changed := false
	for _, st := range stmts {
		if st.Directive != nil && fn(st.Directive) {
			changed = true
		}
	}
	return changed
}

// Directives lists every directive in source order.
func (s *Script) Directives() []*Directive {
	var out []*Directive
	s.EditDirectives(func(d *Directive) bool {
		out = append(out, d)
		return false
	})
	return out
}

// Classes lists the top-level class blocks.
func (s *Script) Classes() []*Block {
	var out []*Block
	for _, n := range s.Nodes {
		if b, ok := n.(*Block); ok && b.Keyword == "class" {
			out = append(out, b)
		}
	}
	return out
}

// Method returns the def block called name directly inside b, or nil.
func (b *Block) Method(name string) *Block {
	for _, n := range b.Body {
		if m, ok := n.(*Block); ok && m.Keyword == "def" && m.Name == name {
			return m
		}
	}
	return nil
}

// EntryRoutine returns the construct method of the scene class called scene,
// or nil. Other scene classes are never used: the renderer is asked for scene
// by name.
func (s *Script) EntryRoutine(scene string) *Block {
	for _, c := range s.Classes() {
		if c.Name != scene {
			continue
		}
		if m := c.Method("construct"); m != nil {
			return m
		}
	}
	return nil
}

// bodyIndent returns the indentation of b's body, expanding an inline body
// onto its own lines when needed.
func (b *Block) bodyIndent() string {
	if len(b.Inline) > 0 {
		b.Body = []Node{&Simple{Indent: b.Indent + "    ", Stmts: b.Inline, dirty: true}}
		b.Inline = nil
		b.dirty = true
	}
	for _, n := range b.Body {
		switch n := n.(type) {
		case *Simple:
			return n.Indent
		case *Block:
			return n.Indent
		}
	}
	return b.Indent + "    "
}

// Prepend inserts statements at the top of b's body.
func (b *Block) Prepend(code ...string) {
	indent := b.bodyIndent()
	nodes := make([]Node, 0, len(code)+len(b.Body))
	for _, c := range code {
		nodes = append(nodes, newSimple(indent, c))
	}
	b.Body = append(nodes, b.Body...)
}

// Append inserts a statement after the last non-blank node of b's body.
func (b *Block) Append(code string) {
	indent := b.bodyIndent()
	at := len(b.Body)
	for at > 0 {
		if _, ok := b.Body[at-1].(*Blank); !ok {
			break
		}
		at--
	}
	body := make([]Node, 0, len(b.Body)+1)
	body = append(body, b.Body[:at]...)
	body = append(body, newSimple(indent, code))
	b.Body = append(body, b.Body[at:]...)
}

// RemoveStatements drops the statements directly in b's body for which match
// returns true and reports how many were removed.
func (b *Block) RemoveStatements(match func(code string) bool) int {
	removed := 0
	kept := b.Body[:0:0]
	for _, n := range b.Body {
		s, ok := n.(*Simple)
		if !ok {
			kept = append(kept, n)
			continue
		}
		stmts := s.Stmts[:0:0]
		for _, st := range s.Stmts {
			if match(st.Code) {
				removed++
				continue
			}
			stmts = append(stmts, st)
		}
		switch {
		case len(stmts) == len(s.Stmts):
			kept = append(kept, s)
		case len(stmts) > 0:
			s.Stmts = stmts
			s.dirty = true
			kept = append(kept, s)
		}
	}
	b.Body = kept
	return removed
}

func newSimple(indent, code string) *Simple {
	return &Simple{Indent: indent, Stmts: parseStmts(code), dirty: true}
}
