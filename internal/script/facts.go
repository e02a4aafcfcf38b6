package script

import (
	"regexp"
	"strings"
)

// Facts is the static summary of a script consumed by validation policies.
type Facts struct {
	Imports    []string    `json:"imports"`
	Classes    []ClassFact `json:"classes"`
	Calls      []string    `json:"calls"`
	Directives int         `json:"directives"`
	Scene      string      `json:"scene"`
	HasEntry   bool        `json:"has_entry"`
	EntryClass string      `json:"entry_class,omitempty"`
}

// ClassFact describes one top-level class.
type ClassFact struct {
	Name         string `json:"name"`
	Bases        string `json:"bases"`
	HasConstruct bool   `json:"has_construct"`
}

var callPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\(`)

// Facts collects the imports, classes, called names and directive count of s.
// scene names the entry scene class; HasEntry is set only when a class of
// exactly that name defines construct.
func (s *Script) Facts(scene string) Facts {
	f := Facts{Scene: scene, Imports: []string{}, Classes: []ClassFact{}, Calls: []string{}}
	seen := map[string]bool{}

	var visit func(nodes []Node)
	addCalls := func(code string) {
		for _, m := range callPattern.FindAllStringSubmatch(stripStrings(code), -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				f.Calls = append(f.Calls, m[1])
			}
		}
	}
	visit = func(nodes []Node) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *Simple:
				for _, st := range n.Stmts {
					f.Imports = append(f.Imports, importedModules(st.Code)...)
					addCalls(st.Code)
				}
			case *Block:
				addCalls(n.Header)
				for _, st := range n.Inline {
					addCalls(st.Code)
				}
				visit(n.Body)
			}
		}
	}
	visit(s.Nodes)

	for _, c := range s.Classes() {
		f.Classes = append(f.Classes, ClassFact{
			Name:         c.Name,
			Bases:        c.Bases,
			HasConstruct: c.Method("construct") != nil,
		})
		if c.Name == scene && c.Method("construct") != nil {
			f.HasEntry = true
			f.EntryClass = c.Name
		}
	}
	f.Directives = len(s.Directives())
	return f
}

func importedModules(code string) []string {
	switch firstWord(code) {
	case "import":
		var mods []string
		for _, part := range strings.Split(strings.TrimPrefix(code, "import"), ",") {
			if fields := strings.Fields(part); len(fields) > 0 {
				mods = append(mods, fields[0])
			}
		}
		return mods
	case "from":
		if fields := strings.Fields(code); len(fields) >= 2 {
			return []string{fields[1]}
		}
	}
	return nil
}

// stripStrings blanks out string literal contents so calls named inside text
// are not reported.
func stripStrings(code string) string {
	b := []byte(code)
	quote := byte(0)
	for i := 0; i < len(b); i++ {
		c := b[i]
		if quote == 0 {
			if c == '\'' || c == '"' {
				quote = c
			}
			continue
		}
		switch {
		case c == '\\':
			b[i] = ' '
			if i+1 < len(b) {
				i++
				b[i] = ' '
			}
		case c == quote:
			quote = 0
		default:
			b[i] = ' '
		}
	}
	return string(b)
}
