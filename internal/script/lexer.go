package script

import (
	"fmt"
	"strings"
)

// line is one logical source line: a statement possibly spanning several
// physical lines through open brackets, triple-quoted strings or backslash
// continuations.
type line struct {
	num     int    // 1-based physical line where the logical line starts
	indent  string // leading whitespace of the first physical line
	raw     string // original text, without the terminating newline
	code    string // text without indent and comments, continuations joined
	comment string // trailing comment of a single physical line, if any
	blank   bool   // empty or comment-only
}

// SyntaxError reports a structural problem in a script.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// splitLines turns src into logical lines.
func splitLines(src string) ([]line, error) {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	var (
		out     []line
		raw     strings.Builder
		code    strings.Builder
		comment string
		depth   int
		stack   []byte
		start   = 1
		lineNo  = 1
		quote   string // active string delimiter: ', ", ''' or """
	)

	flush := func() {
		r := raw.String()
		trimmed := strings.TrimLeft(r, " \t")
		l := line{
			num:     start,
			indent:  r[:len(r)-len(trimmed)],
			raw:     r,
			code:    strings.TrimSpace(code.String()),
			comment: comment,
		}
		l.blank = l.code == ""
		out = append(out, l)
		raw.Reset()
		code.Reset()
		comment = ""
	}

	for i := 0; i < len(src); i++ {
		c := src[i]

		if quote != "" {
			raw.WriteByte(c)
			code.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(src):
				i++
				raw.WriteByte(src[i])
				code.WriteByte(src[i])
				if src[i] == '\n' {
					lineNo++
				}
			case c == '\n':
				if len(quote) == 1 {
					return nil, &SyntaxError{Line: lineNo, Msg: "unterminated string literal"}
				}
				lineNo++
			case strings.HasPrefix(src[i:], quote):
				rest := quote[1:]
				raw.WriteString(rest)
				code.WriteString(rest)
				i += len(rest)
				quote = ""
			}
			continue
		}

		switch c {
		case '\'', '"':
			if strings.HasPrefix(src[i:], strings.Repeat(string(c), 3)) {
				quote = strings.Repeat(string(c), 3)
			} else {
				quote = string(c)
			}
			raw.WriteString(quote)
			code.WriteString(quote)
			i += len(quote) - 1
		case '#':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			text := src[i : i+end]
			raw.WriteString(text)
			if depth == 0 {
				comment = text
			}
			i += end - 1
		case '\\':
			if i+1 < len(src) && src[i+1] == '\n' {
				raw.WriteString("\\\n")
				code.WriteByte(' ')
				i++
				lineNo++
				continue
			}
			raw.WriteByte(c)
			code.WriteByte(c)
		case '(', '[', '{':
			depth++
			stack = append(stack, c)
			raw.WriteByte(c)
			code.WriteByte(c)
		case ')', ']', '}':
			if depth == 0 || stack[len(stack)-1] != opening(c) {
				return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("unmatched %q", c)}
			}
			depth--
			stack = stack[:len(stack)-1]
			raw.WriteByte(c)
			code.WriteByte(c)
		case '\n':
			if depth > 0 {
				raw.WriteByte(c)
				code.WriteByte(c)
				lineNo++
				continue
			}
			flush()
			lineNo++
			start = lineNo
		default:
			raw.WriteByte(c)
			code.WriteByte(c)
		}
	}

	if quote != "" {
		return nil, &SyntaxError{Line: lineNo, Msg: "unterminated string literal"}
	}
	if depth > 0 {
		return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("unclosed %q", stack[len(stack)-1])}
	}
	if raw.Len() > 0 {
		flush()
	}
	return out, nil
}

func opening(c byte) byte {
	switch c {
	case ')':
		return '('
	case ']':
		return '['
	}
	return '{'
}

// indentWidth measures leading whitespace the way Python does, with tabs
// advancing to the next multiple of eight.
func indentWidth(indent string) int {
	w := 0
	for _, c := range indent {
		if c == '\t' {
			w += 8 - w%8
		} else {
			w++
		}
	}
	return w
}

// scanTopLevel calls fn for every byte of s that sits outside strings and
// brackets. Returning false stops the scan.
func scanTopLevel(s string, fn func(i int) bool) {
	depth := 0
	quote := ""
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != "" {
			if c == '\\' {
				i++
				continue
			}
			if strings.HasPrefix(s[i:], quote) {
				i += len(quote) - 1
				quote = ""
			}
			continue
		}
		switch c {
		case '\'', '"':
			if strings.HasPrefix(s[i:], strings.Repeat(string(c), 3)) {
				quote = strings.Repeat(string(c), 3)
			} else {
				quote = string(c)
			}
			i += len(quote) - 1
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth == 0 && !fn(i) {
			return
		}
	}
}

// splitTopLevel splits s on sep where sep is not nested in brackets or strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	last := 0
	scanTopLevel(s, func(i int) bool {
		if s[i] == sep {
			parts = append(parts, s[last:i])
			last = i + 1
		}
		return true
	})
	return append(parts, s[last:])
}
