package expr

import "fmt"

type segment struct {
	text string // literal text, when expr == nil
	expr Node
}

// Template is a parsed `${{ ... }}`-bearing string. A template made of a
// single pure expression segment (no surrounding literal text) evaluates to
// that expression's raw value; any other shape evaluates to a stringified
// concatenation (spec.md §4.2's pure-expression-vs-template distinction).
type Template struct {
	segments []segment
	pure     bool // exactly one segment, and it is an expression
}

// Parse splits src into literal-text and `${{ expr }}` segments and parses
// every expression segment into an AST, without evaluating anything yet.
func Parse(src string) (*Template, error) {
	segs, err := splitSegments(src)
	if err != nil {
		return nil, err
	}
	t := &Template{segments: segs}
	if len(segs) == 1 && segs[0].expr != nil {
		t.pure = true
	}
	return t, nil
}

// Eval evaluates the template against ctx. A pure expression template
// returns its raw value (which may be any type); any template containing
// literal text, or more than one segment, returns a string.
func (t *Template) Eval(ctx Context) (any, error) {
	if t.pure {
		return eval(t.segments[0].expr, ctx)
	}
	var sb []byte
	for _, s := range t.segments {
		if s.expr == nil {
			sb = append(sb, s.text...)
			continue
		}
		v, err := eval(s.expr, ctx)
		if err != nil {
			return nil, err
		}
		sb = append(sb, stringify(v)...)
	}
	return string(sb), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// splitSegments scans src for `${{ ... }}` blocks, tracking quote state and
// nested-brace depth (for map literals) so a lone `}` inside an expression
// isn't mistaken for the template's closing `}}`.
func splitSegments(src string) ([]segment, error) {
	var segs []segment
	i := 0
	n := len(src)
	lastText := 0
	for i < n {
		if src[i] == '$' && i+2 < n && src[i+1] == '{' && src[i+2] == '{' {
			if i > lastText {
				segs = append(segs, segment{text: src[lastText:i]})
			}
			start := i
			i += 3
			exprStart := i
			depth := 0
			var quote byte
			closed := false
			for i < n {
				c := src[i]
				if quote != 0 {
					if c == '\\' && i+1 < n {
						i += 2
						continue
					}
					if c == quote {
						quote = 0
					}
					i++
					continue
				}
				switch c {
				case '\'', '"':
					quote = c
					i++
				case '{':
					depth++
					i++
				case '}':
					if depth > 0 {
						depth--
						i++
						continue
					}
					if i+1 < n && src[i+1] == '}' {
						closed = true
						goto done
					}
					return nil, &ParseError{Offset: i, Expected: "'}}'"}
				default:
					i++
				}
			}
		done:
			if !closed {
				return nil, &ParseError{Offset: start, Expected: "closing '}}'"}
			}
			body := src[exprStart:i]
			node, err := parseExprBody(body)
			if err != nil {
				return nil, err
			}
			segs = append(segs, segment{expr: node})
			i += 2 // consume "}}"
			lastText = i
			continue
		}
		i++
	}
	if lastText < n {
		segs = append(segs, segment{text: src[lastText:n]})
	}
	if len(segs) == 0 {
		segs = append(segs, segment{text: ""})
	}
	return segs, nil
}

func parseExprBody(body string) (Node, error) {
	toks, err := lex(body)
	if err != nil {
		return nil, err
	}
	return parseTokens(toks)
}
