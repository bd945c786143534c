package expr

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokInt
	tokFloat
	tokDot
	tokComma
	tokColon
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokEq
	tokNeq
)

type token struct {
	kind   tokenKind
	text   string
	num    float64
	offset int
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true,
	"if": true, "else": true,
	"true": true, "false": true, "null": true,
	"inputs": true, "steps": true, "item": true, "index": true, "output": true,
}

// lex tokenizes the body of a single `${{ ... }}` expression.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, offset: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, offset: i})
			i++
		case c == ':':
			toks = append(toks, token{kind: tokColon, offset: i})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBracket, offset: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBracket, offset: i})
			i++
		case c == '{':
			toks = append(toks, token{kind: tokLBrace, offset: i})
			i++
		case c == '}':
			toks = append(toks, token{kind: tokRBrace, offset: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, offset: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, offset: i})
			i++
		case c == '=' && i+1 < n && src[i+1] == '=':
			toks = append(toks, token{kind: tokEq, offset: i})
			i += 2
		case c == '!' && i+1 < n && src[i+1] == '=':
			toks = append(toks, token{kind: tokNeq, offset: i})
			i += 2
		case c == '\'' || c == '"':
			start := i
			quote := c
			i++
			var sb strings.Builder
			closed := false
			for i < n {
				if src[i] == '\\' && i+1 < n {
					sb.WriteByte(src[i+1])
					i += 2
					continue
				}
				if src[i] == quote {
					i++
					closed = true
					break
				}
				sb.WriteByte(src[i])
				i++
			}
			if !closed {
				return nil, &ParseError{Offset: start, Expected: "closing quote"}
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), offset: start})
		case c >= '0' && c <= '9':
			start := i
			isFloat := false
			for i < n && (src[i] >= '0' && src[i] <= '9') {
				i++
			}
			if i < n && src[i] == '.' && i+1 < n && src[i+1] >= '0' && src[i+1] <= '9' {
				isFloat = true
				i++
				for i < n && src[i] >= '0' && src[i] <= '9' {
					i++
				}
			}
			text := src[start:i]
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &ParseError{Offset: start, Expected: "number"}
			}
			if isFloat {
				toks = append(toks, token{kind: tokFloat, num: f, offset: start})
			} else {
				toks = append(toks, token{kind: tokInt, num: f, offset: start})
			}
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], offset: start})
		default:
			return nil, &ParseError{Offset: i, Expected: "valid token"}
		}
	}
	toks = append(toks, token{kind: tokEOF, offset: n})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
