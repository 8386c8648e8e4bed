package calc

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp // + - * / ^ ( ) || !
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// suffixes scale a number literal, e.g. 5k == 5000, 3m == 0.003.
var suffixes = map[byte]float64{
	'%': 0.01,
	'k': 1e3,
	'M': 1e6,
	'G': 1e9,
	'T': 1e12,
	'c': 1e-2,
	'm': 1e-3,
	'u': 1e-6,
	'n': 1e-9,
	'p': 1e-12,
}

func isIdentStart(c byte) bool { return c == '_' || c < 0x80 && unicode.IsLetter(rune(c)) }
func isIdentPart(c byte) bool  { return isIdentStart(c) || c >= '0' && c <= '9' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || c == '.' && i+1 < len(src) && isDigit(src[i+1]):
			t, n, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, t)
			i = n
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		case c == '|':
			if i+1 < len(src) && src[i+1] == '|' {
				toks = append(toks, token{kind: tokOp, text: "||", pos: i})
				i += 2
				continue
			}
			return nil, &SyntaxError{Pos: i, Msg: "single '|'"}
		case strings.IndexByte("+-*/^()!", c) >= 0:
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		default:
			return nil, &SyntaxError{Pos: i, Msg: "unexpected character " + strconv.QuoteRune(rune(c))}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// lexNumber reads digits[.digits][e[+-]digits][suffix] starting at i.
func lexNumber(src string, i int) (token, int, error) {
	start := i
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			i = j
		}
	}
	v, err := strconv.ParseFloat(src[start:i], 64)
	if err != nil {
		return token{}, 0, &SyntaxError{Pos: start, Msg: "bad number " + strconv.Quote(src[start:i])}
	}
	if i < len(src) {
		if scale, ok := suffixes[src[i]]; ok && (i+1 == len(src) || !isIdentPart(src[i+1])) {
			v *= scale
			i++
		}
	}
	return token{kind: tokNumber, text: src[start:i], num: v, pos: start}, i, nil
}
