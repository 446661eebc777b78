package callctx

import "strings"

var multiCharOps = []string{
	"?->", "<=>", "**=", "...", "<<=", ">>=", "===", "!==", "??=",
	"->", "::", "=>", "==", "!=", "<>", "<=", ">=", "&&", "||", "??",
	"++", "--", "+=", "-=", "*=", "/=", ".=", "%=", "&=", "|=", "^=",
	"<<", ">>", "**",
}

// lexBasic is a small hand-written PHP lexer without HTML state, string
// interpolation or version rules. It is the fallback when lexPHP fails.
// base is added to every offset, line is the line of src[0].
func lexBasic(src string, base, line int) []Token {
	var toks []Token
	emit := func(kind TokenKind, start, end int) {
		text := src[start:end]
		toks = append(toks, Token{Kind: kind, Text: text, Line: line, Offset: base + start})
		line += strings.Count(text, "\n")
	}

	i := 0
	for i < len(src) {
		c := src[i]
		start := i
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			for i < len(src) && strings.IndexByte(" \t\n\r\f\v", src[i]) >= 0 {
				i++
			}
			emit(Whitespace, start, i)

		case strings.HasPrefix(src[i:], "<?php"), strings.HasPrefix(src[i:], "<?="):
			i += 5
			if src[start+2] == '=' {
				i = start + 3
			}
			emit(Opaque, start, i)

		case strings.HasPrefix(src[i:], "?>"):
			i += 2
			end := strings.Index(src[i:], "<?")
			if end < 0 {
				i = len(src)
			} else {
				i += end
			}
			emit(Opaque, start, i)

		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += 2 + end + 2
			}
			kind := Comment
			if strings.HasPrefix(src[start:i], "/**") && i-start > 4 {
				kind = DocComment
			}
			emit(kind, start, i)

		case strings.HasPrefix(src[i:], "//"), c == '#' && !strings.HasPrefix(src[i:], "#["):
			for i < len(src) && src[i] != '\n' && !strings.HasPrefix(src[i:], "?>") {
				i++
			}
			emit(Comment, start, i)

		case c == '\'' || c == '"' || c == '`':
			i = scanQuoted(src, i)
			emit(String, start, i)

		case strings.HasPrefix(src[i:], "<<<"):
			i = scanHeredoc(src, i)
			emit(String, start, i)

		case c == '$' && i+1 < len(src) && isIdentStart(src[i+1]):
			i++
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			emit(Variable, start, i)

		case isDigit(c):
			for i < len(src) && (isIdentChar(src[i]) || src[i] == '.') {
				i++
			}
			emit(Number, start, i)

		case isIdentStart(c):
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			kind := Identifier
			if keywords[strings.ToLower(src[start:i])] {
				kind = Keyword
			}
			emit(kind, start, i)

		default:
			if op := matchOperator(src[i:]); op != "" {
				i += len(op)
				emit(classifyText(op), start, i)
				continue
			}
			i++
			switch {
			case strings.IndexByte(punctuationChars, c) >= 0:
				emit(Punctuation, start, i)
			case strings.IndexByte(operatorChars, c) >= 0:
				emit(Operator, start, i)
			default:
				emit(Opaque, start, i)
			}
		}
	}
	return toks
}

func matchOperator(s string) string {
	for _, op := range multiCharOps {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

// scanQuoted returns the offset just past the string starting at i, or
// len(src) when the string is never closed.
func scanQuoted(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(src)
}

func scanHeredoc(src string, i int) int {
	j := i + 3
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	quoted := j < len(src) && (src[j] == '\'' || src[j] == '"')
	if quoted {
		j++
	}
	labelStart := j
	for j < len(src) && isIdentChar(src[j]) {
		j++
	}
	label := src[labelStart:j]
	if label == "" {
		return i + 3
	}
	if quoted && j < len(src) {
		j++
	}
	for {
		nl := strings.IndexByte(src[j:], '\n')
		if nl < 0 {
			return len(src)
		}
		j += nl + 1
		k := j
		for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
			k++
		}
		if strings.HasPrefix(src[k:], label) {
			end := k + len(label)
			if end >= len(src) || !isIdentChar(src[end]) {
				return end
			}
		}
	}
}
