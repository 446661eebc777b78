package callctx

import (
	"fmt"
	"strings"

	"github.com/VKCOM/php-parser/pkg/token"
	"github.com/VKCOM/php-parser/pkg/version"
)

// keywordSince lists keywords that are plain names before a PHP version.
var keywordSince = map[string]*version.Version{
	"fn":    {Major: 7, Minor: 4},
	"match": {Major: 8, Minor: 0},
}

func atLeast(v, min *version.Version) bool {
	if v.Major != min.Major {
		return v.Major > min.Major
	}
	return v.Minor >= min.Minor
}

var php8 = &version.Version{Major: 8, Minor: 0}

var casts = map[string]token.ID{
	"int": token.T_INT_CAST, "integer": token.T_INT_CAST,
	"bool": token.T_BOOL_CAST, "boolean": token.T_BOOL_CAST,
	"float": token.T_DOUBLE_CAST, "double": token.T_DOUBLE_CAST, "real": token.T_DOUBLE_CAST,
	"string": token.T_STRING_CAST, "binary": token.T_STRING_CAST,
	"array":  token.T_ARRAY_CAST,
	"object": token.T_OBJECT_CAST,
	"unset":  token.T_UNSET_CAST,
}

// phpLexer follows the PHP scanner: it tracks the HTML/code state around
// open and close tags, lexes interpolated strings and heredocs as one
// lexeme and applies the grammar of the configured version.
type phpLexer struct {
	src  string
	ver  *version.Version
	pos  int
	line int
	code bool
	toks []Token
}

// lexPHP lexes source as a PHP file of version ver. Source that does not
// start with an open tag is taken to be code.
func lexPHP(source string, ver *version.Version) (toks []Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			toks = nil
			err = fmt.Errorf("%w: %v", ErrLexerPanic, r)
		}
	}()

	l := &phpLexer{src: source, ver: ver, line: 1, code: !strings.HasPrefix(source, "<?")}
	for l.pos < len(l.src) {
		if l.code {
			l.next()
		} else {
			l.html()
		}
	}
	return l.toks, nil
}

func (l *phpLexer) emit(id token.ID, end int) {
	text := l.src[l.pos:end]
	l.toks = append(l.toks, Token{Kind: l.kindOf(id, text), Text: text, Line: l.line, Offset: l.pos})
	l.line += strings.Count(text, "\n")
	l.pos = end
}

func (l *phpLexer) kindOf(id token.ID, text string) TokenKind {
	switch id {
	case token.T_INLINE_HTML, token.T_OPEN_TAG, token.T_OPEN_TAG_WITH_ECHO, token.T_CLOSE_TAG:
		return Opaque
	case token.T_WHITESPACE:
		return Whitespace
	case token.T_COMMENT:
		return Comment
	case token.T_DOC_COMMENT:
		return DocComment
	case token.T_CONSTANT_ENCAPSED_STRING, token.T_START_HEREDOC:
		return String
	case token.T_VARIABLE:
		return Variable
	case token.T_LNUMBER, token.T_DNUMBER:
		return Number
	case token.T_NAME_QUALIFIED, token.T_NAME_FULLY_QUALIFIED, token.T_NAME_RELATIVE:
		return Identifier
	case token.T_STRING:
		if l.isKeyword(text) {
			return Keyword
		}
		return Identifier
	case token.T_OBJECT_OPERATOR, token.T_NULLSAFE_OBJECT_OPERATOR:
		return ObjectOperator
	case token.T_PAAMAYIM_NEKUDOTAYIM:
		return DoubleColon
	case token.T_DOUBLE_ARROW:
		return DoubleArrow
	case token.T_INT_CAST, token.T_BOOL_CAST, token.T_DOUBLE_CAST, token.T_STRING_CAST,
		token.T_ARRAY_CAST, token.T_OBJECT_CAST, token.T_UNSET_CAST:
		return Operator
	case token.T_NS_SEPARATOR, token.T_ATTRIBUTE:
		return Punctuation
	}
	return classifyText(text)
}

func (l *phpLexer) isKeyword(word string) bool {
	w := strings.ToLower(word)
	if !keywords[w] {
		return false
	}
	if since, ok := keywordSince[w]; ok {
		return atLeast(l.ver, since)
	}
	return true
}

// html emits inline HTML up to the next open tag, then the tag itself.
func (l *phpLexer) html() {
	i := strings.Index(l.src[l.pos:], "<?")
	if i < 0 {
		l.emit(token.T_INLINE_HTML, len(l.src))
		return
	}
	if i > 0 {
		l.emit(token.T_INLINE_HTML, l.pos+i)
	}
	rest := l.src[l.pos:]
	switch {
	case len(rest) >= 5 && strings.EqualFold(rest[:5], "<?php"):
		l.emit(token.T_OPEN_TAG, l.pos+5)
	case strings.HasPrefix(rest, "<?="):
		l.emit(token.T_OPEN_TAG_WITH_ECHO, l.pos+3)
	default:
		l.emit(token.T_OPEN_TAG, l.pos+2)
	}
	l.code = true
}

func (l *phpLexer) next() {
	src, i := l.src, l.pos
	c := src[i]
	rest := src[i:]

	switch {
	case strings.IndexByte(" \t\n\r\f\v", c) >= 0:
		j := i
		for j < len(src) && strings.IndexByte(" \t\n\r\f\v", src[j]) >= 0 {
			j++
		}
		l.emit(token.T_WHITESPACE, j)

	case strings.HasPrefix(rest, "?>"):
		j := i + 2
		if j < len(src) && src[j] == '\n' {
			j++
		}
		l.emit(token.T_CLOSE_TAG, j)
		l.code = false

	case strings.HasPrefix(rest, "#["):
		if atLeast(l.ver, php8) {
			l.emit(token.T_ATTRIBUTE, i+1)
			l.emit(token.ID('['), i+2)
			return
		}
		l.emit(token.T_COMMENT, l.lineCommentEnd(i))

	case c == '#', strings.HasPrefix(rest, "//"):
		l.emit(token.T_COMMENT, l.lineCommentEnd(i))

	case strings.HasPrefix(rest, "/*"):
		j := len(src)
		if end := strings.Index(src[i+2:], "*/"); end >= 0 {
			j = i + 2 + end + 2
		}
		if strings.HasPrefix(rest, "/**") && j-i > 4 {
			l.emit(token.T_DOC_COMMENT, j)
		} else {
			l.emit(token.T_COMMENT, j)
		}

	case c == '\'':
		l.emit(token.T_CONSTANT_ENCAPSED_STRING, scanQuoted(src, i))

	case c == '"' || c == '`':
		l.emit(token.T_CONSTANT_ENCAPSED_STRING, l.interpolated(i+1, c))

	case (c == 'b' || c == 'B') && len(rest) > 1 && (rest[1] == '\'' || rest[1] == '"'):
		if rest[1] == '\'' {
			l.emit(token.T_CONSTANT_ENCAPSED_STRING, scanQuoted(src, i+1))
		} else {
			l.emit(token.T_CONSTANT_ENCAPSED_STRING, l.interpolated(i+2, '"'))
		}

	case strings.HasPrefix(rest, "<<<"):
		l.emit(token.T_START_HEREDOC, l.heredoc(i))

	case c == '(':
		if id, end := l.cast(i); id != 0 {
			l.emit(id, end)
			return
		}
		l.emit(token.ID(c), i+1)

	case c == '$' && i+1 < len(src) && isIdentStart(src[i+1]):
		j := i + 1
		for j < len(src) && isIdentChar(src[j]) {
			j++
		}
		l.emit(token.T_VARIABLE, j)

	case isDigit(c):
		j := i
		id := token.T_LNUMBER
		for j < len(src) && (isIdentChar(src[j]) || src[j] == '.') {
			if src[j] == '.' {
				id = token.T_DNUMBER
			}
			j++
		}
		l.emit(id, j)

	case isIdentStart(c) || (c == '\\' && i+1 < len(src) && isIdentStart(src[i+1])):
		l.name(i)

	case c == '\\':
		l.emit(token.T_NS_SEPARATOR, i+1)

	default:
		op := matchOperator(rest)
		if op == "?->" && !atLeast(l.ver, php8) {
			op = "?"
		}
		switch op {
		case "":
			l.emit(token.ID(c), i+1)
		case "->":
			l.emit(token.T_OBJECT_OPERATOR, i+2)
		case "?->":
			l.emit(token.T_NULLSAFE_OBJECT_OPERATOR, i+3)
		case "::":
			l.emit(token.T_PAAMAYIM_NEKUDOTAYIM, i+2)
		case "=>":
			l.emit(token.T_DOUBLE_ARROW, i+2)
		default:
			l.emit(token.ID(c), i+len(op))
		}
	}
}

// name lexes an identifier. PHP 8 reads a whole namespaced name as one
// token; earlier versions stop at each separator.
func (l *phpLexer) name(i int) {
	src := l.src
	j := i
	if src[j] == '\\' {
		j++
	}
	for j < len(src) && isIdentChar(src[j]) {
		j++
	}
	if !atLeast(l.ver, php8) {
		if src[i] == '\\' {
			l.emit(token.T_NS_SEPARATOR, i+1)
			return
		}
		l.emit(token.T_STRING, j)
		return
	}

	segments := 1
	for j+1 < len(src) && src[j] == '\\' && isIdentStart(src[j+1]) {
		j++
		for j < len(src) && isIdentChar(src[j]) {
			j++
		}
		segments++
	}
	switch {
	case src[i] == '\\':
		l.emit(token.T_NAME_FULLY_QUALIFIED, j)
	case segments == 1:
		l.emit(token.T_STRING, j)
	case j-i > len(`namespace\`) && strings.EqualFold(src[i:i+len(`namespace\`)], `namespace\`):
		l.emit(token.T_NAME_RELATIVE, j)
	default:
		l.emit(token.T_NAME_QUALIFIED, j)
	}
}

// lineCommentEnd returns where a // or # comment starting at i ends.
func (l *phpLexer) lineCommentEnd(i int) int {
	j := i
	for j < len(l.src) && l.src[j] != '\n' && !strings.HasPrefix(l.src[j:], "?>") {
		j++
	}
	return j
}

// cast matches "( type )" at i.
func (l *phpLexer) cast(i int) (token.ID, int) {
	src := l.src
	j := i + 1
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	start := j
	for j < len(src) && isIdentChar(src[j]) {
		j++
	}
	id, ok := casts[strings.ToLower(src[start:j])]
	if !ok {
		return 0, 0
	}
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	if j >= len(src) || src[j] != ')' {
		return 0, 0
	}
	return id, j + 1
}

// interpolated returns the offset just past a double-quoted or backtick
// string whose body starts at i. Quotes inside {$...} and ${...} belong to
// the embedded expression.
func (l *phpLexer) interpolated(i int, q byte) int {
	src := l.src
	for j := i; j < len(src); j++ {
		switch {
		case src[j] == '\\':
			j++
		case src[j] == q:
			return j + 1
		case src[j] == '{' && j+1 < len(src) && src[j+1] == '$':
			j = l.braces(j) - 1
		case src[j] == '$' && j+1 < len(src) && src[j+1] == '{':
			j = l.braces(j+1) - 1
		}
	}
	return len(src)
}

// braces returns the offset just past the } matching the { at i.
func (l *phpLexer) braces(i int) int {
	src := l.src
	depth := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j + 1
			}
		case '\'':
			j = scanQuoted(src, j) - 1
		case '"', '`':
			j = l.interpolated(j+1, src[j]) - 1
		}
	}
	return len(src)
}

// heredoc returns the offset just past the closing label of the heredoc or
// nowdoc starting at i, or len(src) when it is still open.
func (l *phpLexer) heredoc(i int) int {
	src := l.src
	j := i + 3
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	var quote byte
	if j < len(src) && (src[j] == '\'' || src[j] == '"') {
		quote = src[j]
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
	if quote != 0 && j < len(src) && src[j] == quote {
		j++
	}
	nowdoc := quote == '\''

	nl := strings.IndexByte(src[j:], '\n')
	if nl < 0 {
		return len(src)
	}
	j += nl + 1
	for j < len(src) {
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
		for j < len(src) && src[j] != '\n' {
			switch {
			case nowdoc:
				j++
			case src[j] == '\\':
				j += 2
			case src[j] == '{' && j+1 < len(src) && src[j+1] == '$':
				j = l.braces(j)
			default:
				j++
			}
		}
		j++
	}
	return len(src)
}
