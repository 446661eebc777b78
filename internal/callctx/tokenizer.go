package callctx

import (
	"fmt"
	"strings"

	"github.com/VKCOM/php-parser/pkg/version"
)

// TokenKind classifies a token for the scanner and the argument builder.
type TokenKind int

const (
	Opaque TokenKind = iota
	Identifier
	Variable
	String
	Number
	Keyword
	ObjectOperator
	DoubleColon
	DoubleArrow
	Punctuation
	Operator
	Whitespace
	Comment
	DocComment
)

var kindNames = [...]string{
	Opaque:         "opaque",
	Identifier:     "identifier",
	Variable:       "variable",
	String:         "string",
	Number:         "number",
	Keyword:        "keyword",
	ObjectOperator: "object_operator",
	DoubleColon:    "double_colon",
	DoubleArrow:    "double_arrow",
	Punctuation:    "punctuation",
	Operator:       "operator",
	Whitespace:     "whitespace",
	Comment:        "comment",
	DocComment:     "doc_comment",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexical unit of the source prefix.
// Offset is the byte offset of Text in the original source.
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Offset int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

func (t Token) is(text string) bool {
	return (t.Kind == Punctuation || t.Kind == Operator) && t.Text == text
}

func (t Token) isWord() bool {
	return t.Kind == Identifier || t.Kind == Keyword
}

func (t Token) isKeyword(word string) bool {
	return t.Kind == Keyword && strings.EqualFold(t.Text, word)
}

var keywords = map[string]bool{
	"abstract": true, "and": true, "array": true, "as": true, "break": true,
	"callable": true, "case": true, "catch": true, "class": true, "clone": true,
	"const": true, "continue": true, "declare": true, "default": true, "do": true,
	"echo": true, "else": true, "elseif": true, "empty": true, "enddeclare": true,
	"endfor": true, "endforeach": true, "endif": true, "endswitch": true, "endwhile": true,
	"enum": true, "eval": true, "exit": true, "die": true, "extends": true,
	"final": true, "finally": true, "fn": true, "for": true, "foreach": true,
	"function": true, "global": true, "goto": true, "if": true, "implements": true,
	"include": true, "include_once": true, "instanceof": true, "insteadof": true,
	"interface": true, "isset": true, "list": true, "match": true, "namespace": true,
	"new": true, "or": true, "print": true, "private": true, "protected": true,
	"public": true, "readonly": true, "require": true, "require_once": true,
	"return": true, "static": true, "switch": true, "throw": true, "trait": true,
	"try": true, "unset": true, "use": true, "var": true, "while": true, "xor": true,
	"yield": true,
}

const (
	punctuationChars = "()[]{},;\\:?@#$"
	operatorChars    = "=+-*/.%<>!&|^~"
)

// Tokenize lexes source with the PHP scanner at PHP 8.0. It never fails: bytes the lexer
// cannot classify come back as Opaque.
func Tokenize(source string) []Token {
	toks, err := lexPHP(source, defaultVersion())
	if err != nil {
		return mergeNames(lexBasic(source, 0, 1))
	}
	return mergeNames(toks)
}

// Filter drops whitespace and comments.
func Filter(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		switch t.Kind {
		case Whitespace, Comment, DocComment:
			continue
		}
		out = append(out, t)
	}
	return out
}

func docComments(tokens []Token) []Token {
	var out []Token
	for _, t := range tokens {
		if t.Kind == DocComment {
			out = append(out, t)
		}
	}
	return out
}

func defaultVersion() *version.Version {
	return &version.Version{Major: 8, Minor: 0}
}

// classifyText maps raw token text to a TokenKind.
func classifyText(text string) TokenKind {
	if text == "" {
		return Opaque
	}
	c := text[0]
	switch {
	case strings.TrimSpace(text) == "":
		return Whitespace
	case strings.HasPrefix(text, "/**") && len(text) > 4:
		return DocComment
	case strings.HasPrefix(text, "/*"), strings.HasPrefix(text, "//"):
		return Comment
	case c == '#' && !strings.HasPrefix(text, "#["):
		if len(text) == 1 {
			return Punctuation
		}
		return Comment
	case strings.HasPrefix(text, "<?"), text == "?>":
		return Opaque
	case strings.HasPrefix(text, "<<<"):
		return String
	case c == '\'' || c == '"' || c == '`':
		return String
	case (c == 'b' || c == 'B') && len(text) > 1 && (text[1] == '\'' || text[1] == '"'):
		return String
	case text == "->" || text == "?->":
		return ObjectOperator
	case text == "::":
		return DoubleColon
	case text == "=>":
		return DoubleArrow
	case c == '$' && len(text) > 1 && isIdentStart(text[1]):
		return Variable
	case isDigit(c):
		return Number
	case isIdentStart(c) || (c == '\\' && len(text) > 1):
		if strings.IndexByte(text, '\\') < 0 && keywords[strings.ToLower(text)] {
			return Keyword
		}
		return Identifier
	case len(text) > 1 && c == '(':
		// casts such as (int)
		return Operator
	case len(text) == 1 && strings.IndexByte(punctuationChars, c) >= 0:
		return Punctuation
	case strings.Trim(text, operatorChars+"?") == "":
		return Operator
	}
	return Opaque
}

// mergeNames joins contiguous name segments (Foo\Bar, \Foo) into one Identifier.
func mergeNames(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for i := 0; i < len(tokens); {
		j := i
		if tokens[j].Kind == Punctuation && tokens[j].Text == `\` && adjacentWord(tokens, j) {
			j++
		}
		if !tokens[j].isWord() {
			out = append(out, tokens[i])
			i++
			continue
		}
		for j+1 < len(tokens) &&
			tokens[j+1].Kind == Punctuation && tokens[j+1].Text == `\` &&
			tokens[j+1].Offset == tokens[j].End() && adjacentWord(tokens, j+1) {
			j += 2
		}
		if j == i {
			out = append(out, tokens[i])
			i++
			continue
		}
		var b strings.Builder
		for k := i; k <= j; k++ {
			b.WriteString(tokens[k].Text)
		}
		out = append(out, Token{Kind: Identifier, Text: b.String(), Line: tokens[i].Line, Offset: tokens[i].Offset})
		i = j + 1
	}
	return out
}

func adjacentWord(tokens []Token, i int) bool {
	return i+1 < len(tokens) && tokens[i+1].isWord() && tokens[i+1].Offset == tokens[i].End()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
