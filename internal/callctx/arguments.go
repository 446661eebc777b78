package callctx

import "strings"

// ValueKind tags an ArgumentValue.
type ValueKind int

const (
	ValueOther ValueKind = iota
	ValueString
	ValueArray
	ValueClosure
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueArray:
		return "array"
	case ValueClosure:
		return "closure"
	default:
		return "other"
	}
}

// MarshalText lets ValueKind appear as a name in JSON output.
func (k ValueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ArgumentValue is one argument or array element. Text holds the unquoted
// content for strings and the raw source (whitespace removed) otherwise.
type ArgumentValue struct {
	Kind    ValueKind    `json:"kind"`
	Text    string       `json:"text"`
	Entries []ArrayEntry `json:"entries,omitempty"`
}

// ArrayEntry is a key/value pair of an array literal. Key is nil for list
// entries. At most one entry in a whole argument tree has a flag set.
type ArrayEntry struct {
	Key                 *ArgumentValue `json:"key,omitempty"`
	Value               ArgumentValue  `json:"value"`
	AutocompletingKey   bool           `json:"autocompletingKey,omitempty"`
	AutocompletingValue bool           `json:"autocompletingValue,omitempty"`
}

// ArgumentList holds the completed arguments of a call and the argument
// under the cursor, if anything has been typed for it yet.
type ArgumentList struct {
	Arguments           []ArgumentValue `json:"arguments"`
	AutocompletingIndex int             `json:"autocompletingIndex"`
	Current             *ArgumentValue  `json:"current,omitempty"`
}

// BuildArguments groups the tokens between a call's opening parenthesis and
// the cursor into arguments. Tokens must already be filtered.
func BuildArguments(tokens []Token) ArgumentList {
	parts := splitTopLevel(truncateAtUnmatched(tokens), isComma)

	list := ArgumentList{Arguments: []ArgumentValue{}}
	for _, part := range parts[:len(parts)-1] {
		list.Arguments = append(list.Arguments, buildValue(part, false))
	}
	if last := parts[len(parts)-1]; len(last) > 0 {
		v := buildValue(last, true)
		list.Current = &v
	}
	list.AutocompletingIndex = len(list.Arguments)
	return list
}

func isComma(t Token) bool { return t.Kind == Punctuation && t.Text == "," }

func isArrow(t Token) bool { return t.Kind == DoubleArrow }

func opens(t Token) bool {
	return t.Kind == Punctuation && (t.Text == "(" || t.Text == "[" || t.Text == "{")
}

func closes(t Token) bool {
	return t.Kind == Punctuation && (t.Text == ")" || t.Text == "]" || t.Text == "}")
}

// truncateAtUnmatched cuts tokens at the first closer that has no opener.
func truncateAtUnmatched(tokens []Token) []Token {
	level := 0
	for i, t := range tokens {
		switch {
		case opens(t):
			level++
		case closes(t):
			if level == 0 {
				return tokens[:i]
			}
			level--
		}
	}
	return tokens
}

// splitTopLevel splits tokens on separators found at nesting level zero.
// The result always has at least one (possibly empty) part.
func splitTopLevel(tokens []Token, sep func(Token) bool) [][]Token {
	var parts [][]Token
	level, start := 0, 0
	for i, t := range tokens {
		switch {
		case opens(t):
			level++
		case closes(t):
			if level > 0 {
				level--
			}
		case level == 0 && sep(t):
			parts = append(parts, tokens[start:i])
			start = i + 1
		}
	}
	return append(parts, tokens[start:])
}

func buildValue(tokens []Token, cursor bool) ArgumentValue {
	if len(tokens) == 0 {
		return ArgumentValue{Kind: ValueOther}
	}
	text := rawText(tokens)

	if inner, closed, ok := arrayBody(tokens); ok {
		return ArgumentValue{
			Kind:    ValueArray,
			Text:    text,
			Entries: buildEntries(inner, cursor && !closed),
		}
	}
	if startsClosure(tokens) {
		return ArgumentValue{Kind: ValueClosure, Text: text}
	}
	if len(tokens) == 1 && tokens[0].Kind == String {
		return ArgumentValue{Kind: ValueString, Text: unquote(tokens[0].Text)}
	}
	return ArgumentValue{Kind: ValueOther, Text: text}
}

// arrayBody recognises [ ... ] and array( ... ). ok is false when tokens are
// not an array literal on their own (for example `[1][0]` or `[] + $x`).
func arrayBody(tokens []Token) (inner []Token, closed bool, ok bool) {
	skip := 0
	switch {
	case tokens[0].Kind == Punctuation && tokens[0].Text == "[":
		skip = 1
	case tokens[0].isKeyword("array") && len(tokens) > 1 && tokens[1].Kind == Punctuation && tokens[1].Text == "(":
		skip = 2
	default:
		return nil, false, false
	}

	level := 0
	for i := skip - 1; i < len(tokens); i++ {
		switch {
		case opens(tokens[i]):
			level++
		case closes(tokens[i]):
			level--
			if level == 0 {
				if i != len(tokens)-1 {
					return nil, false, false
				}
				return tokens[skip:i], true, true
			}
		}
	}
	return tokens[skip:], false, true
}

func buildEntries(inner []Token, open bool) []ArrayEntry {
	parts := splitTopLevel(inner, isComma)
	var entries []ArrayEntry
	for _, part := range parts[:len(parts)-1] {
		if len(part) == 0 {
			continue
		}
		entries = append(entries, buildEntry(part, false))
	}
	last := parts[len(parts)-1]
	switch {
	case open:
		entries = append(entries, buildEntry(last, true))
	case len(last) > 0:
		entries = append(entries, buildEntry(last, false))
	}
	return entries
}

func buildEntry(part []Token, cursor bool) ArrayEntry {
	var entry ArrayEntry
	valueTokens := part
	if !startsClosure(part) {
		if kv := splitTopLevel(part, isArrow); len(kv) > 1 {
			key := buildValue(kv[0], false)
			entry.Key = &key
			valueTokens = part[len(kv[0])+1:]
		}
	}
	entry.Value = buildValue(valueTokens, cursor)
	if !cursor {
		return entry
	}

	// Only the innermost open structure carries the flag.
	if len(valueTokens) > 0 {
		if _, closed, ok := arrayBody(valueTokens); ok && !closed {
			return entry
		}
	}
	if entry.Key != nil {
		entry.AutocompletingValue = true
	} else {
		entry.AutocompletingKey = true
	}
	return entry
}

func startsClosure(tokens []Token) bool {
	if len(tokens) == 0 {
		return false
	}
	t := tokens[0]
	if t.isKeyword("static") && len(tokens) > 1 {
		t = tokens[1]
	}
	return t.isKeyword("function") || t.isKeyword("fn")
}

// rawText concatenates token text without whitespace, keeping one space
// between adjacent words so `new Foo` stays readable.
func rawText(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 && wordLike(tokens[i-1]) && wordLike(t) {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

func wordLike(t Token) bool {
	switch t.Kind {
	case Identifier, Keyword, Variable, Number:
		return true
	}
	return false
}

func unquote(text string) string {
	s := text
	if len(s) > 1 && (s[0] == 'b' || s[0] == 'B') && (s[1] == '\'' || s[1] == '"') {
		s = s[1:]
	}
	if s == "" {
		return s
	}
	q := s[0]
	if q != '\'' && q != '"' && q != '`' {
		return text
	}
	if !unterminatedQuote(s) {
		return s[1 : len(s)-1]
	}
	return s[1:]
}

// unterminatedQuote reports whether s, starting at its opening quote, lacks
// the matching closing quote.
func unterminatedQuote(s string) bool {
	q := s[0]
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i != len(s)-1
		}
	}
	return true
}
