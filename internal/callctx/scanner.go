package callctx

import "strings"

// CallKind is the syntactic shape of a call head.
type CallKind int

const (
	CallFunction CallKind = iota
	CallStatic
	CallInstance
	CallConstructor
)

func (k CallKind) String() string {
	switch k {
	case CallStatic:
		return "static"
	case CallInstance:
		return "instance"
	case CallConstructor:
		return "new"
	default:
		return "function"
	}
}

// MarshalText lets CallKind appear as a name in JSON output.
func (k CallKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type headClass int

const (
	headCall headClass = iota
	headStructural
	headUnknown
)

// head is a classified call head whose opening parenthesis is toks[open].
type head struct {
	kind     CallKind
	class    string
	function string
	variable string
	line     int
	open     int

	// selfRef is set when class was taken from the enclosing declaration.
	selfRef bool
}

const maxChainLinks = 64

type scanner struct {
	toks []Token
	docs []Token
}

func newScanner(tokens []Token) *scanner {
	return &scanner{toks: Filter(tokens), docs: docComments(tokens)}
}

// innermost walks backward from the cursor to the nearest open call. An
// unmatched `{` or a statement end on the way means the cursor is not
// inside any argument list.
func (s *scanner) innermost() (head, bool) {
	parens, braces := 0, 0
	for i := len(s.toks) - 1; i >= 0; i-- {
		t := s.toks[i]
		if t.Kind != Punctuation {
			continue
		}
		switch t.Text {
		case ")":
			parens++
		case "}":
			braces++
		case "{":
			if braces == 0 {
				return head{}, false
			}
			braces--
		case ";":
			if parens == 0 && braces == 0 {
				return head{}, false
			}
		case "(":
			if parens > 0 {
				parens--
				continue
			}
			h, class := s.classify(i)
			switch class {
			case headCall:
				return h, true
			case headUnknown:
				return head{}, false
			}
		}
	}
	return head{}, false
}

// enclosing finds the next open call before toks[before]. Blocks and
// statements are crossed, only parentheses are balanced.
func (s *scanner) enclosing(before int) (head, bool) {
	parens := 0
	for i := before - 1; i >= 0; i-- {
		t := s.toks[i]
		switch {
		case t.is(")"):
			parens++
		case t.is("("):
			if parens > 0 {
				parens--
				continue
			}
			h, class := s.classify(i)
			switch class {
			case headCall:
				return h, true
			case headUnknown:
				return head{}, false
			}
		}
	}
	return head{}, false
}

// classify decides what kind of construct the parenthesis at toks[p] opens.
func (s *scanner) classify(p int) (head, headClass) {
	if p == 0 {
		return head{}, headStructural
	}
	h := p - 1
	name := s.toks[h]
	var prev Token
	if h > 0 {
		prev = s.toks[h-1]
	}
	hasPrev := h > 0

	switch {
	case name.isWord() && hasPrev && prev.Kind == ObjectOperator:
		class, variable, self := s.receiverClass(h - 2)
		return head{
			kind:     CallInstance,
			class:    class,
			function: name.Text,
			variable: variable,
			line:     name.Line,
			open:     p,
			selfRef:  self,
		}, headCall

	case name.isWord() && hasPrev && prev.Kind == DoubleColon:
		class, self := s.staticClass(h - 2)
		return head{
			kind:     CallStatic,
			class:    class,
			function: name.Text,
			line:     name.Line,
			open:     p,
			selfRef:  self,
		}, headCall

	case name.isWord() && hasPrev && prev.isKeyword("new"):
		if name.isKeyword("class") {
			return head{}, headUnknown
		}
		class, self := s.className(h)
		return head{
			kind:     CallConstructor,
			class:    class,
			function: "__construct",
			line:     name.Line,
			open:     p,
			selfRef:  self,
		}, headCall

	case name.isWord() && hasPrev && (prev.isKeyword("function") || prev.isKeyword("fn")):
		return head{}, headStructural

	case name.isWord() && hasPrev && prev.is("&") && h > 1 && s.toks[h-2].isKeyword("function"):
		return head{}, headStructural

	case name.Kind == Keyword:
		return head{}, headStructural

	case name.Kind == Identifier:
		return head{
			kind:     CallFunction,
			function: strings.TrimPrefix(name.Text, `\`),
			line:     name.Line,
			open:     p,
		}, headCall

	case name.Kind == Variable, name.Kind == String, closes(name):
		return head{}, headUnknown
	}
	return head{}, headStructural
}

// staticClass resolves the token before `::`.
func (s *scanner) staticClass(c int) (string, bool) {
	if c < 0 {
		return "", false
	}
	t := s.toks[c]
	switch {
	case t.Kind == Variable && t.Text == "$this":
		name, _ := s.enclosingClass(c)
		return name, name != ""
	case t.Kind == Variable:
		return s.variableType(t.Text, c, 0)
	case t.isWord():
		return s.className(c)
	}
	return "", false
}

// className returns the class named by toks[c], resolving self, static and
// parent against the enclosing class declaration.
func (s *scanner) className(c int) (string, bool) {
	t := s.toks[c]
	switch strings.ToLower(t.Text) {
	case "self", "static":
		name, _ := s.enclosingClass(c)
		return name, name != ""
	case "parent":
		_, extends := s.enclosingClass(c)
		return extends, false
	}
	return t.Text, false
}

// receiverClass types the receiver of an instance call ending at toks[r].
// Chains are followed back to their root: a variable, a static call or a
// constructor expression.
func (s *scanner) receiverClass(r int) (class, variable string, self bool) {
	for links := 0; r >= 0 && links < maxChainLinks; links++ {
		t := s.toks[r]
		switch {
		case t.Kind == Variable && t.Text == "$this":
			name, _ := s.enclosingClass(r)
			return name, t.Text, name != ""

		case t.Kind == Variable:
			class, self = s.variableType(t.Text, r, 0)
			return class, t.Text, self

		case t.is(")"):
			q := s.matchingOpen(r)
			if q < 0 {
				return "", "", false
			}
			if q+2 < r && s.toks[q+1].isKeyword("new") && s.toks[q+2].isWord() {
				class, self = s.className(q + 2)
				return class, "", self
			}
			if q < 2 || !s.toks[q-1].isWord() {
				return "", "", false
			}
			prev := s.toks[q-2]
			switch {
			case prev.Kind == ObjectOperator:
				r = q - 3
				continue
			case prev.Kind == DoubleColon:
				class, self = s.staticClass(q - 3)
				return class, "", self
			case prev.isKeyword("new"):
				class, self = s.className(q - 1)
				return class, "", self
			}
			return "", "", false

		default:
			return "", "", false
		}
	}
	return "", "", false
}

func (s *scanner) matchingOpen(r int) int {
	depth := 0
	for i := r; i >= 0; i-- {
		switch {
		case s.toks[i].is(")"):
			depth++
		case s.toks[i].is("("):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// enclosingClass finds the class-like declaration whose body contains
// toks[before] and returns its name and extends clause.
func (s *scanner) enclosingClass(before int) (name, extends string) {
	depth := 0
	for i := before - 1; i >= 0; i-- {
		switch t := s.toks[i]; {
		case t.is("}"):
			depth++
		case t.is("{"):
			if depth > 0 {
				depth--
				continue
			}
			if name, extends, ok := s.classHeader(i); ok {
				return name, extends
			}
		}
	}
	return "", ""
}

func (s *scanner) classHeader(brace int) (name, extends string, ok bool) {
	for j := brace - 1; j >= 0; j-- {
		t := s.toks[j]
		if t.is(";") || t.is("{") || t.is("}") {
			return "", "", false
		}
		if !isClassLike(t) || j+1 >= brace || !s.toks[j+1].isWord() {
			continue
		}
		if j > 0 && (s.toks[j-1].Kind == DoubleColon || s.toks[j-1].isKeyword("new")) {
			continue
		}
		for k := j + 2; k+1 < brace; k++ {
			if s.toks[k].isKeyword("extends") && s.toks[k+1].isWord() {
				extends = s.toks[k+1].Text
				break
			}
		}
		return s.toks[j+1].Text, extends, true
	}
	return "", "", false
}

func isClassLike(t Token) bool {
	return t.isKeyword("class") || t.isKeyword("trait") || t.isKeyword("interface") || t.isKeyword("enum")
}
