package callctx

import (
	"regexp"
	"strings"
)

var docblockVarRe = regexp.MustCompile(`@var\s+([^\s]+)\s+\$([A-Za-z_][A-Za-z0-9_]*)`)

const (
	// bindingWindow bounds how many tokens are searched for a binding.
	bindingWindow = 8192
	maxAliasHops  = 4
)

var scalarTypes = map[string]bool{
	"int": true, "float": true, "string": true, "bool": true, "iterable": true,
	"object": true, "mixed": true, "void": true, "null": true, "false": true,
	"true": true, "never": true, "callable": true, "array": true,
}

// variableType infers the class of variable name as used at toks[before].
// The nearest binding wins: an assignment from `new` or a static call, an
// alias of another variable, a typed parameter or a `@var` docblock. Any
// other assignment leaves the variable untyped. There
// is no scope boundary, a binding in an earlier function can be picked up.
func (s *scanner) variableType(name string, before, hops int) (string, bool) {
	class, self, offset := "", false, -1
	stop := before - bindingWindow
	if stop < 0 {
		stop = 0
	}
	for i := before - 1; i >= stop; i-- {
		t := s.toks[i]
		if t.Kind != Variable || t.Text != name {
			continue
		}
		if c, sr, ok := s.bindingAt(i, hops); ok {
			class, self, offset = c, sr, t.Offset
			break
		}
		if i+1 < len(s.toks) && s.toks[i+1].is("=") {
			// an unknown assignment hides older bindings; only a docblock
			// written directly above it can still type the variable
			if i > 0 {
				offset = s.toks[i-1].End() - 1
			}
			break
		}
	}

	limit := s.toks[before].Offset
	if doc, docOffset := s.docBinding(name, limit); doc != "" && docOffset > offset {
		return doc, false
	}
	return class, self
}

// bindingAt reports whether the variable at toks[i] is bound to a class there.
func (s *scanner) bindingAt(i, hops int) (string, bool, bool) {
	n := len(s.toks)
	if i+1 < n && s.toks[i+1].is("=") {
		j := i + 2
		switch {
		case j+1 < n && s.toks[j].isKeyword("new") && s.toks[j+1].isWord():
			if s.toks[j+1].isKeyword("class") {
				return "", false, false
			}
			class, self := s.className(j + 1)
			return class, self, class != ""

		case j+3 < n && s.toks[j].isWord() && s.toks[j+1].Kind == DoubleColon &&
			s.toks[j+2].isWord() && s.toks[j+3].is("("):
			class, self := s.className(j)
			return class, self, class != ""

		case j < n && s.toks[j].Kind == Variable && hops < maxAliasHops &&
			(j+1 >= n || s.toks[j+1].is(";")):
			if s.toks[j].Text == "$this" {
				name, _ := s.enclosingClass(j)
				return name, name != "", name != ""
			}
			class, self := s.variableType(s.toks[j].Text, j, hops+1)
			return class, self, class != ""
		}
		return "", false, false
	}
	return s.parameterType(i)
}

// parameterType recognises `Type $var` inside a parameter list.
func (s *scanner) parameterType(i int) (string, bool, bool) {
	j := i - 1
	if j >= 0 && (s.toks[j].is("&") || s.toks[j].is("...")) {
		j--
	}
	if j < 1 || s.toks[j].Kind != Identifier {
		return "", false, false
	}
	if scalarTypes[strings.ToLower(s.toks[j].Text)] {
		return "", false, false
	}
	before := s.toks[j-1]
	switch {
	case before.is("("), before.is(","), before.is("?"), before.is("|"), before.is("&"), before.is("]"):
	case before.isKeyword("public"), before.isKeyword("protected"), before.isKeyword("private"), before.isKeyword("readonly"):
	default:
		return "", false, false
	}
	class, self := s.className(j)
	return class, self, class != ""
}

// docBinding returns the type from the last `@var Type $name` docblock
// starting before limit.
func (s *scanner) docBinding(name string, limit int) (string, int) {
	class, offset := "", -1
	for _, d := range s.docs {
		if d.Offset >= limit {
			break
		}
		for _, m := range docblockVarRe.FindAllStringSubmatch(d.Text, -1) {
			if "$"+m[2] != name {
				continue
			}
			if t := docType(m[1]); t != "" {
				class, offset = t, d.Offset
			}
		}
	}
	return class, offset
}

// docType reduces a docblock type such as ?User, User|null or
// Collection<User> to a single class name.
func docType(raw string) string {
	for _, part := range strings.Split(strings.TrimPrefix(raw, "?"), "|") {
		if i := strings.IndexAny(part, "<[{("); i >= 0 {
			part = part[:i]
		}
		if part == "" || scalarTypes[strings.ToLower(part)] {
			continue
		}
		return part
	}
	return ""
}
