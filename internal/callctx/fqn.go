package callctx

import "strings"

// UseKind is the kind of symbol a use statement imports.
type UseKind int

const (
	UseClass UseKind = iota
	UseFunction
	UseConst
)

// Use is one imported name. Name never has a leading backslash.
type Use struct {
	Name  string
	Alias string
	Kind  UseKind
	Line  int
}

// Imports is the namespace and use statements of a file, in declaration order.
type Imports struct {
	Namespace string
	Uses      []Use
}

// Resolution is the result of resolving a class reference.
type Resolution struct {
	DisplayName string
	FQN         string
	Resolved    bool
}

// Resolve resolves ref against uses, nearest declaration first. When nothing
// matches, FQN is ref itself and DisplayName its last segment.
func Resolve(ref string, uses []Use) Resolution {
	if ref == "" {
		return Resolution{}
	}
	if strings.HasPrefix(ref, `\`) {
		name := strings.TrimPrefix(ref, `\`)
		return Resolution{DisplayName: lastSegment(name), FQN: name, Resolved: true}
	}

	first, rest, qualified := strings.Cut(ref, `\`)
	for i := len(uses) - 1; i >= 0; i-- {
		u := uses[i]
		if u.Kind != UseClass {
			continue
		}
		imported := u.Alias
		if imported == "" {
			imported = lastSegment(u.Name)
		}

		switch {
		case u.Alias != "" && strings.EqualFold(u.Alias, ref):
			return found(u.Name)
		case strings.EqualFold(u.Name, ref):
			return found(u.Name)
		case u.Alias == "" && !qualified && strings.EqualFold(imported, ref):
			return found(u.Name)
		case u.Alias == "" && qualified && hasSuffixFold(u.Name, `\`+ref):
			return found(u.Name)
		case qualified && strings.EqualFold(imported, first):
			return found(u.Name + `\` + rest)
		}
	}
	return Resolution{DisplayName: lastSegment(ref), FQN: ref}
}

func found(fqn string) Resolution {
	return Resolution{DisplayName: lastSegment(fqn), FQN: fqn, Resolved: true}
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// CollectUses reads the namespace declaration and the top-level use
// statements from filtered tokens. Closure `use (...)` clauses and trait
// uses inside class bodies are skipped.
func CollectUses(tokens []Token) Imports {
	var imp Imports
	braces, parens := 0, 0
	nsBlock := -1

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.Kind == Punctuation && t.Text == "{":
			braces++
		case t.Kind == Punctuation && t.Text == "}":
			if braces > 0 {
				braces--
			}
			if braces < nsBlock {
				nsBlock = -1
			}
		case t.Kind == Punctuation && t.Text == "(":
			parens++
		case t.Kind == Punctuation && t.Text == ")":
			if parens > 0 {
				parens--
			}
		case t.isKeyword("namespace") && braces == 0 && i+1 < len(tokens):
			next := tokens[i+1]
			if next.Kind != Identifier && !next.is("{") {
				continue
			}
			if next.Kind == Identifier {
				imp.Namespace = strings.TrimPrefix(next.Text, `\`)
				i++
			} else {
				imp.Namespace = ""
			}
			if i+1 < len(tokens) && tokens[i+1].is("{") {
				nsBlock = braces + 1
			}
		case t.isKeyword("use") && parens == 0 && (braces == 0 || braces == nsBlock):
			if i+1 < len(tokens) && tokens[i+1].is("(") {
				continue
			}
			var uses []Use
			uses, i = parseUse(tokens, i+1)
			imp.Uses = append(imp.Uses, uses...)
		}
	}
	return imp
}

// parseUse parses a use clause starting after the keyword and returns the
// index of its last consumed token.
func parseUse(tokens []Token, i int) ([]Use, int) {
	var uses []Use
	kind := UseClass
	line := 0
	if i < len(tokens) {
		line = tokens[i].Line
		kind, i = useKind(tokens, i, kind)
	}

	for i < len(tokens) {
		t := tokens[i]
		switch {
		case t.is(";"):
			return uses, i
		case t.is(","):
			i++
		case t.Kind == Identifier:
			name := strings.TrimPrefix(t.Text, `\`)
			i++
			if i+1 < len(tokens) && tokens[i].is(`\`) && tokens[i+1].is("{") {
				var group []Use
				group, i = parseGroup(tokens, i+2, name, kind, line)
				uses = append(uses, group...)
				continue
			}
			u := Use{Name: name, Kind: kind, Line: line}
			u.Alias, i = parseAlias(tokens, i)
			uses = append(uses, u)
		default:
			return uses, i - 1
		}
	}
	return uses, i
}

func parseGroup(tokens []Token, i int, prefix string, kind UseKind, line int) ([]Use, int) {
	var uses []Use
	for i < len(tokens) {
		t := tokens[i]
		switch {
		case t.is("}"):
			return uses, i + 1
		case t.is(","):
			i++
		case t.isWord():
			itemKind, j := useKind(tokens, i, kind)
			if j >= len(tokens) || !tokens[j].isWord() {
				return uses, j
			}
			u := Use{Name: prefix + `\` + tokens[j].Text, Kind: itemKind, Line: line}
			u.Alias, i = parseAlias(tokens, j+1)
			uses = append(uses, u)
		default:
			return uses, i
		}
	}
	return uses, i
}

func useKind(tokens []Token, i int, def UseKind) (UseKind, int) {
	if i+1 >= len(tokens) || !tokens[i+1].isWord() {
		return def, i
	}
	switch {
	case tokens[i].isKeyword("function"):
		return UseFunction, i + 1
	case tokens[i].isKeyword("const"):
		return UseConst, i + 1
	}
	return def, i
}

func parseAlias(tokens []Token, i int) (string, int) {
	if i+1 < len(tokens) && tokens[i].isKeyword("as") && tokens[i+1].isWord() {
		return tokens[i+1].Text, i + 2
	}
	return "", i
}
