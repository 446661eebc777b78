package callctx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/VKCOM/php-parser/pkg/version"
)

// Options configures a Parser.
type Options struct {
	// PHPVersion selects the lexer grammar, for example "8.0".
	PHPVersion string
	// Lexer is "php" for the version-aware scanner or "basic" for the
	// tolerant one.
	Lexer string
	// MaxDepth limits the length of the parent chain.
	MaxDepth int
}

// DefaultOptions returns the options used by the package-level Parse.
func DefaultOptions() Options {
	return Options{PHPVersion: "8.0", Lexer: "php", MaxDepth: 32}
}

// Parser resolves call contexts. It holds no per-parse state and is safe
// for concurrent use.
type Parser struct {
	opts    Options
	version *version.Version
}

// NewParser validates opts and returns a Parser.
func NewParser(opts Options) (*Parser, error) {
	def := DefaultOptions()
	if opts.PHPVersion == "" {
		opts.PHPVersion = def.PHPVersion
	}
	if opts.Lexer == "" {
		opts.Lexer = def.Lexer
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.Lexer != "php" && opts.Lexer != "basic" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLexer, opts.Lexer)
	}
	v, err := ParseVersion(opts.PHPVersion)
	if err != nil {
		return nil, err
	}
	return &Parser{opts: opts, version: v}, nil
}

// ParseVersion parses a "major.minor" PHP version supported by the lexer.
func ParseVersion(s string) (*version.Version, error) {
	major, minor, _ := strings.Cut(s, ".")
	ma, err := strconv.ParseUint(major, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var mi uint64
	if minor != "" {
		if mi, err = strconv.ParseUint(minor, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
	}
	if ma < 7 || ma > 8 {
		return nil, fmt.Errorf("%w: %q is not supported", ErrInvalidVersion, s)
	}
	return &version.Version{Major: ma, Minor: mi}, nil
}

var defaultParser = &Parser{opts: DefaultOptions(), version: defaultVersion()}

// Parse returns the call context at the end of source, or nil when the
// cursor is not inside a call.
func Parse(source string) *CallContext {
	return defaultParser.Parse(source)
}

// Parse returns the call context at the end of source, or nil.
func (p *Parser) Parse(source string) *CallContext {
	return p.ParseTree(source).Innermost()
}

// ParseTree is like Parse but returns the whole chain. It never panics.
func (p *Parser) ParseTree(source string) (tree *Tree) {
	defer func() {
		if r := recover(); r != nil {
			tree = nil
		}
	}()

	tokens := p.tokenize(source)
	s := newScanner(tokens)

	h, ok := s.innermost()
	if !ok {
		return nil
	}
	heads := []head{h}
	for len(heads) < p.opts.MaxDepth {
		parent, ok := s.enclosing(heads[len(heads)-1].open)
		if !ok {
			break
		}
		heads = append(heads, parent)
	}

	imports := CollectUses(s.toks)
	tree = &Tree{nodes: make([]CallContext, len(heads))}
	for i, h := range heads {
		parent := i + 1
		if parent == len(heads) {
			parent = -1
		}
		tree.nodes[i] = CallContext{
			tree:       tree,
			parent:     parent,
			kind:       h.kind,
			class:      h.class,
			resolution: resolveHead(h, imports),
			function:   h.function,
			variable:   h.variable,
			line:       h.line,
			args:       BuildArguments(s.toks[h.open+1:]),
		}
	}
	return tree
}

func resolveHead(h head, imports Imports) Resolution {
	if h.class == "" {
		return Resolution{}
	}
	if h.selfRef && imports.Namespace != "" && !strings.Contains(h.class, `\`) {
		return found(imports.Namespace + `\` + h.class)
	}
	return Resolve(h.class, imports.Uses)
}

func (p *Parser) tokenize(source string) []Token {
	if p.opts.Lexer == "basic" {
		return mergeNames(lexBasic(source, 0, 1))
	}
	toks, err := lexPHP(source, p.version)
	if err != nil {
		return mergeNames(lexBasic(source, 0, 1))
	}
	return mergeNames(toks)
}
