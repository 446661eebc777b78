package lsp

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrInvalidURI         = errors.New("invalid document uri")
)

// OffsetAt converts an LSP position to a byte offset in content. A character
// past the end of its line is clamped to the line end.
func OffsetAt(content []byte, pos Position) (int, error) {
	lineStart := 0
	for line := uint32(0); line < pos.Line; line++ {
		i := indexByte(content[lineStart:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("%w: line %d", ErrPositionOutOfRange, pos.Line)
		}
		lineStart += i + 1
	}

	lineEnd := len(content)
	if i := indexByte(content[lineStart:], '\n'); i >= 0 {
		lineEnd = lineStart + i
	}

	offset := lineStart
	units := uint32(0)
	for offset < lineEnd && units < pos.Character {
		r, size := utf8.DecodeRune(content[offset:lineEnd])
		n := uint32(1)
		if r >= 0x10000 {
			n = 2
		}
		if units+n > pos.Character {
			break
		}
		units += n
		offset += size
	}
	return offset, nil
}

// PositionAt converts a byte offset in content to an LSP position
func PositionAt(content []byte, offset int) Position {
	if offset > len(content) {
		offset = len(content)
	}
	var pos Position
	for i := 0; i < offset; {
		r, size := utf8.DecodeRune(content[i:])
		switch {
		case r == '\n':
			pos.Line++
			pos.Character = 0
		case r >= 0x10000:
			pos.Character += 2
		default:
			pos.Character++
		}
		i += size
	}
	return pos
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// URIToPath converts a file:// URI to a local path
func URIToPath(uri DocumentURI) (string, error) {
	u, err := url.Parse(string(uri))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
	path := u.Path
	// file:///C:/x on Windows
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

// wordAt returns the byte range of the completion word around offset: the
// characters that may appear in config keys, route and view names
func wordAt(content []byte, offset int) (start, end int) {
	isWord := func(c byte) bool {
		return c == '.' || c == '_' || c == '-' || c == ':' || c == '/' ||
			c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
	}
	start, end = offset, offset
	for start > 0 && isWord(content[start-1]) {
		start--
	}
	for end < len(content) && isWord(content[end]) {
		end++
	}
	return start, end
}

// hoverText renders an item as markdown
func hoverText(label, kind, detail, doc string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** _%s_", label, kind)
	if detail != "" {
		fmt.Fprintf(&b, "\n\n`%s`", detail)
	}
	if doc != "" {
		b.WriteString("\n\n")
		b.WriteString(doc)
	}
	return b.String()
}
