package callctx

import "errors"

var (
	ErrLexerPanic     = errors.New("php lexer panicked")
	ErrUnknownLexer   = errors.New("unknown lexer")
	ErrInvalidVersion = errors.New("invalid php version")
)
