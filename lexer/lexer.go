// Package lexer tokenises PDF syntax. It is a thin layer over
// github.com/benoitkugler/pstokenizer, adding the two behaviours the
// bare tokenizer doesn't provide: lenient-mode absorption of tokenizer
// errors (recorded as GarbageByte warnings) and a warning log hookup,
// so objparser never has to special-case tokenizer errors itself.
package lexer

import (
	"io"

	tkn "github.com/benoitkugler/pstokenizer"

	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/warnings"
)

// Re-exported so callers only need to import this package.
const (
	EOF        = tkn.EOF
	KName      = tkn.Name
	KString    = tkn.String
	KStringHex = tkn.StringHex
	StartArray = tkn.StartArray
	EndArray   = tkn.EndArray
	StartDic   = tkn.StartDic
	EndDic     = tkn.EndDic
	KFloat     = tkn.Float
	KInteger   = tkn.Integer
	Other      = tkn.Other
)

// Token is the tokenizer's token, re-exported so objparser never
// imports pstokenizer directly.
type Token = tkn.Token

// Known "Other" keyword spellings.
const (
	KwObj        = "obj"
	KwEndObj     = "endobj"
	KwStream     = "stream"
	KwEndStream  = "endstream"
	KwXref       = "xref"
	KwTrailer    = "trailer"
	KwStartXref  = "startxref"
	KwNull       = "null"
	KwTrue       = "true"
	KwFalse      = "false"
	KwIndirectR  = "R"
)

// Lexer wraps a *tkn.Tokenizer, recording recoverable conditions into
// a warnings.Log instead of silently swallowing or hard-failing them.
type Lexer struct {
	tk   *tkn.Tokenizer
	opts *config.ParseOptions
	log  *warnings.Log
}

// New builds a Lexer over an in-memory slice.
func New(data []byte, opts *config.ParseOptions, log *warnings.Log) *Lexer {
	return &Lexer{tk: tkn.NewTokenizer(data), opts: opts, log: log}
}

// NewFromReader builds a Lexer over a streaming reader, for callers
// that don't want to materialise the whole object body up front.
func NewFromReader(r io.Reader, opts *config.ParseOptions, log *warnings.Log) *Lexer {
	return &Lexer{tk: tkn.NewTokenizerFromReader(r), opts: opts, log: log}
}

// NextToken consumes and returns the next token. In lenient mode, a
// tokenizer error is recorded as a GarbageByte warning and an EOF token
// is returned, so the token stream ends at the offending input; no
// Garbage token is produced and the bad byte is not skipped. In strict
// mode the error is surfaced as errs.LexError.
func (l *Lexer) NextToken() (Token, error) {
	tok, err := l.tk.NextToken()
	if err == nil {
		return tok, nil
	}
	if l.opts.Strictness.IsStrict() {
		return Token{}, errs.Wrap(errs.LexError, int64(l.CurrentPosition()), "tokenizer error", err)
	}
	if l.log != nil {
		l.log.Add(warnings.GarbageByte, int64(l.CurrentPosition()), err.Error())
	}
	return Token{Kind: EOF}, nil
}

// PeekToken returns the next token without consuming it.
func (l *Lexer) PeekToken() (Token, error) { return l.tk.PeekToken() }

// PeekPeekToken returns the token after the next one, without
// consuming either.
func (l *Lexer) PeekPeekToken() (Token, error) { return l.tk.PeekPeekToken() }

// HasEOLBeforeToken reports whether a line terminator precedes the
// next token, used by the relaxed-dictionary-value fallback.
func (l *Lexer) HasEOLBeforeToken() bool { return l.tk.HasEOLBeforeToken() }

// CurrentPosition is a checkpoint usable with SetPosition to restore.
func (l *Lexer) CurrentPosition() int { return l.tk.CurrentPosition() }

// SetPosition restores a checkpoint obtained from CurrentPosition.
func (l *Lexer) SetPosition(pos int) { l.tk.SetPosition(pos) }

// Raw exposes the underlying tokenizer for callers (objparser's
// relaxed-dict retry) that need direct access to pstokenizer-specific
// helpers not worth re-exporting individually.
func (l *Lexer) Raw() *tkn.Tokenizer { return l.tk }
