// Package objparser turns a token stream into object.Object values,
// including indirect object definitions and stream payloads.
package objparser

import (
	"fmt"

	tkn "github.com/benoitkugler/pstokenizer"

	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/lexer"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
)

// Parser consumes tokens from a Lexer and produces object.Object
// values, tracking nested-depth against opts.MaxObjectDepth.
type Parser struct {
	lex   *lexer.Lexer
	opts  *config.ParseOptions
	log   *warnings.Log
	depth int
}

// New builds a Parser reading from data.
func New(data []byte, opts *config.ParseOptions, log *warnings.Log) *Parser {
	return &Parser{lex: lexer.New(data, opts, log), opts: opts, log: log}
}

// NewFromLexer builds a Parser over an already-constructed Lexer,
// useful when the caller needs to inspect raw positions afterwards
// (indirect-object and stream parsing does this).
func NewFromLexer(l *lexer.Lexer, opts *config.ParseOptions, log *warnings.Log) *Parser {
	return &Parser{lex: l, opts: opts, log: log}
}

// ParseObject parses a single PdfObject, recursing through arrays and
// dictionaries up to opts.MaxObjectDepth.
func (p *Parser) ParseObject() (object.Object, error) {
	tok, err := p.lex.NextToken()
	if err != nil {
		return nil, err
	}
	return p.parseFromToken(tok)
}

func (p *Parser) parseFromToken(tok lexer.Token) (object.Object, error) {
	switch tok.Kind {
	case lexer.EOF:
		return nil, errs.New(errs.LexError, int64(p.lex.CurrentPosition()), "unexpected end of input")
	case lexer.KName:
		return object.Name(tok.Value), nil
	case lexer.KString:
		return object.StringLiteral(append([]byte(nil), tok.Value...)), nil
	case lexer.KStringHex:
		return object.HexString(append([]byte(nil), tok.Value...)), nil
	case lexer.StartArray:
		return p.parseArray()
	case lexer.StartDic:
		return p.parseDictWithRelaxedFallback()
	case lexer.KFloat:
		f, err := tok.Float()
		if err != nil {
			return nil, err
		}
		return object.Real(f), nil
	case lexer.Other:
		return p.parseOther(tok.Value)
	default:
		return p.parseNumericOrIndRef(tok)
	}
}

func (p *Parser) enterDepth() error {
	p.depth++
	if p.depth > p.opts.MaxObjectDepth {
		return errs.New(errs.DepthExceeded, int64(p.lex.CurrentPosition()), "max object nesting depth exceeded")
	}
	return nil
}

func (p *Parser) leaveDepth() { p.depth-- }

func (p *Parser) parseArray() (object.Array, error) {
	if err := p.enterDepth(); err != nil {
		return nil, err
	}
	defer p.leaveDepth()

	a := object.Array{}
	for {
		tok, err := p.lex.PeekToken()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case lexer.EndArray:
			_, _ = p.lex.NextToken()
			return a, nil
		case lexer.EOF:
			return nil, errs.New(errs.LexError, int64(p.lex.CurrentPosition()), "unterminated array")
		default:
			obj, err := p.ParseObject()
			if err != nil {
				return nil, err
			}
			a = append(a, obj)
		}
	}
}

// parseDictWithRelaxedFallback mirrors the source's own two-pass
// strategy: parse strictly first (succeeds for well-formed input),
// and on failure rewind and retry with a relaxed reading that treats
// a bare EOL after a key as an empty string value (a known quirk of
// at least one mobile scanner app's PDF writer).
func (p *Parser) parseDictWithRelaxedFallback() (object.Dictionary, error) {
	save := p.lex.CurrentPosition()
	d, err := p.parseDict(false)
	if err != nil && !p.opts.Strictness.IsStrict() {
		p.lex.SetPosition(save)
		d, err = p.parseDict(true)
	}
	return d, err
}

func (p *Parser) parseDict(relaxed bool) (object.Dictionary, error) {
	if err := p.enterDepth(); err != nil {
		return nil, err
	}
	defer p.leaveDepth()

	d := object.Dictionary{}
	for {
		tok, err := p.lex.PeekToken()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case lexer.EndDic:
			_, _ = p.lex.NextToken()
			return d, nil
		case lexer.EOF:
			return nil, errs.New(errs.LexError, int64(p.lex.CurrentPosition()), "unterminated dictionary")
		case lexer.KName:
			key := object.Name(tok.Value)
			_, _ = p.lex.NextToken()

			var val object.Object
			if relaxed && p.lex.HasEOLBeforeToken() {
				val = object.StringLiteral("")
			} else {
				val, err = p.ParseObject()
				if err != nil {
					return nil, err
				}
			}
			// A /Key null entry is equivalent to omitting the entry.
			if _, isNull := val.(object.Null); !isNull {
				if _, dup := d[key]; dup {
					return nil, errs.New(errs.LexError, int64(p.lex.CurrentPosition()), fmt.Sprintf("duplicate dictionary key %q", key))
				}
				d[key] = val
			}
		default:
			return nil, errs.New(errs.LexError, int64(p.lex.CurrentPosition()), "corrupt dictionary: expected name or '>>'")
		}
	}
}

func (p *Parser) parseOther(l []byte) (object.Object, error) {
	switch string(l) {
	case lexer.KwNull:
		return object.Null{}, nil
	case lexer.KwTrue:
		return object.Bool(true), nil
	case lexer.KwFalse:
		return object.Bool(false), nil
	default:
		return nil, fmt.Errorf("objparser: unexpected keyword %q", l)
	}
}

// parseNumericOrIndRef implements the literal-dispatch rule: an
// integer followed by an integer followed by the bare keyword R
// becomes a Reference; otherwise the first numeric stands alone.
func (p *Parser) parseNumericOrIndRef(currentToken lexer.Token) (object.Object, error) {
	if currentToken.Kind != lexer.KInteger {
		return nil, fmt.Errorf("objparser: expected number, got %v", currentToken)
	}
	i, err := currentToken.Int()
	if err != nil {
		return nil, err
	}

	next, err := p.lex.PeekToken()
	if err != nil {
		return nil, err
	}
	gen, err := next.Int()
	if next.Kind != lexer.KInteger || err != nil {
		return object.Integer(i), nil
	}

	nextNext, _ := p.lex.PeekPeekToken()
	if !isOther(nextNext, lexer.KwIndirectR) {
		return object.Integer(i), nil
	}

	_, _ = p.lex.NextToken() // the generation number
	_, _ = p.lex.NextToken() // "R"
	return object.Reference{ObjNum: uint32(i), Gen: uint16(gen)}, nil
}

func isOther(tok tkn.Token, kw string) bool {
	return tok.Kind == lexer.Other && string(tok.Value) == kw
}
