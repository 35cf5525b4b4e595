package objparser

import (
	"bytes"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/lexer"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
)

// IndirectObject is the result of parsing a "n g obj … endobj" (or
// "… stream … endstream … endobj") definition.
type IndirectObject struct {
	ObjNum uint32
	Gen    uint16
	Value  object.Object
}

// headerWindow bounds how much of the file we read up front to find
// the object header and its non-stream value; a stream's payload is
// located and read separately once its dict is known.
const headerWindow = 64 * 1024

var endstreamMarker = []byte("endstream")

// LengthResolver lazily resolves an indirect /Length value; it is
// supplied by the resolver package so objparser never imports it
// directly, avoiding a package cycle.
type LengthResolver func(ref object.Reference) (int64, bool)

// ParseIndirectObjectAt parses the indirect object whose header starts
// at offset, including its stream payload if present.
func ParseIndirectObjectAt(src bytesource.Source, offset int64, opts *config.ParseOptions, log *warnings.Log, resolveLength LengthResolver) (IndirectObject, error) {
	window := headerWindow
	if remaining := src.Len() - offset; remaining < int64(window) {
		window = int(remaining)
	}
	if window <= 0 {
		return IndirectObject{}, errs.New(errs.OutOfRange, offset, "object header past end of input")
	}
	head, err := src.ReadAt(offset, int64(window))
	if err != nil {
		return IndirectObject{}, err
	}

	lx := lexer.New(head, opts, log)
	objNum, gen, err := parseObjectHeader(lx)
	if err != nil {
		return IndirectObject{}, errs.Wrap(errs.LexError, offset, "invalid indirect object header", err)
	}

	p := NewFromLexer(lx, opts, log)
	value, err := p.ParseObject()
	if err != nil {
		return IndirectObject{}, err
	}

	next, err := lx.PeekToken()
	isStream := err == nil && isOther(next, lexer.KwStream)
	if !isStream {
		return IndirectObject{ObjNum: objNum, Gen: gen, Value: value}, nil
	}

	dict, ok := value.(object.Dictionary)
	if !ok {
		return IndirectObject{}, errs.New(errs.LexError, offset, "stream keyword following a non-dictionary object")
	}
	_, _ = lx.NextToken() // consume "stream"

	contentOffset := offset + int64(lx.CurrentPosition())
	contentOffset, err = skipStreamSeparator(src, contentOffset)
	if err != nil {
		return IndirectObject{}, err
	}

	payload, err := extractStreamPayload(src, dict, contentOffset, offset, opts, log, resolveLength)
	if err != nil {
		return IndirectObject{}, err
	}

	return IndirectObject{ObjNum: objNum, Gen: gen, Value: object.Stream{Dict: dict, Payload: payload}}, nil
}

func parseObjectHeader(lx *lexer.Lexer) (objNum uint32, gen uint16, err error) {
	tok, err := lx.NextToken()
	if err != nil {
		return 0, 0, err
	}
	n, err := tok.Int()
	if tok.Kind != lexer.KInteger || err != nil {
		return 0, 0, errs.New(errs.LexError, int64(lx.CurrentPosition()), "missing object number")
	}

	tok, err = lx.NextToken()
	if err != nil {
		return 0, 0, err
	}
	g, err := tok.Int()
	if tok.Kind != lexer.KInteger || err != nil {
		return 0, 0, errs.New(errs.LexError, int64(lx.CurrentPosition()), "missing generation number")
	}

	tok, err = lx.NextToken()
	if err != nil {
		return 0, 0, err
	}
	if !isOtherTok(tok, lexer.KwObj) {
		return 0, 0, errs.New(errs.LexError, int64(lx.CurrentPosition()), "missing 'obj' keyword")
	}

	return uint32(n), uint16(g), nil
}

func isOtherTok(tok lexer.Token, kw string) bool {
	return tok.Kind == lexer.Other && string(tok.Value) == kw
}

// skipStreamSeparator skips the single EOL (\n, \r or \r\n) required
// immediately after the "stream" keyword.
func skipStreamSeparator(src bytesource.Source, offset int64) (int64, error) {
	b, err := src.ReadAt(offset, 1)
	if err != nil {
		return offset, nil // truncated file; let downstream scanning fail informatively
	}
	switch b[0] {
	case '\r':
		if offset+1 < src.Len() {
			if b2, err := src.ReadAt(offset+1, 1); err == nil && b2[0] == '\n' {
				return offset + 2, nil
			}
		}
		return offset + 1, nil
	case '\n':
		return offset + 1, nil
	default:
		return offset, nil
	}
}

// extractStreamPayload reconciles the declared /Length against an
// independent endstream scan, applying the configured tolerance
// policy when the two disagree.
func extractStreamPayload(src bytesource.Source, dict object.Dictionary, contentOffset, objOffset int64, opts *config.ParseOptions, log *warnings.Log, resolveLength LengthResolver) (object.StreamBody, error) {
	declared, haveDeclared := declaredLength(dict, resolveLength)

	actualEnd, found := scanForEndstream(src, contentOffset, opts.EndstreamScanLimit)

	switch {
	case haveDeclared && declared >= 0 && contentOffset+declared <= src.Len():
		if !found || contentOffset+declared == actualEnd || withinSeparatorSlack(actualEnd-(contentOffset+declared)) {
			return object.StreamBody{Offset: contentOffset, Length: declared}, nil
		}
		// Mismatch between declared length and the endstream marker.
		if opts.Strictness.IsStrict() {
			return object.StreamBody{}, errs.New(errs.StreamLengthMismatch, contentOffset, "declared /Length disagrees with endstream position")
		}
		actualLen := actualEnd - contentOffset
		if log != nil {
			log.Add(warnings.StreamLengthMismatch, contentOffset, "using endstream-delimited length instead of declared /Length")
		}
		return object.StreamBody{Offset: contentOffset, Length: actualLen}, nil

	case found:
		if opts.Strictness.IsStrict() && haveDeclared {
			return object.StreamBody{}, errs.New(errs.StreamLengthMismatch, contentOffset, "declared /Length out of range")
		}
		if log != nil {
			if haveDeclared {
				log.Add(warnings.StreamLengthMismatch, contentOffset, "declared /Length out of range, recovered via endstream scan")
			} else {
				log.Add(warnings.StreamLengthMismatch, contentOffset, "missing /Length, recovered via endstream scan")
			}
		}
		return object.StreamBody{Offset: contentOffset, Length: actualEnd - contentOffset}, nil

	default:
		return object.StreamBody{}, errs.New(errs.StreamLengthMismatch, contentOffset, "no usable /Length and no endstream marker found")
	}
}

// withinSeparatorSlack tolerates the one or two bytes of EOL that may
// sit between the payload and "endstream".
func withinSeparatorSlack(diff int64) bool { return diff >= 0 && diff <= 2 }

func declaredLength(dict object.Dictionary, resolveLength LengthResolver) (int64, bool) {
	v, ok := dict.Lookup("Length")
	if !ok {
		return 0, false
	}
	switch l := v.(type) {
	case object.Integer:
		return int64(l), true
	case object.Reference:
		if resolveLength == nil {
			return 0, false
		}
		n, ok := resolveLength(l)
		return n, ok
	default:
		return 0, false
	}
}

// scanForEndstream finds the first "endstream" at or after from,
// bounded by limit bytes (0 = unbounded).
func scanForEndstream(src bytesource.Source, from int64, limit int64) (int64, bool) {
	total := src.Len() - from
	if total < 0 {
		return 0, false
	}
	if limit > 0 && total > limit {
		total = limit
	}
	if total <= 0 {
		return 0, false
	}
	window, err := src.ReadAt(from, total)
	if err != nil {
		return 0, false
	}
	idx := bytes.Index(window, endstreamMarker)
	if idx < 0 {
		return 0, false
	}
	end := from + int64(idx)
	// Trim the single EOL separator the encoder places before "endstream".
	if idx >= 1 && (window[idx-1] == '\n') {
		end--
		if idx >= 2 && window[idx-2] == '\r' {
			end--
		}
	} else if idx >= 1 && window[idx-1] == '\r' {
		end--
	}
	return end, true
}
