package xref

import (
	"bytes"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/filters"
	"github.com/benoitkugler/pdfcore/lexer"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/objparser"
	"github.com/benoitkugler/pdfcore/warnings"
)

const maxRecoveryMatches = 1_000_000

// Recover scans the byte source for "N G obj" headers and a trailer
// (or a /Catalog, when no trailer keyword exists) to produce a
// best-effort flat XrefTable. Recovery does not follow /Prev; it
// always produces one flattened table.
func Recover(src bytesource.Source, opts *config.ParseOptions, log *warnings.Log) (*Table, error) {
	entries, err := scanForObjectHeaders(src)
	if err != nil {
		return nil, err
	}

	trailer, err := locateOrSynthesizeTrailer(src, entries, opts, log)
	if err != nil {
		return nil, err
	}
	if _, ok := trailer.IntOf("Size"); !ok {
		trailer["Size"] = object.Integer(maxObjNum(entries) + 1)
	}

	t := &Table{Entries: entries, Trailer: trailer, Recovered: true}

	if err := resolveCompressedObjects(src, t, opts, log); err != nil {
		return nil, err
	}

	return t, nil
}

// scanForObjectHeaders linearly scans the whole file for "N G obj"
// patterns (N >= 1), recording the offset of each as an InUse entry.
// Free entries are not reconstructed.
func scanForObjectHeaders(src bytesource.Source) (map[uint32]Entry, error) {
	entries := map[uint32]Entry{}
	matches := 0

	const chunkSize = 1 << 20
	total := src.Len()
	var carry []byte

	for pos := int64(0); pos < total; pos += chunkSize {
		n := chunkSize
		if pos+int64(n) > total {
			n = int(total - pos)
		}
		chunk, err := src.ReadAt(pos, int64(n))
		if err != nil {
			return nil, err
		}
		window := append(carry, chunk...)
		windowBase := pos - int64(len(carry))

		scanObjHeadersInWindow(window, windowBase, entries, &matches)

		if matches > maxRecoveryMatches {
			break
		}
		// keep a small tail in case an "N G obj" straddles the boundary
		tail := 64
		if len(window) < tail {
			tail = len(window)
		}
		carry = append([]byte(nil), window[len(window)-tail:]...)
	}

	return entries, nil
}

func scanObjHeadersInWindow(window []byte, windowBase int64, entries map[uint32]Entry, matches *int) {
	idx := 0
	for {
		rel := bytes.Index(window[idx:], []byte("obj"))
		if rel < 0 {
			return
		}
		pos := idx + rel
		// Walk backwards over "N G " before "obj" to recover the header.
		objNum, gen, headerStart, ok := scanObjHeaderBackwards(window, pos)
		idx = pos + len("obj")
		if !ok {
			continue
		}
		*matches++
		offset := windowBase + int64(headerStart)
		if offset < 0 {
			continue
		}
		// Prefer the last (closest-to-EOF) match for a given obj num,
		// matching incremental-update semantics without following /Prev.
		if e, exists := entries[objNum]; !exists || offset > e.Offset {
			entries[objNum] = Entry{Kind: InUse, Gen: uint16(gen), Offset: offset}
		}
	}
}

// scanObjHeaderBackwards looks at window[:objKeywordStart] and tries
// to parse a trailing "N G " (possibly with extra whitespace before
// it); it returns false if what precedes "obj" doesn't look like a
// header, so plain words ending in "obj" (rare, but possible inside a
// string) don't get misread.
func scanObjHeaderBackwards(window []byte, objKeywordStart int) (objNum uint32, gen uint16, headerStart int, ok bool) {
	i := objKeywordStart
	i = skipSpacesBack(window, i)
	genEnd := i
	i = skipDigitsBack(window, i)
	genStart := i
	if genStart == genEnd {
		return 0, 0, 0, false
	}
	i = skipSpacesBack(window, i)
	if i == genEnd { // no whitespace between the two numbers
		return 0, 0, 0, false
	}
	numEnd := i
	i = skipDigitsBack(window, i)
	numStart := i
	if numStart == numEnd {
		return 0, 0, 0, false
	}

	n, err := parseUintASCII(window[numStart:numEnd])
	if err != nil || n == 0 {
		return 0, 0, 0, false
	}
	g, err := parseUintASCII(window[genStart:genEnd])
	if err != nil {
		return 0, 0, 0, false
	}
	return uint32(n), uint16(g), numStart, true
}

func skipSpacesBack(b []byte, i int) int {
	for i > 0 && isPDFWhitespace(b[i-1]) {
		i--
	}
	return i
}

func skipDigitsBack(b []byte, i int) int {
	for i > 0 && b[i-1] >= '0' && b[i-1] <= '9' {
		i--
	}
	return i
}

func isPDFWhitespace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func parseUintASCII(b []byte) (uint64, error) {
	var v uint64
	if len(b) == 0 {
		return 0, errs.New(errs.LexError, -1, "empty number")
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errs.New(errs.LexError, -1, "not a digit")
		}
		v = v*10 + uint64(c-'0')
	}
	return v, nil
}

func maxObjNum(entries map[uint32]Entry) uint32 {
	var m uint32
	for n := range entries {
		if n > m {
			m = n
		}
	}
	return m
}

// locateOrSynthesizeTrailer scans for "trailer" (preferring the last
// occurrence), falling back to locating a /Type /Catalog object and
// synthesizing /Root from it.
func locateOrSynthesizeTrailer(src bytesource.Source, entries map[uint32]Entry, opts *config.ParseOptions, log *warnings.Log) (object.Dictionary, error) {
	if offset, ok := lastTrailerKeyword(src); ok {
		dict, err := parseTrailerDictAt(src, offset, opts, log)
		if err == nil {
			return dict, nil
		}
	}

	for objNum, e := range entries {
		if e.Kind != InUse {
			continue
		}
		io, err := objparser.ParseIndirectObjectAt(src, e.Offset, opts, log, nil)
		if err != nil {
			continue
		}
		dict, ok := io.Value.(object.Dictionary)
		if !ok {
			continue
		}
		if dict.IsTyped("Catalog") {
			return object.Dictionary{"Root": object.Reference{ObjNum: objNum, Gen: e.Gen}}, nil
		}
	}

	return nil, errs.New(errs.XrefCorrupt, -1, "recovery found no trailer and no /Type /Catalog object")
}

func lastTrailerKeyword(src bytesource.Source) (int64, bool) {
	idx := src.FindBackwards([]byte("trailer"), src.Len(), src.Len())
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

func parseTrailerDictAt(src bytesource.Source, offset int64, opts *config.ParseOptions, log *warnings.Log) (object.Dictionary, error) {
	remaining := src.Len() - offset
	chunk, err := src.ReadAt(offset, remaining)
	if err != nil {
		return nil, err
	}
	lx := lexer.New(chunk, opts, log)
	tok, err := lx.NextToken()
	if err != nil || !(tok.Kind != lexer.EOF && string(tok.Value) == lexer.KwTrailer) {
		return nil, errs.New(errs.XrefCorrupt, offset, "expected 'trailer' keyword")
	}
	p := objparser.NewFromLexer(lx, opts, log)
	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(object.Dictionary)
	if !ok {
		return nil, errs.New(errs.XrefCorrupt, offset, "trailer is not a dictionary")
	}
	return dict, nil
}

// resolveCompressedObjects is recovery's second pass: every recovered
// /Type /ObjStm stream is decoded, its /N slots enumerated, and each
// slot added as a Compressed entry — a direct InUse hit always wins
// over a recovered Compressed one.
func resolveCompressedObjects(src bytesource.Source, t *Table, opts *config.ParseOptions, log *warnings.Log) error {
	direct := map[uint32]bool{}
	for n, e := range t.Entries {
		if e.Kind == InUse {
			direct[n] = true
		}
	}

	for objNum, e := range t.Entries {
		if e.Kind != InUse {
			continue
		}
		io, err := objparser.ParseIndirectObjectAt(src, e.Offset, opts, log, nil)
		if err != nil {
			continue
		}
		st, ok := io.Value.(object.Stream)
		if !ok || !st.Dict.IsTyped("ObjStm") {
			continue
		}
		n, _ := st.Dict.IntOf("N")
		raw, err := src.ReadAt(st.Payload.Offset, st.Payload.Length)
		if err != nil {
			continue
		}
		decoded, err := filters.Decode(st.Dict, raw, opts, log)
		if err != nil {
			continue
		}
		prologLexer := lexer.New(decoded, opts, log)
		for i := int64(0); i < n; i++ {
			numTok, err1 := prologLexer.NextToken()
			offTok, err2 := prologLexer.NextToken()
			if err1 != nil || err2 != nil {
				break
			}
			memberNum, e1 := numTok.Int()
			_, e2 := offTok.Int()
			if e1 != nil || e2 != nil {
				break
			}
			if direct[uint32(memberNum)] {
				continue
			}
			if _, exists := t.Entries[uint32(memberNum)]; exists {
				continue
			}
			t.Entries[uint32(memberNum)] = Entry{Kind: Compressed, ContainerObj: objNum, Index: uint32(i)}
		}
		_ = objNum
	}
	return nil
}
