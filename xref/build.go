package xref

import (
	"bytes"
	"strconv"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/lexer"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/objparser"
	"github.com/benoitkugler/pdfcore/warnings"
)

// Build constructs the effective xref table: classic table, xref
// stream, hybrid merge and the /Prev chain walk, falling back to
// recovery (see recovery.go) when construction fails and
// opts.AllowXrefRecovery is true.
func Build(src bytesource.Source, opts *config.ParseOptions, log *warnings.Log) (*Table, error) {
	startOffset, err := findStartXref(src)
	if err != nil {
		return fallbackOrFail(src, opts, log, errs.New(errs.XrefMissing, -1, err.Error()))
	}

	b := &builder{
		src:     src,
		opts:    opts,
		log:     log,
		entries: map[uint32]Entry{},
		trailer: object.Dictionary{},
		visited: map[int64]bool{},
	}

	if err := b.walk(startOffset); err != nil {
		return fallbackOrFail(src, opts, log, err)
	}

	if _, hasSize := b.trailer.IntOf("Size"); !hasSize {
		return fallbackOrFail(src, opts, log, errs.New(errs.XrefCorrupt, -1, "trailer missing /Size"))
	}
	if _, hasRoot := b.trailer.Lookup("Root"); !hasRoot {
		return fallbackOrFail(src, opts, log, errs.New(errs.XrefCorrupt, -1, "trailer missing /Root"))
	}

	// HP Scanner hack: a single subsection wrongly starting at object
	// 1 is shifted down by one.
	if b.subsectionCount == 1 {
		if _, hasZero := b.entries[0]; !hasZero {
			size := int(b.Table().Size())
			for i := 1; i < size; i++ {
				if e, ok := b.entries[uint32(i)]; ok {
					b.entries[uint32(i-1)] = e
				}
			}
			delete(b.entries, uint32(size-1))
			if log != nil {
				log.Add(warnings.XrefSubsectionFixup, -1, "single xref subsection realigned to start at object 0")
			}
		}
	}

	return b.Table(), nil
}

func fallbackOrFail(src bytesource.Source, opts *config.ParseOptions, log *warnings.Log, cause error) (*Table, error) {
	if !opts.AllowXrefRecovery {
		return nil, cause
	}
	t, err := Recover(src, opts, log)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Add(warnings.XrefRecovered, -1, "xref rebuilt via recovery scan: "+cause.Error())
	}
	return t, nil
}

type builder struct {
	src             bytesource.Source
	opts            *config.ParseOptions
	log             *warnings.Log
	entries         map[uint32]Entry
	trailer         object.Dictionary
	visited         map[int64]bool
	subsectionCount int
}

func (b *builder) Table() *Table {
	return &Table{Entries: b.entries, Trailer: b.trailer, PrevHops: len(b.visited)}
}

// walk processes offset and its /Prev chain, newest (closest-to-EOF)
// first; already-assigned object numbers are left untouched so the
// first (=newest) table to mention a number wins over any older one
// reached later in the chain.
func (b *builder) walk(offset int64) error {
	for offset != 0 {
		if b.visited[offset] {
			return errs.New(errs.XrefCycle, offset, "xref /Prev chain revisits an offset")
		}
		if len(b.visited) >= b.opts.MaxXrefPrevChain {
			return errs.New(errs.XrefCycle, offset, "xref /Prev chain exceeds max hop count")
		}
		b.visited[offset] = true

		next, err := b.processSection(offset)
		if err != nil {
			return err
		}
		offset = next
	}
	return nil
}

// processSection reads the section at offset (classic table or xref
// stream) and returns the /Prev offset, or 0 if there is none.
func (b *builder) processSection(offset int64) (int64, error) {
	remaining := b.src.Len() - offset
	if remaining <= 0 {
		return 0, errs.New(errs.XrefCorrupt, offset, "xref offset past end of input")
	}
	chunk, err := b.src.ReadAt(offset, remaining)
	if err != nil {
		return 0, err
	}

	lx := lexer.New(chunk, b.opts, b.log)
	tok, err := lx.PeekToken()
	if err != nil {
		return 0, errs.Wrap(errs.XrefCorrupt, offset, "unreadable xref section", err)
	}

	if isOther(tok, lexer.KwXref) {
		_, _ = lx.NextToken()
		return b.parseClassicSection(lx, offset)
	}
	return b.parseXrefStreamSection(offset)
}

func isOther(tok lexer.Token, kw string) bool {
	return tok.Kind == lexer.Other && string(tok.Value) == kw
}

func (b *builder) parseClassicSection(lx *lexer.Lexer, base int64) (int64, error) {
	hopLocal := map[uint32]Entry{}
	for {
		if err := b.parseSubsection(lx, hopLocal); err != nil {
			return 0, err
		}
		b.subsectionCount++

		next, _ := lx.PeekToken()
		if isOther(next, lexer.KwTrailer) {
			break
		}
	}
	_, _ = lx.NextToken() // consume "trailer"

	p := objparser.NewFromLexer(lx, b.opts, b.log)
	obj, err := p.ParseObject()
	if err != nil {
		return 0, errs.Wrap(errs.XrefCorrupt, base, "invalid trailer dictionary", err)
	}
	dict, ok := obj.(object.Dictionary)
	if !ok {
		return 0, errs.New(errs.XrefCorrupt, base, "trailer is not a dictionary")
	}
	return b.mergeTrailer(dict, hopLocal)
}

func (b *builder) parseSubsection(lx *lexer.Lexer, dst map[uint32]Entry) error {
	startTok, err := lx.NextToken()
	if err != nil {
		return err
	}
	start, err := startTok.Int()
	if startTok.Kind != lexer.KInteger || err != nil {
		return errs.New(errs.XrefCorrupt, int64(lx.CurrentPosition()), "invalid subsection start object number")
	}

	countTok, err := lx.NextToken()
	if err != nil {
		return err
	}
	count, err := countTok.Int()
	if countTok.Kind != lexer.KInteger || err != nil {
		return errs.New(errs.XrefCorrupt, int64(lx.CurrentPosition()), "invalid subsection object count")
	}

	for i := int64(0); i < count; i++ {
		objNum := uint32(start + i)
		if err := b.parseSubsectionEntry(lx, objNum, dst); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) parseSubsectionEntry(lx *lexer.Lexer, objNum uint32, dst map[uint32]Entry) error {
	offTok, err := lx.NextToken()
	if err != nil {
		return err
	}
	offset, err := strconv.ParseInt(string(offTok.Value), 10, 64)
	if err != nil {
		return errs.New(errs.XrefCorrupt, int64(lx.CurrentPosition()), "invalid xref entry offset")
	}

	genTok, err := lx.NextToken()
	if err != nil {
		return err
	}
	gen, err := genTok.Int()
	if genTok.Kind != lexer.KInteger {
		return errs.New(errs.XrefCorrupt, int64(lx.CurrentPosition()), "invalid xref entry generation")
	}

	flagTok, err := lx.NextToken()
	if err != nil {
		return err
	}
	flag := string(flagTok.Value)
	if flagTok.Kind != lexer.Other || (flag != "f" && flag != "n") {
		return errs.New(errs.XrefCorrupt, int64(lx.CurrentPosition()), "corrupt xref entry: expected 'n' or 'f'")
	}

	if _, exists := dst[objNum]; exists {
		return nil // an earlier row in this same section already named it
	}
	if flag == "f" {
		dst[objNum] = Entry{Kind: Free, Gen: uint16(gen), NextFree: uint32(offset)}
		return nil
	}
	if offset == 0 {
		return nil // malformed in-use entry with a zero offset; skip it
	}
	dst[objNum] = Entry{Kind: InUse, Gen: uint16(gen), Offset: offset}
	return nil
}

// mergeTrailer folds dict's fields into the accumulated trailer
// (first-wins, since processing proceeds newest-table-first), resolves
// this hop's classic-vs-hybrid-stream precedence per
// opts.HybridPrecedence, commits the result into the global table
// (skip-if-already-present, so a newer hop never gets shadowed by an
// older one), and returns the /Prev offset to continue the chain.
func (b *builder) mergeTrailer(dict object.Dictionary, hopLocal map[uint32]Entry) (int64, error) {
	for _, key := range []object.Name{"Size", "Root", "Info", "ID", "Encrypt", "AdditionalStreams"} {
		if _, already := b.trailer[key]; already {
			continue
		}
		if v, ok := dict[key]; ok {
			b.trailer[key] = v
		}
	}

	combined := hopLocal
	if xrefStm, ok := dict["XRefStm"].(object.Integer); ok {
		// 1.5+ readers process the hidden hybrid stream before
		// continuing the classic chain.
		streamLocal := map[uint32]Entry{}
		if _, err := b.parseXrefStreamSectionInto(int64(xrefStm), streamLocal); err != nil {
			return 0, err
		}
		combined = mergeHybrid(hopLocal, streamLocal, b.opts.HybridPrecedence)
	}

	for objNum, e := range combined {
		if _, exists := b.entries[objNum]; exists {
			continue
		}
		b.entries[objNum] = e
	}

	prev, _ := offsetFromObject(dict["Prev"])
	return prev, nil
}

// mergeHybrid resolves a single hop's classic-table/xref-stream
// disagreement per precedence; entries unique to either side are kept
// regardless.
func mergeHybrid(classic, stream map[uint32]Entry, precedence config.HybridPrecedence) map[uint32]Entry {
	out := make(map[uint32]Entry, len(classic)+len(stream))
	first, second := stream, classic
	if precedence == config.ClassicWins {
		first, second = classic, stream
	}
	for k, v := range first {
		out[k] = v
	}
	for k, v := range second {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

func offsetFromObject(o object.Object) (int64, bool) {
	switch v := o.(type) {
	case object.Integer:
		return int64(v), true
	case object.Reference:
		return int64(v.ObjNum), true
	default:
		return 0, false
	}
}

// findStartXref scans backwards from EOF for "startxref", first in
// the last 1 KiB then the last 1 MiB (most producers put it right at
// the end; a widened second pass tolerates trailing junk).
func findStartXref(src bytesource.Source) (int64, error) {
	for _, window := range []int64{1024, 1024 * 1024} {
		if window > src.Len() {
			window = src.Len()
		}
		idx := src.FindBackwards([]byte("startxref"), src.Len(), window)
		if idx < 0 {
			continue
		}
		tail, err := src.ReadAt(idx, src.Len()-idx)
		if err != nil {
			return 0, err
		}
		rest := tail[len("startxref"):]
		eof := bytes.Index(rest, []byte("%%EOF"))
		if eof < 0 {
			eof = len(rest)
		}
		numStr := bytes.TrimSpace(rest[:eof])
		offset, err := strconv.ParseInt(string(numStr), 10, 64)
		if err != nil || offset < 0 || offset >= src.Len() {
			continue
		}
		return offset, nil
	}
	return 0, errs.New(errs.XrefMissing, -1, "no startxref found within scan window")
}
