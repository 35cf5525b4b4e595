package xref

import (
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/filters"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/objparser"
)

// parseXrefStreamSection decodes the xref stream at offset directly
// into the global table, for the common case of a pure (non-hybrid)
// xref-stream hop in the /Prev chain.
func (b *builder) parseXrefStreamSection(offset int64) (int64, error) {
	dst := map[uint32]Entry{}
	prev, err := b.parseXrefStreamSectionInto(offset, dst)
	if err != nil {
		return 0, err
	}
	for objNum, e := range dst {
		if _, exists := b.entries[objNum]; exists {
			continue
		}
		b.entries[objNum] = e
	}
	return prev, nil
}

// parseXrefStreamSectionInto decodes the xref stream (PDF 1.5+, /Type
// /XRef) at offset into dst without touching the global table,
// letting the hybrid path (mergeTrailer) apply HybridPrecedence before
// committing. Trailer fields are merged globally either way, since
// hybrid precedence governs entries, not trailer metadata.
func (b *builder) parseXrefStreamSectionInto(offset int64, dst map[uint32]Entry) (int64, error) {
	io, err := objparser.ParseIndirectObjectAt(b.src, offset, b.opts, b.log, nil)
	if err != nil {
		return 0, errs.Wrap(errs.XrefCorrupt, offset, "invalid xref stream object", err)
	}
	st, ok := io.Value.(object.Stream)
	if !ok {
		return 0, errs.New(errs.XrefCorrupt, offset, "xref stream offset does not point at a stream")
	}

	w, index, size, err := parseXrefStreamHeader(st.Dict)
	if err != nil {
		return 0, errs.Wrap(errs.XrefCorrupt, offset, "invalid xref stream header", err)
	}

	raw, err := b.src.ReadAt(st.Payload.Offset, st.Payload.Length)
	if err != nil {
		return 0, err
	}
	decoded, err := filters.Decode(st.Dict, raw, b.opts, b.log)
	if err != nil {
		return 0, errs.Wrap(errs.XrefCorrupt, offset, "failed to decode xref stream", err)
	}

	if err := mergeXrefStreamEntries(dst, decoded, w, index, size); err != nil {
		return 0, errs.Wrap(errs.XrefCorrupt, offset, "corrupt xref stream entries", err)
	}

	if _, exists := dst[io.ObjNum]; !exists {
		dst[io.ObjNum] = Entry{Kind: InUse, Gen: io.Gen, Offset: offset}
	}

	for _, key := range []object.Name{"Size", "Root", "Info", "ID", "Encrypt", "AdditionalStreams"} {
		if _, already := b.trailer[key]; already {
			continue
		}
		if v, ok := st.Dict[key]; ok {
			b.trailer[key] = v
		}
	}

	prev, _ := offsetFromObject(st.Dict["Prev"])
	return prev, nil
}

func parseXrefStreamHeader(dict object.Dictionary) (w [3]int, index [][2]int, size int, err error) {
	size64, ok := dict.IntOf("Size")
	if !ok {
		return w, nil, 0, errs.New(errs.XrefCorrupt, -1, "xref stream missing /Size")
	}
	size = int(size64)

	wArr, ok := dict.ArrayOf("W")
	if !ok || len(wArr) < 3 {
		return w, nil, 0, errs.New(errs.XrefCorrupt, -1, "xref stream missing /W")
	}
	for i := 0; i < 3; i++ {
		n, ok := wArr[i].(object.Integer)
		if !ok || n < 0 {
			return w, nil, 0, errs.New(errs.XrefCorrupt, -1, "xref stream /W entry invalid")
		}
		w[i] = int(n)
	}

	if idxArr, ok := dict.ArrayOf("Index"); ok && len(idxArr) >= 2 {
		if len(idxArr)%2 != 0 {
			return w, nil, 0, errs.New(errs.XrefCorrupt, -1, "xref stream /Index has odd length")
		}
		for i := 0; i+1 < len(idxArr); i += 2 {
			start, ok1 := idxArr[i].(object.Integer)
			count, ok2 := idxArr[i+1].(object.Integer)
			if !ok1 || !ok2 {
				return w, nil, 0, errs.New(errs.XrefCorrupt, -1, "xref stream /Index entries invalid")
			}
			index = append(index, [2]int{int(start), int(count)})
		}
	} else {
		index = [][2]int{{0, size}}
	}

	return w, index, size, nil
}

func mergeXrefStreamEntries(entries map[uint32]Entry, buf []byte, w [3]int, index [][2]int, _ int) error {
	entrySize := w[0] + w[1] + w[2]
	if entrySize <= 0 {
		return errs.New(errs.XrefCorrupt, -1, "xref stream has zero-width entries")
	}

	pos := 0
	for _, sub := range index {
		firstObj, count := sub[0], sub[1]
		for i := 0; i < count; i++ {
			if pos+entrySize > len(buf) {
				// Some generators declare more entries than are
				// actually present; stop rather than fail.
				return nil
			}
			row := buf[pos : pos+entrySize]
			pos += entrySize

			typeField := 1 // W[0]==0 means the type field is omitted and defaults to 1
			off := 0
			if w[0] > 0 {
				typeField = int(beUint(row[:w[0]]))
				off = w[0]
			}
			f2 := beUint(row[off : off+w[1]])
			f3 := beUint(row[off+w[1] : off+w[1]+w[2]])

			objNum := uint32(firstObj + i)
			if _, exists := entries[objNum]; exists {
				continue
			}
			switch typeField {
			case 0:
				entries[objNum] = Entry{Kind: Free, Gen: uint16(f3), NextFree: uint32(f2)}
			case 1:
				entries[objNum] = Entry{Kind: InUse, Gen: uint16(f3), Offset: int64(f2)}
			case 2:
				entries[objNum] = Entry{Kind: Compressed, ContainerObj: uint32(f2), Index: uint32(f3)}
			}
		}
	}
	return nil
}

func beUint(b []byte) int64 {
	var v int64
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v
}
