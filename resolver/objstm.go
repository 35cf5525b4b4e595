package resolver

import (
	"fmt"
	"sync"

	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/filters"
	"github.com/benoitkugler/pdfcore/lexer"
	"github.com/benoitkugler/pdfcore/objparser"
	"github.com/benoitkugler/pdfcore/warnings"
	"github.com/benoitkugler/pdfcore/xref"

	"github.com/benoitkugler/pdfcore/object"
)

// objStmCache decodes each /ObjStm container at most once: when a
// reference resolves to a compressed slot, the containing object
// stream is decoded once, every contained object is cached, and the
// requested slot is returned. Guarded by its own singleflight group
// keyed by the container's object number.
type objStmCache struct {
	mu      sync.Mutex
	decoded map[uint32]*objStmResult
	flight  singleflight
}

type objStmResult struct {
	members map[uint32]object.Object
	err     error
}

// singleflight is a tiny single-key-class in-flight guard, local to
// this file so package resolver doesn't need a second import of
// golang.org/x/sync/singleflight just for this.
type singleflight struct {
	mu sync.Mutex
	m  map[uint32]*sync.WaitGroup
}

func (s *singleflight) do(key uint32, fn func()) {
	s.mu.Lock()
	if s.m == nil {
		s.m = map[uint32]*sync.WaitGroup{}
	}
	if wg, ok := s.m[key]; ok {
		s.mu.Unlock()
		wg.Wait()
		return
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	s.m[key] = wg
	s.mu.Unlock()

	fn()

	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	wg.Done()
}

func newObjStmCache() objStmCache {
	return objStmCache{decoded: map[uint32]*objStmResult{}}
}

// resolveCompressed implements the Compressed branch of resolveUncached:
// locate the container (which must itself be InUse), decode it once,
// and return the member whose object number is objNum. entry.Index (the
// slot ordinal within the stream, from the xref type-2 third field) is
// only needed to build the entry itself; decodeObjStmUncached's members
// map is keyed by the object number each slot's prolog pair actually
// declares, which does not generally equal its slot position.
func (r *Resolver) resolveCompressed(objNum uint32, entry xref.Entry, ctx navCtx) (object.Object, error) {
	containerEntry, ok := r.table.Lookup(entry.ContainerObj)
	if !ok || containerEntry.Kind != xref.InUse {
		return nil, errs.New(errs.ObjectNotFound, -1, fmt.Sprintf("compressed object's container %d is not an in-use object", entry.ContainerObj))
	}

	res := r.decodeObjStm(entry.ContainerObj, containerEntry.Offset, ctx)
	if res.err != nil {
		return nil, res.err
	}
	v, ok := res.members[objNum]
	if !ok {
		return nil, errs.New(errs.ObjectNotFound, -1, fmt.Sprintf("container %d has no member for object %d", entry.ContainerObj, objNum))
	}
	return v, nil
}

func (r *Resolver) decodeObjStm(containerObj uint32, offset int64, ctx navCtx) *objStmResult {
	r.objStm.mu.Lock()
	if res, ok := r.objStm.decoded[containerObj]; ok {
		r.objStm.mu.Unlock()
		return res
	}
	r.objStm.mu.Unlock()

	var result *objStmResult
	r.objStm.flight.do(containerObj, func() {
		r.objStm.mu.Lock()
		if res, ok := r.objStm.decoded[containerObj]; ok {
			r.objStm.mu.Unlock()
			result = res
			return
		}
		r.objStm.mu.Unlock()

		members, err := r.decodeObjStmUncached(containerObj, offset, ctx)
		result = &objStmResult{members: members, err: err}

		r.objStm.mu.Lock()
		r.objStm.decoded[containerObj] = result
		r.objStm.mu.Unlock()
	})
	return result
}

func (r *Resolver) decodeObjStmUncached(containerObj uint32, offset int64, ctx navCtx) (map[uint32]object.Object, error) {
	raw, err := r.parseAt(offset, ctx)
	if err != nil {
		return nil, err
	}
	st, ok := raw.(object.Stream)
	if !ok {
		return nil, errs.New(errs.ObjectNotFound, -1, fmt.Sprintf("container %d does not point at a stream", containerObj))
	}
	if !st.Dict.IsTyped("ObjStm") {
		return nil, errs.New(errs.ObjectNotFound, -1, fmt.Sprintf("container %d is not an /ObjStm", containerObj))
	}

	n, ok := st.Dict.IntOf("N")
	if !ok || n < 0 {
		return nil, errs.New(errs.XrefCorrupt, -1, "object stream missing /N")
	}
	first, ok := st.Dict.IntOf("First")
	if !ok || first < 0 {
		return nil, errs.New(errs.XrefCorrupt, -1, "object stream missing /First")
	}

	payload, err := r.src.ReadAt(st.Payload.Offset, st.Payload.Length)
	if err != nil {
		return nil, err
	}
	decoded, err := filters.Decode(st.Dict, payload, r.opts, r.log)
	if err != nil {
		return nil, err
	}

	prolog := lexer.New(decoded, r.opts, r.log)
	type pair struct {
		num uint32
		off int64
	}
	pairs := make([]pair, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := prolog.NextToken()
		offTok, err2 := prolog.NextToken()
		if err1 != nil || err2 != nil {
			break
		}
		num, e1 := numTok.Int()
		off, e2 := offTok.Int()
		if e1 != nil || e2 != nil {
			break
		}
		pairs = append(pairs, pair{num: uint32(num), off: off})
	}

	members := make(map[uint32]object.Object, len(pairs))
	for i, p := range pairs {
		start := first + p.off
		if start < 0 || start > int64(len(decoded)) {
			if r.log != nil {
				r.log.Add(warnings.FilterRecovered, -1, fmt.Sprintf("object stream %d member %d has an out-of-range offset", containerObj, i))
			}
			continue
		}
		parser := objparser.New(decoded[start:], r.opts, r.log)
		v, err := parser.ParseObject()
		if err != nil {
			if r.log != nil {
				r.log.Add(warnings.FilterRecovered, -1, fmt.Sprintf("object stream %d member %d failed to parse: %v", containerObj, i, err))
			}
			continue
		}
		members[p.num] = v
	}
	return members, nil
}
