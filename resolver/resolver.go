// Package resolver turns an unresolved Reference into a concrete
// object.Object by following the xref table, parsing the
// indirect object it names, and caching the result. Cycle and depth
// bounds are tracked through an explicit stack threaded through every
// call rather than relying on recursion alone, so adversarial input
// cannot blow the host stack.
package resolver

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/objparser"
	"github.com/benoitkugler/pdfcore/warnings"
	"github.com/benoitkugler/pdfcore/xref"
)

// entry is one object number's cache slot: Unresolved until a value
// has been committed, at which point done is true and value/err are
// final. A reference re-entering the in-progress stack is caught before
// the singleflight call that would otherwise deadlock, and its
// CircularReference is committed into entry via commitFailure (see
// Resolver.resolve).
type entry struct {
	mu    sync.Mutex
	done  bool
	value object.Object
	err   error
}

// Resolver is the per-document resolution context: the active xref,
// the shared object cache, and the in-flight guard that serializes
// concurrent resolution per reference while letting the cache itself
// serve concurrent reads freely.
type Resolver struct {
	src   bytesource.Source
	table *xref.Table
	opts  *config.ParseOptions
	log   *warnings.Log

	mu    sync.Mutex
	cache map[uint32]*entry

	flight singleflight.Group

	objStm objStmCache
}

// New builds a Resolver over an already-built xref table. The table is
// immutable from here on; the Resolver never mutates it.
func New(src bytesource.Source, table *xref.Table, opts *config.ParseOptions, log *warnings.Log) *Resolver {
	return &Resolver{
		src:    src,
		table:  table,
		opts:   opts,
		log:    log,
		cache:  map[uint32]*entry{},
		objStm: newObjStmCache(),
	}
}

// navCtx carries the per-call bookkeeping through a single Resolve
// invocation: the in-progress stack (cycle detection), the navigation
// depth (DepthExceeded, default 50), the reference-chain hop count
// (CircularReference, default 10) and a deadline for Timeout.
type navCtx struct {
	stack    map[uint32]bool
	depth    int
	hops     int
	deadline time.Time
}

func (r *Resolver) newCtx() navCtx {
	var deadline time.Time
	if r.opts.OperationTimeout > 0 {
		deadline = time.Now().Add(r.opts.OperationTimeout)
	}
	return navCtx{stack: map[uint32]bool{}, deadline: deadline}
}

func (c navCtx) withVisit(objNum uint32) navCtx {
	next := make(map[uint32]bool, len(c.stack)+1)
	for k := range c.stack {
		next[k] = true
	}
	next[objNum] = true
	c.stack = next
	c.depth++
	return c
}

func (c navCtx) checkTimeout() error {
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		return errs.New(errs.Timeout, -1, "operation exceeded the configured timeout")
	}
	return nil
}

// Resolve returns the fully-dereferenced object.Object named by ref,
// chasing any reference-to-reference chain (bounded by MaxRefChain)
// and decoding through compressed object streams as needed. It never
// returns an object.Reference.
func (r *Resolver) Resolve(ref object.Reference) (object.Object, error) {
	return r.resolve(ref, r.newCtx())
}

func (r *Resolver) resolve(ref object.Reference, ctx navCtx) (object.Object, error) {
	if err := ctx.checkTimeout(); err != nil {
		r.commitFailure(ref.ObjNum, err)
		return nil, err
	}
	if ctx.depth > r.opts.MaxObjectDepth {
		return nil, errs.New(errs.DepthExceeded, -1, "resolver navigation depth exceeded")
	}
	if ctx.stack[ref.ObjNum] {
		cycleErr := errs.New(errs.CircularReference, -1, fmt.Sprintf("reference to object %d re-enters an in-progress resolution", ref.ObjNum))
		r.commitFailure(ref.ObjNum, cycleErr)
		return nil, cycleErr
	}

	if e := r.lookupCache(ref.ObjNum); e != nil {
		e.mu.Lock()
		v, err := e.value, e.err
		e.mu.Unlock()
		return v, err
	}

	childCtx := ctx.withVisit(ref.ObjNum)
	key := strconv.FormatUint(uint64(ref.ObjNum), 10)
	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		// Another flight may have completed this objNum while we were
		// waiting to enter Do (the cache is checked again here under
		// the singleflight serialization point).
		if e := r.lookupCache(ref.ObjNum); e != nil {
			e.mu.Lock()
			v, err := e.value, e.err
			e.mu.Unlock()
			return v, err
		}
		val, rerr := r.resolveUncached(ref, childCtx)
		r.commit(ref.ObjNum, val, rerr)
		return val, rerr
	})
	if err != nil {
		return nil, err
	}
	return v.(object.Object), nil
}

func (r *Resolver) lookupCache(objNum uint32) *entry {
	r.mu.Lock()
	e := r.cache[objNum]
	r.mu.Unlock()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if !done {
		return nil
	}
	return e
}

func (r *Resolver) commit(objNum uint32, value object.Object, err error) {
	r.mu.Lock()
	e := r.cache[objNum]
	if e == nil {
		e = &entry{}
		r.cache[objNum] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.done, e.value, e.err = true, value, err
	e.mu.Unlock()
}

// commitFailure marks objNum permanently Failed, so that a cancelled
// or cyclic resolution does not leave later callers waiting behind it.
func (r *Resolver) commitFailure(objNum uint32, err error) {
	r.commit(objNum, nil, err)
}

func (r *Resolver) resolveUncached(ref object.Reference, ctx navCtx) (object.Object, error) {
	xe, ok := r.table.Lookup(ref.ObjNum)
	if !ok {
		return nil, errs.New(errs.ObjectNotFound, -1, fmt.Sprintf("object %d %d R not present in xref", ref.ObjNum, ref.Gen))
	}

	var raw object.Object
	var err error
	switch xe.Kind {
	case xref.Free:
		return nil, errs.New(errs.ObjectNotFound, -1, fmt.Sprintf("object %d is on the free list", ref.ObjNum))
	case xref.InUse:
		raw, err = r.parseAt(xe.Offset, ctx)
	case xref.Compressed:
		raw, err = r.resolveCompressed(ref.ObjNum, xe, ctx)
	default:
		return nil, errs.New(errs.ObjectNotFound, -1, "unknown xref entry kind")
	}
	if err != nil {
		return nil, err
	}

	return r.chase(raw, ctx)
}

func (r *Resolver) parseAt(offset int64, ctx navCtx) (object.Object, error) {
	io, err := objparser.ParseIndirectObjectAt(r.src, offset, r.opts, r.log, r.lengthResolverFor(ctx))
	if err != nil {
		return nil, err
	}
	return io.Value, nil
}

// lengthResolverFor adapts Resolve to objparser.LengthResolver so the
// object parser can lazily resolve an indirect /Length while parsing a
// stream, without objparser importing this package (avoiding a
// cycle). The parent navCtx is threaded through so a pathological
// /Length that points back at the stream object itself is still
// caught as a cycle.
func (r *Resolver) lengthResolverFor(ctx navCtx) objparser.LengthResolver {
	return func(ref object.Reference) (int64, bool) {
		v, err := r.resolve(ref, ctx)
		if err != nil {
			return 0, false
		}
		n, ok := v.(object.Integer)
		if !ok {
			return 0, false
		}
		return int64(n), true
	}
}

// chase follows a raw parsed value that is itself a Reference, up to
// MaxRefChain hops. A cycle or overflow fails with CircularReference.
func (r *Resolver) chase(raw object.Object, ctx navCtx) (object.Object, error) {
	ref, ok := raw.(object.Reference)
	if !ok {
		return raw, nil
	}
	if ctx.hops+1 > r.opts.MaxRefChain {
		return nil, errs.New(errs.CircularReference, -1, "reference chain exceeds max hop count")
	}
	ctx.hops++
	return r.resolve(ref, ctx)
}

// ResolveShallow resolves o through Resolve (with the same caching)
// when it is a Reference and returns any other object unchanged — a
// thin convenience used by the document facade to look up dictionary
// values that may or may not be references.
func (r *Resolver) ResolveShallow(o object.Object) (object.Object, error) {
	ref, ok := o.(object.Reference)
	if !ok {
		return o, nil
	}
	return r.Resolve(ref)
}
