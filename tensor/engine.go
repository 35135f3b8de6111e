// Package tensor implements the chunk engine: it packs n-dimensional samples
// into bounded chunks stored through a kv.Store, tiling samples too large for
// one chunk across a grid of chunks, and supports partial reads and partial
// in-place updates of stored samples.
package tensor

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ashbeekim/Hub/chunk"
	"github.com/ashbeekim/Hub/dtype"
	"github.com/ashbeekim/Hub/kv"
	"github.com/ashbeekim/Hub/nd"
)

// readConcurrency bounds parallel chunk fetches on the tiled read path.
const readConcurrency = 8

type sampleKind uint8

const (
	// sampleEmpty has a recorded shape but no bytes anywhere; reads
	// synthesize zeros without touching the store.
	sampleEmpty sampleKind = iota
	// samplePacked lives whole inside one chunk, possibly sharing it.
	samplePacked
	// sampleTiled is spread across one chunk per tile.
	sampleTiled
)

// sampleRef is the per-ordinal record the engine switches on.
type sampleRef struct {
	Kind  sampleKind `json:"kind"`
	Shape []int      `json:"shape"`
	// Packed samples only.
	ChunkID uint64 `json:"chunk_id,omitempty"`
	Local   int    `json:"local,omitempty"`
}

// indexDoc is the persisted form of the chunk index and sample records.
type indexDoc struct {
	Samples     []sampleRef `json:"samples"`
	Index       chunkIndex  `json:"index"`
	NextChunkID uint64      `json:"next_chunk_id"`
	OpenChunkID uint64      `json:"open_chunk_id"`
}

// Engine is the chunk engine for one tensor. It assumes exclusive mutating
// access for the duration it is open: concurrent writers to the same tensor
// are not guarded against. Concurrent readers of an already-flushed tensor
// are safe.
type Engine struct {
	store kv.Store
	pool  *kv.Pool
	name  string
	log   *zap.Logger
	met   *engineMetrics

	meta    *Meta
	samples []sampleRef
	cidx    chunkIndex
	tiles   *tileIndex
	cache   *chunkCache

	// current bin-packing target; openChunk is fetched lazily after reopen
	openChunkID uint64
	openChunk   *chunk.Chunk
	nextChunkID uint64
}

// Create initializes a new tensor in store under name and returns an Engine
// bound to it. It fails if the tensor already exists.
func Create(ctx context.Context, store kv.Store, name string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	exists, err := store.Exists(ctx, metaKey(name))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Errorf("tensor %q already exists", name)
	}
	e := &Engine{
		store: store,
		pool:  kv.NewPool(cfg.maxChunkSize*2 + 1024),
		name:  name,
		log:   cfg.logger.With(zap.String("tensor", name)),
		met:   newEngineMetrics(name),
		meta: &Meta{
			Dtype:        cfg.dtype,
			MaxChunkSize: cfg.maxChunkSize,
			Compression:  cfg.compression,
		},
		tiles:       newTileIndex(),
		cache:       newChunkCache(cfg.cacheSize),
		nextChunkID: 1,
	}
	if cfg.registry != nil {
		if err := e.met.register(cfg.registry); err != nil {
			return nil, err
		}
	}
	if err := e.flushState(ctx); err != nil {
		return nil, err
	}
	e.log.Info("created tensor",
		zap.Stringer("dtype", e.meta.Dtype),
		zap.Int("max_chunk_size", e.meta.MaxChunkSize),
		zap.Stringer("compression", e.meta.Compression))
	return e, nil
}

// Open binds an Engine to an existing tensor. Dtype, chunk size and
// compression come from the persisted meta; creation-time options that
// conflict with it are ignored.
func Open(ctx context.Context, store kv.Store, name string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	meta, err := loadMeta(ctx, store, name, maxMetaSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store: store,
		pool:  kv.NewPool(meta.MaxChunkSize*2 + 1024),
		name:  name,
		log:   cfg.logger.With(zap.String("tensor", name)),
		met:   newEngineMetrics(name),
		meta:  meta,
		tiles: newTileIndex(),
		cache: newChunkCache(cfg.cacheSize),
	}
	if cfg.registry != nil {
		if err := e.met.register(cfg.registry); err != nil {
			return nil, err
		}
	}
	if err := e.loadState(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Name returns the tensor's name.
func (e *Engine) Name() string { return e.name }

// Dtype returns the tensor's dtype; dtype.Unknown if not fixed yet.
func (e *Engine) Dtype() dtype.T { return e.meta.Dtype }

// NumSamples returns the number of samples appended so far.
func (e *Engine) NumSamples() int { return len(e.samples) }

// MaxChunkSize returns the chunk capacity in uncompressed payload bytes.
func (e *Engine) MaxChunkSize() int { return e.meta.MaxChunkSize }

// Compression returns the algorithm new chunks are compressed with.
func (e *Engine) Compression() chunk.CompressionAlgo { return e.meta.Compression }

// MinShape and MaxShape return the per-axis shape bounds across all samples.
// Axes where they differ are dynamic.
func (e *Engine) MinShape() []int { return append([]int{}, e.meta.MinShape...) }

func (e *Engine) MaxShape() []int { return append([]int{}, e.meta.MaxShape...) }

// SampleShape returns the recorded shape of the sample at ordinal.
func (e *Engine) SampleShape(ordinal int) ([]int, error) {
	ref, err := e.sample(ordinal)
	if err != nil {
		return nil, err
	}
	return append([]int{}, ref.Shape...), nil
}

// ChunkIDs returns the chunk ids storing ordinal, in grid order for a tiled
// sample. An empty sample maps to no chunks.
func (e *Engine) ChunkIDs(ordinal int) ([]uint64, error) {
	if _, err := e.sample(ordinal); err != nil {
		return nil, err
	}
	// the tile record, not run registration order, is authoritative for grid
	// order: tiles of one sample can materialize out of order
	if rec, ok := e.tiles.get(ordinal); ok {
		var ids []uint64
		for _, id := range rec.ChunkIDs {
			if id != 0 {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}
	return e.cidx.chunkIDs(ordinal), nil
}

// OrdinalRange returns the span of sample ordinals stored in chunkID.
func (e *Engine) OrdinalRange(chunkID uint64) (first, last int, err error) {
	return e.cidx.ordinalRange(chunkID)
}

// Append validates and stores one sample, returning its ordinal. data is the
// sample's row-major bytes. If the tensor's dtype is not fixed yet, dt fixes
// it. Samples larger than the chunk capacity are tiled transparently.
func (e *Engine) Append(ctx context.Context, dt dtype.T, shape []int, data []byte) (int, error) {
	if err := e.meta.validateDtype(dt); err != nil {
		return 0, err
	}
	if err := e.meta.validateShape(shape); err != nil {
		return 0, err
	}
	if want := nd.NumElements(shape) * dt.Size(); len(data) != want {
		return 0, errors.Errorf("sample data is %d bytes, shape %v of %s wants %d", len(data), shape, dt, want)
	}
	fixedDtype := e.meta.Dtype == dtype.Unknown
	if fixedDtype {
		e.meta.Dtype = dt
	}
	var ord int
	var err error
	if len(data) > e.meta.MaxChunkSize {
		ord, err = e.appendTiled(ctx, shape, data)
	} else {
		ord, err = e.appendPacked(ctx, shape, data)
	}
	if err != nil && fixedDtype {
		e.meta.Dtype = dtype.Unknown
	}
	return ord, err
}

// AppendEmpty records a sample with a known shape and no bytes. The dtype
// must already be fixed, since without it tiling byte sizes are undefined.
func (e *Engine) AppendEmpty(ctx context.Context, shape []int) (int, error) {
	ords, err := e.ExtendEmpty(ctx, [][]int{shape})
	if err != nil {
		return 0, err
	}
	return ords[0], nil
}

// ExtendEmpty appends one empty sample per shape, returning their ordinals.
func (e *Engine) ExtendEmpty(ctx context.Context, shapes [][]int) ([]int, error) {
	if e.meta.Dtype == dtype.Unknown {
		return nil, errors.WithStack(ErrDtypeUndefined)
	}
	for _, shape := range shapes {
		if err := e.meta.validateShape(shape); err != nil {
			return nil, err
		}
	}
	snap := e.snapshot()
	elemSize := e.meta.Dtype.Size()
	ords := make([]int, 0, len(shapes))
	for _, shape := range shapes {
		ord := len(e.samples)
		if nd.NumElements(shape)*elemSize > e.meta.MaxChunkSize {
			geom, err := computeGeometry(shape, elemSize, e.meta.MaxChunkSize)
			if err != nil {
				e.restore(snap)
				return nil, err
			}
			e.tiles.add(ord, geom)
		}
		e.samples = append(e.samples, sampleRef{Kind: sampleEmpty, Shape: append([]int{}, shape...)})
		e.meta.registerSample(shape)
		ords = append(ords, ord)
	}
	if err := e.flushState(ctx); err != nil {
		e.restore(snap)
		return nil, err
	}
	return ords, nil
}

// Read returns the row-major bytes of the sample at ordinal, restricted to
// region (nil means the full sample). The region is intersected with the
// sample's recorded shape; the result covers exactly that intersection.
func (e *Engine) Read(ctx context.Context, ordinal int, region nd.Region) ([]byte, error) {
	ref, err := e.sample(ordinal)
	if err != nil {
		return nil, err
	}
	elemSize := e.meta.Dtype.Size()
	full := nd.Full(ref.Shape)
	if region == nil {
		region = full
	}
	if len(region) != len(ref.Shape) {
		return nil, ShapeMismatchError{Region: region, Shape: ref.Shape}
	}
	eff, ok := region.Intersect(full)
	if !ok {
		return []byte{}, nil
	}
	switch ref.Kind {
	case sampleEmpty:
		return make([]byte, eff.NumElements()*elemSize), nil
	case samplePacked:
		c, err := e.fetchChunk(ctx, ref.ChunkID)
		if err != nil {
			return nil, err
		}
		return c.Slice(ref.Local, eff, elemSize)
	case sampleTiled:
		return e.readTiled(ctx, ordinal, eff, elemSize)
	default:
		return nil, errors.Errorf("corrupt sample record: kind %d", ref.Kind)
	}
}

// Update overwrites the region of the sample at ordinal with data. The
// region must lie within the sample's recorded shape; updates never grow a
// sample. A first update of an empty sample materializes exactly the chunks
// it touches.
func (e *Engine) Update(ctx context.Context, ordinal int, region nd.Region, data []byte) error {
	ref, err := e.sample(ordinal)
	if err != nil {
		return err
	}
	elemSize := e.meta.Dtype.Size()
	if region == nil {
		region = nd.Full(ref.Shape)
	}
	if len(region) != len(ref.Shape) || !region.Within(ref.Shape) {
		return ShapeMismatchError{Region: region, Shape: ref.Shape}
	}
	if want := region.NumElements() * elemSize; len(data) != want {
		return errors.Errorf("update data is %d bytes, region %v of %s wants %d", len(data), region, e.meta.Dtype, want)
	}
	switch ref.Kind {
	case samplePacked:
		return e.updatePacked(ctx, ref, region, data, elemSize)
	case sampleEmpty:
		if _, ok := e.tiles.get(ordinal); ok {
			return e.updateTiled(ctx, ordinal, ref, region, data, elemSize)
		}
		return e.materializePacked(ctx, ordinal, ref, region, data, elemSize)
	case sampleTiled:
		return e.updateTiled(ctx, ordinal, ref, region, data, elemSize)
	default:
		return errors.Errorf("corrupt sample record: kind %d", ref.Kind)
	}
}

// Truncate drops all samples at ordinal >= n and deletes chunks that no
// longer store anything. Earlier ordinals are never renumbered.
func (e *Engine) Truncate(ctx context.Context, n int) error {
	if n < 0 || n > len(e.samples) {
		return errors.Errorf("truncate to %d outside [0, %d]", n, len(e.samples))
	}
	if n == len(e.samples) {
		return nil
	}
	prevSamples := append([]sampleRef{}, e.samples...)
	snap := e.snapshot()
	before := e.referencedChunks()

	e.samples = e.samples[:n]
	e.cidx.truncate(n)
	droppedTiles := e.tiles.dropFrom(n)
	// shape bounds only ever widen as samples arrive; recompute them from the
	// survivors so a dropped outlier stops dominating them
	e.meta.SampleCount = 0
	e.meta.MinShape = nil
	e.meta.MaxShape = nil
	for i := range e.samples {
		e.meta.registerSample(e.samples[i].Shape)
	}
	// the open chunk may have lost its tail; start fresh on the next append
	e.openChunk = nil
	e.openChunkID = 0

	if err := e.flushState(ctx); err != nil {
		e.samples = prevSamples
		e.restore(snap)
		for ord, rec := range droppedTiles {
			e.tiles.Samples[ord] = rec
		}
		return err
	}
	after := e.referencedChunks()
	for id := range before {
		if _, ok := after[id]; ok {
			continue
		}
		if err := e.store.Delete(ctx, chunkKey(e.name, id)); err != nil {
			return err
		}
		e.cache.Remove(id)
	}
	return nil
}

func (e *Engine) appendPacked(ctx context.Context, shape []int, data []byte) (int, error) {
	snap := e.snapshot()
	c, err := e.openForAppend(ctx, len(data))
	if err != nil {
		return 0, err
	}
	local, err := c.Add(data, shape)
	if err != nil {
		e.dropOpenChunk(snap)
		return 0, err
	}
	if err := e.putChunk(ctx, e.openChunkID, c); err != nil {
		e.dropOpenChunk(snap)
		return 0, err
	}
	ord := len(e.samples)
	e.cidx.appendSample(e.openChunkID, ord)
	e.samples = append(e.samples, sampleRef{
		Kind:    samplePacked,
		Shape:   append([]int{}, shape...),
		ChunkID: e.openChunkID,
		Local:   local,
	})
	e.meta.registerSample(shape)
	if err := e.flushState(ctx); err != nil {
		e.dropOpenChunk(snap)
		e.restore(snap)
		return 0, err
	}
	return ord, nil
}

func (e *Engine) appendTiled(ctx context.Context, shape []int, data []byte) (int, error) {
	snap := e.snapshot()
	elemSize := e.meta.Dtype.Size()
	geom, err := computeGeometry(shape, elemSize, e.meta.MaxChunkSize)
	if err != nil {
		return 0, err
	}
	ids := make([]uint64, geom.NumTiles())
	for i := range ids {
		region := geom.TileRegion(i)
		box := region.Shape()
		buf := make([]byte, region.NumElements()*elemSize)
		if err := nd.Copy(elemSize, buf, box, make([]int, len(box)), data, shape, region); err != nil {
			e.restore(snap)
			return 0, err
		}
		c := chunk.New(e.meta.MaxChunkSize, e.meta.Compression)
		if _, err := c.Add(buf, box); err != nil {
			e.restore(snap)
			return 0, err
		}
		id := e.allocChunkID()
		if err := e.putChunk(ctx, id, c); err != nil {
			e.restore(snap)
			return 0, err
		}
		ids[i] = id
	}
	ord := len(e.samples)
	rec := e.tiles.add(ord, geom)
	copy(rec.ChunkIDs, ids)
	for _, id := range ids {
		e.cidx.appendTile(ord, id)
	}
	e.samples = append(e.samples, sampleRef{Kind: sampleTiled, Shape: append([]int{}, shape...)})
	e.meta.registerSample(shape)
	if err := e.flushState(ctx); err != nil {
		e.restore(snap)
		return 0, err
	}
	e.log.Debug("appended tiled sample",
		zap.Int("ordinal", ord),
		zap.Ints("shape", shape),
		zap.Ints("tile_shape", geom.TileShape),
		zap.Int("tiles", geom.NumTiles()))
	return ord, nil
}

func (e *Engine) readTiled(ctx context.Context, ordinal int, eff nd.Region, elemSize int) ([]byte, error) {
	rec, ok := e.tiles.get(ordinal)
	if !ok {
		return nil, errors.Errorf("tiled sample %d has no tile record", ordinal)
	}
	g := rec.Geometry
	out := make([]byte, eff.NumElements()*elemSize)
	effOrigin := regionOrigin(eff)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(readConcurrency)
	for _, ti := range g.Intersecting(eff) {
		id := rec.ChunkIDs[ti]
		if id == 0 {
			// virtual tile: the output is already zero-filled
			continue
		}
		tileRegion := g.TileRegion(ti)
		overlap, ok := eff.Intersect(tileRegion)
		if !ok {
			continue
		}
		eg.Go(func() error {
			c, err := e.fetchChunk(ctx, id)
			if err != nil {
				return err
			}
			box, err := c.Slice(0, overlap.Translate(regionOrigin(tileRegion)), elemSize)
			if err != nil {
				return err
			}
			boxShape := overlap.Shape()
			// tile regions partition the sample, so writes into out are disjoint
			return nd.Copy(elemSize, out, eff.Shape(), regionOrigin(overlap.Translate(effOrigin)), box, boxShape, nd.Full(boxShape))
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) updatePacked(ctx context.Context, ref *sampleRef, region nd.Region, data []byte, elemSize int) error {
	c, err := e.fetchChunk(ctx, ref.ChunkID)
	if err != nil {
		return err
	}
	// mutate a clone: the fetched chunk may be the open chunk or cached, and
	// a failed put must leave both matching the store
	c = c.Clone()
	if err := c.Update(ref.Local, region, data, elemSize); err != nil {
		return err
	}
	if err := e.putChunk(ctx, ref.ChunkID, c); err != nil {
		return err
	}
	if ref.ChunkID == e.openChunkID {
		e.openChunk = c
	}
	return nil
}

// materializePacked gives a small empty sample its first real bytes: a
// zero-filled buffer with the update applied, packed like a fresh append.
func (e *Engine) materializePacked(ctx context.Context, ordinal int, ref *sampleRef, region nd.Region, data []byte, elemSize int) error {
	buf := make([]byte, nd.NumElements(ref.Shape)*elemSize)
	boxShape := region.Shape()
	if err := nd.Copy(elemSize, buf, ref.Shape, regionOrigin(region), data, boxShape, nd.Full(boxShape)); err != nil {
		return err
	}
	snap := e.snapshot()
	c, err := e.openForAppend(ctx, len(buf))
	if err != nil {
		return err
	}
	local, err := c.Add(buf, ref.Shape)
	if err != nil {
		e.dropOpenChunk(snap)
		return err
	}
	if err := e.putChunk(ctx, e.openChunkID, c); err != nil {
		e.dropOpenChunk(snap)
		return err
	}
	e.cidx.appendSample(e.openChunkID, ordinal)
	prev := *ref
	ref.Kind = samplePacked
	ref.ChunkID = e.openChunkID
	ref.Local = local
	if err := e.flushState(ctx); err != nil {
		*ref = prev
		e.dropOpenChunk(snap)
		e.restore(snap)
		return err
	}
	return nil
}

func (e *Engine) updateTiled(ctx context.Context, ordinal int, ref *sampleRef, region nd.Region, data []byte, elemSize int) error {
	rec, ok := e.tiles.get(ordinal)
	if !ok {
		return errors.Errorf("tiled sample %d has no tile record", ordinal)
	}
	g := rec.Geometry
	regOrigin := regionOrigin(region)
	runsBefore := len(e.cidx.Runs)
	// freshly allocated ids roll back with the failure and are reused by the
	// next mutation, whose puts overwrite any orphaned chunk objects
	nextBefore := e.nextChunkID
	fail := func(err error) error {
		e.nextChunkID = nextBefore
		return err
	}
	type tileAlloc struct {
		ti int
		id uint64
	}
	var allocs []tileAlloc
	for _, ti := range g.Intersecting(region) {
		tileRegion := g.TileRegion(ti)
		overlap, ok := region.Intersect(tileRegion)
		if !ok {
			continue
		}
		boxShape := overlap.Shape()
		box := make([]byte, overlap.NumElements()*elemSize)
		if err := nd.Copy(elemSize, box, boxShape, make([]int, len(boxShape)), data, region.Shape(), overlap.Translate(regOrigin)); err != nil {
			return fail(err)
		}
		tileShape := tileRegion.Shape()
		localOverlap := overlap.Translate(regionOrigin(tileRegion))
		id := rec.ChunkIDs[ti]
		switch {
		case overlap.Equal(tileRegion):
			// whole tile covered: no need to decode what it held before
			c := chunk.New(e.meta.MaxChunkSize, e.meta.Compression)
			if _, err := c.Add(box, tileShape); err != nil {
				return fail(err)
			}
			if id == 0 {
				id = e.allocChunkID()
				allocs = append(allocs, tileAlloc{ti: ti, id: id})
			}
			if err := e.putChunk(ctx, id, c); err != nil {
				return fail(err)
			}
		case id == 0:
			// virtual tile: synthesize zeros, overlay the update
			buf := make([]byte, nd.NumElements(tileShape)*elemSize)
			if err := nd.Copy(elemSize, buf, tileShape, regionOrigin(localOverlap), box, boxShape, nd.Full(boxShape)); err != nil {
				return fail(err)
			}
			c := chunk.New(e.meta.MaxChunkSize, e.meta.Compression)
			if _, err := c.Add(buf, tileShape); err != nil {
				return fail(err)
			}
			id = e.allocChunkID()
			allocs = append(allocs, tileAlloc{ti: ti, id: id})
			if err := e.putChunk(ctx, id, c); err != nil {
				return fail(err)
			}
		default:
			c, err := e.fetchChunk(ctx, id)
			if err != nil {
				return fail(err)
			}
			c = c.Clone()
			if err := c.Update(0, localOverlap, box, elemSize); err != nil {
				return fail(err)
			}
			if err := e.putChunk(ctx, id, c); err != nil {
				return fail(err)
			}
		}
	}
	if len(allocs) == 0 {
		return nil
	}
	for _, a := range allocs {
		rec.ChunkIDs[a.ti] = a.id
		e.cidx.appendTile(ordinal, a.id)
	}
	prevKind := ref.Kind
	ref.Kind = sampleTiled
	if err := e.flushState(ctx); err != nil {
		for _, a := range allocs {
			rec.ChunkIDs[a.ti] = 0
		}
		e.cidx.Runs = e.cidx.Runs[:runsBefore]
		ref.Kind = prevKind
		return fail(err)
	}
	return nil
}

func (e *Engine) sample(ordinal int) (*sampleRef, error) {
	if ordinal < 0 || ordinal >= len(e.samples) {
		return nil, errors.Errorf("sample ordinal %d out of range [0, %d)", ordinal, len(e.samples))
	}
	return &e.samples[ordinal], nil
}

// openForAppend returns the current open chunk, loading it from the store
// after a reopen, or starting a new chunk when n more bytes would not fit.
func (e *Engine) openForAppend(ctx context.Context, n int) (*chunk.Chunk, error) {
	if e.openChunkID != 0 && e.openChunk == nil {
		c, err := e.fetchChunk(ctx, e.openChunkID)
		if err != nil {
			return nil, err
		}
		e.openChunk = c
	}
	if e.openChunk == nil || !e.openChunk.CanFit(n) {
		e.openChunk = chunk.New(e.meta.MaxChunkSize, e.meta.Compression)
		e.openChunkID = e.allocChunkID()
	}
	return e.openChunk, nil
}

// dropOpenChunk discards the in-memory open chunk after a failed mutation so
// the committed version is refetched from the store on the next append.
func (e *Engine) dropOpenChunk(snap engineSnapshot) {
	e.cache.Remove(e.openChunkID)
	e.openChunk = nil
	e.openChunkID = snap.openChunkID
	e.nextChunkID = snap.nextChunkID
}

func (e *Engine) allocChunkID() uint64 {
	id := e.nextChunkID
	e.nextChunkID++
	return id
}

func (e *Engine) fetchChunk(ctx context.Context, id uint64) (*chunk.Chunk, error) {
	if c, ok := e.cache.Get(id); ok {
		e.met.cacheHits.Inc()
		return c, nil
	}
	e.met.cacheMisses.Inc()
	raw, err := e.fetchRaw(ctx, chunkKey(e.name, id))
	if err != nil {
		return nil, err
	}
	c, err := chunk.FromBytes(e.meta.MaxChunkSize, raw)
	if err != nil {
		return nil, err
	}
	e.met.chunksFetched.Inc()
	e.cache.Add(id, c)
	return c, nil
}

func (e *Engine) putChunk(ctx context.Context, id uint64, c *chunk.Chunk) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := e.store.Put(ctx, chunkKey(e.name, id), data); err != nil {
		return err
	}
	e.met.chunksWritten.Inc()
	e.cache.Add(id, c)
	return nil
}

// fetchRaw reads a whole value, going through the buffer pool and falling
// back to a growing allocation for oversized values (a chunk header can
// outgrow the pool buffer when a chunk holds very many tiny samples).
func (e *Engine) fetchRaw(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := e.pool.GetF(ctx, e.store, key, func(v []byte) error {
		out = append([]byte{}, v...)
		return nil
	})
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, io.ErrShortBuffer) {
		return nil, err
	}
	size := e.meta.MaxChunkSize * 4
	for {
		buf := make([]byte, size)
		n, err := e.store.Get(ctx, key, buf)
		if err == nil {
			return buf[:n], nil
		}
		if !errors.Is(err, io.ErrShortBuffer) {
			return nil, err
		}
		size *= 2
	}
}

// referencedChunks returns the set of chunk ids the index still points at.
func (e *Engine) referencedChunks() map[uint64]struct{} {
	ids := make(map[uint64]struct{})
	for _, r := range e.cidx.Runs {
		ids[r.ChunkID] = struct{}{}
	}
	return ids
}

// flushState persists the tile index, chunk index and meta, in that order.
// A tile record nothing references is harmless, a tiled sample without its
// geometry is unreadable, so the tile index goes to the store first. Mutating
// the indexes and flushing them is one logical unit; callers must not let
// reads of this tensor interleave with it.
func (e *Engine) flushState(ctx context.Context) error {
	tdata, err := json.Marshal(e.tiles)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := e.store.Put(ctx, tileIndexKey(e.name), tdata); err != nil {
		return err
	}
	doc := indexDoc{
		Samples:     e.samples,
		Index:       e.cidx,
		NextChunkID: e.nextChunkID,
		OpenChunkID: e.openChunkID,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := e.store.Put(ctx, chunkIndexKey(e.name), data); err != nil {
		return err
	}
	return e.meta.flush(ctx, e.store, e.name)
}

func (e *Engine) loadState(ctx context.Context) error {
	raw, err := e.fetchRaw(ctx, chunkIndexKey(e.name))
	if err != nil {
		return err
	}
	var doc indexDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.WithStack(err)
	}
	e.samples = doc.Samples
	e.cidx = doc.Index
	e.nextChunkID = doc.NextChunkID
	e.openChunkID = doc.OpenChunkID
	traw, err := e.fetchRaw(ctx, tileIndexKey(e.name))
	if err != nil {
		if kv.IsNotExist(err) {
			return nil
		}
		return err
	}
	return errors.WithStack(json.Unmarshal(traw, e.tiles))
}

// engineSnapshot captures the in-memory index state so a failed mutation can
// be rolled back without any storage round trip.
type engineSnapshot struct {
	numSamples  int
	runs        []chunkRun
	meta        Meta
	openChunkID uint64
	nextChunkID uint64
}

func (e *Engine) snapshot() engineSnapshot {
	return engineSnapshot{
		numSamples:  len(e.samples),
		runs:        append([]chunkRun{}, e.cidx.Runs...),
		meta:        e.meta.clone(),
		openChunkID: e.openChunkID,
		nextChunkID: e.nextChunkID,
	}
}

func (e *Engine) restore(s engineSnapshot) {
	e.samples = e.samples[:s.numSamples]
	e.cidx.Runs = s.runs
	*e.meta = s.meta
	e.openChunkID = s.openChunkID
	e.nextChunkID = s.nextChunkID
	e.tiles.truncate(s.numSamples)
}

func regionOrigin(r nd.Region) []int {
	origin := make([]int, len(r))
	for i, iv := range r {
		origin[i] = iv.Begin
	}
	return origin
}
