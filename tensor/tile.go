package tensor

import (
	"github.com/pkg/errors"

	"github.com/ashbeekim/Hub/nd"
)

// Geometry describes how one large sample is tiled across chunks: the full
// sample shape, the uniform tile shape, and the grid dimensions. Boundary
// tiles are clipped to the sample shape, so the tiles partition the sample
// exactly.
type Geometry struct {
	SampleShape []int `json:"sample_shape"`
	TileShape   []int `json:"tile_shape"`
	GridDims    []int `json:"grid_dims"`
}

// computeGeometry picks a tile shape for shape whose byte size fits within
// maxChunkSize. The policy is deterministic: axes are shrunk starting from
// the last axis, halving (rounding up) until the axis reaches length 1, then
// moving inward. Tile geometry affects which tiles a region read touches,
// not correctness, but it must be stable across sessions.
func computeGeometry(shape []int, elemSize, maxChunkSize int) (Geometry, error) {
	if elemSize <= 0 {
		return Geometry{}, errors.WithStack(ErrDtypeUndefined)
	}
	if elemSize > maxChunkSize {
		return Geometry{}, errors.Errorf("element size %d exceeds max chunk size %d", elemSize, maxChunkSize)
	}
	tile := append([]int{}, shape...)
	for nd.NumElements(tile)*elemSize > maxChunkSize {
		shrunk := false
		for i := len(tile) - 1; i >= 0; i-- {
			if tile[i] > 1 {
				tile[i] = (tile[i] + 1) / 2
				shrunk = true
				break
			}
		}
		if !shrunk {
			// all axes are 1 and elemSize <= maxChunkSize, so this is unreachable
			return Geometry{}, errors.Errorf("cannot tile shape %v into %d byte chunks", shape, maxChunkSize)
		}
	}
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + tile[i] - 1) / tile[i]
	}
	return Geometry{
		SampleShape: append([]int{}, shape...),
		TileShape:   tile,
		GridDims:    grid,
	}, nil
}

// NumTiles returns the total number of tiles in the grid.
func (g Geometry) NumTiles() int {
	return nd.NumElements(g.GridDims)
}

// coord converts a row-major grid index to grid coordinates.
func (g Geometry) coord(i int) []int {
	c := make([]int, len(g.GridDims))
	for axis := len(g.GridDims) - 1; axis >= 0; axis-- {
		c[axis] = i % g.GridDims[axis]
		i /= g.GridDims[axis]
	}
	return c
}

// TileRegion returns the sample region covered by the tile at row-major
// grid index i, clipped to the sample shape.
func (g Geometry) TileRegion(i int) nd.Region {
	c := g.coord(i)
	r := make(nd.Region, len(c))
	for axis := range c {
		begin := c[axis] * g.TileShape[axis]
		end := min(begin+g.TileShape[axis], g.SampleShape[axis])
		r[axis] = nd.Interval{Begin: begin, End: end}
	}
	return r
}

// Intersecting returns the row-major grid indexes of every tile whose region
// overlaps r.
func (g Geometry) Intersecting(r nd.Region) []int {
	lo := make([]int, len(r))
	hi := make([]int, len(r)) // inclusive
	for axis := range r {
		if r[axis].Len() <= 0 {
			return nil
		}
		lo[axis] = r[axis].Begin / g.TileShape[axis]
		hi[axis] = (r[axis].End - 1) / g.TileShape[axis]
	}
	var out []int
	c := append([]int{}, lo...)
	for {
		idx := 0
		for axis := range c {
			idx = idx*g.GridDims[axis] + c[axis]
		}
		out = append(out, idx)
		axis := len(c) - 1
		for ; axis >= 0; axis-- {
			c[axis]++
			if c[axis] <= hi[axis] {
				break
			}
			c[axis] = lo[axis]
		}
		if axis < 0 {
			break
		}
	}
	return out
}

// tileRecord is the tile index entry for one tiled sample: its geometry and
// the chunk assigned to each grid cell. A zero chunk id marks a virtual
// (never written) tile; reads of virtual tiles synthesize zeros.
type tileRecord struct {
	Geometry Geometry `json:"geometry"`
	ChunkIDs []uint64 `json:"chunk_ids"`
}

// tileIndex is the tile encoder: tiled sample ordinal -> tileRecord.
type tileIndex struct {
	Samples map[int]*tileRecord `json:"samples"`
}

func newTileIndex() *tileIndex {
	return &tileIndex{Samples: make(map[int]*tileRecord)}
}

func (x *tileIndex) add(ordinal int, g Geometry) *tileRecord {
	rec := &tileRecord{
		Geometry: g,
		ChunkIDs: make([]uint64, g.NumTiles()),
	}
	x.Samples[ordinal] = rec
	return rec
}

func (x *tileIndex) get(ordinal int) (*tileRecord, bool) {
	rec, ok := x.Samples[ordinal]
	return rec, ok
}

func (x *tileIndex) truncate(numSamples int) {
	for ord := range x.Samples {
		if ord >= numSamples {
			delete(x.Samples, ord)
		}
	}
}

// dropFrom removes the records at ordinal >= numSamples and returns them so a
// failed truncation can put them back.
func (x *tileIndex) dropFrom(numSamples int) map[int]*tileRecord {
	dropped := make(map[int]*tileRecord)
	for ord, rec := range x.Samples {
		if ord >= numSamples {
			dropped[ord] = rec
			delete(x.Samples, ord)
		}
	}
	return dropped
}
