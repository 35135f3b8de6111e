package tensor

import (
	"github.com/pkg/errors"
)

// chunkIndex is the chunk-id encoder: an ordered sequence of runs mapping
// chunk ids to the sample ordinals they store. A packed chunk owns a
// contiguous run of ordinals; each tile chunk of a tiled sample appears as
// its own single-ordinal run, so a tiled ordinal maps to several chunk ids.
// Ordinals are stable and append-only; runs are only ever dropped from the
// tail by truncation.
type chunkIndex struct {
	Runs []chunkRun `json:"runs"`
}

type chunkRun struct {
	ChunkID uint64 `json:"chunk_id"`
	First   int    `json:"first"`
	Last    int    `json:"last"`
}

// appendSample associates ordinal with chunkID, extending the tail run when
// the ordinal landed in the same (shared) chunk. A late materialization of an
// older ordinal (an empty sample receiving its first write) starts its own
// run instead of extending.
func (x *chunkIndex) appendSample(chunkID uint64, ordinal int) {
	if n := len(x.Runs); n > 0 && x.Runs[n-1].ChunkID == chunkID && ordinal == x.Runs[n-1].Last+1 {
		x.Runs[n-1].Last = ordinal
		return
	}
	x.Runs = append(x.Runs, chunkRun{ChunkID: chunkID, First: ordinal, Last: ordinal})
}

// appendTile registers one more tile chunk for ordinal. The sample ordinal
// counter is not advanced here; tiles of one sample share its ordinal.
func (x *chunkIndex) appendTile(ordinal int, chunkID uint64) {
	x.Runs = append(x.Runs, chunkRun{ChunkID: chunkID, First: ordinal, Last: ordinal})
}

// chunkIDs returns the chunk ids storing ordinal: one for a packed sample,
// several (in registration = grid order) for a tiled sample, none for an
// empty sample.
func (x *chunkIndex) chunkIDs(ordinal int) []uint64 {
	var ids []uint64
	for _, r := range x.Runs {
		if r.First <= ordinal && ordinal <= r.Last {
			ids = append(ids, r.ChunkID)
		}
	}
	return ids
}

// ordinalRange is the inverse lookup: the span of ordinals stored in
// chunkID. A chunk that received a late materialization can own several
// runs; the bounding span is returned.
func (x *chunkIndex) ordinalRange(chunkID uint64) (first, last int, err error) {
	found := false
	for _, r := range x.Runs {
		if r.ChunkID != chunkID {
			continue
		}
		if !found || r.First < first {
			first = r.First
		}
		if !found || r.Last > last {
			last = r.Last
		}
		found = true
	}
	if !found {
		return 0, 0, errors.Errorf("chunk %d not present in index", chunkID)
	}
	return first, last, nil
}

// truncate drops all runs that reference ordinals >= numSamples.
func (x *chunkIndex) truncate(numSamples int) {
	keep := x.Runs[:0]
	for _, r := range x.Runs {
		if r.First < numSamples {
			if r.Last >= numSamples {
				r.Last = numSamples - 1
			}
			keep = append(keep, r)
		}
	}
	x.Runs = keep
}
