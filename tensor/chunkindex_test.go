package tensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkIndexPacked(t *testing.T) {
	var x chunkIndex
	x.appendSample(1, 0)
	x.appendSample(1, 1)
	x.appendSample(1, 2)
	x.appendSample(2, 3)
	require.Len(t, x.Runs, 2)
	require.Equal(t, []uint64{1}, x.chunkIDs(1))
	require.Equal(t, []uint64{2}, x.chunkIDs(3))
	require.Nil(t, x.chunkIDs(4))

	first, last, err := x.ordinalRange(1)
	require.NoError(t, err)
	require.Equal(t, 0, first)
	require.Equal(t, 2, last)
	_, _, err = x.ordinalRange(9)
	require.Error(t, err)
}

func TestChunkIndexTiled(t *testing.T) {
	var x chunkIndex
	x.appendSample(1, 0)
	x.appendTile(1, 2)
	x.appendTile(1, 3)
	x.appendTile(1, 4)
	x.appendSample(5, 2)
	// the tiled ordinal maps to all of its tile chunks, in registration order
	require.Equal(t, []uint64{2, 3, 4}, x.chunkIDs(1))
	require.Equal(t, []uint64{5}, x.chunkIDs(2))
}

func TestChunkIndexLateMaterialization(t *testing.T) {
	var x chunkIndex
	x.appendSample(1, 0)
	x.appendSample(1, 1)
	// ordinal 5 was empty and materializes into chunk 1 much later; the run
	// must not absorb the out-of-order ordinal
	x.appendSample(1, 5)
	require.Len(t, x.Runs, 2)
	require.Equal(t, []uint64{1}, x.chunkIDs(5))
	first, last, err := x.ordinalRange(1)
	require.NoError(t, err)
	require.Equal(t, 0, first)
	require.Equal(t, 5, last)
}

func TestChunkIndexTruncate(t *testing.T) {
	var x chunkIndex
	x.appendSample(1, 0)
	x.appendSample(1, 1)
	x.appendSample(2, 2)
	x.appendTile(3, 7)
	x.appendTile(3, 8)
	x.truncate(2)
	require.Equal(t, []uint64{1}, x.chunkIDs(0))
	require.Equal(t, []uint64{1}, x.chunkIDs(1))
	require.Nil(t, x.chunkIDs(2))
	require.Nil(t, x.chunkIDs(3))
	// a run straddling the cut is clipped, not dropped
	x2 := chunkIndex{Runs: []chunkRun{{ChunkID: 1, First: 0, Last: 4}}}
	x2.truncate(2)
	require.Equal(t, []chunkRun{{ChunkID: 1, First: 0, Last: 1}}, x2.Runs)
}
