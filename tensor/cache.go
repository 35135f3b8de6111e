package tensor

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashbeekim/Hub/chunk"
)

// chunkCache is a bounded cache of decoded chunks keyed by chunk id. It is
// owned by one Engine and is purely an optimization: the store remains the
// source of truth, so any entry can be evicted and refetched.
type chunkCache = lru.Cache[uint64, *chunk.Chunk]

func newChunkCache(size int) *chunkCache {
	c, err := lru.New[uint64, *chunk.Chunk](size)
	if err != nil {
		panic(err)
	}
	return c
}
