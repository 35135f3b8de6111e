package tensor

import (
	"fmt"
)

// Key scheme, rooted under the tensor name. The layout is a stable contract:
// chunks written by one version of the engine must be locatable by any other.
//
//	<name>/meta.json
//	<name>/chunk_index
//	<name>/tile_index
//	<name>/chunks/<chunk id, zero-padded hex>

func metaKey(name string) []byte {
	return []byte(name + "/meta.json")
}

func chunkIndexKey(name string) []byte {
	return []byte(name + "/chunk_index")
}

func tileIndexKey(name string) []byte {
	return []byte(name + "/tile_index")
}

func chunkKey(name string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s/chunks/%016x", name, id))
}

func chunkPrefix(name string) []byte {
	return []byte(name + "/chunks/")
}
