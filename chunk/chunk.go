// Package chunk implements the bounded physical container samples are packed
// into, and the byte transform applied to its payload.
//
// A serialized chunk is a little-endian header followed by the (possibly
// compressed) concatenation of the stored units:
//
//	magic   uint32  "hubc"
//	version uint8
//	algo    uint8   compression applied to the payload
//	count   uint32  number of stored units
//	entries count × { length uint32, rank uint8, dims rank × uint32 }
//	payload … until end of value
//
// The header is never compressed, so sample boundaries and shapes are
// readable without decoding the payload.
package chunk

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ashbeekim/Hub/nd"
)

const (
	magic         = 0x63627568 // "hubc"
	formatVersion = 1

	maxRank = 255
)

// ErrCapacityExceeded indicates an Add that was not approved by CanFit.
// It is a contract violation by the caller, not an expected runtime error.
var ErrCapacityExceeded = errors.New("chunk capacity exceeded")

// Entry describes one stored unit: a whole packed sample or a single tile.
type Entry struct {
	Length int
	Shape  []int
}

// Chunk holds decoded entries and their concatenated payload bytes.
// Capacity accounting is over uncompressed payload bytes; the compression
// ratio is never assumed.
type Chunk struct {
	maxSize int
	algo    CompressionAlgo
	entries []Entry
	payload []byte
}

func New(maxSize int, algo CompressionAlgo) *Chunk {
	return &Chunk{
		maxSize: maxSize,
		algo:    algo,
	}
}

// FromBytes parses a serialized chunk and decompresses its payload.
func FromBytes(maxSize int, data []byte) (*Chunk, error) {
	if len(data) < 10 {
		return nil, errors.Errorf("chunk too short: %d bytes", len(data))
	}
	if got := binary.LittleEndian.Uint32(data); got != magic {
		return nil, errors.Errorf("bad chunk magic: %#x", got)
	}
	if v := data[4]; v != formatVersion {
		return nil, errors.Errorf("unsupported chunk format version %d", v)
	}
	algo := CompressionAlgo(data[5])
	count := int(binary.LittleEndian.Uint32(data[6:]))
	pos := 10
	entries := make([]Entry, 0, count)
	var total int
	for i := 0; i < count; i++ {
		if pos+5 > len(data) {
			return nil, errors.Errorf("truncated chunk header at entry %d", i)
		}
		length := int(binary.LittleEndian.Uint32(data[pos:]))
		rank := int(data[pos+4])
		pos += 5
		if pos+4*rank > len(data) {
			return nil, errors.Errorf("truncated chunk header at entry %d", i)
		}
		shape := make([]int, rank)
		for j := range shape {
			shape[j] = int(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
		}
		entries = append(entries, Entry{Length: length, Shape: shape})
		total += length
	}
	payload, err := decompress(algo, data[pos:])
	if err != nil {
		return nil, err
	}
	if len(payload) != total {
		return nil, errors.Errorf("chunk payload is %d bytes, header says %d", len(payload), total)
	}
	return &Chunk{
		maxSize: maxSize,
		algo:    algo,
		entries: append([]Entry{}, entries...),
		payload: payload,
	}, nil
}

// Marshal serializes the chunk, compressing the payload.
func (c *Chunk) Marshal() ([]byte, error) {
	header := make([]byte, 0, 10+len(c.entries)*16)
	header = binary.LittleEndian.AppendUint32(header, magic)
	header = append(header, formatVersion)
	compressed := make([]byte, len(c.payload))
	algo, n, err := compress(c.algo, compressed, c.payload)
	if err != nil {
		return nil, err
	}
	header = append(header, byte(algo))
	header = binary.LittleEndian.AppendUint32(header, uint32(len(c.entries)))
	for _, e := range c.entries {
		header = binary.LittleEndian.AppendUint32(header, uint32(e.Length))
		header = append(header, byte(len(e.Shape)))
		for _, d := range e.Shape {
			header = binary.LittleEndian.AppendUint32(header, uint32(d))
		}
	}
	return append(header, compressed[:n]...), nil
}

// Clone returns a copy whose payload and entry table are independent of the
// receiver's. Update mutates a chunk in place; callers that must keep the
// fetched version intact when a write fails update a clone.
func (c *Chunk) Clone() *Chunk {
	return &Chunk{
		maxSize: c.maxSize,
		algo:    c.algo,
		entries: append([]Entry{}, c.entries...),
		payload: append([]byte{}, c.payload...),
	}
}

// CanFit reports whether n more payload bytes stay within capacity.
func (c *Chunk) CanFit(n int) bool {
	return len(c.payload)+n <= c.maxSize
}

// Add appends a unit and returns its local index within the chunk.
// Callers must check CanFit first; a failed Add is a programming error.
func (c *Chunk) Add(data []byte, shape []int) (int, error) {
	if !c.CanFit(len(data)) {
		return 0, errors.Wrapf(ErrCapacityExceeded, "%d + %d > %d", len(c.payload), len(data), c.maxSize)
	}
	if len(shape) > maxRank {
		return 0, errors.Errorf("rank %d exceeds format limit %d", len(shape), maxRank)
	}
	c.entries = append(c.entries, Entry{Length: len(data), Shape: append([]int{}, shape...)})
	c.payload = append(c.payload, data...)
	return len(c.entries) - 1, nil
}

// Count returns the number of stored units.
func (c *Chunk) Count() int {
	return len(c.entries)
}

// PayloadSize returns the uncompressed payload length in bytes.
func (c *Chunk) PayloadSize() int {
	return len(c.payload)
}

// Shape returns the stored shape of the unit at local.
func (c *Chunk) Shape(local int) []int {
	return c.entries[local].Shape
}

// Get returns the raw bytes of the unit at local.
// The slice aliases the chunk's payload and must not be modified.
func (c *Chunk) Get(local int) ([]byte, error) {
	begin, end, err := c.extent(local)
	if err != nil {
		return nil, err
	}
	return c.payload[begin:end], nil
}

// Slice decodes the axis-aligned region of the unit at local into a fresh
// buffer, row-major over region's shape.
func (c *Chunk) Slice(local int, region nd.Region, elemSize int) ([]byte, error) {
	begin, end, err := c.extent(local)
	if err != nil {
		return nil, err
	}
	shape := c.entries[local].Shape
	if !region.Within(shape) {
		return nil, errors.Errorf("region %v outside stored shape %v", region, shape)
	}
	out := make([]byte, region.NumElements()*elemSize)
	origin := make([]int, len(region))
	err = nd.Copy(elemSize, out, region.Shape(), origin, c.payload[begin:end], shape, region)
	return out, err
}

// Update overwrites the region of the unit at local with data.
// data is row-major over region's shape.
func (c *Chunk) Update(local int, region nd.Region, data []byte, elemSize int) error {
	begin, end, err := c.extent(local)
	if err != nil {
		return err
	}
	shape := c.entries[local].Shape
	if !region.Within(shape) {
		return errors.Errorf("region %v outside stored shape %v", region, shape)
	}
	if want := region.NumElements() * elemSize; len(data) != want {
		return errors.Errorf("update data is %d bytes, region %v wants %d", len(data), region, want)
	}
	box := region.Shape()
	dstOrigin := make([]int, len(region))
	for i, iv := range region {
		dstOrigin[i] = iv.Begin
	}
	return nd.Copy(elemSize, c.payload[begin:end], shape, dstOrigin, data, box, nd.Full(box))
}

func (c *Chunk) extent(local int) (int, int, error) {
	if local < 0 || local >= len(c.entries) {
		return 0, 0, errors.Errorf("local index %d out of range [0, %d)", local, len(c.entries))
	}
	var begin int
	for i := 0; i < local; i++ {
		begin += c.entries[i].Length
	}
	return begin, begin + c.entries[local].Length, nil
}
