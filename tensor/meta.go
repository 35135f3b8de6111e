package tensor

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/ashbeekim/Hub/chunk"
	"github.com/ashbeekim/Hub/dtype"
	"github.com/ashbeekim/Hub/kv"
)

const metaVersion = 1

// Meta is the persisted per-tensor descriptor. It is tiny and is flushed to
// the store after every structural change, favoring consistency over write
// amplification.
type Meta struct {
	Dtype        dtype.T
	MaxChunkSize int
	Compression  chunk.CompressionAlgo
	SampleCount  int

	// Running shape bounds across all registered samples, one entry per
	// axis. Axes where Min != Max are dynamic.
	MinShape []int
	MaxShape []int
}

type metaJSON struct {
	Version      int    `json:"version"`
	Dtype        string `json:"dtype"`
	MaxChunkSize int    `json:"max_chunk_size"`
	Compression  string `json:"compression"`
	SampleCount  int    `json:"sample_count"`
	MinShape     []int  `json:"min_shape"`
	MaxShape     []int  `json:"max_shape"`
}

func (m *Meta) MarshalJSON() ([]byte, error) {
	dt := ""
	if m.Dtype != dtype.Unknown {
		dt = m.Dtype.String()
	}
	return json.Marshal(metaJSON{
		Version:      metaVersion,
		Dtype:        dt,
		MaxChunkSize: m.MaxChunkSize,
		Compression:  m.Compression.String(),
		SampleCount:  m.SampleCount,
		MinShape:     m.MinShape,
		MaxShape:     m.MaxShape,
	})
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	var mj metaJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return errors.WithStack(err)
	}
	if mj.Version != metaVersion {
		return errors.Errorf("unsupported meta version %d", mj.Version)
	}
	m.Dtype = dtype.Unknown
	if mj.Dtype != "" {
		dt, err := dtype.Parse(mj.Dtype)
		if err != nil {
			return err
		}
		m.Dtype = dt
	}
	algo, err := chunk.ParseCompression(mj.Compression)
	if err != nil {
		return err
	}
	m.Compression = algo
	m.MaxChunkSize = mj.MaxChunkSize
	m.SampleCount = mj.SampleCount
	m.MinShape = mj.MinShape
	m.MaxShape = mj.MaxShape
	return nil
}

// clone returns a deep copy of the meta.
func (m *Meta) clone() Meta {
	out := *m
	out.MinShape = append([]int{}, m.MinShape...)
	out.MaxShape = append([]int{}, m.MaxShape...)
	if m.MinShape == nil {
		out.MinShape = nil
		out.MaxShape = nil
	}
	return out
}

// validateDtype checks an incoming sample's dtype against the tensor's.
func (m *Meta) validateDtype(dt dtype.T) error {
	if !dt.Valid() {
		return DtypeMismatchError{Want: m.Dtype, Got: dt}
	}
	if m.Dtype == dtype.Unknown {
		return nil
	}
	if dt != m.Dtype {
		return DtypeMismatchError{Want: m.Dtype, Got: dt}
	}
	return nil
}

// validateShape checks an incoming shape against the tensor's rank family.
func (m *Meta) validateShape(shape []int) error {
	for _, d := range shape {
		if d < 0 {
			return errors.Errorf("negative dimension in shape %v", shape)
		}
	}
	if m.MinShape != nil && len(shape) != len(m.MinShape) {
		return ShapeRankMismatchError{Want: len(m.MinShape), Got: len(shape)}
	}
	return nil
}

// registerSample updates the sample count and shape bounds. Validation must
// already have happened.
func (m *Meta) registerSample(shape []int) {
	if m.MinShape == nil {
		m.MinShape = append([]int{}, shape...)
		m.MaxShape = append([]int{}, shape...)
	} else {
		for i, d := range shape {
			m.MinShape[i] = min(m.MinShape[i], d)
			m.MaxShape[i] = max(m.MaxShape[i], d)
		}
	}
	m.SampleCount++
}

func (m *Meta) flush(ctx context.Context, store kv.Putter, name string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.WithStack(err)
	}
	return store.Put(ctx, metaKey(name), data)
}

func loadMeta(ctx context.Context, store kv.Getter, name string, maxSize int) (*Meta, error) {
	buf := make([]byte, maxSize)
	n, err := store.Get(ctx, metaKey(name), buf)
	if err != nil {
		if errors.Is(err, io.ErrShortBuffer) {
			return nil, errors.Errorf("tensor meta for %q exceeds %d bytes", name, maxSize)
		}
		return nil, err
	}
	m := &Meta{}
	if err := json.Unmarshal(buf[:n], m); err != nil {
		return nil, err
	}
	return m, nil
}
