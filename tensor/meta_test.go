package tensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashbeekim/Hub/chunk"
	"github.com/ashbeekim/Hub/dtype"
)

func TestMetaJSONRoundTrip(t *testing.T) {
	m := &Meta{
		Dtype:        dtype.Float32,
		MaxChunkSize: 1 << 20,
		Compression:  chunk.CompressionZstd,
		SampleCount:  17,
		MinShape:     []int{10, 10, 3},
		MaxShape:     []int{1000, 1000, 3},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	got := &Meta{}
	require.NoError(t, json.Unmarshal(data, got))
	require.Equal(t, m, got)
}

func TestMetaJSONUndefinedDtype(t *testing.T) {
	m := &Meta{MaxChunkSize: 8, Compression: chunk.CompressionNone}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	got := &Meta{}
	require.NoError(t, json.Unmarshal(data, got))
	require.Equal(t, dtype.Unknown, got.Dtype)
}

func TestMetaValidate(t *testing.T) {
	m := &Meta{Dtype: dtype.Uint16}
	require.NoError(t, m.validateDtype(dtype.Uint16))
	err := m.validateDtype(dtype.Int64)
	var dtErr DtypeMismatchError
	require.ErrorAs(t, err, &dtErr)
	require.Equal(t, dtype.Uint16, dtErr.Want)

	// rank family is fixed by the first registered sample
	require.NoError(t, m.validateShape([]int{2, 3}))
	m.registerSample([]int{2, 3})
	err = m.validateShape([]int{2, 3, 1})
	var rankErr ShapeRankMismatchError
	require.ErrorAs(t, err, &rankErr)
	require.Error(t, m.validateShape([]int{-1, 3}))
}

func TestMetaShapeBounds(t *testing.T) {
	m := &Meta{Dtype: dtype.Uint8}
	m.registerSample([]int{10, 10, 3})
	m.registerSample([]int{1000, 1000, 3})
	m.registerSample([]int{5, 2000, 3})
	require.Equal(t, 3, m.SampleCount)
	require.Equal(t, []int{5, 10, 3}, m.MinShape)
	require.Equal(t, []int{1000, 2000, 3}, m.MaxShape)
}
