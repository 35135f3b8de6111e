package chunk

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashbeekim/Hub/internal/randutil"
	"github.com/ashbeekim/Hub/nd"
)

func TestRoundTrip(t *testing.T) {
	for _, algo := range []CompressionAlgo{CompressionNone, CompressionGzipBestSpeed, CompressionZstd} {
		t.Run(algo.String(), func(t *testing.T) {
			c := New(1<<16, algo)
			samples := [][]byte{
				bytes.Repeat([]byte{1, 2}, 6),
				bytes.Repeat([]byte{0}, 100),
				{42},
			}
			shapes := [][]int{{2, 3}, {10, 10}, {1}}
			for i := range samples {
				local, err := c.Add(samples[i], shapes[i])
				require.NoError(t, err)
				require.Equal(t, i, local)
			}
			data, err := c.Marshal()
			require.NoError(t, err)

			c2, err := FromBytes(1<<16, data)
			require.NoError(t, err)
			require.Equal(t, 3, c2.Count())
			for i := range samples {
				got, err := c2.Get(i)
				require.NoError(t, err)
				require.Equal(t, samples[i], got)
				require.Equal(t, shapes[i], c2.Shape(i))
			}
		})
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	random := rand.New(rand.NewSource(17))
	data := make([]byte, 4096)
	random.Read(data)
	for _, algo := range []CompressionAlgo{CompressionGzipBestSpeed, CompressionZstd} {
		c := New(1<<16, algo)
		_, err := c.Add(data, []int{4096})
		require.NoError(t, err)
		ser, err := c.Marshal()
		require.NoError(t, err)
		// header records the algo actually used
		require.Equal(t, byte(CompressionNone), ser[5])
		c2, err := FromBytes(1<<16, ser)
		require.NoError(t, err)
		got, err := c2.Get(0)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
}

func TestCapacity(t *testing.T) {
	c := New(10, CompressionNone)
	require.True(t, c.CanFit(10))
	require.False(t, c.CanFit(11))
	_, err := c.Add(make([]byte, 6), []int{6})
	require.NoError(t, err)
	require.True(t, c.CanFit(4))
	require.False(t, c.CanFit(5))
	_, err = c.Add(make([]byte, 5), []int{5})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	// the failed add must not mutate the chunk
	require.Equal(t, 1, c.Count())
	require.Equal(t, 6, c.PayloadSize())
}

func TestCapacityRandomized(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	const maxSize = 1000
	c := New(maxSize, CompressionGzipBestSpeed)
	for i := 0; i < 1000; i++ {
		data := randutil.Bytes(random, random.Intn(50)+1)
		if !c.CanFit(len(data)) {
			break
		}
		_, err := c.Add(data, []int{len(data)})
		require.NoError(t, err)
		require.LessOrEqual(t, c.PayloadSize(), maxSize)
	}
}

func TestSlice(t *testing.T) {
	c := New(1<<16, CompressionNone)
	// 3x4 of uint8, values 0..11
	sample := make([]byte, 12)
	for i := range sample {
		sample[i] = byte(i)
	}
	_, err := c.Add(sample, []int{3, 4})
	require.NoError(t, err)

	got, err := c.Slice(0, nd.Region{{Begin: 1, End: 3}, {Begin: 1, End: 3}}, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{5, 6, 9, 10}, got)

	_, err = c.Slice(0, nd.Region{{Begin: 0, End: 4}, {Begin: 0, End: 4}}, 1)
	require.Error(t, err)
}

func TestUpdate(t *testing.T) {
	c := New(1<<16, CompressionZstd)
	_, err := c.Add(make([]byte, 12), []int{3, 4})
	require.NoError(t, err)
	require.NoError(t, c.Update(0, nd.Region{{Begin: 1, End: 2}, {Begin: 0, End: 4}}, []byte{9, 9, 9, 9}, 1))
	got, err := c.Get(0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0, 9, 9, 9, 9, 0, 0, 0, 0}, got)

	require.Error(t, c.Update(0, nd.Region{{Begin: 0, End: 1}, {Begin: 0, End: 4}}, []byte{1}, 1))
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	_, err := FromBytes(100, nil)
	require.Error(t, err)
	_, err = FromBytes(100, []byte("not a chunk at all"))
	require.Error(t, err)
	c := New(100, CompressionNone)
	_, err = c.Add([]byte{1, 2, 3}, []int{3})
	require.NoError(t, err)
	ser, err := c.Marshal()
	require.NoError(t, err)
	_, err = FromBytes(100, ser[:len(ser)-2])
	require.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	for _, algo := range []CompressionAlgo{CompressionNone, CompressionGzipBestSpeed, CompressionZstd} {
		got, err := ParseCompression(algo.String())
		require.NoError(t, err)
		require.Equal(t, algo, got)
	}
	_, err := ParseCompression("lz77")
	require.Error(t, err)
}
