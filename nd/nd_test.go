package nd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntersect(t *testing.T) {
	a := Region{{0, 10}, {0, 10}}
	b := Region{{5, 15}, {2, 4}}
	got, ok := a.Intersect(b)
	require.True(t, ok)
	require.True(t, got.Equal(Region{{5, 10}, {2, 4}}))

	_, ok = a.Intersect(Region{{10, 20}, {0, 10}})
	require.False(t, ok)
}

func TestWithin(t *testing.T) {
	shape := []int{4, 6}
	require.True(t, Full(shape).Within(shape))
	require.True(t, Region{{1, 3}, {0, 6}}.Within(shape))
	require.False(t, Region{{1, 5}, {0, 6}}.Within(shape))
	require.False(t, Region{{-1, 3}, {0, 6}}.Within(shape))
	require.False(t, Region{{1, 3}}.Within(shape))
}

func TestStrides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Strides([]int{2, 3, 4}))
	require.Equal(t, []int{1}, Strides([]int{7}))
	require.Equal(t, 24, NumElements([]int{2, 3, 4}))
	require.Equal(t, 1, NumElements(nil))
}

// fill writes a distinct byte per element so copies are easy to verify.
func fill(shape []int) []byte {
	buf := make([]byte, NumElements(shape))
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func TestCopyFull(t *testing.T) {
	shape := []int{3, 4}
	src := fill(shape)
	dst := make([]byte, len(src))
	require.NoError(t, Copy(1, dst, shape, []int{0, 0}, src, shape, Full(shape)))
	require.Equal(t, src, dst)
}

func TestCopySubRegion(t *testing.T) {
	// copy the middle 2x2 of a 4x4 into the corner of a 2x2
	srcShape := []int{4, 4}
	src := fill(srcShape)
	dst := make([]byte, 4)
	region := Region{{1, 3}, {1, 3}}
	require.NoError(t, Copy(1, dst, []int{2, 2}, []int{0, 0}, src, srcShape, region))
	require.Equal(t, []byte{5, 6, 9, 10}, dst)
}

func TestCopyOffsetDestination(t *testing.T) {
	// place a 1x2 run into the second row of a 3x3
	src := []byte{7, 8}
	dst := make([]byte, 9)
	require.NoError(t, Copy(1, dst, []int{3, 3}, []int{1, 1}, src, []int{1, 2}, Full([]int{1, 2})))
	require.Equal(t, []byte{0, 0, 0, 0, 7, 8, 0, 0, 0}, dst)
}

func TestCopyElemSize(t *testing.T) {
	// two uint16-sized elements out of a row of four
	src := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	dst := make([]byte, 4)
	require.NoError(t, Copy(2, dst, []int{2}, []int{0}, src, []int{4}, Region{{1, 3}}))
	require.Equal(t, []byte{2, 0, 3, 0}, dst)
}

func TestCopyRankMismatch(t *testing.T) {
	require.Error(t, Copy(1, make([]byte, 4), []int{4}, []int{0}, make([]byte, 4), []int{2, 2}, Full([]int{2, 2})))
	require.Error(t, Copy(1, make([]byte, 4), []int{2, 2}, []int{0, 0}, make([]byte, 4), []int{2, 2}, Region{{0, 3}, {0, 2}}))
}

func TestCopyEmptyRegion(t *testing.T) {
	dst := []byte{9, 9}
	require.NoError(t, Copy(1, dst, []int{2}, []int{0}, []byte{1, 2}, []int{2}, Region{{1, 1}}))
	require.Equal(t, []byte{9, 9}, dst)
}
