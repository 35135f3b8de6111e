package tensor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashbeekim/Hub/nd"
)

func TestComputeGeometryFits(t *testing.T) {
	cases := []struct {
		shape        []int
		elemSize     int
		maxChunkSize int
	}{
		{[]int{10}, 2, 8},
		{[]int{8}, 1, 4}, // exact divisibility
		{[]int{9}, 1, 4}, // remainder
		{[]int{16, 16}, 1, 32},
		{[]int{7, 3}, 4, 16},
		{[]int{5, 5, 3}, 8, 64},
		{[]int{1000}, 1, 7},
		{[]int{3, 3, 3, 3}, 2, 9},
	}
	for _, tc := range cases {
		g, err := computeGeometry(tc.shape, tc.elemSize, tc.maxChunkSize)
		require.NoError(t, err)
		require.LessOrEqual(t, nd.NumElements(g.TileShape)*tc.elemSize, tc.maxChunkSize,
			"tile %v of %v exceeds %d bytes", g.TileShape, tc.shape, tc.maxChunkSize)
		for i, d := range g.TileShape {
			require.LessOrEqual(t, d, tc.shape[i])
			require.Positive(t, d)
		}
	}
}

func TestComputeGeometryDeterministic(t *testing.T) {
	a, err := computeGeometry([]int{100, 100, 3}, 2, 1000)
	require.NoError(t, err)
	b, err := computeGeometry([]int{100, 100, 3}, 2, 1000)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeGeometryElementTooLarge(t *testing.T) {
	_, err := computeGeometry([]int{4}, 8, 4)
	require.Error(t, err)
	_, err = computeGeometry([]int{4}, 0, 4)
	require.ErrorIs(t, err, ErrDtypeUndefined)
}

// Tile regions must partition the sample exactly: no gaps, no overlap, and
// boundary tiles clipped to the sample shape.
func TestTileCoverageInvariant(t *testing.T) {
	cases := []struct {
		shape        []int
		elemSize     int
		maxChunkSize int
	}{
		{[]int{10}, 2, 8},
		{[]int{8}, 1, 4},
		{[]int{9}, 1, 4},
		{[]int{12, 12}, 1, 16},
		{[]int{13, 7}, 1, 16},
		{[]int{5, 5, 3}, 1, 10},
		{[]int{6, 4, 2}, 2, 24},
	}
	for _, tc := range cases {
		g, err := computeGeometry(tc.shape, tc.elemSize, tc.maxChunkSize)
		require.NoError(t, err)
		covered := make([]int, nd.NumElements(tc.shape))
		strides := nd.Strides(tc.shape)
		for ti := 0; ti < g.NumTiles(); ti++ {
			r := g.TileRegion(ti)
			require.True(t, r.Within(tc.shape), "tile %d region %v escapes shape %v", ti, r, tc.shape)
			markRegion(covered, strides, r, nil, 0)
		}
		for off, n := range covered {
			require.Equal(t, 1, n, "element %d of shape %v covered %d times", off, tc.shape, n)
		}
	}
}

func markRegion(covered, strides []int, r nd.Region, coord []int, axis int) {
	if axis == len(r) {
		off := 0
		for i, c := range coord {
			off += c * strides[i]
		}
		covered[off]++
		return
	}
	for c := r[axis].Begin; c < r[axis].End; c++ {
		markRegion(covered, strides, r, append(coord, c), axis+1)
	}
}

func TestIntersectingMatchesBruteForce(t *testing.T) {
	g, err := computeGeometry([]int{13, 7}, 1, 16)
	require.NoError(t, err)
	regions := []nd.Region{
		{{Begin: 0, End: 13}, {Begin: 0, End: 7}},
		{{Begin: 5, End: 8}, {Begin: 2, End: 3}},
		{{Begin: 0, End: 1}, {Begin: 0, End: 1}},
		{{Begin: 12, End: 13}, {Begin: 6, End: 7}},
		{{Begin: 3, End: 11}, {Begin: 1, End: 6}},
	}
	for _, r := range regions {
		var want []int
		for ti := 0; ti < g.NumTiles(); ti++ {
			if _, ok := r.Intersect(g.TileRegion(ti)); ok {
				want = append(want, ti)
			}
		}
		require.Equal(t, want, g.Intersecting(r), "region %v", r)
	}
}

func TestIntersectingGridOrder(t *testing.T) {
	g, err := computeGeometry([]int{10}, 2, 8)
	require.NoError(t, err)
	// tile length 3: tiles cover [0:3) [3:6) [6:9) [9:10)
	require.Equal(t, []int{3, 3, 3, 1}, tileLengths(g))
	require.Equal(t, []int{1, 2}, g.Intersecting(nd.Region{{Begin: 5, End: 8}}))
}

func tileLengths(g Geometry) []int {
	out := make([]int, g.NumTiles())
	for i := range out {
		out[i] = g.TileRegion(i).NumElements()
	}
	return out
}
