package dtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, dt := range All() {
		got, err := Parse(dt.String())
		require.NoError(t, err)
		require.Equal(t, dt, got)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("complex128")
	require.Error(t, err)
	_, err = Parse("")
	require.Error(t, err)
}

func TestSizes(t *testing.T) {
	require.Equal(t, 0, Unknown.Size())
	require.False(t, Unknown.Valid())
	require.Equal(t, 2, Uint16.Size())
	require.Equal(t, 8, Float64.Size())
	for _, dt := range All() {
		require.True(t, dt.Valid())
		require.True(t, dt.Size() > 0)
	}
}
