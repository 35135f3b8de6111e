package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStore runs a Store conformance suite against newStore.
func TestStore(t *testing.T, newStore func(t testing.TB) Store) {
	t.Run("PutGet", func(t *testing.T) {
		x := newStore(t)
		requirePut(t, x, []byte("key1"), []byte("value1"))
		v := requireGet(t, x, []byte("key1"))
		require.Equal(t, []byte("value1"), v)
	})
	t.Run("Exists", func(t *testing.T) {
		ctx := context.Background()
		x := newStore(t)
		_, err := x.Get(ctx, []byte("key1"), make([]byte, 1000))
		require.True(t, IsNotExist(err))
		require.False(t, requireExists(t, x, []byte("key1")))

		requirePut(t, x, []byte("key1"), []byte("value1"))

		require.True(t, requireExists(t, x, []byte("key1")))
	})
	t.Run("IdempotentDelete", func(t *testing.T) {
		x := newStore(t)
		k1 := []byte("key1")
		requirePut(t, x, k1, make([]byte, 100))
		require.True(t, requireExists(t, x, k1))
		for i := 0; i < 3; i++ {
			require.NoError(t, x.Delete(context.Background(), k1))
			require.False(t, requireExists(t, x, k1))
		}
	})
	t.Run("ListPrefix", func(t *testing.T) {
		ctx := context.Background()
		x := newStore(t)
		requirePut(t, x, []byte("a/1"), []byte("x"))
		requirePut(t, x, []byte("a/2"), []byte("x"))
		requirePut(t, x, []byte("b/1"), []byte("x"))
		var got []string
		err := ForEachKey(ctx, x, SpanFromPrefix([]byte("a/")), func(key []byte) error {
			got = append(got, string(key))
			return nil
		})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a/1", "a/2"}, got)
	})
}

func requireExists(t testing.TB, s Store, key []byte) bool {
	exists, err := s.Exists(context.Background(), key)
	require.NoError(t, err)
	return exists
}

func requirePut(t testing.TB, s Putter, key, value []byte) {
	require.NoError(t, s.Put(context.Background(), key, value))
}

func requireGet(t testing.TB, s Getter, key []byte) []byte {
	buf := make([]byte, 1024)
	n, err := s.Get(context.Background(), key, buf)
	require.NoError(t, err)
	return buf[:n]
}
