package kv

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemStore(t *testing.T) {
	TestStore(t, func(t testing.TB) Store {
		return NewMemStore()
	})
}

func TestFSStore(t *testing.T) {
	TestStore(t, func(t testing.TB) Store {
		return NewFSStore(t.TempDir(), WithLogger(zaptest.NewLogger(t)))
	})
}

func TestShortBuffer(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Store{NewMemStore(), NewFSStore(t.TempDir())} {
		require.NoError(t, s.Put(ctx, []byte("k"), make([]byte, 100)))
		_, err := s.Get(ctx, []byte("k"), make([]byte, 10))
		require.ErrorIs(t, err, io.ErrShortBuffer)
		n, err := s.Get(ctx, []byte("k"), make([]byte, 100))
		require.NoError(t, err)
		require.Equal(t, 100, n)
	}
}

func TestPool(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("abc")))
	p := NewPool(16)
	var got []byte
	require.NoError(t, p.GetF(ctx, s, []byte("k"), func(v []byte) error {
		got = append([]byte{}, v...)
		return nil
	}))
	require.Equal(t, []byte("abc"), got)
}

func TestSpan(t *testing.T) {
	sp := SpanFromPrefix([]byte("chunk/"))
	require.True(t, sp.Contains([]byte("chunk/00")))
	require.False(t, sp.Contains([]byte("chunj")))
	require.False(t, sp.Contains([]byte("chunk0")))
	require.Nil(t, PrefixEnd(nil))
	require.Equal(t, []byte{0xff, 0x01}, PrefixEnd([]byte{0xff, 0x00}))
}
