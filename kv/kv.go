// Package kv provides a Key-Value Store interface and a few implementations.
//
// Stores are the persistence boundary of the chunk engine: chunks, indexes
// and tensor metadata are all written through a Store.
package kv

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
)

// ErrEOS is returned by KeyIterator.Next when iteration is done.
var ErrEOS = errors.New("end of stream")

// ValueCallback is the type of functions used to access values
// It is never ok for the callback to retain the data.
// If it were ok, then the callee would just return the data.
type ValueCallback = func([]byte) error

type Getter interface {
	// Get looks up the value that corresponds to key and write the value into buf.
	// If buf is too small for the value then io.ErrShortBuffer is returned.
	Get(ctx context.Context, key []byte, buf []byte) (int, error)
}

type Putter interface {
	// Put creates an entry mapping key to value, overwriting any previous mapping.
	Put(ctx context.Context, key, value []byte) error
}

type GetPut interface {
	Getter
	Putter
}

type Deleter interface {
	// Delete removes the entry at key.
	// If there is no entry Delete returns nil
	Delete(ctx context.Context, key []byte) error
}

// KeyIterator iterates over a span of keys in an unspecified but stable order.
type KeyIterator interface {
	// Next writes the next key into *dst, reusing its capacity.
	// It returns ErrEOS when the span is exhausted.
	Next(ctx context.Context, dst *[]byte) error
}

type KeyIterable interface {
	// NewKeyIterator returns a new iterator which will cover span.
	NewKeyIterator(span Span) KeyIterator
}

// Store is a key-value store
type Store interface {
	Getter
	Putter
	Deleter
	Exists(ctx context.Context, key []byte) (bool, error)

	KeyIterable
}

// ForEachKey calls cb for every key it covered by span.
func ForEachKey(ctx context.Context, x KeyIterable, span Span, cb func(key []byte) error) error {
	it := x.NewKeyIterator(span)
	var key []byte
	for {
		if err := it.Next(ctx, &key); err != nil {
			if errors.Is(err, ErrEOS) {
				return nil
			}
			return err
		}
		if err := cb(key); err != nil {
			return err
		}
	}
}

// Span is a range of bytes from Begin inclusive to End exclusive
// As a special case if End == nil, then the span has no upper bound.
type Span struct {
	Begin []byte
	End   []byte
}

// Contains returns true if the Span contains k
func (s Span) Contains(k []byte) bool {
	if bytes.Compare(s.Begin, k) > 0 {
		return false
	}
	if s.End != nil && bytes.Compare(s.End, k) <= 0 {
		return false
	}
	return true
}

func SpanFromPrefix(prefix []byte) Span {
	return Span{
		Begin: prefix,
		End:   PrefixEnd(prefix),
	}
}

// PrefixEnd returns the key > all the keys with prefix p, but < any other key
func PrefixEnd(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	var end []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		c := prefix[i]
		if c < 0xff {
			end = make([]byte, i+1)
			copy(end, prefix)
			end[i] = c + 1
			break
		}
	}
	return end
}

// KeyAfter returns a byte slice ordered immediately after x lexicographically
// the motivating use case is iteration.
func KeyAfter(x []byte) []byte {
	y := append([]byte{}, x...)
	y = append(y, 0x00)
	return y
}
