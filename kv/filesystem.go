package kv

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ Store = &FSStore{}

// FSStore is a Store backed by a directory on the local filesystem.
// Puts are staged to a temporary file and renamed into place, so a key is
// either fully written or absent.
type FSStore struct {
	dir      string
	log      *zap.Logger
	initOnce sync.Once
}

type FSStoreOption func(*FSStore)

// WithLogger sets the logger used by the store. The default is a nop logger.
func WithLogger(l *zap.Logger) FSStoreOption {
	return func(s *FSStore) {
		s.log = l
	}
}

func NewFSStore(dir string, opts ...FSStoreOption) *FSStore {
	s := &FSStore{
		dir: dir,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FSStore) Put(ctx context.Context, key, value []byte) (retErr error) {
	s.log.Debug("put", zap.ByteString("key", key), zap.Int("value_len", len(value)))
	if err := s.ensureInit(); err != nil {
		return err
	}
	staging := s.stagingPathFor(key)
	final := s.finalPathFor(key)
	defer s.cleanupFile(&retErr, staging)
	if err := os.WriteFile(staging, value, 0o644); err != nil {
		return s.transformError(err, key)
	}
	return os.Rename(staging, final)
}

func (s *FSStore) Get(ctx context.Context, key, buf []byte) (_ int, retErr error) {
	f, err := os.Open(s.finalPathFor(key))
	if err != nil {
		return 0, s.transformError(err, key)
	}
	defer s.closeFile(&retErr, f)
	var n int
	for {
		n2, err := f.Read(buf[n:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				n += n2
				break
			}
			return 0, s.transformError(err, key)
		}
		n += n2
		if n == len(buf) {
			// distinguish a full buffer from a value that is too large
			var probe [1]byte
			if _, err := f.Read(probe[:]); err == nil {
				return 0, io.ErrShortBuffer
			}
			break
		}
	}
	return n, nil
}

func (s *FSStore) Exists(ctx context.Context, key []byte) (bool, error) {
	_, err := os.Stat(s.finalPathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, s.transformError(err, key)
	}
	return true, nil
}

func (s *FSStore) Delete(ctx context.Context, key []byte) error {
	if err := s.ensureInit(); err != nil {
		return err
	}
	err := os.Remove(s.finalPathFor(key))
	if os.IsNotExist(err) {
		err = nil
	}
	return err
}

func (s *FSStore) stagingPathFor(k []byte) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	return filepath.Join(s.dir, "staging", name)
}

func (s *FSStore) finalPathFor(k []byte) string {
	return filepath.Join(s.dir, "objects", hex.EncodeToString(k))
}

func (s *FSStore) NewKeyIterator(span Span) KeyIterator {
	return &fsIterator{s: s, span: span}
}

type fsIterator struct {
	s    *FSStore
	span Span
	keys [][]byte
	pos  int
}

func (it *fsIterator) Next(ctx context.Context, dst *[]byte) error {
	if it.keys == nil {
		dirEnts, err := os.ReadDir(filepath.Join(it.s.dir, "objects"))
		if err != nil {
			if os.IsNotExist(err) {
				return ErrEOS
			}
			return err
		}
		var keys [][]byte
		for i := range dirEnts {
			key, err := hex.DecodeString(dirEnts[i].Name())
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		it.keys = keys
	}
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		if it.span.Contains(k) {
			*dst = append((*dst)[:0], k...)
			it.pos++
			return nil
		}
		it.pos++
	}
	return ErrEOS
}

func (s *FSStore) ensureInit() (err error) {
	s.initOnce.Do(func() {
		err = s.init()
	})
	return err
}

func (s *FSStore) init() error {
	if err := os.RemoveAll(filepath.Join(s.dir, "staging")); err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, "staging"), 0o755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, "objects"), 0o755); err != nil {
		return errors.WithStack(err)
	}
	s.log.Info("initialized fs-backed store", zap.String("root", s.dir))
	return nil
}

func (s *FSStore) transformError(err error, key []byte) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) || strings.HasSuffix(err.Error(), ": no such file or directory") {
		return NewNotExist(s.dir, string(key))
	}
	return err
}

func (s *FSStore) closeFile(retErr *error, f *os.File) {
	err := f.Close()
	if err != nil && !strings.Contains(err.Error(), "file already closed") {
		if *retErr == nil {
			*retErr = err
		} else {
			s.log.Error("error closing file", zap.Error(err))
		}
	}
}

// cleanupFile is called to cleanup files from the staging area
func (s *FSStore) cleanupFile(retErr *error, p string) {
	err := os.Remove(p)
	if os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		if *retErr == nil {
			*retErr = err
		} else {
			s.log.Error("error deleting file", zap.Error(err))
		}
	}
}
