package kv

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotExist is returned by Get when there is no entry for the key.
type ErrNotExist struct {
	Store string
	Key   string
}

func NewNotExist(store, key string) ErrNotExist {
	return ErrNotExist{Store: store, Key: key}
}

func (e ErrNotExist) Error() string {
	return fmt.Sprintf("%s: key %q does not exist", e.Store, e.Key)
}

// IsNotExist returns true if err or any error it wraps is an ErrNotExist.
func IsNotExist(err error) bool {
	target := ErrNotExist{}
	return errors.As(err, &target)
}
