// Package hub stores tensors as sequences of n-dimensional samples packed
// into fixed-capacity chunks over a key-value store. See the tensor package
// for the engine and the kv package for the storage backends.
package hub

import "fmt"

const (
	// MajorVersion is the current major version for hub.
	MajorVersion = 0
	// MinorVersion is the current minor version for hub.
	MinorVersion = 1
	// MicroVersion is the current micro version for hub.
	MicroVersion = 0
	// AdditionalVersion will be "dev" if this is a development branch, "" otherwise.
	AdditionalVersion = "dev"
)

// Version is the current version for hub.
var Version = func() string {
	s := fmt.Sprintf("%d.%d.%d", MajorVersion, MinorVersion, MicroVersion)
	if AdditionalVersion != "" {
		s += "-" + AdditionalVersion
	}
	return s
}()
