package tensor

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ashbeekim/Hub/dtype"
	"github.com/ashbeekim/Hub/nd"
)

// ErrDtypeUndefined is returned when an operation needs the tensor's dtype
// (e.g. creating an empty sample requires computing per-tile byte sizes) but
// no dtype has been fixed yet.
var ErrDtypeUndefined = errors.New("tensor dtype is not defined")

// DtypeMismatchError indicates a sample whose dtype differs from the
// tensor's fixed dtype.
type DtypeMismatchError struct {
	Want dtype.T
	Got  dtype.T
}

func (e DtypeMismatchError) Error() string {
	return fmt.Sprintf("dtype mismatch: tensor holds %s, sample is %s", e.Want, e.Got)
}

// ShapeRankMismatchError indicates a sample whose rank differs from the
// tensor's rank family.
type ShapeRankMismatchError struct {
	Want int
	Got  int
}

func (e ShapeRankMismatchError) Error() string {
	return fmt.Sprintf("shape rank mismatch: tensor holds rank %d, sample is rank %d", e.Want, e.Got)
}

// ShapeMismatchError indicates a region that extends beyond a sample's
// recorded shape. Updates never grow a sample's shape.
type ShapeMismatchError struct {
	Region nd.Region
	Shape  []int
}

func (e ShapeMismatchError) Error() string {
	return fmt.Sprintf("region %v exceeds sample shape %v", e.Region, e.Shape)
}
