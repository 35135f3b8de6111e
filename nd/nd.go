// Package nd provides axis-aligned region math over row-major byte buffers.
package nd

import (
	"fmt"

	"github.com/pkg/errors"
)

// Interval is a half-open range [Begin, End) along one axis.
type Interval struct {
	Begin int
	End   int
}

// Len returns the number of elements the interval covers.
func (iv Interval) Len() int {
	return iv.End - iv.Begin
}

// Region is an axis-aligned box, one Interval per axis.
type Region []Interval

// Full returns the region covering all of shape.
func Full(shape []int) Region {
	r := make(Region, len(shape))
	for i, d := range shape {
		r[i] = Interval{Begin: 0, End: d}
	}
	return r
}

// Shape returns the per-axis lengths of the region.
func (r Region) Shape() []int {
	shape := make([]int, len(r))
	for i, iv := range r {
		shape[i] = iv.Len()
	}
	return shape
}

// NumElements returns the number of elements the region covers.
func (r Region) NumElements() int {
	n := 1
	for _, iv := range r {
		n *= iv.Len()
	}
	return n
}

// Within reports whether r lies entirely inside shape.
func (r Region) Within(shape []int) bool {
	if len(r) != len(shape) {
		return false
	}
	for i, iv := range r {
		if iv.Begin < 0 || iv.End > shape[i] || iv.Begin > iv.End {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of r and other, and whether it is non-empty.
func (r Region) Intersect(other Region) (Region, bool) {
	if len(r) != len(other) {
		return nil, false
	}
	out := make(Region, len(r))
	for i := range r {
		begin := max(r[i].Begin, other[i].Begin)
		end := min(r[i].End, other[i].End)
		if begin >= end {
			return nil, false
		}
		out[i] = Interval{Begin: begin, End: end}
	}
	return out, true
}

// Translate shifts the region by -origin along every axis.
func (r Region) Translate(origin []int) Region {
	out := make(Region, len(r))
	for i, iv := range r {
		out[i] = Interval{Begin: iv.Begin - origin[i], End: iv.End - origin[i]}
	}
	return out
}

// Equal reports whether r and other are the same box.
func (r Region) Equal(other Region) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

func (r Region) String() string {
	s := "["
	for i, iv := range r {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d:%d", iv.Begin, iv.End)
	}
	return s + "]"
}

// NumElements returns the number of elements in shape. A rank-0 shape is a
// scalar with one element.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Strides returns row-major strides for shape, in elements.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Copy copies the box src[srcRegion] into dst starting at dstOrigin.
// Both buffers are row-major with the given shapes and a fixed element size.
func Copy(elemSize int, dst []byte, dstShape, dstOrigin []int, src []byte, srcShape []int, srcRegion Region) error {
	rank := len(srcShape)
	if len(srcRegion) != rank || len(dstOrigin) != rank || len(dstShape) != rank {
		return errors.Errorf("rank mismatch: shape %v, region %v, origin %v", srcShape, srcRegion, dstOrigin)
	}
	if !srcRegion.Within(srcShape) {
		return errors.Errorf("region %v outside shape %v", srcRegion, srcShape)
	}
	box := srcRegion.Shape()
	dstRegion := make(Region, rank)
	for i := range dstRegion {
		dstRegion[i] = Interval{Begin: dstOrigin[i], End: dstOrigin[i] + box[i]}
	}
	if !dstRegion.Within(dstShape) {
		return errors.Errorf("destination region %v outside shape %v", dstRegion, dstShape)
	}
	if rank == 0 {
		copy(dst, src[:elemSize])
		return nil
	}
	if srcRegion.NumElements() == 0 {
		return nil
	}
	srcStrides := Strides(srcShape)
	dstStrides := Strides(dstShape)
	// walk every coordinate of the box except the last axis; the last axis
	// is contiguous in both buffers and copied as one run
	runLen := box[rank-1] * elemSize
	coord := make([]int, rank-1)
	for {
		srcOff := srcRegion[rank-1].Begin
		dstOff := dstOrigin[rank-1]
		for i := 0; i < rank-1; i++ {
			srcOff += (srcRegion[i].Begin + coord[i]) * srcStrides[i]
			dstOff += (dstOrigin[i] + coord[i]) * dstStrides[i]
		}
		copy(dst[dstOff*elemSize:dstOff*elemSize+runLen], src[srcOff*elemSize:srcOff*elemSize+runLen])
		// odometer increment
		i := rank - 2
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < box[i] {
				break
			}
			coord[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return nil
}
