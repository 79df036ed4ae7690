// Package paged provides an append-only vector stored as fixed-size pages.
//
// Elements never move once appended, so indices and (start, count) ranges
// stay valid while the vector grows.
package paged

const DefaultPageSize = 1024

// Vector is an append-only sequence with O(1) random access.
type Vector[T any] struct {
	pages    [][]T
	pageSize int
	n        int
}

// New returns a vector whose pages hold pageSize elements.
func New[T any](pageSize int) *Vector[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Vector[T]{pageSize: pageSize}
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int {
	return v.n
}

// Append adds x and returns its index.
func (v *Vector[T]) Append(x T) int {
	p := v.n / v.pageSize
	if p == len(v.pages) {
		v.pages = append(v.pages, make([]T, 0, v.pageSize))
	}
	v.pages[p] = append(v.pages[p], x)
	v.n++
	return v.n - 1
}

// At returns the element at index i. It panics when i is out of range.
func (v *Vector[T]) At(i int) T {
	return v.pages[i/v.pageSize][i%v.pageSize]
}

// Ptr returns a pointer to the element at index i.
func (v *Vector[T]) Ptr(i int) *T {
	return &v.pages[i/v.pageSize][i%v.pageSize]
}

// Range copies elements [start, start+count) into a new slice.
func (v *Vector[T]) Range(start, count int) []T {
	out := make([]T, count)
	for i := range out {
		out[i] = v.At(start + i)
	}
	return out
}
