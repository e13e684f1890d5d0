// Package mem provides a per-frame arena allocator. All transient
// allocations made while recording or executing a frame come from an Arena
// that is reset once the frame's fences have signalled.
package mem

import (
	"reflect"
	"unsafe"
)

const slabElems = 64 * 1024

type slab struct {
	data unsafe.Pointer
	// offsets in elements, not bytes
	used int
	cap  int
	// byte size of one element, needed to clear memory on reset
	elemSize int
}

type Arena struct {
	slabs map[reflect.Type][]slab
}

func NewArena() *Arena {
	return &Arena{
		slabs: make(map[reflect.Type][]slab),
	}
}

func (a *Arena) alloc(typ reflect.Type, n int) unsafe.Pointer {
	slabs := a.slabs[typ]
	for i := range slabs {
		sl := &slabs[i]
		if sl.cap-sl.used >= n {
			ptr := unsafe.Add(sl.data, sl.used*sl.elemSize)
			sl.used += n
			return ptr
		}
	}
	c := max(slabElems/max(int(typ.Size()), 1), n)
	ptr := reflect.MakeSlice(reflect.SliceOf(typ), c, c).UnsafePointer()
	a.slabs[typ] = append(slabs, slab{
		data:     ptr,
		used:     n,
		cap:      c,
		elemSize: int(typ.Size()),
	})
	return ptr
}

// Reset makes all arena memory available for reuse. Previously returned
// pointers and slices must no longer be used.
func (a *Arena) Reset() {
	if a.slabs == nil {
		a.slabs = make(map[reflect.Type][]slab)
	}
	for _, slabs := range a.slabs {
		for i := range slabs {
			sl := &slabs[i]
			// Clear memory so it doesn't keep Go pointers alive.
			clear(unsafe.Slice((*byte)(sl.data), sl.used*sl.elemSize))
			sl.used = 0
		}
	}
}

func New[T any](a *Arena) *T {
	// TypeOf on a pointer works even when T is an interface type; TypeOf on
	// a zero T would not.
	var t *T
	typ := reflect.TypeOf(t).Elem()
	return (*T)(a.alloc(typ, 1))
}

func Make[T any](a *Arena, v T) *T {
	ptr := New[T](a)
	*ptr = v
	return ptr
}

func NewSlice[T ~[]E, E any](a *Arena, len, cap int) T {
	if cap == 0 {
		return nil
	}
	var e *E
	ptr := a.alloc(reflect.TypeOf(e).Elem(), cap)
	return T(unsafe.Slice((*E)(ptr), cap)[:len])
}

func MakeSlice[T ~[]E, E any](a *Arena, values T) T {
	s := NewSlice[T, E](a, len(values), len(values))
	copy(s, values)
	return s
}

func Append[T ~[]E, E any](a *Arena, s T, data ...E) T {
	newLen := len(s) + len(data)
	if newLen > cap(s) {
		newCap := max(cap(s)*2, newLen, 8)
		s2 := NewSlice[T, E](a, len(s), newCap)
		copy(s2, s)
		s = s2
	}
	return append(s, data...)
}
