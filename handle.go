package gpucmd

import "fmt"

// handle addresses a slot of a table. Generation 0 is never issued, so the
// zero handle is always invalid.
type handle struct {
	index uint32
	gen   uint32
}

func (h handle) String() string {
	if h.gen == 0 {
		return "nil"
	}
	return fmt.Sprintf("%d#%d", h.index, h.gen)
}

type tableSlot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// table is a generational slot map. Removing an entry bumps the slot's
// generation, so handles to the removed entry no longer resolve even after
// the slot is reused. The caller serializes access.
type table[T any] struct {
	slots []tableSlot[T]
	free  []uint32
	count int
}

func (t *table[T]) insert(v T) handle {
	t.count++
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		s := &t.slots[idx]
		s.live = true
		s.value = v
		return handle{index: idx, gen: s.gen}
	}
	t.slots = append(t.slots, tableSlot[T]{gen: 1, live: true, value: v})
	return handle{index: uint32(len(t.slots) - 1), gen: 1}
}

func (t *table[T]) get(h handle) (*T, bool) {
	if h.gen == 0 || int(h.index) >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return &s.value, true
}

func (t *table[T]) remove(h handle) (T, bool) {
	var zero T
	if _, ok := t.get(h); !ok {
		return zero, false
	}
	s := &t.slots[h.index]
	v := s.value
	s.value = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, h.index)
	t.count--
	return v, true
}

func (t *table[T]) len() int { return t.count }

// Buffer is a handle to a buffer owned by a Context.
type Buffer struct{ h handle }

// IsZero reports whether b is the zero handle.
func (b Buffer) IsZero() bool { return b.h.gen == 0 }

// At returns the piece of b starting at offset.
func (b Buffer) At(offset uint64) BufferPiece { return BufferPiece{Buffer: b, Offset: offset} }

func (b Buffer) String() string { return "Buffer(" + b.h.String() + ")" }

// Texture is a handle to a texture owned by a Context.
type Texture struct{ h handle }

// IsZero reports whether t is the zero handle.
func (t Texture) IsZero() bool { return t.h.gen == 0 }

// Mip returns the origin of mip level in array layer 0.
func (t Texture) Mip(level uint32) TexturePiece {
	return TexturePiece{Texture: t, MipLevel: level}
}

func (t Texture) String() string { return "Texture(" + t.h.String() + ")" }

// TextureView is a handle to a texture view owned by a Context.
type TextureView struct{ h handle }

// IsZero reports whether v is the zero handle.
func (v TextureView) IsZero() bool { return v.h.gen == 0 }

func (v TextureView) String() string { return "TextureView(" + v.h.String() + ")" }

// BufferPiece is a buffer plus a byte offset.
type BufferPiece struct {
	Buffer Buffer
	Offset uint64
}

// TexturePiece addresses a texel origin in one mip level and array layer.
type TexturePiece struct {
	Texture    Texture
	MipLevel   uint32
	ArrayLayer uint32
	Origin     [3]uint32
}
