package gpucmd

import "testing"

func TestTable_InsertGet(t *testing.T) {
	var tb table[string]
	a := tb.insert("a")
	b := tb.insert("b")

	if a == b {
		t.Fatalf("insert returned the same handle twice: %v", a)
	}
	if got, ok := tb.get(a); !ok || *got != "a" {
		t.Errorf("get(a) = %v, %v, want a, true", got, ok)
	}
	if got := tb.len(); got != 2 {
		t.Errorf("len() = %d, want 2", got)
	}
	if _, ok := tb.get(handle{}); ok {
		t.Error("get(zero handle) resolved")
	}
}

func TestTable_RemoveInvalidatesHandle(t *testing.T) {
	var tb table[int]
	h := tb.insert(7)

	if v, ok := tb.remove(h); !ok || v != 7 {
		t.Fatalf("remove() = %d, %v, want 7, true", v, ok)
	}
	if _, ok := tb.get(h); ok {
		t.Error("get() resolved a removed handle")
	}
	if _, ok := tb.remove(h); ok {
		t.Error("remove() succeeded twice")
	}

	// The slot is reused with a new generation; the old handle stays dead.
	h2 := tb.insert(8)
	if h2.index != h.index {
		t.Fatalf("slot not reused: got index %d, want %d", h2.index, h.index)
	}
	if h2.gen == h.gen {
		t.Errorf("generation not bumped: %d", h2.gen)
	}
	if _, ok := tb.get(h); ok {
		t.Error("stale handle resolved to the reused slot")
	}
	if got, ok := tb.get(h2); !ok || *got != 8 {
		t.Errorf("get(h2) = %v, %v, want 8, true", got, ok)
	}
}

func TestHandles_Zero(t *testing.T) {
	if !(Buffer{}).IsZero() || !(Texture{}).IsZero() || !(TextureView{}).IsZero() {
		t.Error("zero handles should report IsZero")
	}
	if got := (Buffer{}).String(); got != "Buffer(nil)" {
		t.Errorf("String() = %q, want %q", got, "Buffer(nil)")
	}
}

func TestBuffer_At(t *testing.T) {
	b := Buffer{h: handle{index: 3, gen: 2}}
	p := b.At(64)
	if p.Buffer != b || p.Offset != 64 {
		t.Errorf("At(64) = %+v", p)
	}
}
