package freelist

import (
	"testing"

	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

func TestPushPopLIFO(t *testing.T) {
	src := pagesource.NewMemoryPageSource(64, 1)
	m := Open(src, 0, 0)

	for _, p := range []uint32{10, 11, 12} {
		if err := m.Push(p); err != nil {
			t.Fatal(err)
		}
	}
	if m.FreeCount() != 3 {
		t.Fatalf("FreeCount = %d, want 3", m.FreeCount())
	}

	var got []uint32
	for i := 0; i < 3; i++ {
		p, err := m.Pop()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, p)
	}
	// Trunk-chained LIFO: 10 becomes the trunk and 11, 12 are appended as
	// its leaves (a 64-byte trunk holds (64-8)/4 = 14 leaves), so the
	// trailing leaf 12 comes back first.
	if got[0] != 12 {
		t.Fatalf("first pop = %d, want 12 (LIFO)", got[0])
	}
	if m.FreeCount() != 0 {
		t.Fatalf("FreeCount after draining = %d, want 0", m.FreeCount())
	}
	if _, err := m.Pop(); err == nil {
		t.Fatal("expected error popping empty freelist")
	}
}

func TestPushFillsTrunkBeforeChaining(t *testing.T) {
	pageSize := 4096
	src := pagesource.NewMemoryPageSource(pageSize, 1)
	m := Open(src, 0, 0)
	cap := Capacity(pageSize)

	// The first push becomes the trunk page itself and the next cap pushes
	// fill its leaf array, so cap+1 pages fit on a single trunk.
	for i := 0; i < cap+1; i++ {
		if err := m.Push(uint32(100 + i)); err != nil {
			t.Fatal(err)
		}
	}
	if m.FirstTrunk() == 0 {
		t.Fatal("expected a trunk page")
	}
	firstTrunkBefore := m.FirstTrunk()
	if err := m.Push(999); err != nil {
		t.Fatal(err)
	}
	if m.FirstTrunk() == firstTrunkBefore {
		t.Fatal("expected a new trunk once capacity was exceeded")
	}
}
