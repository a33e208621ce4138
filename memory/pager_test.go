package memory

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func pagedMemory(t *testing.T, frames int) *Memory {
	t.Helper()

	mem, err := New(0, nil)
	if err != nil {
		t.Fatalf("failed to create memory: %s", err)
	}
	err = mem.Pager().SetFrameCount(frames)
	if err != nil {
		t.Fatalf("failed to set frame count: %s", err)
	}
	return mem
}

// TestFIFOEviction walks the canonical scenario: two frames, writes
// to three pages, and a refault restoring the first page's contents.
func TestFIFOEviction(t *testing.T) {
	mem := pagedMemory(t, 2)
	p := mem.Pager()

	table := NewPageTable("t")
	p.SetActive(table)

	// Touch pages 0, 1, 2 in order.
	err := mem.Set(0x0000, 0xAA)
	if err != nil {
		t.Fatalf("write to page 0 failed: %s", err)
	}
	err = mem.Set(0x0400, 0xBB)
	if err != nil {
		t.Fatalf("write to page 1 failed: %s", err)
	}
	err = mem.Set(0x0800, 0xCC)
	if err != nil {
		t.Fatalf("write to page 2 failed: %s", err)
	}

	// Page 0 was the oldest, so it went first.
	if table.Entry(0).Present() {
		t.Fatalf("page 0 still resident after eviction")
	}
	if !table.Entry(1).Present() || !table.Entry(2).Present() {
		t.Fatalf("wrong pages resident")
	}
	if p.Evictions != 1 {
		t.Fatalf("expected 1 eviction, saw %d", p.Evictions)
	}

	// Page 2 reuses page 0's frame.
	if table.Entry(2).Frame != 0 {
		t.Fatalf("page 2 in frame %d, want 0", table.Entry(2).Frame)
	}

	// Reading page 0 refaults and restores its contents; page 1 is
	// now the oldest and is pushed out.
	b, err := mem.Get(0x0000)
	if err != nil {
		t.Fatalf("refault of page 0 failed: %s", err)
	}
	if b != 0xAA {
		t.Fatalf("page 0 contents lost: got 0x%02X", b)
	}
	if table.Entry(1).Present() {
		t.Fatalf("FIFO order violated: page 1 still resident")
	}
}

// TestResidencyBound confirms the resident count never exceeds the
// frame count, whatever the access pattern.
func TestResidencyBound(t *testing.T) {
	mem := pagedMemory(t, 3)
	p := mem.Pager()

	table := NewPageTable("t")
	p.SetActive(table)

	addrs := []uint16{0x0000, 0x0400, 0x0800, 0x0C00, 0x1000, 0x0400, 0x0000, 0x2000}
	for _, a := range addrs {
		err := mem.Set(a, 0x55)
		if err != nil {
			t.Fatalf("write failed: %s", err)
		}
		if p.Resident() > p.FrameCount() {
			t.Fatalf("%d pages resident with %d frames", p.Resident(), p.FrameCount())
		}
		if table.Resident() != p.Resident() {
			t.Fatalf("table/pager residency disagree")
		}
	}
}

// TestDirtyWriteBack confirms dirty contents survive eviction and a
// refault.
func TestDirtyWriteBack(t *testing.T) {
	mem := pagedMemory(t, 1)
	p := mem.Pager()

	table := NewPageTable("t")
	p.SetActive(table)

	// Fill page 0 with a pattern.
	for i := 0; i < PageSize; i++ {
		err := mem.Set(uint16(i), uint8(i))
		if err != nil {
			t.Fatalf("write failed: %s", err)
		}
	}

	// Touch page 1: page 0 is evicted dirty.
	_, err := mem.Get(0x0400)
	if err != nil {
		t.Fatalf("fault on page 1 failed: %s", err)
	}
	if table.Entry(0).Present() {
		t.Fatalf("page 0 still resident")
	}

	// Refault page 0; the pattern is intact.
	for i := 0; i < PageSize; i += 97 {
		b, err := mem.Get(uint16(i))
		if err != nil {
			t.Fatalf("read failed: %s", err)
		}
		if b != uint8(i) {
			t.Fatalf("byte %d lost across eviction: got 0x%02X", i, b)
		}
	}
}

func TestZeroFillFreshPage(t *testing.T) {
	mem := pagedMemory(t, 2)
	table := NewPageTable("t")
	mem.Pager().SetActive(table)

	b, err := mem.Get(0x1234)
	if err != nil {
		t.Fatalf("read of fresh page failed: %s", err)
	}
	if b != 0x00 {
		t.Fatalf("fresh page not zero-filled: got 0x%02X", b)
	}
}

func TestStrictBacking(t *testing.T) {
	mem := pagedMemory(t, 2)
	table := NewPageTable("t")
	table.SetStrictBacking()
	mem.Pager().SetActive(table)

	_, err := mem.Get(0x1234)
	if !errors.Is(err, ErrNoBackingStore) {
		t.Fatalf("expected NoBackingStore, got %v", err)
	}

	// The frame was not leaked.
	if mem.Pager().Resident() != 0 {
		t.Fatalf("failed fault left a resident page")
	}
	err = mem.Set(0x0000, 0x01)
	if !errors.Is(err, ErrNoBackingStore) {
		t.Fatalf("expected NoBackingStore, got %v", err)
	}
}

func TestImageBackedTable(t *testing.T) {
	mem := pagedMemory(t, 2)

	img := make([]uint8, 2048)
	for i := range img {
		img[i] = uint8(i % 251)
	}

	table := NewPageTable("t")
	table.LoadImage(img, 0)
	mem.Pager().SetActive(table)

	for i := range img {
		b, err := mem.Get(uint16(i))
		if err != nil {
			t.Fatalf("read failed: %s", err)
		}
		if b != img[i] {
			t.Fatalf("byte %d: got 0x%02X want 0x%02X", i, b, img[i])
		}
	}
}

func TestPoke(t *testing.T) {
	mem := pagedMemory(t, 2)

	table := NewPageTable("t")
	table.Poke(0x0005, 0xDD)
	mem.Pager().SetActive(table)

	b, err := mem.Get(0x0005)
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if b != 0xDD {
		t.Fatalf("poked byte lost: got 0x%02X", b)
	}
}

func TestTwoTablesShareFrames(t *testing.T) {
	mem := pagedMemory(t, 2)
	p := mem.Pager()

	t1 := NewPageTable("t1")
	t2 := NewPageTable("t2")

	p.SetActive(t1)
	err := mem.Set(0x0000, 0x11)
	if err != nil {
		t.Fatalf("write failed: %s", err)
	}

	p.SetActive(t2)
	err = mem.Set(0x0000, 0x22)
	if err != nil {
		t.Fatalf("write failed: %s", err)
	}
	err = mem.Set(0x0400, 0x33)
	if err != nil {
		t.Fatalf("write failed: %s", err)
	}

	// t1's only page was the FIFO head.
	if t1.Entry(0).Present() {
		t.Fatalf("t1 page survived cross-table eviction")
	}

	// Its contents come back on refault.
	p.SetActive(t1)
	b, err := mem.Get(0x0000)
	if err != nil {
		t.Fatalf("refault failed: %s", err)
	}
	if b != 0x11 {
		t.Fatalf("t1 contents lost: got 0x%02X", b)
	}
}

func TestFreeTable(t *testing.T) {
	mem := pagedMemory(t, 2)
	p := mem.Pager()

	table := NewPageTable("t")
	p.SetActive(table)

	_ = mem.Set(0x0000, 0x01)
	_ = mem.Set(0x0400, 0x02)
	if p.Resident() != 2 {
		t.Fatalf("expected 2 resident pages")
	}

	p.FreeTable(table)
	if p.Resident() != 0 {
		t.Fatalf("frames not released")
	}
	if p.Active() != nil {
		t.Fatalf("freed table still active")
	}
	if table.Entry(0).Present() || table.Entry(1).Present() {
		t.Fatalf("entries still present after free")
	}
}

func TestSwapPersistence(t *testing.T) {
	mem := pagedMemory(t, 1)
	p := mem.Pager()

	fs := afero.NewMemMapFs()
	err := p.PersistSwap(fs, "swap")
	if err != nil {
		t.Fatalf("failed to configure swap: %s", err)
	}

	table := NewPageTable("t")
	p.SetActive(table)

	_ = mem.Set(0x0000, 0x77)
	_, _ = mem.Get(0x0400) // evicts dirty page 0

	data, err := afero.ReadFile(fs, "swap/t-000.page")
	if err != nil {
		t.Fatalf("swap file missing: %s", err)
	}
	if len(data) != PageSize || data[0] != 0x77 {
		t.Fatalf("swap file contents wrong")
	}
}
