package memory

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

// TestMemoryTrivial just does basic get/set tests.
func TestMemoryTrivial(t *testing.T) {

	mem, err := New(0, nil)
	if err != nil {
		t.Fatalf("failed to create memory: %s", err)
	}

	// Set
	err = mem.Set(0x00, 0x01)
	if err != nil {
		t.Fatalf("failed to set")
	}
	err = mem.Set(0x01, 0x02)
	if err != nil {
		t.Fatalf("failed to set")
	}

	// Get
	b, _ := mem.Get(0x00)
	if b != 0x01 {
		t.Fatalf("failed to get expected result")
	}
	b, _ = mem.Get(0x01)
	if b != 0x02 {
		t.Fatalf("failed to get expected result")
	}

	// GetU16 - little-endian
	w, _ := mem.GetU16(0x00)
	if w != 0x0201 {
		t.Fatalf("failed to get expected result")
	}

	// SetU16 round-trip
	err = mem.SetU16(0x0100, 0xBEEF)
	if err != nil {
		t.Fatalf("failed to set word")
	}
	w, _ = mem.GetU16(0x0100)
	if w != 0xBEEF {
		t.Fatalf("word did not round-trip")
	}

	// Fill with 0xCD
	err = mem.FillRange(0x00, 0xFFFF, 0xCD)
	if err != nil {
		t.Fatalf("failed to fill")
	}
	b, _ = mem.Get(0xFFFE)
	if b != 0xCD {
		t.Fatalf("failed to get expected result")
	}

	// Get a random range
	out, _ := mem.GetRange(0x300, 0x00FF)
	for _, d := range out {
		if d != 0xCD {
			t.Fatalf("wrong result in GetRange")
		}
	}

	// Put a (small) range
	err = mem.SetRange(0x0000, 0x01, 0x02, 0x03)
	if err != nil {
		t.Fatalf("failed to set range")
	}
	b, _ = mem.Get(0x00)
	if b != 0x01 {
		t.Fatalf("failed to get expected result")
	}
}

func TestPhysicalBounds(t *testing.T) {
	mem, err := New(GuestSpace, nil)
	if err != nil {
		t.Fatalf("failed to create memory: %s", err)
	}

	err = mem.PhysicalSet(GuestSpace-1, 0xAA)
	if err != nil {
		t.Fatalf("in-range physical write failed: %s", err)
	}
	b, err := mem.PhysicalGet(GuestSpace - 1)
	if err != nil || b != 0xAA {
		t.Fatalf("in-range physical read failed: %v", err)
	}

	err = mem.PhysicalSet(GuestSpace, 0x00)
	if !errors.Is(err, ErrAddressOutOfRange) {
		t.Fatalf("expected AddressOutOfRange, got %v", err)
	}
	_, err = mem.PhysicalGet(GuestSpace)
	if !errors.Is(err, ErrAddressOutOfRange) {
		t.Fatalf("expected AddressOutOfRange, got %v", err)
	}
}

func TestNewRejectsOversize(t *testing.T) {
	_, err := New(MaxPhysical+1, nil)
	if err == nil {
		t.Fatalf("oversized backing store accepted")
	}
}

// TestLoadImage confirms each byte reads back at image offset i.
func TestLoadImage(t *testing.T) {
	fs := afero.NewMemMapFs()

	img := make([]uint8, 300)
	for i := range img {
		img[i] = uint8(i * 7)
	}
	err := afero.WriteFile(fs, "prog.com", img, 0644)
	if err != nil {
		t.Fatalf("failed to write image: %s", err)
	}

	mem, err := New(0, nil)
	if err != nil {
		t.Fatalf("failed to create memory: %s", err)
	}

	n, err := mem.LoadImage(fs, "prog.com", 0x0100)
	if err != nil {
		t.Fatalf("failed to load image: %s", err)
	}
	if n != len(img) {
		t.Fatalf("loaded %d bytes", n)
	}

	for i := range img {
		b, err := mem.PhysicalGet(uint32(0x0100 + i))
		if err != nil {
			t.Fatalf("read failed: %s", err)
		}
		if b != img[i] {
			t.Fatalf("byte %d: got 0x%02X want 0x%02X", i, b, img[i])
		}
	}

	// A missing file is an error.
	_, err = mem.LoadImage(fs, "missing.com", 0)
	if err == nil {
		t.Fatalf("missing image accepted")
	}
}

// TestWordAcrossPageBoundary confirms each half of a word access is
// translated independently.
func TestWordAcrossPageBoundary(t *testing.T) {
	mem, err := New(0, nil)
	if err != nil {
		t.Fatalf("failed to create memory: %s", err)
	}

	table := NewPageTable("t")
	mem.Pager().SetActive(table)

	// The word straddles the last byte of page 0 and the first of
	// page 1.
	err = mem.SetU16(PageSize-1, 0x1234)
	if err != nil {
		t.Fatalf("failed to set word: %s", err)
	}

	w, err := mem.GetU16(PageSize - 1)
	if err != nil {
		t.Fatalf("failed to get word: %s", err)
	}
	if w != 0x1234 {
		t.Fatalf("word did not round-trip: got 0x%04X", w)
	}

	if table.Resident() != 2 {
		t.Fatalf("expected 2 resident pages, got %d", table.Resident())
	}
}
