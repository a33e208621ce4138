// Package memory provides the byte-addressable store within which the
// emulator executes guest programs.
//
// A Memory owns a physical backing array, up to 1Mb in size, together
// with the Pager which maps each 16-bit guest address space onto it.
// The translated accessors (Get/Set and their 16-bit forms) walk the
// active page table, faulting pages in on demand; the Physical accessors
// bypass translation entirely and are used by the loader and by tests.
package memory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

var (
	// ErrAddressOutOfRange is returned when a raw physical access
	// falls beyond the end of the backing store.
	ErrAddressOutOfRange = errors.New("address out of range")

	// ErrNoBackingStore is returned when a page fault occurs for a
	// page which has no backing source, and which is not eligible
	// for zero-filling.
	ErrNoBackingStore = errors.New("no backing store for page")
)

const (
	// MaxPhysical is the largest backing store we'll allocate.
	MaxPhysical = 0x100000

	// GuestSpace is the size of one guest address space.
	GuestSpace = 0x10000
)

// Memory provides the physical backing array, and the pager which maps
// guest addresses onto it.
type Memory struct {

	// phys is the physical backing store.
	phys []uint8

	// pager translates guest addresses into offsets within phys.
	pager *Pager

	// Logger holds a logger which we use for debugging and diagnostics.
	Logger *slog.Logger
}

// New allocates a backing store of the given size, and the pager that
// goes with it.
//
// The size is rounded up to hold at least one full guest address space,
// and may not exceed MaxPhysical.
func New(size int, logger *slog.Logger) (*Memory, error) {
	if size > MaxPhysical {
		return nil, fmt.Errorf("backing store of %d bytes exceeds maximum: %w", size, ErrAddressOutOfRange)
	}
	if size < GuestSpace {
		size = GuestSpace
	}
	if logger == nil {
		logger = slog.Default()
	}

	mem := &Memory{
		phys:   make([]uint8, size),
		Logger: logger,
	}
	mem.pager = newPager(mem, logger)
	return mem, nil
}

// Pager returns the pager which owns our page tables.
func (m *Memory) Pager() *Pager {
	return m.pager
}

// Size returns the size of the physical backing store.
func (m *Memory) Size() int {
	return len(m.phys)
}

// PhysicalGet returns the byte at the given index of the backing store,
// with no translation.
func (m *Memory) PhysicalGet(index uint32) (uint8, error) {
	if int(index) >= len(m.phys) {
		return 0, fmt.Errorf("physical read at 0x%06X: %w", index, ErrAddressOutOfRange)
	}
	return m.phys[index], nil
}

// PhysicalSet writes a byte at the given index of the backing store,
// with no translation.
func (m *Memory) PhysicalSet(index uint32, value uint8) error {
	if int(index) >= len(m.phys) {
		return fmt.Errorf("physical write at 0x%06X: %w", index, ErrAddressOutOfRange)
	}
	m.phys[index] = value
	return nil
}

// Get returns the byte at the given guest address, translated through
// the active page table.
func (m *Memory) Get(addr uint16) (uint8, error) {
	idx, err := m.pager.Translate(addr, false)
	if err != nil {
		return 0, err
	}
	return m.phys[idx], nil
}

// Set writes a byte at the given guest address, translated through the
// active page table.  The write marks the target page dirty.
func (m *Memory) Set(addr uint16, value uint8) error {
	idx, err := m.pager.Translate(addr, true)
	if err != nil {
		return err
	}
	m.phys[idx] = value
	return nil
}

// GetU16 returns the word at the given guest address, low byte first.
//
// The two halves are issued as independent byte reads, so a word which
// straddles a page boundary may fault each half separately.
func (m *Memory) GetU16(addr uint16) (uint16, error) {
	l, err := m.Get(addr)
	if err != nil {
		return 0, err
	}
	h, err := m.Get(addr + 1)
	if err != nil {
		return 0, err
	}
	return (uint16(h) << 8) | uint16(l), nil
}

// SetU16 writes the word at the given guest address, low byte first.
func (m *Memory) SetU16(addr uint16, value uint16) error {
	err := m.Set(addr, uint8(value&0xFF))
	if err != nil {
		return err
	}
	return m.Set(addr+1, uint8(value>>8))
}

// SetRange copies bytes to the given guest address.
func (m *Memory) SetRange(addr uint16, data ...uint8) error {
	for i, b := range data {
		err := m.Set(addr+uint16(i), b)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetRange returns the contents of the given guest range.
func (m *Memory) GetRange(addr uint16, size int) ([]uint8, error) {
	var ret []uint8
	for i := 0; i < size; i++ {
		b, err := m.Get(addr + uint16(i))
		if err != nil {
			return nil, err
		}
		ret = append(ret, b)
	}
	return ret, nil
}

// FillRange fills an area of guest memory with the given byte.
func (m *Memory) FillRange(addr uint16, size int, char uint8) error {
	for i := 0; i < size; i++ {
		err := m.Set(addr+uint16(i), char)
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadImage loads a raw program image into the backing store at the
// given physical offset.
//
// Images are headerless ".com"-style binaries; the bytes are copied
// contiguously, and the rest of the backing store is left untouched.
func (m *Memory) LoadImage(fs afero.Fs, path string, offset uint32) (int, error) {
	prog, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %s", path, err)
	}

	if int(offset)+len(prog) > len(m.phys) {
		return 0, fmt.Errorf("image %s of %d bytes at 0x%06X: %w", path, len(prog), offset, ErrAddressOutOfRange)
	}

	copy(m.phys[offset:], prog)

	m.Logger.Debug("loaded image",
		slog.String("path", path),
		slog.Int("size", len(prog)),
		slog.Int("offset", int(offset)))

	return len(prog), nil
}

// frame returns the slice of the backing store which holds the given
// physical frame.
func (m *Memory) frame(frame uint16) []uint8 {
	base := uint32(frame) << PageShift
	return m.phys[base : base+PageSize]
}
