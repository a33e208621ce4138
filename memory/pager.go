// Pager: translation of guest addresses to physical indexes, demand
// paging, and FIFO replacement.
//
// Each guest address space is described by a PageTable of 64 entries,
// one per 1024-byte page.  The pager hands physical frames to pages as
// they are touched; once every frame is in use the oldest resident page
// is evicted, in strict insertion order, with dirty pages copied back
// to their backing slot first.

package memory

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

const (
	// PageSize is the size of a page, and of a physical frame.
	PageSize = 1024

	// PageShift is the bit position splitting page number from offset.
	PageShift = 10

	// PageMask extracts the offset within a page.
	PageMask = PageSize - 1

	// PagesPerSpace is the number of virtual pages in one guest
	// address space.
	PagesPerSpace = GuestSpace / PageSize
)

// PageFlags holds the per-entry state bits.
type PageFlags uint8

const (
	// PagePresent is set when the entry maps a physical frame.
	PagePresent PageFlags = 1 << iota

	// PageWritable allows stores through the entry.
	PageWritable

	// PageUser marks the entry as belonging to an unprivileged guest.
	PageUser

	// PageDirty is set on the first store, and remains set until the
	// frame has been written back.
	PageDirty

	// PageAccessed is set on any access through the entry.
	PageAccessed
)

// PageTableEntry maps one virtual page.
type PageTableEntry struct {

	// Frame is the physical frame number backing the page.
	Frame uint16

	// Flags holds the state bits for the mapping.
	Flags PageFlags
}

// Present reports whether the entry currently maps a frame.
func (e *PageTableEntry) Present() bool {
	return e.Flags&PagePresent != 0
}

// Dirty reports whether the page has been written since it was loaded.
func (e *PageTableEntry) Dirty() bool {
	return e.Flags&PageDirty != 0
}

// PageTable describes one guest address space.
type PageTable struct {

	// Name identifies the table in logs and swap filenames.
	Name string

	// entries maps each virtual page number.
	entries [PagesPerSpace]PageTableEntry

	// backing holds the swapped-out or preloaded contents of pages,
	// keyed by virtual page number.
	backing map[uint8][]uint8

	// zeroFill allows pages with no backing slot to be created
	// zero-filled.  When clear such a fault is an error.
	zeroFill bool
}

// NewPageTable returns an empty page table whose pages are zero-filled
// on first touch.
func NewPageTable(name string) *PageTable {
	return &PageTable{
		Name:     name,
		backing:  make(map[uint8][]uint8),
		zeroFill: true,
	}
}

// Entry returns the entry for the given virtual page number.
func (t *PageTable) Entry(vpn uint8) *PageTableEntry {
	return &t.entries[vpn]
}

// SetStrictBacking makes faults on pages with no backing slot fail
// with ErrNoBackingStore, instead of zero-filling.
func (t *PageTable) SetStrictBacking() {
	t.zeroFill = false
}

// LoadImage installs a program image as the backing store of the
// table, starting at the given guest address.  Pages are not loaded
// into frames until they are touched.
func (t *PageTable) LoadImage(data []uint8, addr uint16) {
	for len(data) > 0 {
		vpn := uint8(addr >> PageShift)
		off := int(addr & PageMask)

		slot, ok := t.backing[vpn]
		if !ok {
			slot = make([]uint8, PageSize)
			t.backing[vpn] = slot
		}

		n := copy(slot[off:], data)
		data = data[n:]
		addr += uint16(n)
	}
}

// Poke writes a byte into the backing slot of the page holding the
// given address, creating the slot if needed.  The change is seen
// when the page is next faulted in.
func (t *PageTable) Poke(addr uint16, v uint8) {
	vpn := uint8(addr >> PageShift)

	slot, ok := t.backing[vpn]
	if !ok {
		slot = make([]uint8, PageSize)
		t.backing[vpn] = slot
	}
	slot[addr&PageMask] = v
}

// Resident returns the number of entries currently mapping a frame.
func (t *PageTable) Resident() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].Present() {
			n++
		}
	}
	return n
}

// fifoEntry records one resident page in insertion order.
type fifoEntry struct {
	table *PageTable
	vpn   uint8
	frame uint16
}

// Pager owns the physical frames, and services page faults against
// whichever page table is active.
type Pager struct {

	// mem is the memory whose backing store we slice frames from.
	mem *Memory

	// frames is the number of physical frames available for paging.
	frames uint16

	// free holds the frames not currently mapped.
	free []uint16

	// queue holds the resident pages in insertion order; index zero
	// is always the next eviction victim.
	queue []fifoEntry

	// active is the page table used for translation.  When nil the
	// guest address space is mapped one to one onto the start of the
	// backing store.
	active *PageTable

	// swapFs, when non-nil, receives a copy of every evicted dirty
	// page, and is consulted when a backing slot is missing.
	swapFs  afero.Fs
	swapDir string

	// Faults counts page faults serviced.
	Faults uint64

	// Evictions counts pages pushed out by FIFO replacement.
	Evictions uint64

	// Verbose enables per-fault analysis logging.
	Verbose bool

	logger *slog.Logger
}

// newPager is called by Memory; the two own each other's lifetime.
func newPager(mem *Memory, logger *slog.Logger) *Pager {
	p := &Pager{
		mem:    mem,
		logger: logger,
	}
	p.setFrames(uint16(len(mem.phys) / PageSize))
	return p
}

func (p *Pager) setFrames(n uint16) {
	p.frames = n
	p.free = nil
	for f := uint16(0); f < n; f++ {
		p.free = append(p.free, f)
	}
}

// SetFrameCount restricts the pager to the first n physical frames.
//
// It may only be called while no pages are resident.
func (p *Pager) SetFrameCount(n int) error {
	if len(p.queue) != 0 {
		return fmt.Errorf("cannot resize to %d frames with %d pages resident", n, len(p.queue))
	}
	if n < 1 || n > len(p.mem.phys)/PageSize {
		return fmt.Errorf("frame count %d out of range: %w", n, ErrAddressOutOfRange)
	}
	p.setFrames(uint16(n))
	return nil
}

// FrameCount returns the number of frames the pager manages.
func (p *Pager) FrameCount() int {
	return int(p.frames)
}

// Resident returns the number of pages currently holding a frame,
// across all page tables.
func (p *Pager) Resident() int {
	return len(p.queue)
}

// SetActive switches translation to the given page table.  A nil table
// restores the one-to-one mapping.
func (p *Pager) SetActive(t *PageTable) {
	p.active = t
}

// Active returns the page table translation currently runs through.
func (p *Pager) Active() *PageTable {
	return p.active
}

// PersistSwap copies evicted dirty pages into files beneath dir on the
// given filesystem, one per page, so that the swap area survives the
// process that produced it.
func (p *Pager) PersistSwap(fs afero.Fs, dir string) error {
	err := fs.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create swap directory %s: %s", dir, err)
	}
	p.swapFs = fs
	p.swapDir = dir
	return nil
}

// Translate maps a guest address to an index within the backing store,
// servicing a page fault if the page is absent.
func (p *Pager) Translate(addr uint16, write bool) (uint32, error) {
	if p.active == nil {
		return uint32(addr), nil
	}

	vpn := uint8(addr >> PageShift)
	e := &p.active.entries[vpn]

	if !e.Present() {
		err := p.fault(p.active, vpn)
		if err != nil {
			return 0, err
		}
	}

	e.Flags |= PageAccessed
	if write {
		e.Flags |= PageDirty
	}

	return (uint32(e.Frame) << PageShift) | uint32(addr&PageMask), nil
}

// fault services a page fault: pick a frame, evicting the oldest
// resident page if none is free, load the page contents, and install
// the mapping at the tail of the FIFO queue.
func (p *Pager) fault(t *PageTable, vpn uint8) error {
	p.Faults++

	var frame uint16
	if len(p.free) > 0 {
		frame = p.free[0]
		p.free = p.free[1:]
	} else {
		victim := p.queue[0]

		ve := victim.table.Entry(victim.vpn)
		dirty := ve.Dirty()
		if dirty {
			p.writeBack(victim)
		}
		ve.Flags &^= PagePresent | PageDirty | PageAccessed

		p.queue = p.queue[1:]
		p.Evictions++
		frame = victim.frame

		if p.Verbose {
			p.logger.Debug("page evicted",
				slog.String("table", victim.table.Name),
				slog.Int("vpn", int(victim.vpn)),
				slog.Int("frame", int(frame)),
				slog.Bool("dirty", dirty))
		}
	}

	err := p.loadPage(t, vpn, frame)
	if err != nil {
		// The frame was not consumed; hand it back.
		p.free = append(p.free, frame)
		return err
	}

	e := t.Entry(vpn)
	e.Frame = frame
	e.Flags = PagePresent | PageWritable | PageUser

	p.queue = append(p.queue, fifoEntry{table: t, vpn: vpn, frame: frame})

	if p.Verbose {
		p.logger.Debug("page fault serviced",
			slog.String("table", t.Name),
			slog.Int("vpn", int(vpn)),
			slog.Int("frame", int(frame)),
			slog.Int("resident", len(p.queue)))
	}
	return nil
}

// writeBack copies a dirty page into its backing slot, and to the swap
// filesystem when one is configured.
func (p *Pager) writeBack(victim fifoEntry) {
	slot, ok := victim.table.backing[victim.vpn]
	if !ok {
		slot = make([]uint8, PageSize)
		victim.table.backing[victim.vpn] = slot
	}
	copy(slot, p.mem.frame(victim.frame))

	if p.swapFs != nil {
		path := p.swapPath(victim.table, victim.vpn)
		err := afero.WriteFile(p.swapFs, path, slot, 0644)
		if err != nil {
			p.logger.Warn("failed to persist swapped page",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
}

// loadPage fills a frame with the contents of the given page: from its
// backing slot, from the swap filesystem, or zero-filled for a fresh
// page.
func (p *Pager) loadPage(t *PageTable, vpn uint8, frame uint16) error {
	dst := p.mem.frame(frame)

	slot, ok := t.backing[vpn]
	if !ok && p.swapFs != nil {
		data, err := afero.ReadFile(p.swapFs, p.swapPath(t, vpn))
		if err == nil && len(data) == PageSize {
			slot = data
			ok = true
		}
	}

	if ok {
		copy(dst, slot)
		return nil
	}

	if !t.zeroFill {
		return fmt.Errorf("table %s page %d: %w", t.Name, vpn, ErrNoBackingStore)
	}

	for i := range dst {
		dst[i] = 0
	}
	return nil
}

func (p *Pager) swapPath(t *PageTable, vpn uint8) string {
	return fmt.Sprintf("%s/%s-%03d.page", p.swapDir, t.Name, vpn)
}

// FreeTable releases every frame held by the given table, returning
// them to the free list.  Called when a process is destroyed.
func (p *Pager) FreeTable(t *PageTable) {
	var kept []fifoEntry
	for _, fe := range p.queue {
		if fe.table == t {
			e := t.Entry(fe.vpn)
			e.Flags &^= PagePresent | PageDirty | PageAccessed
			p.free = append(p.free, fe.frame)
			continue
		}
		kept = append(kept, fe)
	}
	p.queue = kept

	if p.active == t {
		p.active = nil
	}
}
