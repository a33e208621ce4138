// Snapshot and restore of the full machine state.
//
// The layout is a fixed binary record: the register bytes in canonical
// order A B C D E H L, SP and PC little-endian, the PSW byte, the mode
// bytes, and then a dense dump of the complete guest address space.
// A snapshot restored and saved again is byte-identical.

package cpu

import (
	"fmt"

	"github.com/skx/gtuos/memory"
	"github.com/spf13/afero"
)

// snapshotHeader is the size of the record preceding the memory dump.
const snapshotHeader = 7 + 2 + 2 + 1 + 7

// SnapshotSize is the total size of a snapshot file.
const SnapshotSize = snapshotHeader + memory.GuestSpace

// Snapshot serializes the CPU state followed by the guest address
// space, read through the active page table.
func (c *CPU) Snapshot() ([]uint8, error) {
	out := make([]uint8, 0, SnapshotSize)

	out = append(out,
		c.Regs.A, c.Regs.B, c.Regs.C, c.Regs.D,
		c.Regs.E, c.Regs.H, c.Regs.L,
		uint8(c.Regs.SP&0xFF), uint8(c.Regs.SP>>8),
		uint8(c.Regs.PC&0xFF), uint8(c.Regs.PC>>8),
		c.PSW())

	// Mode bytes: interrupt state, pending code, scheduler state.
	out = append(out,
		boolByte(c.intEnable),
		boolByte(c.eiArm),
		boolByte(c.halted),
		c.pending,
		boolByte(c.servicing),
		c.Quantum,
		c.schedulerTimer)

	for addr := 0; addr < memory.GuestSpace; addr++ {
		b, err := c.Mem.Get(uint16(addr))
		if err != nil {
			return nil, fmt.Errorf("snapshot read at 0x%04X: %w", addr, err)
		}
		out = append(out, b)
	}

	return out, nil
}

// Restore replaces the CPU state and guest address space from a
// snapshot record.
func (c *CPU) Restore(data []uint8) error {
	if len(data) != SnapshotSize {
		return fmt.Errorf("snapshot of %d bytes, expected %d", len(data), SnapshotSize)
	}

	c.Regs.A = data[0]
	c.Regs.B = data[1]
	c.Regs.C = data[2]
	c.Regs.D = data[3]
	c.Regs.E = data[4]
	c.Regs.H = data[5]
	c.Regs.L = data[6]
	c.Regs.SP = uint16(data[7]) | (uint16(data[8]) << 8)
	c.Regs.PC = uint16(data[9]) | (uint16(data[10]) << 8)
	c.SetPSW(data[11])

	c.intEnable = data[12] != 0
	c.eiArm = data[13] != 0
	c.halted = data[14] != 0
	c.pending = data[15]
	c.servicing = data[16] != 0
	c.Quantum = data[17]
	c.schedulerTimer = data[18]

	for addr := 0; addr < memory.GuestSpace; addr++ {
		err := c.Mem.Set(uint16(addr), data[snapshotHeader+addr])
		if err != nil {
			return fmt.Errorf("snapshot write at 0x%04X: %w", addr, err)
		}
	}

	return nil
}

// SaveSnapshot writes a snapshot to the named file.
func (c *CPU) SaveSnapshot(fs afero.Fs, path string) error {
	data, err := c.Snapshot()
	if err != nil {
		return err
	}

	err = afero.WriteFile(fs, path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %s", path, err)
	}
	return nil
}

// LoadSnapshot restores a snapshot from the named file.
func (c *CPU) LoadSnapshot(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to load snapshot %s: %s", path, err)
	}

	return c.Restore(data)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
