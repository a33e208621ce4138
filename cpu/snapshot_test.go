package cpu

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
)

// TestSnapshotRoundTrip confirms snapshot -> restore -> snapshot is
// byte-identical.
func TestSnapshotRoundTrip(t *testing.T) {
	c := testCPU(t)

	c.Regs.A = 0x12
	c.Regs.SetBC(0x3456)
	c.Regs.SetDE(0x789A)
	c.Regs.SetHL(0xBCDE)
	c.Regs.SP = 0x3000
	c.Regs.PC = 0x0123
	c.SetPSW(0x97)
	c.SetInterruptsEnabled(true)
	c.SetQuantum(42)

	load(t, c, 0x2000, 0xDE, 0xAD, 0xBE, 0xEF)

	first, err := c.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %s", err)
	}
	if len(first) != SnapshotSize {
		t.Fatalf("snapshot is %d bytes, want %d", len(first), SnapshotSize)
	}

	// Restore into a different machine.
	c2 := testCPU(t)
	err = c2.Restore(first)
	if err != nil {
		t.Fatalf("restore failed: %s", err)
	}

	if c2.Regs != c.Regs {
		t.Fatalf("registers did not round-trip: %+v vs %+v", c2.Regs, c.Regs)
	}
	if c2.PSW() != c.PSW() {
		t.Fatalf("PSW did not round-trip")
	}
	if c2.InterruptsEnabled() != c.InterruptsEnabled() {
		t.Fatalf("interrupt enable did not round-trip")
	}
	if c2.Quantum != c.Quantum {
		t.Fatalf("quantum did not round-trip")
	}

	second, err := c2.Snapshot()
	if err != nil {
		t.Fatalf("second snapshot failed: %s", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("snapshots differ after restore")
	}
}

func TestSnapshotFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	c := testCPU(t)
	c.Regs.A = 0x42
	load(t, c, 0x0100, 0x01, 0x02, 0x03)

	err := c.SaveSnapshot(fs, "state.bin")
	if err != nil {
		t.Fatalf("save failed: %s", err)
	}

	c2 := testCPU(t)
	err = c2.LoadSnapshot(fs, "state.bin")
	if err != nil {
		t.Fatalf("load failed: %s", err)
	}

	if c2.Regs.A != 0x42 {
		t.Fatalf("A did not round-trip: 0x%02X", c2.Regs.A)
	}
	b, _ := c2.Mem.Get(0x0101)
	if b != 0x02 {
		t.Fatalf("memory did not round-trip: 0x%02X", b)
	}

	// Truncated input is rejected.
	err = c2.Restore([]uint8{1, 2, 3})
	if err == nil {
		t.Fatalf("truncated snapshot accepted")
	}
}
