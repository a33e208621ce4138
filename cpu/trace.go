// Instruction tracing: a bounded ring of recent execution records,
// attached to the CPU as an observer.

package cpu

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Tracer records the most recent instruction executions.  Attach it
// with CPU.Observe; when the buffer is full the oldest entry is
// discarded.
type Tracer struct {
	entries []TraceEntry
	max     int
}

// NewTracer returns a tracer keeping at most max entries.
func NewTracer(max int) *Tracer {
	if max < 1 {
		max = 1000
	}
	return &Tracer{max: max}
}

// OnStep implements Observer.
func (t *Tracer) OnStep(e TraceEntry) {
	t.entries = append(t.entries, e)
	if len(t.entries) > t.max {
		t.entries = t.entries[1:]
	}
}

// Len returns the number of buffered entries.
func (t *Tracer) Len() int {
	return len(t.entries)
}

// Clear discards the buffered entries.
func (t *Tracer) Clear() {
	t.entries = nil
}

// Dump writes the buffered entries in a fixed-width table.
func (t *Tracer) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "PC   | Opcode | A  B  C  D  E  H  L  | Flags | Cycle\n")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "-----+--------+----------------------+-------+------\n")
	if err != nil {
		return err
	}

	for _, e := range t.entries {
		_, err = fmt.Fprintf(w, "%04x | %02x     | %02x %02x %02x %02x %02x %02x %02x | %s | %d\n",
			e.PC, e.Opcode,
			e.Regs.A, e.Regs.B, e.Regs.C, e.Regs.D, e.Regs.E, e.Regs.H, e.Regs.L,
			flagString(e.PSW), e.Cycle)
		if err != nil {
			return err
		}
	}
	return nil
}

// DumpFile writes the trace table to the named file.
func (t *Tracer) DumpFile(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file %s: %s", path, err)
	}
	defer f.Close()

	return t.Dump(f)
}

// flagString renders a PSW byte in the trace format, one letter per
// set flag.
func flagString(psw uint8) string {
	out := []byte(".....")
	if psw&FlagZ != 0 {
		out[0] = 'Z'
	}
	if psw&FlagS != 0 {
		out[1] = 'S'
	}
	if psw&FlagP != 0 {
		out[2] = 'P'
	}
	if psw&FlagCY != 0 {
		out[3] = 'C'
	}
	if psw&FlagAC != 0 {
		out[4] = 'A'
	}
	return string(out)
}
