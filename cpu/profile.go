// Per-opcode execution profiling, attached to the CPU as an observer.

package cpu

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Profile accumulates execution statistics for one opcode.
type Profile struct {
	Count       uint64
	TotalCycles uint64
}

// Profiler tallies executions per opcode.  Attach it with CPU.Observe.
type Profiler struct {
	profiles [256]Profile
	last     uint64
}

// NewProfiler returns an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// OnStep implements Observer.
func (p *Profiler) OnStep(e TraceEntry) {
	prof := &p.profiles[e.Opcode]
	prof.Count++
	prof.TotalCycles += e.Cycle - p.last
	p.last = e.Cycle
}

// Profile returns the statistics for one opcode.
func (p *Profiler) Profile(op uint8) Profile {
	return p.profiles[op]
}

// Reset discards all statistics.
func (p *Profiler) Reset() {
	*p = Profiler{}
}

// Report writes the statistics of every executed opcode.
func (p *Profiler) Report(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Opcode | Count   | Total Cycles | Avg Cycles\n")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "-------+---------+--------------+-----------\n")
	if err != nil {
		return err
	}

	for op := 0; op < 256; op++ {
		prof := p.profiles[op]
		if prof.Count == 0 {
			continue
		}
		_, err = fmt.Fprintf(w, "%02x     | %7d | %12d | %10d\n",
			op, prof.Count, prof.TotalCycles, prof.TotalCycles/prof.Count)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReportFile writes the report to the named file.
func (p *Profiler) ReportFile(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open profile report %s: %s", path, err)
	}
	defer f.Close()

	return p.Report(f)
}
