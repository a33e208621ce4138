// Process control blocks, the process table, and the round-robin
// context switch.

package gtuos

import (
	"fmt"
	"log/slog"

	"github.com/skx/gtuos/cpu"
	"github.com/skx/gtuos/memory"
	"github.com/spf13/afero"
)

// MaxProcesses is the size of the process table.
const MaxProcesses = 16

// DefaultSP is the initial stack pointer of a new process.  Guests
// which care set their own with LXI SP.
const DefaultSP = 0xF000

// State is the lifecycle state of a process.
type State uint8

const (
	// Ready processes are runnable, and waiting for the scheduler.
	Ready State = iota

	// Running is the process the CPU is executing.
	Running

	// Blocked processes are waiting on an event.
	Blocked

	// Terminated processes keep their slot only until it is reused.
	Terminated
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Terminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// PCB holds the saved execution state and scheduling metadata of one
// guest process.
type PCB struct {

	// PID is the process identifier.
	PID int

	// Name is the image the process was loaded from.
	Name string

	// Regs is the saved register file.
	Regs cpu.Registers

	// PSW is the saved condition-code byte.
	PSW uint8

	// IntEnabled is the saved interrupt-enable bit.
	IntEnabled bool

	// Base and Limit record the region assigned to the process.
	// They are set when the process is created; guest accesses are
	// not checked against them.
	Base  uint32
	Limit uint32

	// Quantum is the tick budget the process runs with.
	Quantum uint8

	// Priority is the scheduling priority.  The round-robin
	// scheduler records it but does not reorder by it.
	Priority uint8

	// State is the lifecycle state.
	State State

	// Table is the page table describing the process address space.
	Table *memory.PageTable
}

// LoadProcess loads a program image, creates a process for it, and
// marks it ready.  The returned value is the new PID.
func (o *OS) LoadProcess(path string) (int, error) {
	slot := -1
	for i := 0; i < MaxProcesses; i++ {
		if o.procs[i] == nil || o.procs[i].State == Terminated {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, ErrProcessTableFull
	}

	data, err := afero.ReadFile(o.Fs, path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %s", path, err)
	}

	o.nextPID++
	pid := o.nextPID

	table := memory.NewPageTable(fmt.Sprintf("pid%d", pid))
	table.LoadImage(data, o.Config.LoadOffset)

	// The supervisor stub: a trap instruction and a RET at the
	// fixed system-call entry.  The low region belongs to us; a
	// well-formed image opens with a jump across it.
	table.Poke(SyscallEntry, cpu.OpTrap)
	table.Poke(SyscallEntry+1, 0xC9)

	pcb := &PCB{
		PID:     pid,
		Name:    path,
		Quantum: o.Config.Quantum,
		State:   Ready,
		Table:   table,
		Limit:   uint32(memory.GuestSpace),
	}
	pcb.Regs.PC = o.Config.LoadOffset
	pcb.Regs.SP = DefaultSP

	o.procs[slot] = pcb

	o.Logger.Info("process created",
		slog.Int("pid", pid),
		slog.String("image", path),
		slog.Int("bytes", len(data)),
		slog.Int("slot", slot))

	return pid, nil
}

// Process returns the PCB with the given PID, or nil.
func (o *OS) Process(pid int) *PCB {
	for _, p := range o.procs {
		if p != nil && p.PID == pid {
			return p
		}
	}
	return nil
}

// Processes returns every live PCB, in slot order.
func (o *OS) Processes() []*PCB {
	var out []*PCB
	for _, p := range o.procs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Current returns the running process, or nil.
func (o *OS) Current() *PCB {
	if o.current < 0 {
		return nil
	}
	return o.procs[o.current]
}

func (o *OS) currentPID() int {
	p := o.Current()
	if p == nil {
		return 0
	}
	return p.PID
}

// findReady returns the first READY slot at or after from, wrapping
// modulo the table size, or -1.
func (o *OS) findReady(from int) int {
	for i := 0; i < MaxProcesses; i++ {
		slot := (from + i) % MaxProcesses
		p := o.procs[slot]
		if p != nil && p.State == Ready {
			return slot
		}
	}
	return -1
}

// saveCurrent copies the machine state into the running PCB, and
// mirrors the register record into the interrupt scratch buffer.
func (o *OS) saveCurrent() {
	p := o.Current()
	if p == nil {
		return
	}

	p.Regs = o.CPU.Regs
	p.PSW = o.CPU.PSW()
	p.IntEnabled = o.CPU.InterruptsEnabled()

	// Guest-visible copy of the outgoing context, in canonical
	// order, at the interrupt buffer.
	rec := []uint8{
		p.Regs.A, p.Regs.B, p.Regs.C, p.Regs.D,
		p.Regs.E, p.Regs.H, p.Regs.L,
		uint8(p.Regs.SP & 0xFF), uint8(p.Regs.SP >> 8),
		uint8(p.Regs.PC & 0xFF), uint8(p.Regs.PC >> 8),
		p.PSW,
	}
	err := o.Mem.SetRange(o.Config.IntBufferBase, rec...)
	if err != nil {
		o.Logger.Warn("failed to mirror context to interrupt buffer",
			slog.String("error", err.Error()))
	}
}

// switchTo makes the process in the given slot the running one,
// restoring its registers and page table.
func (o *OS) switchTo(slot int) {
	next := o.procs[slot]

	cur := o.Current()
	if cur != nil && cur.State == Running {
		o.saveCurrent()
		cur.State = Ready
	}

	next.State = Running
	o.current = slot

	o.CPU.Regs = next.Regs
	o.CPU.SetPSW(next.PSW)
	o.CPU.SetInterruptsEnabled(next.IntEnabled)
	o.CPU.SetHalted(false)
	o.CPU.SetQuantum(next.Quantum)
	o.CPU.ResetSchedulerTimer()
	o.Mem.Pager().SetActive(next.Table)

	o.Logger.Debug("context switch",
		slog.Int("pid", next.PID),
		slog.Int("slot", slot))
}

// reschedule hands the CPU to the next READY process in strict
// round-robin order.  The return value reports whether any process
// is left to run.
func (o *OS) reschedule() bool {
	from := 0
	if o.current >= 0 {
		from = (o.current + 1) % MaxProcesses
	}

	slot := o.findReady(from)
	if slot < 0 {
		// Nothing else is runnable; if the current process is
		// still alive it simply keeps the CPU.
		cur := o.Current()
		if cur != nil && cur.State == Running {
			o.CPU.ResetSchedulerTimer()
			return true
		}
		return false
	}

	o.switchTo(slot)
	return true
}

// terminateCurrent marks the running process dead and releases its
// frames.
func (o *OS) terminateCurrent(reason string) {
	p := o.Current()
	if p == nil {
		return
	}

	o.saveCurrent()
	p.State = Terminated
	o.Mem.Pager().FreeTable(p.Table)

	o.Logger.Info("process terminated",
		slog.Int("pid", p.PID),
		slog.String("reason", reason))
}
