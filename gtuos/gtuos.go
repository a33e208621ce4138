// Package gtuos is the supervisor for our emulator: it owns the
// machine, dispatches the system calls guests raise through the trap
// opcode, and preempts running guests when their quantum expires.
//
// The package mostly contains the implementation of the system calls
// guest programs expect - along with the process table and the
// round-robin scheduler which context-switches between guests.
package gtuos

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/skx/gtuos/console"
	"github.com/skx/gtuos/cpu"
	"github.com/skx/gtuos/memory"
	"github.com/spf13/afero"
)

var (
	// ErrWatchdog will be used when the configured instruction
	// ceiling is reached.  It is a supervisor failure, and is never
	// visible to guest code.
	//
	// It should be handled and expected by callers.
	ErrWatchdog = errors.New("WATCHDOG")

	// ErrProcessTableFull will be used when LOAD_EXEC finds no free
	// slot in the process table.
	//
	// It should be handled and expected by callers.
	ErrProcessTableFull = errors.New("PROCESS TABLE FULL")

	// errProcessExit is returned by the exit handler so the run loop
	// knows to reschedule.
	errProcessExit = errors.New("process exit")
)

// SyscallEntry is the fixed address guests CALL to reach the
// supervisor.  The stub placed there is a trap instruction followed
// by a RET, so control returns to the instruction after the CALL.
const SyscallEntry = 0x0005

// The system-call codes, passed in the A register.
const (
	CallPrintStr   = 1
	CallReadMem    = 2
	CallPrintMem   = 3
	CallPrintB     = 4
	CallLoadExec   = 5
	CallSetQuantum = 6
	CallReadB      = 7
	CallReadStr    = 8
	CallExit       = 9
)

// Config holds the settings the supervisor recognises.
type Config struct {

	// DebugLevel is forwarded to the CPU step operation: 0 silent,
	// 1 traces PC and opcode, 3 adds the full register state, 4 adds
	// interrupt events, 5 adds page-fault analysis.  Level 2 traces
	// the same as level 1; no memory contents are traced.
	DebugLevel int

	// Quantum is the number of scheduler ticks a process runs
	// before preemption, 1..255.
	Quantum uint8

	// IntBufferBase is the supervisor scratch buffer; the outgoing
	// register record is stored there on every context switch.
	IntBufferBase uint16

	// PhysicalSize is the size of the physical backing store.
	PhysicalSize int

	// Frames restricts the pager to the first n physical frames;
	// zero means every frame the backing store can hold.
	Frames int

	// LoadOffset is the guest address programs are loaded at.
	LoadOffset uint16

	// MaxInstructions is a watchdog ceiling on executed
	// instructions; zero disables it.
	MaxInstructions uint64
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Quantum:       cpu.DefaultQuantum,
		IntBufferBase: cpu.DefaultIntBuffer,
		PhysicalSize:  memory.MaxPhysical,
	}
}

// Handler contains details of a specific system call we implement.
//
// While we mostly need a "number to handler" mapping, having a name
// is useful for the logs we produce.
type Handler struct {

	// Desc contains the human-readable description of the call.
	Desc string

	// Handler contains the function which should be invoked for
	// this call.
	Handler HandlerFunc
}

// HandlerFunc contains the signature of a system-call handler.
type HandlerFunc func(o *OS) error

// OS is the object that holds our supervisor state.
type OS struct {

	// Syscalls contains the calls we know how to handle, indexed
	// by their ID.
	Syscalls map[uint8]Handler

	// CPU is the processor guest code runs on.
	CPU *cpu.CPU

	// Mem contains the memory the system runs with.
	Mem *memory.Memory

	// Fs is the filesystem program images are loaded from.
	Fs afero.Fs

	// Input supplies console input.
	Input console.Input

	// Output receives console output.
	Output console.Output

	// Config holds our settings.
	Config Config

	// Logger holds a logger which we use for debugging and
	// diagnostics.
	Logger *slog.Logger

	// procs is the process table.
	procs [MaxProcesses]*PCB

	// current is the slot of the running process.
	current int

	// nextPID numbers processes as they are created.
	nextPID int

	// steps counts executed instructions, for the watchdog.
	steps uint64
}

// New returns a new supervisor with the given configuration.
func New(cfg Config, logger *slog.Logger) (*OS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Quantum == 0 {
		cfg.Quantum = cpu.DefaultQuantum
	}
	if cfg.IntBufferBase == 0 {
		cfg.IntBufferBase = cpu.DefaultIntBuffer
	}
	if cfg.PhysicalSize == 0 {
		cfg.PhysicalSize = memory.MaxPhysical
	}

	mem, err := memory.New(cfg.PhysicalSize, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Frames > 0 {
		err = mem.Pager().SetFrameCount(cfg.Frames)
		if err != nil {
			return nil, err
		}
	}
	if cfg.DebugLevel >= 5 {
		mem.Pager().Verbose = true
	}

	c := cpu.New(mem, logger)
	c.SetQuantum(cfg.Quantum)
	c.IntBufferBase = cfg.IntBufferBase

	out, err := console.NewOutput("stdout")
	if err != nil {
		return nil, err
	}
	in, err := console.NewInput("term")
	if err != nil {
		return nil, err
	}

	o := &OS{
		Syscalls: make(map[uint8]Handler),
		CPU:      c,
		Mem:      mem,
		Fs:       afero.NewOsFs(),
		Input:    in,
		Output:   out,
		Config:   cfg,
		Logger:   logger,
		current:  -1,
	}
	c.IO = o

	//
	// Create and populate our system-call table.
	//
	o.Syscalls[CallPrintStr] = Handler{
		Desc:    "PRINT_STR",
		Handler: SysCallPrintStr,
	}
	o.Syscalls[CallReadMem] = Handler{
		Desc:    "READ_MEM",
		Handler: SysCallReadMem,
	}
	o.Syscalls[CallPrintMem] = Handler{
		Desc:    "PRINT_MEM",
		Handler: SysCallPrintMem,
	}
	o.Syscalls[CallPrintB] = Handler{
		Desc:    "PRINT_B",
		Handler: SysCallPrintB,
	}
	o.Syscalls[CallLoadExec] = Handler{
		Desc:    "LOAD_EXEC",
		Handler: SysCallLoadExec,
	}
	o.Syscalls[CallSetQuantum] = Handler{
		Desc:    "SET_QUANTUM",
		Handler: SysCallSetQuantum,
	}
	o.Syscalls[CallReadB] = Handler{
		Desc:    "READ_B",
		Handler: SysCallReadB,
	}
	o.Syscalls[CallReadStr] = Handler{
		Desc:    "READ_STR",
		Handler: SysCallReadStr,
	}
	o.Syscalls[CallExit] = Handler{
		Desc:    "PROCESS_EXIT",
		Handler: SysCallExit,
	}

	return o, nil
}

// Boot loads the named program image as the first process and makes
// it the running one.
func (o *OS) Boot(path string) error {
	_, err := o.LoadProcess(path)
	if err != nil {
		return err
	}

	slot := o.findReady(0)
	if slot < 0 {
		return fmt.Errorf("no runnable process after loading %s", path)
	}
	o.switchTo(slot)
	return nil
}

// Run loads the named program image as the first process and drives
// the machine until every process has terminated, or an
// infrastructure error stops the host.
func (o *OS) Run(path string) error {
	err := o.Boot(path)
	if err != nil {
		return err
	}

	for {
		done, err := o.StepOnce()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// StepOnce executes a single instruction and performs whatever
// supervisor work falls due at the boundary: scheduler ticks, trap
// dispatch, and process teardown.  The boolean reports that the last
// process has gone and the machine is finished.
func (o *OS) StepOnce() (bool, error) {
	_, err := o.CPU.Step(o.Config.DebugLevel)
	if err != nil {
		cont, ferr := o.handleFault(err)
		if ferr != nil {
			return false, ferr
		}
		return !cont, nil
	}

	// Acknowledge a delivered interrupt so trap detection re-arms
	// for the handler's code.
	if o.CPU.Servicing() {
		o.CPU.ClearInterrupt()
	}

	o.steps++
	if o.Config.MaxInstructions > 0 && o.steps > o.Config.MaxInstructions {
		return false, fmt.Errorf("%w: instruction ceiling of %d reached", ErrWatchdog, o.Config.MaxInstructions)
	}

	// Advance the scheduler clock; a raised scheduler interrupt is
	// consumed here, between instructions, rather than delivered
	// into guest code.
	o.CPU.DispatchScheduler()
	if code, ok := o.CPU.Pending(); ok && code == cpu.SchedulerCode && !o.CPU.Servicing() {
		o.CPU.ClearInterrupt()
		o.reschedule()
	}

	if o.CPU.IsSystemCall() {
		err = o.handleCall()
		if err == errProcessExit {
			return !o.reschedule(), nil
		}
		if err != nil {
			return false, err
		}
	}

	// The running process may also have exited through the OUT 0xFF
	// channel, inside the instruction itself.
	if p := o.Current(); p != nil && p.State == Terminated {
		return !o.reschedule(), nil
	}

	if o.CPU.IsHalted() {
		// A guest HLT ends the process.
		o.terminateCurrent("halted")
		return !o.reschedule(), nil
	}

	return false, nil
}

// handleFault applies the propagation policy to a step failure.  The
// boolean reports whether the run loop should continue.
func (o *OS) handleFault(err error) (bool, error) {
	var f *cpu.Fault
	if !errors.As(err, &f) {
		return false, err
	}

	switch f.Kind {
	case cpu.FaultStackOverflow, cpu.FaultNoBackingStore, cpu.FaultInvalidOpcode:
		// Process-local: kill the offender and move on.
		o.Logger.Error("process fault",
			slog.String("fault", f.Kind.String()),
			slog.String("error", f.Error()))
		o.terminateCurrent(f.Kind.String())
		return o.reschedule(), nil

	default:
		// Infrastructure failure; fatal to the host.
		return false, err
	}
}

// handleCall dispatches the system call named by the A register.
func (o *OS) handleCall() error {
	code := o.CPU.Regs.A

	handler, exists := o.Syscalls[code]

	//
	// Unknown calls are logged, and the guest continues.
	//
	if !exists {
		o.Logger.Warn("unknown SysCall",
			slog.Int("syscall", int(code)),
			slog.String("syscallHex", fmt.Sprintf("0x%02X", code)))
		return nil
	}

	o.Logger.Info("SysCall",
		slog.String("name", handler.Desc),
		slog.Int("syscall", int(code)),
		slog.Int("pid", o.currentPID()))

	return handler.Handler(o)
}

// In is called to handle the I/O reading of a port.
//
// This is called by our embedded CPU.
func (o *OS) In(port uint8) uint8 {
	o.Logger.Debug("I/O IN",
		slog.Int("port", int(port)))

	return 0
}

// Out is called to handle the I/O writing to a port.
//
// Port 0xFF is kept as an alternative system-call channel, for guests
// which use OUT 0xFF,code instead of the trap stub.
func (o *OS) Out(port uint8, val uint8) {
	if port != 0xFF {
		o.Logger.Debug("I/O OUT",
			slog.Int("port", int(port)),
			slog.Int("value", int(val)))
		return
	}

	handler, exists := o.Syscalls[val]
	if !exists {
		o.Logger.Warn("unknown SysCall - via I/O",
			slog.Int("syscall", int(val)))
		return
	}

	o.Logger.Info("SysCall via I/O",
		slog.String("name", handler.Desc),
		slog.Int("syscall", int(val)))

	err := handler.Handler(o)
	if err != nil && err != errProcessExit {
		o.Logger.Error("I/O SysCall failed",
			slog.String("name", handler.Desc),
			slog.String("error", err.Error()))
	}
}

// putString writes a host string to the console.
func (o *OS) putString(s string) {
	for _, c := range []byte(s) {
		o.Output.PutCharacter(c)
	}
}

// readGuestString reads a guest string at the given address,
// terminated by NUL or the '$' sentinel.
func (o *OS) readGuestString(addr uint16) (string, error) {
	var out []byte
	for {
		b, err := o.Mem.Get(addr)
		if err != nil {
			return "", err
		}
		if b == 0x00 || b == '$' {
			return string(out), nil
		}
		out = append(out, b)
		addr++
	}
}
