// This file contains the implementations for the system calls we
// handle.
//
// NOTE: They are added to the Syscalls map in gtuos.go
//
// The calling convention is fixed: the call code arrives in the A
// register, and any pointer argument in the B/C pair.

package gtuos

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// SysCallPrintStr prints the bytes at (BC), stopping at the '$'
// sentinel or a NUL.
func SysCallPrintStr(o *OS) error {
	s, err := o.readGuestString(o.CPU.Regs.BC())
	if err != nil {
		return err
	}

	o.putString(s)
	return nil
}

// SysCallReadMem reads an integer from the console and stores it at
// (BC) as two bytes, low byte first.
func SysCallReadMem(o *OS) error {
	text, err := o.Input.ReadLine(16)
	if err != nil {
		return fmt.Errorf("error reading from console:%s", err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("error parsing '%s' as an integer:%s", text, err)
	}

	return o.Mem.SetU16(o.CPU.Regs.BC(), uint16(n))
}

// SysCallPrintMem prints the integer formed from the two bytes at
// (BC).
func SysCallPrintMem(o *OS) error {
	w, err := o.Mem.GetU16(o.CPU.Regs.BC())
	if err != nil {
		return err
	}

	o.putString(strconv.FormatUint(uint64(w), 10))
	return nil
}

// SysCallPrintB prints the value of the B register as an unsigned
// integer.
func SysCallPrintB(o *OS) error {
	o.putString(strconv.FormatUint(uint64(o.CPU.Regs.B), 10))
	return nil
}

// SysCallLoadExec loads the program image named by the string at
// (BC), creates a process for it, and marks it ready.
func SysCallLoadExec(o *OS) error {
	path, err := o.readGuestString(o.CPU.Regs.BC())
	if err != nil {
		return err
	}

	pid, err := o.LoadProcess(path)
	if err != nil {
		// A load failure is the guest's problem, not ours.
		o.Logger.Error("LOAD_EXEC failed",
			slog.String("image", path),
			slog.String("error", err.Error()))
		return nil
	}

	o.Logger.Info("LOAD_EXEC",
		slog.String("image", path),
		slog.Int("pid", pid))
	return nil
}

// SysCallSetQuantum sets the scheduler quantum to the value of the B
// register, clamped to 1..255.
func SysCallSetQuantum(o *OS) error {
	q := o.CPU.Regs.B
	if q < 1 {
		q = 1
	}

	o.CPU.SetQuantum(q)
	if p := o.Current(); p != nil {
		p.Quantum = q
	}

	o.Logger.Info("SET_QUANTUM",
		slog.Int("quantum", int(q)))
	return nil
}

// SysCallReadB reads one byte of input into the B register.
func SysCallReadB(o *OS) error {
	c, err := o.Input.BlockForCharacter()
	if err != nil {
		return fmt.Errorf("error reading from console:%s", err)
	}

	o.CPU.Regs.B = c
	return nil
}

// SysCallReadStr reads a line of input, of at most 255 characters,
// into the buffer at (BC), NUL-terminated.
func SysCallReadStr(o *OS) error {
	text, err := o.Input.ReadLine(255)
	if err != nil {
		return fmt.Errorf("error reading from console:%s", err)
	}

	addr := o.CPU.Regs.BC()
	for i := 0; i < len(text); i++ {
		err = o.Mem.Set(addr+uint16(i), text[i])
		if err != nil {
			return err
		}
	}

	return o.Mem.Set(addr+uint16(len(text)), 0x00)
}

// SysCallExit marks the current process terminated and releases its
// frames; the run loop schedules the next ready process.
func SysCallExit(o *OS) error {
	o.terminateCurrent("PROCESS_EXIT")
	return errProcessExit
}
