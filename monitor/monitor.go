// Package monitor provides an interactive machine monitor: commands
// for stepping the machine, inspecting registers, memory and the
// process table, and running to a breakpoint.
//
// Commands are matched by unambiguous prefix, so "r" shows the
// registers and "mem 100" dumps memory.
package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/cmd"
	"github.com/skx/gtuos/gtuos"
	"github.com/skx/gtuos/version"
)

var cmds *cmd.Tree

func init() {
	// Create a command tree, where the parameter stored with each
	// command is a monitor callback capable of handling it.
	cmds = cmd.NewTree("gtuos", []cmd.Command{
		{
			Name:     "help",
			Shortcut: "?",
			Data:     (*Monitor).cmdHelp,
		},
		{
			Name:        "registers",
			Shortcut:    "r",
			Brief:       "Display the CPU registers",
			Description: "Display the register file, the PSW, and the interrupt state.",
			HelpText:    "registers",
			Data:        (*Monitor).cmdRegisters,
		},
		{
			Name:        "memory",
			Shortcut:    "m",
			Brief:       "Dump guest memory",
			Description: "Dump guest memory, as hex bytes, from the given address.",
			HelpText:    "memory <address> [<count>]",
			Data:        (*Monitor).cmdMemory,
		},
		{
			Name:        "step",
			Shortcut:    "s",
			Brief:       "Execute instructions",
			Description: "Execute the given number of instructions, default one.",
			HelpText:    "step [<count>]",
			Data:        (*Monitor).cmdStep,
		},
		{
			Name:        "run",
			Brief:       "Run until completion or a breakpoint",
			Description: "Run the machine until every process terminates, or a breakpoint is hit.",
			HelpText:    "run",
			Data:        (*Monitor).cmdRun,
		},
		{
			Name:     "breakpoint",
			Shortcut: "b",
			Brief:    "Breakpoint commands",
			Subcommands: cmd.NewTree("Breakpoint", []cmd.Command{
				{
					Name:        "list",
					Brief:       "List breakpoints",
					Description: "List all current breakpoints.",
					HelpText:    "breakpoint list",
					Data:        (*Monitor).cmdBreakpointList,
				},
				{
					Name:        "add",
					Brief:       "Add a breakpoint",
					Description: "Add a breakpoint at the specified address.",
					HelpText:    "breakpoint add <address>",
					Data:        (*Monitor).cmdBreakpointAdd,
				},
				{
					Name:        "remove",
					Brief:       "Remove a breakpoint",
					Description: "Remove the breakpoint at the specified address.",
					HelpText:    "breakpoint remove <address>",
					Data:        (*Monitor).cmdBreakpointRemove,
				},
			}),
		},
		{
			Name:        "processes",
			Shortcut:    "ps",
			Brief:       "Display the process table",
			Description: "Display every process, with its state and saved PC.",
			HelpText:    "processes",
			Data:        (*Monitor).cmdProcesses,
		},
		{
			Name:        "version",
			Brief:       "Display our version",
			Description: "Display the version of this build.",
			HelpText:    "version",
			Data:        (*Monitor).cmdVersion,
		},
		{
			Name:        "quit",
			Shortcut:    "q",
			Brief:       "Exit the monitor",
			Description: "Exit the monitor, abandoning the machine.",
			HelpText:    "quit",
			Data:        (*Monitor).cmdQuit,
		},
	})
}

// Monitor wraps a supervisor with an interactive command loop.
type Monitor struct {
	os          *gtuos.OS
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	lastCmd     *cmd.Selection
	breaks      map[uint16]struct{}
	finished    bool
}

// New returns a monitor driving the given supervisor.
func New(o *gtuos.OS) *Monitor {
	return &Monitor{
		os:     o,
		breaks: make(map[uint16]struct{}),
	}
}

// RunCommands accepts monitor commands from a reader and outputs the
// results to a writer.  If the commands are interactive, a prompt is
// displayed while the monitor waits for the next command.
func (m *Monitor) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	m.input = bufio.NewScanner(r)
	m.output = bufio.NewWriter(w)
	m.interactive = interactive

	for {
		m.prompt()

		line, err := m.getLine()
		if err != nil {
			break
		}

		var c cmd.Selection
		if line != "" {
			c, err = cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				m.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				m.println("Command is ambiguous.")
				continue
			case err != nil:
				m.printf("ERROR: %v.\n", err)
				continue
			}
		} else if m.lastCmd != nil {
			c = *m.lastCmd
		}

		if c.Command == nil {
			continue
		}
		m.lastCmd = &c

		handler := c.Command.Data.(func(*Monitor, cmd.Selection) error)
		err = handler(m, c)
		if err != nil {
			break
		}
	}

	m.output.Flush()
}

func (m *Monitor) prompt() {
	if m.interactive {
		m.printf("* ")
	}
}

func (m *Monitor) getLine() (string, error) {
	if m.input.Scan() {
		return m.input.Text(), nil
	}
	if m.input.Err() != nil {
		return "", m.input.Err()
	}
	return "", io.EOF
}

func (m *Monitor) printf(format string, args ...interface{}) {
	fmt.Fprintf(m.output, format, args...)
	m.output.Flush()
}

func (m *Monitor) println(args ...interface{}) {
	fmt.Fprintln(m.output, args...)
	m.output.Flush()
}

// step runs one machine step, remembering when the machine finishes.
func (m *Monitor) step() error {
	if m.finished {
		return nil
	}

	done, err := m.os.StepOnce()
	if err != nil {
		return err
	}
	if done {
		m.finished = true
		m.println("machine finished")
	}
	return nil
}

func (m *Monitor) cmdHelp(c cmd.Selection) error {
	m.println("Commands:")
	for _, c := range cmds.Commands {
		if c.Brief != "" {
			m.printf("  %-14s %s\n", c.Name, c.Brief)
		}
	}
	return nil
}

func (m *Monitor) cmdRegisters(c cmd.Selection) error {
	r := m.os.CPU.Regs
	m.printf("PC=%04X SP=%04X A=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X PSW=%02X IE=%v\n",
		r.PC, r.SP, r.A, r.B, r.C, r.D, r.E, r.H, r.L,
		m.os.CPU.PSW(), m.os.CPU.InterruptsEnabled())
	return nil
}

func (m *Monitor) cmdMemory(c cmd.Selection) error {
	if len(c.Args) < 1 {
		m.println("memory <address> [<count>]")
		return nil
	}

	addr, err := parseAddr(c.Args[0])
	if err != nil {
		m.printf("%v\n", err)
		return nil
	}

	count := 64
	if len(c.Args) >= 2 {
		n, err := strconv.Atoi(c.Args[1])
		if err != nil || n < 1 {
			m.printf("bad count '%s'\n", c.Args[1])
			return nil
		}
		count = n
	}

	for i := 0; i < count; i++ {
		if i%16 == 0 {
			if i > 0 {
				m.println()
			}
			m.printf("%04X:", addr+uint16(i))
		}
		b, err := m.os.Mem.Get(addr + uint16(i))
		if err != nil {
			m.printf(" ??")
			continue
		}
		m.printf(" %02X", b)
	}
	m.println()
	return nil
}

func (m *Monitor) cmdStep(c cmd.Selection) error {
	count := 1
	if len(c.Args) >= 1 {
		n, err := strconv.Atoi(c.Args[0])
		if err != nil || n < 1 {
			m.printf("bad count '%s'\n", c.Args[0])
			return nil
		}
		count = n
	}

	for i := 0; i < count && !m.finished; i++ {
		err := m.step()
		if err != nil {
			m.printf("%v\n", err)
			return nil
		}
	}

	return m.cmdRegisters(c)
}

func (m *Monitor) cmdRun(c cmd.Selection) error {
	for !m.finished {
		err := m.step()
		if err != nil {
			m.printf("%v\n", err)
			return nil
		}

		if _, ok := m.breaks[m.os.CPU.Regs.PC]; ok {
			m.printf("breakpoint hit at %04X\n", m.os.CPU.Regs.PC)
			break
		}
	}
	return nil
}

func (m *Monitor) cmdBreakpointList(c cmd.Selection) error {
	for addr := range m.breaks {
		m.printf("%04X\n", addr)
	}
	return nil
}

func (m *Monitor) cmdBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		m.println("breakpoint add <address>")
		return nil
	}

	addr, err := parseAddr(c.Args[0])
	if err != nil {
		m.printf("%v\n", err)
		return nil
	}

	m.breaks[addr] = struct{}{}
	return nil
}

func (m *Monitor) cmdBreakpointRemove(c cmd.Selection) error {
	if len(c.Args) < 1 {
		m.println("breakpoint remove <address>")
		return nil
	}

	addr, err := parseAddr(c.Args[0])
	if err != nil {
		m.printf("%v\n", err)
		return nil
	}

	delete(m.breaks, addr)
	return nil
}

func (m *Monitor) cmdProcesses(c cmd.Selection) error {
	for _, p := range m.os.Processes() {
		m.printf("%2d %-10s %-12s PC=%04X quantum=%d\n",
			p.PID, p.State, p.Name, p.Regs.PC, p.Quantum)
	}
	return nil
}

func (m *Monitor) cmdVersion(c cmd.Selection) error {
	m.printf("%s", version.GetVersionBanner())
	return nil
}

func (m *Monitor) cmdQuit(c cmd.Selection) error {
	return errors.New("exiting monitor")
}

// parseAddr accepts hex, with or without an 0x prefix.
func parseAddr(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("bad address '%s'", s)
	}
	return uint16(n), nil
}
