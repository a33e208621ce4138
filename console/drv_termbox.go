// drv_termbox.go uses the Termbox library to handle console input.
//
// A goroutine is launched which collects any keyboard input and
// saves that to a buffer where it can be peeled off on-demand.

package console

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nsf/termbox-go"
	"golang.org/x/term"
)

// TermboxInput is an interactive input driver, using termbox.
type TermboxInput struct {

	// oldState contains the state of the terminal, before switching
	// to RAW mode.
	oldState *term.State

	// cancel holds a context which can be used to close our polling
	// goroutine.
	cancel context.CancelFunc

	// keyBuffer builds up keys read "in the background", via termbox.
	keyBuffer []rune
}

// GetName returns the name of this driver.
func (ti *TermboxInput) GetName() string {
	return "termbox"
}

// Setup ensures that the termbox init functions are called, and our
// terminal is set into RAW mode.
func (ti *TermboxInput) Setup() error {

	var err error

	// switch STDIN into 'raw' mode - we must do this before
	// we setup termbox.
	ti.oldState, err = term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}

	// Setup the terminal.
	err = termbox.Init()
	if err != nil {
		return err
	}

	// This is "Show Cursor" which termbox hides by default.
	fmt.Printf("\x1b[?25h")

	// Allow our polling of keyboard to be canceled.
	ctx, cancel := context.WithCancel(context.Background())
	ti.cancel = cancel

	// Start polling for keyboard input "in the background".
	go ti.pollKeyboard(ctx)

	return nil
}

// TearDown closes the polling goroutine and restores the terminal.
func (ti *TermboxInput) TearDown() error {
	if ti.cancel != nil {
		ti.cancel()
	}
	termbox.Close()

	if ti.oldState != nil {
		return term.Restore(int(os.Stdin.Fd()), ti.oldState)
	}
	return nil
}

// pollKeyboard runs in a goroutine and collects keyboard input
// into a buffer where it will be read from in the future.
func (ti *TermboxInput) pollKeyboard(ctx context.Context) {
	for {
		// Are we done?
		select {
		case <-ctx.Done():
			return
		default:
			// NOP
		}

		// Now look for keyboard input.
		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			if ev.Ch != 0 {
				ti.keyBuffer = append(ti.keyBuffer, ev.Ch)
			} else {
				ti.keyBuffer = append(ti.keyBuffer, rune(ev.Key))
			}
		}
	}
}

// BlockForCharacter returns the next character from the buffer the
// polling goroutine fills.
func (ti *TermboxInput) BlockForCharacter() (uint8, error) {
	for len(ti.keyBuffer) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	c := ti.keyBuffer[0]
	ti.keyBuffer = ti.keyBuffer[1:]
	return uint8(c), nil
}

// ReadLine builds a line out of single-character reads, echoing as it
// goes, until return is hit or the length limit reached.
func (ti *TermboxInput) ReadLine(max int) (string, error) {
	var sb strings.Builder

	for sb.Len() < max {
		c, err := ti.BlockForCharacter()
		if err != nil {
			return "", err
		}

		if c == '\r' || c == '\n' {
			break
		}

		// Backspace / delete
		if c == 0x08 || c == 0x7F {
			s := sb.String()
			if len(s) > 0 {
				sb.Reset()
				sb.WriteString(s[:len(s)-1])
				fmt.Printf("\x08 \x08")
			}
			continue
		}

		sb.WriteByte(c)
		fmt.Printf("%c", c)
	}

	return sb.String(), nil
}

// init registers our driver, by name.
func init() {
	RegisterInput("termbox", func() Input {
		return &TermboxInput{}
	})
}
