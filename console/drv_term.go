// drv_term.go reads console input by switching STDIN into raw mode
// for single characters, and using buffered reads for whole lines.

package console

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// TermInput is our default input driver.
type TermInput struct {
	reader *bufio.Reader
}

// GetName returns the name of this driver.
func (ti *TermInput) GetName() string {
	return "term"
}

// Setup is a no-op; the terminal state is changed around each read.
func (ti *TermInput) Setup() error {
	return nil
}

// TearDown is a no-op.
func (ti *TermInput) TearDown() error {
	return nil
}

// BlockForCharacter returns the next character from the console,
// blocking until one is available.
func (ti *TermInput) BlockForCharacter() (uint8, error) {

	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return 0x00, fmt.Errorf("error making raw terminal %s", err)
	}

	// read only a single byte
	b := make([]byte, 1)
	_, err = os.Stdin.Read(b)
	if err != nil {
		return 0x00, fmt.Errorf("error reading a byte from stdin %s", err)
	}

	// restore the state of the terminal to avoid mixing RAW/Cooked
	err = term.Restore(int(os.Stdin.Fd()), oldState)
	if err != nil {
		return 0x00, fmt.Errorf("error restoring terminal state %s", err)
	}

	return b[0], nil
}

// ReadLine reads a line of input, truncated to the given length.
func (ti *TermInput) ReadLine(max int) (string, error) {
	if ti.reader == nil {
		ti.reader = bufio.NewReader(os.Stdin)
	}

	text, err := ti.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("error reading from STDIN:%s", err)
	}

	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")

	if len(text) > max {
		text = text[:max]
	}
	return text, nil
}

// init registers our driver, by name.
func init() {
	RegisterInput("term", func() Input {
		return &TermInput{}
	})
}
