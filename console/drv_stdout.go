// drv_stdout.go writes console output to STDOUT, unbuffered, so that
// guest output interleaves correctly with any host diagnostics.

package console

import (
	"io"
	"os"
)

// StdoutOutput is our default output driver.
type StdoutOutput struct {
	writer io.Writer
}

// GetName returns the name of this driver.
func (so *StdoutOutput) GetName() string {
	return "stdout"
}

// PutCharacter writes the character to our writer.
func (so *StdoutOutput) PutCharacter(c uint8) {
	so.writer.Write([]byte{c})
}

// SetWriter updates the writer.
func (so *StdoutOutput) SetWriter(w io.Writer) {
	so.writer = w
}

// init registers our driver, by name.
func init() {
	RegisterOutput("stdout", func() Output {
		return &StdoutOutput{writer: os.Stdout}
	})
}
