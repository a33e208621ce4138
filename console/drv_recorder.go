// drv_recorder.go stores console output in memory, where tests can
// retrieve it.

package console

import (
	"io"
	"strings"
)

// RecorderOutput is an output driver which stores everything written
// through it.
type RecorderOutput struct {
	buf strings.Builder
}

// GetName returns the name of this driver.
func (ro *RecorderOutput) GetName() string {
	return "recorder"
}

// PutCharacter appends the character to our buffer.
func (ro *RecorderOutput) PutCharacter(c uint8) {
	ro.buf.WriteByte(c)
}

// SetWriter is a no-op; the recorder always writes to its buffer.
func (ro *RecorderOutput) SetWriter(w io.Writer) {
}

// GetOutput returns the contents which have been displayed.
func (ro *RecorderOutput) GetOutput() string {
	return ro.buf.String()
}

// Reset removes any stored state.
func (ro *RecorderOutput) Reset() {
	ro.buf.Reset()
}

// init registers our driver, by name.
func init() {
	RegisterOutput("recorder", func() Output {
		return &RecorderOutput{}
	})
}
