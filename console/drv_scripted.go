// drv_scripted.go supplies input from a prepared string.
//
// This driver exists for tests, and for driving the runtime from
// canned input files.

package console

import (
	"io"
	"strings"
)

// ScriptedInput returns input from a fixed buffer.
type ScriptedInput struct {
	pending string
}

// NewScriptedInput returns an input driver which yields the given
// content.
func NewScriptedInput(content string) *ScriptedInput {
	return &ScriptedInput{pending: content}
}

// GetName returns the name of this driver.
func (si *ScriptedInput) GetName() string {
	return "scripted"
}

// Setup is a no-op.
func (si *ScriptedInput) Setup() error {
	return nil
}

// TearDown is a no-op.
func (si *ScriptedInput) TearDown() error {
	return nil
}

// Stuff appends content to the input buffer.
func (si *ScriptedInput) Stuff(content string) {
	si.pending += content
}

// BlockForCharacter returns the next buffered character.
func (si *ScriptedInput) BlockForCharacter() (uint8, error) {
	if len(si.pending) == 0 {
		return 0x00, io.EOF
	}

	c := si.pending[0]
	si.pending = si.pending[1:]
	return c, nil
}

// ReadLine returns the next buffered line, truncated to the given
// length.
func (si *ScriptedInput) ReadLine(max int) (string, error) {
	if len(si.pending) == 0 {
		return "", io.EOF
	}

	line := si.pending
	idx := strings.IndexByte(line, '\n')
	if idx >= 0 {
		line = si.pending[:idx]
		si.pending = si.pending[idx+1:]
	} else {
		si.pending = ""
	}

	line = strings.TrimSuffix(line, "\r")
	if len(line) > max {
		line = line[:max]
	}
	return line, nil
}

// init registers our driver, by name.
func init() {
	RegisterInput("scripted", func() Input {
		return NewScriptedInput("")
	})
}
