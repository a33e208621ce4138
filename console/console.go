// Package console is an abstraction over console input and output.
//
// Output and input are both implemented by named drivers held in a
// registry: a driver registers itself by name from an init function,
// and callers instantiate one with New.  Besides the interactive
// drivers there is a recording output driver and a scripted input
// driver, which exist for the integration tests.
package console

import (
	"fmt"
	"io"
	"strings"
)

// Output is the interface that must be implemented by anything that
// wishes to be used as a console output driver.
type Output interface {

	// PutCharacter will output the specified character to the
	// defined writer.
	PutCharacter(c uint8)

	// GetName will return the name of the driver.
	GetName() string

	// SetWriter will update the writer.
	SetWriter(io.Writer)
}

// Recorder is implemented by output drivers which can return the
// content previously written.
//
// This is used solely for tests.
type Recorder interface {

	// GetOutput returns the contents which have been displayed.
	GetOutput() string

	// Reset removes any stored state.
	Reset()
}

// Input is the interface that must be implemented by anything that
// wishes to be used as a console input driver.
type Input interface {

	// Setup performs any terminal state changes the driver needs.
	Setup() error

	// TearDown restores the terminal.
	TearDown() error

	// BlockForCharacter returns the next character of input,
	// blocking until one is available.
	BlockForCharacter() (uint8, error)

	// ReadLine reads a line of input, of at most max characters,
	// without the trailing newline.
	ReadLine(max int) (string, error)

	// GetName will return the name of the driver.
	GetName() string
}

// OutputConstructor is the signature of an output-driver factory.
type OutputConstructor func() Output

// InputConstructor is the signature of an input-driver factory.
type InputConstructor func() Input

// The driver registries.
var outHandlers = struct {
	m map[string]OutputConstructor
}{m: make(map[string]OutputConstructor)}

var inHandlers = struct {
	m map[string]InputConstructor
}{m: make(map[string]InputConstructor)}

// RegisterOutput makes an output driver available, by name.
func RegisterOutput(name string, obj OutputConstructor) {
	outHandlers.m[strings.ToLower(name)] = obj
}

// RegisterInput makes an input driver available, by name.
func RegisterInput(name string, obj InputConstructor) {
	inHandlers.m[strings.ToLower(name)] = obj
}

// NewOutput instantiates the output driver with the given name.
func NewOutput(name string) (Output, error) {
	ctor, ok := outHandlers.m[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("failed to lookup output driver by name '%s'", name)
	}
	return ctor(), nil
}

// NewInput instantiates the input driver with the given name.
func NewInput(name string) (Input, error) {
	ctor, ok := inHandlers.m[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("failed to lookup input driver by name '%s'", name)
	}
	return ctor(), nil
}
