// Process-wide immutable lookup tables: parity of every byte value,
// base cycle counts, and instruction lengths.

package cpu

import "math/bits"

// parityTable[v] is non-zero when v has an even number of set bits.
var parityTable [256]uint8

func init() {
	for v := 0; v < 256; v++ {
		if bits.OnesCount8(uint8(v))%2 == 0 {
			parityTable[v] = 1
		}
	}
}

// cycleTable holds the documented cycle count of each opcode.
//
// Conditional calls and returns hold the not-taken count; execute adds
// the difference when the condition passes.  Conditional jumps consume
// ten cycles either way.
var cycleTable = [256]uint8{
	4, 10, 7, 5, 5, 5, 7, 4, 4, 10, 7, 5, 5, 5, 7, 4, // 0x00
	4, 10, 7, 5, 5, 5, 7, 4, 4, 10, 7, 5, 5, 5, 7, 4, // 0x10
	4, 10, 16, 5, 5, 5, 7, 4, 4, 10, 16, 5, 5, 5, 7, 4, // 0x20
	4, 10, 13, 5, 10, 10, 10, 4, 4, 10, 13, 5, 5, 5, 7, 4, // 0x30
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5, // 0x40
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5, // 0x50
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5, // 0x60
	7, 7, 7, 7, 7, 7, 7, 7, 5, 5, 5, 5, 5, 5, 7, 5, // 0x70
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4, // 0x80
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4, // 0x90
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4, // 0xA0
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4, // 0xB0
	5, 10, 10, 10, 11, 11, 7, 11, 5, 10, 10, 4, 11, 17, 7, 11, // 0xC0
	5, 10, 10, 10, 11, 11, 7, 11, 5, 4, 10, 10, 11, 11, 7, 11, // 0xD0
	5, 10, 10, 18, 11, 11, 7, 11, 5, 5, 10, 5, 11, 4, 7, 11, // 0xE0
	5, 10, 10, 4, 11, 11, 7, 11, 5, 5, 10, 4, 11, 4, 7, 11, // 0xF0
}

// condExtra is the additional cost of a taken conditional call or
// return.
const condExtra = 6

// opcodeLength returns the documented length of an opcode in bytes.
func opcodeLength(op uint8) uint8 {
	switch op {
	// LXI rp / SHLD / LHLD / STA / LDA
	case 0x01, 0x11, 0x21, 0x31, 0x22, 0x2A, 0x32, 0x3A:
		return 3
	// JMP / Jcc / CALL / Ccc
	case 0xC2, 0xC3, 0xC4, 0xCA, 0xCC, 0xCD,
		0xD2, 0xD4, 0xDA, 0xDC,
		0xE2, 0xE4, 0xEA, 0xEC,
		0xF2, 0xF4, 0xFA, 0xFC:
		return 3
	// MVI r
	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x36, 0x3E:
		return 2
	// Immediate ALU forms
	case 0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE:
		return 2
	// OUT / IN
	case 0xD3, 0xDB:
		return 2
	}
	return 1
}
