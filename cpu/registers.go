// Register file and the packed processor status word.
//
// The PSW bit layout is guest-observable ABI: PUSH PSW round-trips the
// byte through memory, and programs exist which POP a value they never
// pushed.  Bit 1 always reads as one, bits 3 and 5 always read as zero.

package cpu

// Condition-code bit positions within the PSW byte.
const (
	// FlagCY is the carry flag.
	FlagCY uint8 = 0x01

	// FlagP is the parity flag, set when the result has even parity.
	FlagP uint8 = 0x04

	// FlagAC is the auxiliary carry, a carry out of bit 3.
	FlagAC uint8 = 0x10

	// FlagZ is the zero flag.
	FlagZ uint8 = 0x40

	// FlagS is the sign flag, a copy of bit 7 of the result.
	FlagS uint8 = 0x80

	// pswPadSet / pswPadClear are the constant pad bits.
	pswPadSet   uint8 = 0x02
	pswPadClear uint8 = 0x28
)

// fixPSW forces the pad bits of a PSW byte to their constant values.
func fixPSW(b uint8) uint8 {
	return (b | pswPadSet) &^ pswPadClear
}

// Registers holds the seven 8-bit working registers and the two 16-bit
// pointer registers.
type Registers struct {
	A uint8
	B uint8
	C uint8
	D uint8
	E uint8
	H uint8
	L uint8

	SP uint16
	PC uint16
}

// BC returns the B/C pair as a 16-bit value.
func (r *Registers) BC() uint16 {
	return (uint16(r.B) << 8) | uint16(r.C)
}

// SetBC stores a 16-bit value into the B/C pair.
func (r *Registers) SetBC(v uint16) {
	r.B = uint8(v >> 8)
	r.C = uint8(v & 0xFF)
}

// DE returns the D/E pair as a 16-bit value.
func (r *Registers) DE() uint16 {
	return (uint16(r.D) << 8) | uint16(r.E)
}

// SetDE stores a 16-bit value into the D/E pair.
func (r *Registers) SetDE(v uint16) {
	r.D = uint8(v >> 8)
	r.E = uint8(v & 0xFF)
}

// HL returns the H/L pair as a 16-bit value.
func (r *Registers) HL() uint16 {
	return (uint16(r.H) << 8) | uint16(r.L)
}

// SetHL stores a 16-bit value into the H/L pair.
func (r *Registers) SetHL(v uint16) {
	r.H = uint8(v >> 8)
	r.L = uint8(v & 0xFF)
}
