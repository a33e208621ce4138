// Instruction decode and execute.
//
// Decoding is by the full opcode byte.  The regular blocks - MOV,
// the ALU group, INR/DCR/MVI, conditional branches - are decoded by
// bit pattern; everything else is handled individually.  Reserved
// encodings behave as NOP unless the CPU is configured to fault.

package cpu

// Operand selectors, as encoded in the instruction bit patterns.
// Selector six names the memory byte addressed by HL.
const operandMem = 6

// getOperand reads the register or memory byte named by a selector.
func (c *CPU) getOperand(i uint8) (uint8, error) {
	switch i {
	case 0:
		return c.Regs.B, nil
	case 1:
		return c.Regs.C, nil
	case 2:
		return c.Regs.D, nil
	case 3:
		return c.Regs.E, nil
	case 4:
		return c.Regs.H, nil
	case 5:
		return c.Regs.L, nil
	case operandMem:
		b, err := c.Mem.Get(c.Regs.HL())
		if err != nil {
			return 0, c.memFault(c.Regs.PC, 0, err)
		}
		return b, nil
	default:
		return c.Regs.A, nil
	}
}

// setOperand writes the register or memory byte named by a selector.
func (c *CPU) setOperand(i uint8, v uint8) error {
	switch i {
	case 0:
		c.Regs.B = v
	case 1:
		c.Regs.C = v
	case 2:
		c.Regs.D = v
	case 3:
		c.Regs.E = v
	case 4:
		c.Regs.H = v
	case 5:
		c.Regs.L = v
	case operandMem:
		err := c.Mem.Set(c.Regs.HL(), v)
		if err != nil {
			return c.memFault(c.Regs.PC, 0, err)
		}
	default:
		c.Regs.A = v
	}
	return nil
}

// cond evaluates a branch condition selector: NZ Z NC C PO PE P M.
func (c *CPU) cond(i uint8) bool {
	switch i {
	case 0:
		return !c.Flag(FlagZ)
	case 1:
		return c.Flag(FlagZ)
	case 2:
		return !c.Flag(FlagCY)
	case 3:
		return c.Flag(FlagCY)
	case 4:
		return !c.Flag(FlagP)
	case 5:
		return c.Flag(FlagP)
	case 6:
		return !c.Flag(FlagS)
	default:
		return c.Flag(FlagS)
	}
}

// carryIn returns the carry flag as an arithmetic operand.
func (c *CPU) carryIn() uint8 {
	if c.Flag(FlagCY) {
		return 1
	}
	return 0
}

// add performs A = A + v + carry with full flag updates.
func (c *CPU) add(v uint8, carry uint8) {
	r := uint16(c.Regs.A) + uint16(v) + uint16(carry)
	c.setFlag(FlagAC, (c.Regs.A&0x0F)+(v&0x0F)+carry > 0x0F)
	c.setFlag(FlagCY, r > 0xFF)
	c.Regs.A = uint8(r)
	c.setZSP(c.Regs.A)
}

// subValue computes a - v - borrow with full flag updates, returning
// the result so CMP can discard it.
func (c *CPU) subValue(a, v, borrow uint8) uint8 {
	r := uint8(uint16(a) - uint16(v) - uint16(borrow))
	c.setFlag(FlagCY, uint16(v)+uint16(borrow) > uint16(a))
	c.setFlag(FlagAC, int(a&0x0F)-int(v&0x0F)-int(borrow) < 0)
	c.setZSP(r)
	return r
}

// ana performs A = A & v.  The auxiliary carry takes the OR of bit 3
// of the operands, which is what the 8080 actually does for AND.
func (c *CPU) ana(v uint8) {
	c.setFlag(FlagAC, (c.Regs.A|v)&0x08 != 0)
	c.Regs.A &= v
	c.setFlag(FlagCY, false)
	c.setZSP(c.Regs.A)
}

// xra performs A = A ^ v; carry and auxiliary carry are cleared.
func (c *CPU) xra(v uint8) {
	c.Regs.A ^= v
	c.setFlag(FlagCY, false)
	c.setFlag(FlagAC, false)
	c.setZSP(c.Regs.A)
}

// ora performs A = A | v; carry and auxiliary carry are cleared.
func (c *CPU) ora(v uint8) {
	c.Regs.A |= v
	c.setFlag(FlagCY, false)
	c.setFlag(FlagAC, false)
	c.setZSP(c.Regs.A)
}

// aluOp dispatches one of the eight accumulator operations by
// selector: ADD ADC SUB SBB ANA XRA ORA CMP.
func (c *CPU) aluOp(sel uint8, v uint8) {
	switch sel {
	case 0:
		c.add(v, 0)
	case 1:
		c.add(v, c.carryIn())
	case 2:
		c.Regs.A = c.subValue(c.Regs.A, v, 0)
	case 3:
		c.Regs.A = c.subValue(c.Regs.A, v, c.carryIn())
	case 4:
		c.ana(v)
	case 5:
		c.xra(v)
	case 6:
		c.ora(v)
	case 7:
		c.subValue(c.Regs.A, v, 0)
	}
}

// inr computes v + 1; the carry flag is untouched.
func (c *CPU) inr(v uint8) uint8 {
	r := v + 1
	c.setFlag(FlagAC, v&0x0F == 0x0F)
	c.setZSP(r)
	return r
}

// dcr computes v - 1; the carry flag is untouched.
func (c *CPU) dcr(v uint8) uint8 {
	r := v - 1
	c.setFlag(FlagAC, r&0x0F != 0x0F)
	c.setZSP(r)
	return r
}

// dad adds a 16-bit value into HL; only the carry flag changes.
func (c *CPU) dad(v uint16) {
	r := uint32(c.Regs.HL()) + uint32(v)
	c.setFlag(FlagCY, r > 0xFFFF)
	c.Regs.SetHL(uint16(r))
}

// daa adjusts the accumulator after BCD arithmetic.  The carry flag
// may be set but never cleared.
func (c *CPU) daa() {
	a := c.Regs.A

	if a&0x0F > 9 || c.Flag(FlagAC) {
		c.setFlag(FlagAC, (a&0x0F)+0x06 > 0x0F)
		a += 0x06
	} else {
		c.setFlag(FlagAC, false)
	}

	if a>>4 > 9 || c.Flag(FlagCY) {
		a += 0x60
		c.setFlag(FlagCY, true)
	}

	c.Regs.A = a
	c.setZSP(a)
}

// isReserved reports whether an opcode is one of the encodings the
// 8080 leaves unassigned.  They decode as NOP; the trap opcode is
// carved out of this set and handled separately.
func isReserved(op uint8) bool {
	switch op {
	case 0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38,
		0xCB, 0xD9, 0xED, 0xFD:
		return true
	}
	return false
}

// execute runs a single decoded instruction and returns its cycle
// cost.  PC is advanced by the documented instruction length, or
// redirected by a branch.
func (c *CPU) execute(op uint8) (uint, error) {
	cycles := uint(cycleTable[op])

	// The three regular blocks first.
	switch {
	case op == opHLT:
		c.halted = true
		c.Regs.PC++
		return cycles, nil

	case op >= 0x40 && op <= 0x7F:
		// MOV dst,src
		src := op & 0x07
		dst := (op >> 3) & 0x07
		v, err := c.getOperand(src)
		if err != nil {
			return 0, err
		}
		err = c.setOperand(dst, v)
		if err != nil {
			return 0, err
		}
		c.Regs.PC++
		return cycles, nil

	case op >= 0x80 && op <= 0xBF:
		// ADD ADC SUB SBB ANA XRA ORA CMP against a register
		// or memory operand.
		v, err := c.getOperand(op & 0x07)
		if err != nil {
			return 0, err
		}
		c.aluOp((op>>3)&0x07, v)
		c.Regs.PC++
		return cycles, nil
	}

	switch op {

	case 0x00: // NOP
		c.Regs.PC++

	case OpTrap:
		// The supervisor trap: control returns to the host at
		// the end of this step.
		c.syscall = true
		c.Regs.PC++

	case 0x01, 0x11, 0x21, 0x31: // LXI rp,word
		w, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		switch op {
		case 0x01:
			c.Regs.SetBC(w)
		case 0x11:
			c.Regs.SetDE(w)
		case 0x21:
			c.Regs.SetHL(w)
		case 0x31:
			c.Regs.SP = w
		}
		c.Regs.PC += 3

	case 0x02, 0x12: // STAX B / STAX D
		addr := c.Regs.BC()
		if op == 0x12 {
			addr = c.Regs.DE()
		}
		err := c.Mem.Set(addr, c.Regs.A)
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.PC++

	case 0x0A, 0x1A: // LDAX B / LDAX D
		addr := c.Regs.BC()
		if op == 0x1A {
			addr = c.Regs.DE()
		}
		v, err := c.Mem.Get(addr)
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.A = v
		c.Regs.PC++

	case 0x03, 0x13, 0x23, 0x33: // INX rp - no flags
		switch op {
		case 0x03:
			c.Regs.SetBC(c.Regs.BC() + 1)
		case 0x13:
			c.Regs.SetDE(c.Regs.DE() + 1)
		case 0x23:
			c.Regs.SetHL(c.Regs.HL() + 1)
		case 0x33:
			c.Regs.SP++
		}
		c.Regs.PC++

	case 0x0B, 0x1B, 0x2B, 0x3B: // DCX rp - no flags
		switch op {
		case 0x0B:
			c.Regs.SetBC(c.Regs.BC() - 1)
		case 0x1B:
			c.Regs.SetDE(c.Regs.DE() - 1)
		case 0x2B:
			c.Regs.SetHL(c.Regs.HL() - 1)
		case 0x3B:
			c.Regs.SP--
		}
		c.Regs.PC++

	case 0x09, 0x19, 0x29, 0x39: // DAD rp - CY only
		switch op {
		case 0x09:
			c.dad(c.Regs.BC())
		case 0x19:
			c.dad(c.Regs.DE())
		case 0x29:
			c.dad(c.Regs.HL())
		case 0x39:
			c.dad(c.Regs.SP)
		}
		c.Regs.PC++

	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x34, 0x3C: // INR
		sel := (op >> 3) & 0x07
		v, err := c.getOperand(sel)
		if err != nil {
			return 0, err
		}
		err = c.setOperand(sel, c.inr(v))
		if err != nil {
			return 0, err
		}
		c.Regs.PC++

	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x35, 0x3D: // DCR
		sel := (op >> 3) & 0x07
		v, err := c.getOperand(sel)
		if err != nil {
			return 0, err
		}
		err = c.setOperand(sel, c.dcr(v))
		if err != nil {
			return 0, err
		}
		c.Regs.PC++

	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x36, 0x3E: // MVI
		v, err := c.fetch8()
		if err != nil {
			return 0, err
		}
		err = c.setOperand((op>>3)&0x07, v)
		if err != nil {
			return 0, err
		}
		c.Regs.PC += 2

	case 0x07: // RLC
		cy := c.Regs.A >> 7
		c.Regs.A = (c.Regs.A << 1) | cy
		c.setFlag(FlagCY, cy != 0)
		c.Regs.PC++

	case 0x0F: // RRC
		cy := c.Regs.A & 0x01
		c.Regs.A = (c.Regs.A >> 1) | (cy << 7)
		c.setFlag(FlagCY, cy != 0)
		c.Regs.PC++

	case 0x17: // RAL - rotate left through carry
		cy := c.Regs.A >> 7
		c.Regs.A = (c.Regs.A << 1) | c.carryIn()
		c.setFlag(FlagCY, cy != 0)
		c.Regs.PC++

	case 0x1F: // RAR - rotate right through carry
		cy := c.Regs.A & 0x01
		c.Regs.A = (c.Regs.A >> 1) | (c.carryIn() << 7)
		c.setFlag(FlagCY, cy != 0)
		c.Regs.PC++

	case 0x22: // SHLD addr
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		err = c.Mem.SetU16(addr, c.Regs.HL())
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.PC += 3

	case 0x2A: // LHLD addr
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		w, err := c.Mem.GetU16(addr)
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.SetHL(w)
		c.Regs.PC += 3

	case 0x27: // DAA
		c.daa()
		c.Regs.PC++

	case 0x2F: // CMA
		c.Regs.A = ^c.Regs.A
		c.Regs.PC++

	case 0x32: // STA addr
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		err = c.Mem.Set(addr, c.Regs.A)
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.PC += 3

	case 0x3A: // LDA addr
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		v, err := c.Mem.Get(addr)
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.A = v
		c.Regs.PC += 3

	case 0x37: // STC
		c.setFlag(FlagCY, true)
		c.Regs.PC++

	case 0x3F: // CMC
		c.setFlag(FlagCY, !c.Flag(FlagCY))
		c.Regs.PC++

	case 0xC0, 0xC8, 0xD0, 0xD8, 0xE0, 0xE8, 0xF0, 0xF8: // Rcc
		if c.cond((op >> 3) & 0x07) {
			pc, err := c.pop16()
			if err != nil {
				return 0, err
			}
			c.Regs.PC = pc
			cycles += condExtra
		} else {
			c.Regs.PC++
		}

	case 0xC9: // RET
		pc, err := c.pop16()
		if err != nil {
			return 0, err
		}
		c.Regs.PC = pc

	case 0xC1, 0xD1, 0xE1: // POP rp
		w, err := c.pop16()
		if err != nil {
			return 0, err
		}
		switch op {
		case 0xC1:
			c.Regs.SetBC(w)
		case 0xD1:
			c.Regs.SetDE(w)
		case 0xE1:
			c.Regs.SetHL(w)
		}
		c.Regs.PC++

	case 0xF1: // POP PSW
		w, err := c.pop16()
		if err != nil {
			return 0, err
		}
		c.Regs.A = uint8(w >> 8)
		c.SetPSW(uint8(w & 0xFF))
		c.Regs.PC++

	case 0xC5, 0xD5, 0xE5: // PUSH rp
		var w uint16
		switch op {
		case 0xC5:
			w = c.Regs.BC()
		case 0xD5:
			w = c.Regs.DE()
		case 0xE5:
			w = c.Regs.HL()
		}
		err := c.push16(w)
		if err != nil {
			return 0, err
		}
		c.Regs.PC++

	case 0xF5: // PUSH PSW
		err := c.push16((uint16(c.Regs.A) << 8) | uint16(c.PSW()))
		if err != nil {
			return 0, err
		}
		c.Regs.PC++

	case 0xC3: // JMP addr
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		c.Regs.PC = addr

	case 0xC2, 0xCA, 0xD2, 0xDA, 0xE2, 0xEA, 0xF2, 0xFA: // Jcc
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		if c.cond((op >> 3) & 0x07) {
			c.Regs.PC = addr
		} else {
			c.Regs.PC += 3
		}

	case 0xCD: // CALL addr
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		err = c.push16(c.Regs.PC + 3)
		if err != nil {
			return 0, err
		}
		c.Regs.PC = addr

	case 0xC4, 0xCC, 0xD4, 0xDC, 0xE4, 0xEC, 0xF4, 0xFC: // Ccc
		addr, err := c.fetch16()
		if err != nil {
			return 0, err
		}
		if c.cond((op >> 3) & 0x07) {
			err = c.push16(c.Regs.PC + 3)
			if err != nil {
				return 0, err
			}
			c.Regs.PC = addr
			cycles += condExtra
		} else {
			c.Regs.PC += 3
		}

	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST n
		err := c.push16(c.Regs.PC + 1)
		if err != nil {
			return 0, err
		}
		c.Regs.PC = uint16(op&0x38)

	case 0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE: // ALU imm
		v, err := c.fetch8()
		if err != nil {
			return 0, err
		}
		c.aluOp((op>>3)&0x07, v)
		c.Regs.PC += 2

	case 0xD3: // OUT port
		port, err := c.fetch8()
		if err != nil {
			return 0, err
		}
		if c.IO != nil {
			c.IO.Out(port, c.Regs.A)
		}
		c.Regs.PC += 2

	case 0xDB: // IN port
		port, err := c.fetch8()
		if err != nil {
			return 0, err
		}
		if c.IO != nil {
			c.Regs.A = c.IO.In(port)
		} else {
			c.Regs.A = 0
		}
		c.Regs.PC += 2

	case 0xE3: // XTHL - exchange HL with the stack top
		w, err := c.Mem.GetU16(c.Regs.SP)
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		err = c.Mem.SetU16(c.Regs.SP, c.Regs.HL())
		if err != nil {
			return 0, c.memFault(c.Regs.PC, op, err)
		}
		c.Regs.SetHL(w)
		c.Regs.PC++

	case 0xE9: // PCHL
		c.Regs.PC = c.Regs.HL()

	case 0xEB: // XCHG
		d, e := c.Regs.D, c.Regs.E
		c.Regs.D, c.Regs.E = c.Regs.H, c.Regs.L
		c.Regs.H, c.Regs.L = d, e
		c.Regs.PC++

	case 0xF9: // SPHL
		c.Regs.SP = c.Regs.HL()
		c.Regs.PC++

	case 0xF3: // DI
		c.intEnable = false
		c.eiArm = false
		c.Regs.PC++

	case 0xFB: // EI - takes effect after the next instruction
		c.eiArm = true
		c.Regs.PC++

	default:
		if isReserved(op) && c.FatalInvalidOpcode {
			return 0, &Fault{Kind: FaultInvalidOpcode, PC: c.Regs.PC, Op: op}
		}
		c.Regs.PC++
	}

	return cycles, nil
}
