/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package cpu

type lockClass byte

const (
	lockIllegal lockClass = iota
	lockLegal
	lockGroup
	lockTwoByte
)

var lockOneByte = [256]lockClass{
	/*      0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F */
	/*0*/ 1, 1, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 3,
	/*1*/ 1, 1, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0,
	/*2*/ 1, 1, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0,
	/*3*/ 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*4*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*5*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*6*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*7*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*8*/ 2, 2, 2, 2, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0,
	/*9*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*A*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*B*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*C*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*D*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*E*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*F*/ 0, 0, 0, 0, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0, 2, 2,
}

var lockTwoByteMap = [256]lockClass{
	/*      0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F */
	/*0*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*1*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*2*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*3*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*4*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*5*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*6*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*7*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*8*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*9*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*A*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0,
	/*B*/ 1, 1, 0, 1, 0, 0, 0, 0, 0, 0, 2, 1, 0, 0, 0, 0,
	/*C*/ 1, 1, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0,
	/*D*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*E*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	/*F*/ 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Indexed by the ModRM reg field.
var (
	lockGroup80 = [8]bool{true, true, true, true, true, true, true, false}       // ADD..XOR, not CMP
	lockGroupF6 = [8]bool{false, false, true, true, false, false, false, false}  // NOT, NEG
	lockGroupFE = [8]bool{true, true, false, false, false, false, false, false}  // INC, DEC
	lockGroupBA = [8]bool{false, false, false, false, false, true, true, true}   // BTS, BTR, BTC
	lockGroupC7 = [8]bool{false, true, false, false, false, false, false, false} // CMPXCHG8B
)

// IsLockLegal reports whether a LOCK prefix may precede the instruction in
// window. Byte 0 is the opcode, byte 1 the ModRM byte or, after 0x0F, the
// second opcode byte, and byte 2 the ModRM byte of a two byte opcode.
func IsLockLegal(m *Model, window uint32) bool {
	if !m.LockCheck {
		return false
	}

	table := &lockOneByte
	op, modrm := byte(window), byte(window>>8)

	class := table[op]
	if class == lockTwoByte {
		table = &lockTwoByteMap
		op, modrm = byte(window>>8), byte(window>>16)
		class = table[op]
	}

	legal := false
	switch class {
	case lockLegal:
		legal = true
	case lockGroup:
		reg := (modrm >> 3) & 7
		if table == &lockOneByte {
			switch op {
			case 0x80, 0x81, 0x82, 0x83:
				legal = lockGroup80[reg]
			case 0xF6, 0xF7:
				legal = lockGroupF6[reg]
			case 0xFE, 0xFF:
				legal = lockGroupFE[reg]
			}
		} else {
			switch op {
			case 0xBA:
				legal = lockGroupBA[reg]
			case 0xC7:
				legal = lockGroupC7[reg]
			}
		}
	}

	// A register operand can never be locked.
	if legal && modrm>>6 == 3 {
		legal = false
	}
	return legal
}

func (p *CPU) IsLockLegal(window uint32) bool {
	return IsLockLegal(p.model, window)
}
