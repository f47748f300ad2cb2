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

package processor

const (
	Carry           Flags = 0x0001
	Parity          Flags = 0x0004
	Adjust          Flags = 0x0010
	Zero            Flags = 0x0040
	Sign            Flags = 0x0080
	Trap            Flags = 0x0100
	InterruptEnable Flags = 0x0200
	Direction       Flags = 0x0400
	Overflow        Flags = 0x0800
	IOPrivilege     Flags = 0x3000
	NestedTask      Flags = 0x4000
)

const ArithmeticFlags = Carry | Parity | Adjust | Zero | Sign | Overflow

// Upper half of EFLAGS.
const (
	Resume         EFlags = 0x0001
	Virtual8086    EFlags = 0x0002
	AlignmentCheck EFlags = 0x0004
	VirtualIF      EFlags = 0x0008
	VirtualIFPend  EFlags = 0x0010
	Identification EFlags = 0x0020
)

type Flags uint16

func (r *Flags) Get(f Flags) Flags {
	return *r & f
}

func (r *Flags) GetBool(f Flags) bool {
	return r.Get(f) != 0
}

func (r *Flags) Set(f Flags) {
	*r |= f
}

func (r *Flags) SetBool(f Flags, b bool) {
	if b {
		r.Set(f)
		return
	}
	r.Clear(f)
}

func (r *Flags) Clear(f Flags) {
	*r &= ^f
}

func (r Flags) IOPL() int {
	return int(r&IOPrivilege) >> 12
}

type EFlags uint16

func (r *EFlags) GetBool(f EFlags) bool {
	return *r&f != 0
}

func (r *EFlags) Set(f EFlags) {
	*r |= f
}

func (r *EFlags) Clear(f EFlags) {
	*r &= ^f
}

const (
	EAX = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

// Registers is the integer register file. EFLAGS is kept as two halves so
// the arithmetic part can be recomputed without touching the system bits.
type Registers struct {
	Regs [8]uint32

	Flags
	EFlags EFlags

	PC, OldPC uint32
	OldCS     uint16
	Debug     bool
}

func (r *Registers) Reset() {
	*r = Registers{Flags: 2}
}

func (r *Registers) EFLAGS() uint32 {
	return uint32(r.EFlags)<<16 | uint32(r.Flags)
}

func (r *Registers) SetEFLAGS(v uint32) {
	r.Flags = Flags(v) | 2
	r.EFlags = EFlags(v >> 16)
}

func (r *Registers) EAX() uint32 {
	return r.Regs[EAX]
}

func (r *Registers) SetEAX(v uint32) {
	r.Regs[EAX] = v
}

func (r *Registers) ECX() uint32 {
	return r.Regs[ECX]
}

func (r *Registers) SetECX(v uint32) {
	r.Regs[ECX] = v
}

func (r *Registers) EDX() uint32 {
	return r.Regs[EDX]
}

func (r *Registers) SetEDX(v uint32) {
	r.Regs[EDX] = v
}

func (r *Registers) EBX() uint32 {
	return r.Regs[EBX]
}

func (r *Registers) SetEBX(v uint32) {
	r.Regs[EBX] = v
}

func (r *Registers) ESP() uint32 {
	return r.Regs[ESP]
}

func (r *Registers) SetESP(v uint32) {
	r.Regs[ESP] = v
}

func (r *Registers) SP() uint16 {
	return uint16(r.Regs[ESP])
}

func (r *Registers) SetSP(v uint16) {
	r.Regs[ESP] = r.Regs[ESP]&0xFFFF0000 | uint32(v)
}

func (r *Registers) EBP() uint32 {
	return r.Regs[EBP]
}

func (r *Registers) ESI() uint32 {
	return r.Regs[ESI]
}

func (r *Registers) EDI() uint32 {
	return r.Regs[EDI]
}
