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

import (
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

// Cyrix SMM header, descending from the top of the ARR3 region.
const (
	cyrixDR7 = iota
	cyrixEFLAGS
	cyrixCR0
	cyrixOldPC
	cyrixPC
	cyrixCS
	cyrixCSHigh
	cyrixCSLow
	cyrixStatus
	cyrixIOData

	cyrixHeaderWords
)

const (
	// The revision is kept in the buffer but not in the header.
	cyrixRevField = cyrixHeaderWords

	cyrixCPLShift = 21
	cyrixHalted   = 0x04
)

// cyrixCodec saves only the state the handler cannot read itself. The
// general registers and data segments are left for the handler to save.
type cyrixCodec struct{}

func (cyrixCodec) Name() string {
	return "Cyrix"
}

func (cyrixCodec) RevisionField() int {
	return cyrixRevField
}

func (cyrixCodec) Top(p *CPU) uint32 {
	return p.Cyrix.ARR3Base + p.Cyrix.ARR3Size
}

func (cyrixCodec) Save(p *CPU, s *SaveState, inHalt bool) {
	s[cyrixDR7] = p.DR[7]
	s[cyrixEFLAGS] = p.EFLAGS()
	s[cyrixCR0] = p.CR0
	s[cyrixOldPC] = p.OldPC
	s[cyrixPC] = p.PC
	s[cyrixCS] = uint32(p.CS.Selector) | uint32(p.CPL())<<cyrixCPLShift
	s[cyrixCSLow], s[cyrixCSHigh] = p.CS.Descriptor()
	if inHalt {
		s[cyrixStatus] |= cyrixHalted
	}
}

// Enter injects a descriptor for the SMM code segment at the ARR3 base.
// The data segments keep their pre-SMI values.
func (cyrixCodec) Enter(p *CPU) {
	var cs processor.Segment
	cs.MakeFlat(0, p.Cyrix.ARR3Base, processor.FlatCode0, processor.ExtFlat16)
	lo, hi := cs.Descriptor()

	p.CS.Selector = uint16(p.Cyrix.ARR3Base >> 4)
	p.CS.LoadDescriptor(lo, hi)
	p.smmSegLoad(&p.CS)
	p.PC = 0
}

func (cyrixCodec) Restore(p *CPU, s *SaveState) {
	p.DR[7] = s[cyrixDR7]
	p.CR0 = s[cyrixCR0]
	p.SetEFLAGS(s[cyrixEFLAGS])
	p.FlagsExtract()
	p.OldPC = s[cyrixOldPC]
	p.PC = s[cyrixPC]

	p.CS.Selector = uint16(s[cyrixCS])
	p.CS.LoadDescriptor(s[cyrixCSLow], s[cyrixCSHigh])
	p.CS.Access = p.CS.Access.WithDPL(int(s[cyrixCS]>>cyrixCPLShift) & 3)
	p.smmSegLoad(&p.CS)

	if s[cyrixStatus]&cyrixHalted != 0 {
		p.PC--
	}
}

func (cyrixCodec) Write(p *CPU, top uint32, s *SaveState) {
	for n := 0; n < cyrixHeaderWords; n++ {
		p.WritePhysL(top-4*uint32(n+1), s[n])
	}
}

func (cyrixCodec) Read(p *CPU, top uint32, s *SaveState) {
	for n := 0; n < cyrixHeaderWords; n++ {
		s[n] = p.ReadPhysL(top - 4*uint32(n+1))
	}
}
