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

// Pentium layout. The Am486 layout extends it with CR2 and DR0-3.
const (
	p5TR   = 22
	p5IDTR = 25
	p5GDTR = 28
	p5LDTR = 31
	p5GS   = 34
	p5FS   = 37
	p5DS   = 40
	p5SS   = 43
	p5CS   = 46
	p5ES   = 49

	p5CR4           = 53
	p5AltDR6        = 54
	p5IORestartEIP  = 59
	p5IORestartESI  = 60
	p5IORestartECX  = 61
	p5IORestartEDI  = 62
	am486CR2        = 66
	am486DR0        = 67
	am486DebugWords = 4
)

type segSlot struct {
	n   int
	seg *processor.Segment
}

func p5Slots(p *CPU) []segSlot {
	return []segSlot{
		{p5TR, &p.TR}, {p5IDTR, &p.IDTR}, {p5GDTR, &p.GDTR}, {p5LDTR, &p.LDTR},
		{p5GS, &p.GS}, {p5FS, &p.FS}, {p5DS, &p.DS}, {p5SS, &p.SS},
		{p5CS, &p.CS}, {p5ES, &p.ES},
	}
}

type p5Codec struct {
	denseLayout
}

func (p5Codec) Name() string {
	return "P5"
}

func (p5Codec) Save(p *CPU, s *SaveState, inHalt bool) {
	saveCommon(p, s, inHalt)
	for _, sl := range p5Slots(p) {
		putSegment(s, sl.n, sl.seg)
	}
	s[p5CR4] = p.CR4
	s[p5AltDR6] = p.DR[6]
	s[p5IORestartEIP] = p.PC
	s[p5IORestartESI] = p.ESI()
	s[p5IORestartECX] = p.ECX()
	s[p5IORestartEDI] = p.EDI()
}

// Restore takes the CS privilege level from SS, as the hardware does.
func (p5Codec) Restore(p *CPU, s *SaveState) {
	restoreCommon(p, s)
	for _, sl := range p5Slots(p) {
		getSegment(s, sl.n, sl.seg)
	}
	p.CR4 = s[p5CR4]
	p.CS.Access = p.CS.Access.WithDPL(p.SS.DPL())
	p.normalizeSegments()
}

type am486Codec struct {
	p5Codec
}

func (am486Codec) Name() string {
	return "Am486"
}

func (c am486Codec) Save(p *CPU, s *SaveState, inHalt bool) {
	c.p5Codec.Save(p, s, inHalt)
	s[am486CR2] = p.CR2
	for i := 0; i < am486DebugWords; i++ {
		s[am486DR0+i] = p.DR[i]
	}
}

func (c am486Codec) Restore(p *CPU, s *SaveState) {
	c.p5Codec.Restore(p, s)
	p.CR2 = s[am486CR2]
	for i := 0; i < am486DebugWords; i++ {
		p.DR[i] = s[am486DR0+i]
	}
}
