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

// AMD K5/K6 layout. IDTR and GDTR are stored as base and limit only.
const (
	amdIORestartDword = 22
	amdIORestartEIP   = 24
	amdIDTRBase       = 27
	amdIDTRLimit      = 28
	amdGDTRBase       = 29
	amdGDTRLimit      = 30
	amdTR             = 31
	amdLDTR           = 34
	amdGS             = 37
	amdFS             = 40
	amdDS             = 43
	amdSS             = 46
	amdCS             = 49
	amdES             = 52

	amdCR2          = 58
	amdCR4          = 59
	amdIORestartESI = 60
	amdIORestartECX = 61
	amdIORestartEDI = 62
)

func amdKSlots(p *CPU) []segSlot {
	return []segSlot{
		{amdTR, &p.TR}, {amdLDTR, &p.LDTR}, {amdGS, &p.GS}, {amdFS, &p.FS},
		{amdDS, &p.DS}, {amdSS, &p.SS}, {amdCS, &p.CS}, {amdES, &p.ES},
	}
}

type amdKCodec struct {
	denseLayout
}

func (amdKCodec) Name() string {
	return "AMD-K"
}

func (amdKCodec) Save(p *CPU, s *SaveState, inHalt bool) {
	saveCommon(p, s, inHalt)
	s[amdIORestartEIP] = p.PC
	s[amdIDTRBase] = p.IDTR.Base
	s[amdIDTRLimit] = p.IDTR.Limit
	s[amdGDTRBase] = p.GDTR.Base
	s[amdGDTRLimit] = p.GDTR.Limit
	for _, sl := range amdKSlots(p) {
		putSegment(s, sl.n, sl.seg)
	}
	s[amdCR2] = p.CR2
	s[amdCR4] = p.CR4
	s[amdIORestartESI] = p.ESI()
	s[amdIORestartECX] = p.ECX()
	s[amdIORestartEDI] = p.EDI()
}

// Restore takes the CS privilege level from SS.
func (amdKCodec) Restore(p *CPU, s *SaveState) {
	restoreCommon(p, s)
	p.IDTR.Base = s[amdIDTRBase]
	p.IDTR.Limit = s[amdIDTRLimit]
	p.GDTR.Base = s[amdGDTRBase]
	p.GDTR.Limit = s[amdGDTRLimit]
	for _, sl := range amdKSlots(p) {
		getSegment(s, sl.n, sl.seg)
	}
	p.CR2 = s[amdCR2]
	p.CR4 = s[amdCR4]
	p.CS.Access = p.CS.Access.WithDPL(p.SS.DPL())
	p.normalizeSegments()
}
