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

// P6 layout. Segments are stored as base, limit and an attribute word
// carrying the selector, access byte and extended rights.
const (
	p6SS      = 22
	p6CS      = 25
	p6ES      = 28
	p6LDTR    = 31
	p6GDTR    = 34
	p6Status1 = 37
	p6TR      = 38
	p6IDTR    = 41
	p6GS      = 44
	p6Status3 = 47
	p6FS      = 48
	p6Status4 = 51
	p6DS      = 52
	p6Status0 = 55

	p6CPL          = 57
	p6CR2          = 58
	p6CR4          = 59
	p6IORestartESI = 60
	p6IORestartECX = 61
	p6IORestartEDI = 62
)

func p6Slots(p *CPU) []segSlot {
	return []segSlot{
		{p6SS, &p.SS}, {p6CS, &p.CS}, {p6ES, &p.ES}, {p6LDTR, &p.LDTR},
		{p6GDTR, &p.GDTR}, {p6TR, &p.TR}, {p6IDTR, &p.IDTR}, {p6GS, &p.GS},
		{p6FS, &p.FS}, {p6DS, &p.DS},
	}
}

type p6Codec struct {
	denseLayout
}

func (p6Codec) Name() string {
	return "P6"
}

func (p6Codec) Save(p *CPU, s *SaveState, inHalt bool) {
	saveCommon(p, s, inHalt)
	for _, sl := range p6Slots(p) {
		s[sl.n] = sl.seg.Base
		s[sl.n+1] = sl.seg.Limit
		s[sl.n+2] = uint32(sl.seg.Selector) | uint32(sl.seg.Access)<<16 | uint32(sl.seg.ARHigh)<<24
	}
	s[p6CPL] = uint32(p.CPL())
	s[p6CR2] = p.CR2
	s[p6CR4] = p.CR4
	s[p6IORestartESI] = p.ESI()
	s[p6IORestartECX] = p.ECX()
	s[p6IORestartEDI] = p.EDI()
}

// Restore sets the CS privilege level from the stored CPL word.
func (p6Codec) Restore(p *CPU, s *SaveState) {
	restoreCommon(p, s)
	for _, sl := range p6Slots(p) {
		sl.seg.Base = s[sl.n]
		sl.seg.Limit = s[sl.n+1]
		sl.seg.Access = processor.AccessRights(s[sl.n+2] >> 16)
		sl.seg.ARHigh = processor.ExtendedRights(s[sl.n+2] >> 24)
	}
	p.CR2 = s[p6CR2]
	p.CR4 = s[p6CR4]
	p.CS.Access = p.CS.Access.WithDPL(int(s[p6CPL] & 3))
	p.normalizeSegments()
}
