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

// loadSegReal loads a segment register outside protected mode.
func (p *CPU) loadSegReal(s *processor.Segment, selector uint16) {
	s.LoadReal(selector)
	if p.V86() {
		s.Limit = 0xFFFF
		s.Access = processor.FlatData3
		s.ARHigh = 0
		s.UpdateLimits()
	}
	s.Checked = true
	if s == &p.SS {
		p.updateStatus()
	}
}

// loadCS loads CS in real or V86 mode and updates the code size.
func (p *CPU) loadCS(selector uint16) {
	p.loadSegReal(&p.CS, selector)
	if p.V86() {
		p.CS.Access = processor.FlatCode3
	}
	p.updateStatus()
}

// readDescriptor fetches the raw descriptor for selector from the GDT or LDT.
func (p *CPU) readDescriptor(selector uint16) (lo, hi uint32, ok bool) {
	table := &p.GDTR
	if selector&4 != 0 {
		table = &p.LDTR
	}
	index := uint32(selector &^ 7)
	if index+7 > table.Limit {
		return 0, 0, false
	}

	override := p.cplOverride
	p.cplOverride = true
	lo = p.readLinearL(table.Base + index)
	hi = p.readLinearL(table.Base + index + 4)
	p.cplOverride = override
	return lo, hi, !p.abort
}

// nullSegment is the cache entry a null selector loads in protected mode.
func nullSegment(selector uint16) processor.Segment {
	return processor.Segment{Selector: selector}
}

// fetchSegment reads the descriptor for a non-null selector into a detached
// cache entry. Nothing is committed to the CPU.
func (p *CPU) fetchSegment(selector uint16) (processor.Segment, bool) {
	var s processor.Segment
	if selector&^3 == 0 {
		return s, false
	}
	lo, hi, ok := p.readDescriptor(selector)
	if !ok {
		return s, false
	}
	s.Selector = selector
	s.LoadDescriptor(lo, hi)
	s.Checked = true
	return s, true
}

// smmSegLoad normalizes a segment restored from SMRAM.
func (p *CPU) smmSegLoad(s *processor.Segment) {
	if p.model.Bus16 {
		s.Base &= 0x00FFFFFF
	}
	s.UpdateLimits()

	if p.Protected() && !p.EFlags.GetBool(processor.Virtual8086) {
		s.Checked = s.Selector&^3 != 0
	} else {
		s.Checked = true
	}
}
