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

const (
	gateInterrupt16 = 0x06
	gateTrap16      = 0x07
	gateInterrupt32 = 0x0E
	gateTrap32      = 0x0F
)

// gateWalker is the built in protected mode delivery through the IDT.
// It handles interrupt and trap gates with inner ring stack switching.
type gateWalker struct {
	p *CPU
}

func hasErrorCode(vector int) bool {
	switch vector {
	case vectorDoubleFault, vectorInvalidTSS, vectorNotPresent, vectorStackFault, vectorGP, vectorPageFault, vectorAlignment:
		return true
	}
	return false
}

func (g *gateWalker) ProtectedModeInterrupt(vector int, software bool) {
	g.deliver(vector, software, 0)
}

func contributory(vector int) bool {
	switch vector {
	case 0, vectorInvalidTSS, vectorNotPresent, vectorStackFault, vectorGP:
		return true
	}
	return false
}

// escalate raises fault after delivery of vector failed, folding the pair
// into a double fault or a reset where the two cannot be handled serially.
func (g *gateWalker) escalate(vector, fault int, code uint16) {
	p := g.p
	p.abort = false
	p.stats.NumExceptions++

	switch {
	case vector == vectorDoubleFault:
		p.logger().WithError(processor.ErrTripleFault).Warn("double fault delivery failed")
		p.SoftReset()
		p.FlagsExtract()
	case contributory(vector) && contributory(fault),
		vector == vectorPageFault && (contributory(fault) || fault == vectorPageFault):
		g.deliver(vectorDoubleFault, false, 0)
	default:
		g.deliver(fault, false, code)
	}
}

func (g *gateWalker) deliver(vector int, software bool, code uint16) {
	p := g.p
	cpl := p.CPL()

	if software && p.V86() && p.Flags.IOPL() < 3 {
		g.escalate(vector, vectorGP, 0)
		return
	}

	offset := uint32(vector) << 3
	if offset+7 > p.IDTR.Limit {
		g.escalate(vector, vectorGP, uint16(offset)|2)
		return
	}

	p.cplOverride = true
	lo := p.readLinearL(p.IDTR.Base + offset)
	hi := p.readLinearL(p.IDTR.Base + offset + 4)
	p.cplOverride = false
	if p.abort {
		g.escalate(vector, vectorGP, uint16(offset)|2)
		return
	}

	access := processor.AccessRights(hi >> 8)
	gate := access.Type() & 0x1F
	switch gate {
	case gateInterrupt16, gateTrap16, gateInterrupt32, gateTrap32:
	default:
		g.escalate(vector, vectorGP, uint16(offset)|2)
		return
	}
	if software && access.DPL() < cpl {
		g.escalate(vector, vectorGP, uint16(offset)|2)
		return
	}
	if !access.Present() {
		g.escalate(vector, vectorNotPresent, uint16(offset)|2)
		return
	}

	selector := uint16(lo >> 16)
	target := lo & 0xFFFF
	is32 := gate&8 != 0
	if is32 {
		target |= hi & 0xFFFF0000
	}

	cs, ok := p.fetchSegment(selector)
	if !ok {
		g.escalate(vector, vectorGP, selector&^3)
		return
	}
	if !cs.Access.IsCode() || cs.DPL() > cpl {
		g.escalate(vector, vectorGP, selector&^3)
		return
	}
	if !cs.Access.Present() {
		g.escalate(vector, vectorNotPresent, selector&^3)
		return
	}

	// Conforming segments run at the caller's level.
	dpl := cs.DPL()
	if cs.Access.Type()&0x04 != 0 {
		dpl = cpl
	}

	oldCS, oldSS := p.CS.Selector, p.SS.Selector
	oldESP, oldFlags := p.ESP(), p.EFLAGS()

	ss := p.SS
	sp := oldESP
	innerRing := dpl < cpl || p.V86()
	if innerRing {
		if p.V86() && dpl != 0 {
			g.escalate(vector, vectorGP, selector&^3)
			return
		}

		p.cplOverride = true
		tssOffset := p.TR.Base + 4 + uint32(dpl)*8
		newESP := p.readLinearL(tssOffset)
		newSS := p.readLinearW(tssOffset + 4)
		p.cplOverride = false
		if p.abort {
			g.escalate(vector, vectorInvalidTSS, p.TR.Selector&^3)
			return
		}

		ss, ok = p.fetchSegment(newSS)
		if !ok {
			g.escalate(vector, vectorInvalidTSS, newSS&^3)
			return
		}
		if !ss.Access.Present() {
			g.escalate(vector, vectorStackFault, newSS&^3)
			return
		}
		sp = newESP
	}

	push := func(v uint32) {
		if is32 {
			sp -= 4
			p.writeMemL(&ss, g.stackOffset(&ss, sp), v)
		} else {
			sp -= 2
			p.writeMemW(&ss, g.stackOffset(&ss, sp), uint16(v))
		}
	}

	p.cplOverride = innerRing
	if p.V86() {
		push(uint32(p.GS.Selector))
		push(uint32(p.FS.Selector))
		push(uint32(p.DS.Selector))
		push(uint32(p.ES.Selector))
	}
	if innerRing {
		push(uint32(oldSS))
		push(oldESP)
	}
	push(oldFlags)
	push(uint32(oldCS))
	push(p.PC)
	if hasErrorCode(vector) && !software {
		push(uint32(code))
	}
	p.cplOverride = false

	if p.abort {
		g.escalate(vector, vectorStackFault, 0)
		return
	}

	if p.V86() {
		for _, s := range []*processor.Segment{&p.DS, &p.ES, &p.FS, &p.GS} {
			*s = nullSegment(0)
		}
	}

	p.SS = ss
	if ss.ARHigh.Big() {
		p.SetESP(sp)
	} else {
		p.SetSP(uint16(sp))
	}

	cs.Selector = selector&^3 | uint16(dpl)
	cs.Access = cs.Access.WithDPL(dpl)
	cs.Checked = true
	p.CS = cs
	p.PC = target

	p.Flags.Clear(processor.Trap | processor.NestedTask)
	p.EFlags.Clear(processor.Virtual8086 | processor.Resume)
	if gate == gateInterrupt16 || gate == gateInterrupt32 {
		p.Flags.Clear(processor.InterruptEnable)
	}
	p.updateStatus()
}

func (g *gateWalker) stackOffset(ss *processor.Segment, sp uint32) uint32 {
	if ss.ARHigh.Big() {
		return sp
	}
	return sp & 0xFFFF
}
