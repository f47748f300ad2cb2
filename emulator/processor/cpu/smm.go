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
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
	"github.com/sirupsen/logrus"
)

type SMMState int

const (
	SMMInactive SMMState = iota
	SMMActive
	SMMLatched
)

func (s SMMState) String() string {
	switch s {
	case SMMInactive:
		return "inactive"
	case SMMActive:
		return "active"
	case SMMLatched:
		return "latched"
	}
	return "unknown"
}

const (
	DefaultSMBase = 0x30000

	smmRevision   = 0x20030000
	smmEntryPoint = 0x8000
	smramTop      = 0x10000

	// PG, TS, EM and PE are cleared on entry.
	cr0SMMMask = 0x8000000D
	dr7Reset   = 0x400
)

// SaveState is the SMRAM state save area as 32-bit words.
type SaveState [128]uint32

// Cyrix configuration control register 1 bits.
const (
	CCR1UseSMI = 0x02
	CCR1SM3    = 0x80
)

// CyrixConfig holds the Cyrix registers that place and enable SMRAM.
type CyrixConfig struct {
	ARR3Base, ARR3Size uint32
	CCR1               byte
}

type smmSession struct {
	smbase  uint32
	state   SMMState
	latched bool
	line    bool
	inHalt  bool

	a20Override bool
	oldRAMMask  uint32

	buf SaveState
}

// SaveStateCodec maps CPU state to one family's SMRAM layout.
type SaveStateCodec interface {
	Name() string
	Save(p *CPU, s *SaveState, inHalt bool)
	Restore(p *CPU, s *SaveState)
	RevisionField() int
	Top(p *CPU) uint32
	Enter(p *CPU)
	Write(p *CPU, top uint32, s *SaveState)
	Read(p *CPU, top uint32, s *SaveState)
}

func codecForFamily(f Family) SaveStateCodec {
	switch f {
	case FamilyAm486:
		return am486Codec{}
	case FamilyP5:
		return p5Codec{}
	case FamilyP6:
		return p6Codec{}
	case FamilyAMDK:
		return amdKCodec{}
	case FamilyCyrix:
		return cyrixCodec{}
	}
	return nil
}

func (p *CPU) SMBase() uint32 {
	return p.smm.smbase
}

func (p *CPU) SetSMBase(base uint32) {
	p.smm.smbase = base
}

func (p *CPU) SMMState() SMMState {
	return p.smm.state
}

func (p *CPU) InSMM() bool {
	return p.smm.state != SMMInactive
}

// SMIPending reports an asserted SMI line not yet serviced.
func (p *CPU) SMIPending() bool {
	return p.smm.line
}

// SaveStateBuffer returns the last buffer written or read from SMRAM.
func (p *CPU) SaveStateBuffer() SaveState {
	return p.smm.buf
}

// RaiseSMI is the entry point for device models asserting SMI.
func (p *CPU) RaiseSMI() {
	if p.timer != nil {
		p.timer.Kick()
	}
	p.smm.line = true
}

func (p *CPU) smiAllowed() bool {
	if !p.model.HasSMM() {
		return false
	}
	if p.model.Family == FamilyCyrix {
		return p.Cyrix.CCR1&CCR1UseSMI != 0 && p.Cyrix.CCR1&CCR1SM3 != 0
	}
	return true
}

// EnterSMMCheck services an SMI request against the current SMM state.
// The SMI line is always clear on return.
func (p *CPU) EnterSMMCheck(inHalt bool) {
	if !p.smiAllowed() {
		p.smm.line = false
		return
	}

	p.smm.line = false
	switch p.smm.state {
	case SMMInactive:
		p.EnterSMM(inHalt)
	case SMMActive:
		p.smm.state = SMMLatched
		p.smm.latched = true
		p.logger().Debug("SMI latched")
	case SMMLatched:
	default:
		debug.Log.Panicf("invalid SMM state: %d", p.smm.state)
	}
	p.smm.line = false
}

// EnterSMM saves the CPU state to SMRAM and starts the SMI handler.
func (p *CPU) EnterSMM(inHalt bool) {
	if !p.model.HasSMM() {
		return
	}

	p.FlagsRebuild()
	p.smm.state = SMMActive
	p.smm.inHalt = inHalt
	p.stats.NumSMI++
	p.logSnapshot("smm-entry")

	oldCPL := p.CPL()
	s := &p.smm.buf
	*s = SaveState{}
	p.codec.Save(p, s, inHalt)
	s[p.codec.RevisionField()] = smmRevision
	top := p.codec.Top(p)

	p.CR0 &^= cr0SMMMask
	p.Flags = 2
	p.EFlags = 0
	p.FlagsExtract()
	p.CR4 = 0
	p.DR[7] = dr7Reset
	p.codec.Enter(p)

	p.cplOverride = true
	p.codec.Write(p, top, s)
	p.cplOverride = false
	p.dumpSaveState("smm-entry")

	p.SetNMIMask(true)
	if p.smm.line {
		p.smm.state = SMMLatched
		p.smm.latched = true
	}

	if p.UnmaskA20InSMM {
		p.smm.oldRAMMask = p.ramMask
		p.smm.a20Override = true
		if p.model.Bus16 {
			p.SetRAMMask(0xFFFFFF)
		} else {
			p.SetRAMMask(0xFFFFFFFF)
		}
	}

	p.oldCPL = oldCPL
	p.halted = false
	p.updateStatus()
	p.PrefetchFlush()

	p.logger().WithFields(logrus.Fields{
		"smbase": p.smm.smbase,
		"family": p.model.Family,
		"halted": inHalt,
	}).Debug("entered SMM")
	p.endBlock()
}

// LeaveSMM is RSM. It restores the state from SMRAM and re-asserts SMI if
// one was latched while the handler ran.
func (p *CPU) LeaveSMM() {
	if !p.model.HasSMM() {
		return
	}

	top := p.codec.Top(p)
	s := &p.smm.buf
	*s = SaveState{}

	p.cplOverride = true
	p.codec.Read(p, top, s)
	p.cplOverride = false
	p.codec.Restore(p, s)

	if p.smm.a20Override {
		p.SetRAMMask(p.smm.oldRAMMask)
		p.smm.a20Override = false
	}

	latched := p.smm.state == SMMLatched
	p.smm.state = SMMInactive
	p.smm.inHalt = false
	p.halted = false
	p.updateStatus()
	p.SetNMIMask(false)
	p.oldCPL = p.CPL()

	if latched {
		p.smm.latched = false
		p.smm.line = true
	}

	p.PrefetchFlush()
	p.mmu.Flush()
	p.logger().WithFields(logrus.Fields{
		"smbase": p.smm.smbase,
		"cpl":    p.oldCPL,
	}).Debug("left SMM")
	p.logSnapshot("smm-exit")
	p.endBlock()
}

func (p *CPU) dumpSaveState(label string) {
	if p.dumper == nil {
		return
	}
	if _, err := p.dumper.WriteSaveState(label, p.smm.buf[:]); err != nil {
		debug.Log.WithError(err).Warn("could not write save state")
	}
}

// Word offsets shared by every dense layout.
const (
	smmCR0 = iota
	smmCR3
	smmEFLAGS
	smmEIP
	smmEDI
	smmESI
	smmEBP
	smmESP
	smmEBX
	smmEDX
	smmECX
	smmEAX
	smmDR6
	smmDR7
	smmSelTR
	smmSelLDTR
	smmSelGS
	smmSelFS
	smmSelDS
	smmSelSS
	smmSelCS
	smmSelES
)

const (
	smmAutoHalt = 63
	smmRevField = 64
	smmSMBase   = 65
)

func (p *CPU) selectorOrder() [8]*processor.Segment {
	return [8]*processor.Segment{&p.TR, &p.LDTR, &p.GS, &p.FS, &p.DS, &p.SS, &p.CS, &p.ES}
}

func saveCommon(p *CPU, s *SaveState, inHalt bool) {
	s[smmCR0] = p.CR0
	s[smmCR3] = p.CR3
	s[smmEFLAGS] = p.EFLAGS()
	s[smmEIP] = p.PC
	for r := processor.EAX; r <= processor.EDI; r++ {
		s[smmEAX-r] = p.Regs[r]
	}
	s[smmDR6] = p.DR[6]
	s[smmDR7] = p.DR[7]
	for i, seg := range p.selectorOrder() {
		s[smmSelTR+i] = uint32(seg.Selector)
	}
	if inHalt {
		s[smmAutoHalt] = 1
	}
	s[smmSMBase] = p.smm.smbase
}

// restoreCommon loads the shared words. CR0 and EFLAGS come first so the
// segment normalization sees the restored mode.
func restoreCommon(p *CPU, s *SaveState) {
	p.CR0 = s[smmCR0]
	p.CR3 = s[smmCR3]
	p.SetEFLAGS(s[smmEFLAGS])
	p.FlagsExtract()
	p.PC = s[smmEIP]
	for r := processor.EAX; r <= processor.EDI; r++ {
		p.Regs[r] = s[smmEAX-r]
	}
	p.DR[6] = s[smmDR6]
	p.DR[7] = s[smmDR7]
	for i, seg := range p.selectorOrder() {
		seg.Selector = uint16(s[smmSelTR+i])
	}
	if s[smmAutoHalt]&1 != 0 {
		p.PC--
	}
	p.smm.smbase = s[smmSMBase]
}

func (p *CPU) normalizeSegments() {
	for _, seg := range p.selectorOrder() {
		p.smmSegLoad(seg)
	}
	p.IDTR.UpdateLimits()
	p.GDTR.UpdateLimits()
}

// putSegment stores the cache entry as access, base and limit words.
func putSegment(s *SaveState, n int, seg *processor.Segment) {
	s[n] = uint32(seg.ARHigh)<<16 | uint32(seg.Access)<<8
	s[n+1] = seg.Base
	s[n+2] = seg.Limit
}

func getSegment(s *SaveState, n int, seg *processor.Segment) {
	seg.Access = processor.AccessRights(s[n] >> 8)
	seg.ARHigh = processor.ExtendedRights(s[n] >> 16)
	seg.Base = s[n+1]
	seg.Limit = s[n+2]
}

// denseLayout stores the whole buffer as a descending block below
// SMBASE+0x10000 and enters the handler with flat real mode segments.
type denseLayout struct{}

func (denseLayout) RevisionField() int {
	return smmRevField
}

func (denseLayout) Top(p *CPU) uint32 {
	return p.smm.smbase + smramTop
}

func (denseLayout) Enter(p *CPU) {
	base := p.smm.smbase
	p.CS.MakeFlat(uint16(base>>4), base, processor.FlatData0, processor.ExtFlat16)
	for _, seg := range []*processor.Segment{&p.DS, &p.ES, &p.FS, &p.GS, &p.SS} {
		seg.MakeFlat(0, 0, processor.FlatData0, processor.ExtFlat16)
	}
	for _, seg := range []*processor.Segment{&p.CS, &p.DS, &p.ES, &p.FS, &p.GS, &p.SS} {
		p.smmSegLoad(seg)
	}
	p.PC = smmEntryPoint
}

func (denseLayout) Write(p *CPU, top uint32, s *SaveState) {
	for n, v := range s {
		p.WritePhysL(top-4*uint32(n+1), v)
	}
}

func (denseLayout) Read(p *CPU, top uint32, s *SaveState) {
	for n := range s {
		s[n] = p.ReadPhysL(top - 4*uint32(n+1))
	}
}
