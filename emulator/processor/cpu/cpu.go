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
	"errors"

	"github.com/andreas-jonsson/virtualx86/emulator/memory"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
	"github.com/sirupsen/logrus"
)

const MaxPeripherals = 32

const (
	CR0PE = 0x00000001
	CR0MP = 0x00000002
	CR0EM = 0x00000004
	CR0TS = 0x00000008
	CR0PG = 0x80000000
)

type Status uint32

const (
	StatusPMode Status = 1 << iota
	StatusV86
	StatusUse32
	StatusStack32
	StatusNotFlatDS
	StatusNotFlatSS
)

type MSRs struct {
	SysenterCS, SysenterESP, SysenterEIP uint32
	STAR                                 uint64
}

type nopObserver struct{}

func (nopObserver) EndBlock() {}

type identityMMU struct{}

func (identityMMU) Translate(linear uint32, write, user bool) (uint32, bool) {
	return linear, true
}

func (identityMMU) Flush()     {}
func (identityMMU) FlushNoPC() {}

// CPU is the owned context shared by every component of the core.
type CPU struct {
	processor.Registers

	CS, DS, ES, SS, FS, GS processor.Segment
	LDTR, TR, IDTR, GDTR   processor.Segment

	CR0, CR2, CR3, CR4 uint32
	DR                 [8]uint32
	MSR                MSRs

	// Cycles counts down as the core charges time.
	Cycles int

	status      Status
	lazy        lazyFlags
	abort       bool
	cplOverride bool
	oldCPL      int
	inSys       bool
	trap        bool
	halted      bool

	endBlockAfterIns int

	prefetchBytes, prefetchPrefixes int

	nmiPending, nmiMask bool

	model *Model
	codec SaveStateCodec
	smm   smmSession
	Cyrix CyrixConfig

	// UnmaskA20InSMM lifts the A20 gate while the CPU is in SMM.
	UnmaskA20InSMM bool
	ramMask        uint32

	stats       processor.Stats
	peripherals []peripheral.Peripheral
	pic         processor.InterruptController
	mmu         processor.MMU
	jit         processor.BlockObserver
	gates       processor.GateWalker
	timer       processor.EventTimer
	recorder    processor.Recorder
	dumper      *debug.Dumper

	iomap         [0x10000]byte
	ioPeripherals [MaxPeripherals]memory.IO

	mmap           [1 << (32 - memory.PageShift)]byte
	memPeripherals [MaxPeripherals]memory.Memory
}

func NewCPU(model *Model, peripherals []peripheral.Peripheral) (*CPU, []error) {
	p := &CPU{
		peripherals: peripherals,
		mmu:         identityMMU{},
		jit:         nopObserver{},
		ramMask:     0xFFFFFFFF,
	}
	p.gates = &gateWalker{p}
	p.SetModel(model)

	dummyIO := &memory.DummyIO{}
	for i := range p.ioPeripherals[:] {
		p.ioPeripherals[i] = dummyIO
	}

	dummyMem := &memory.DummyMemory{}
	for i := range p.memPeripherals[:] {
		p.memPeripherals[i] = dummyMem
	}

	for i := 1; i <= len(peripherals); i++ {
		if dev, ok := peripherals[i-1].(memory.IO); ok {
			p.ioPeripherals[i] = dev
		}
		if dev, ok := peripherals[i-1].(memory.Memory); ok {
			p.memPeripherals[i] = dev
		}
	}

	errs := p.installPeripherals()
	p.Reset()
	return p, errs
}

// SetModel selects the CPU model and with it the save-state codec.
func (p *CPU) SetModel(m *Model) {
	p.model = m
	p.codec = codecForFamily(m.Family)
	if m.Bus16 {
		p.ramMask = 0xFFFFFF
	} else {
		p.ramMask = 0xFFFFFFFF
	}
}

func (p *CPU) Model() *Model {
	return p.model
}

func (p *CPU) Codec() SaveStateCodec {
	return p.codec
}

func (p *CPU) SetMMU(m processor.MMU) {
	p.mmu = m
}

func (p *CPU) SetBlockObserver(o processor.BlockObserver) {
	if o == nil {
		o = nopObserver{}
	}
	p.jit = o
}

func (p *CPU) SetGateWalker(g processor.GateWalker) {
	p.gates = g
}

func (p *CPU) SetDumper(d *debug.Dumper) {
	p.dumper = d
}

// SetRecorder installs a sink for mode transition events. Nil disables it.
func (p *CPU) SetRecorder(r processor.Recorder) {
	p.recorder = r
}

func (p *CPU) InstallEventTimer(t processor.EventTimer) {
	p.timer = t
}

func (p *CPU) installPeripherals() []error {
	var errs []error
	for _, d := range p.peripherals {
		if err := d.Install(p); err != nil {
			errs = append(errs, err)
			debug.Log.WithField("device", d.Name()).Error("failed to install peripheral: ", err)
		}
		if pic, ok := d.(processor.InterruptController); ok {
			p.pic = pic
		}
	}
	if p.pic == nil {
		debug.Log.Warn("no interrupt controller detected")
	}
	return errs
}

func (p *CPU) Close() {
	for _, d := range p.peripherals {
		if cd, b := d.(peripheral.PeripheralCloser); b {
			if err := cd.Close(); err != nil {
				debug.Log.Error("failed to close peripheral: ", err)
			}
		}
	}
}

func (p *CPU) Break() {
	p.Debug = true
}

func (p *CPU) GetStats() processor.Stats {
	s := p.stats
	p.stats = processor.Stats{}
	return s
}

func (p *CPU) GetInterruptController() processor.InterruptController {
	return p.pic
}

func (p *CPU) GetRegisters() *processor.Registers {
	return &p.Registers
}

// Reset performs a hard reset of the CPU and every peripheral.
func (p *CPU) Reset() {
	p.resetState()
	p.smm = smmSession{smbase: 0x30000}
	for _, d := range p.peripherals {
		d.Reset()
	}
}

// SoftReset resets the processor alone, as a triple fault does.
func (p *CPU) SoftReset() {
	debug.Log.WithField("model", p.model.Name).Info("CPU reset")
	p.stats.NumResets++
	p.resetState()
	p.logSnapshot("reset")
	p.jit.EndBlock()
}

func (p *CPU) resetState() {
	p.Registers.Reset()
	p.SetEDX(p.model.Signature)
	p.PC = 0xFFF0
	p.OldPC = p.PC

	p.CS = processor.Segment{Selector: 0xF000, Base: 0xFFFF0000, Limit: 0xFFFF, Access: processor.FlatData0}
	for _, s := range []*processor.Segment{&p.DS, &p.ES, &p.SS, &p.FS, &p.GS} {
		*s = processor.Segment{Limit: 0xFFFF, Access: processor.FlatData0}
	}
	p.LDTR = processor.Segment{Limit: 0xFFFF, Access: 0x82}
	p.TR = processor.Segment{Limit: 0xFFFF, Access: 0x8B}
	p.IDTR = processor.Segment{Limit: 0x3FF}
	p.GDTR = processor.Segment{Limit: 0xFFFF}
	for _, s := range p.segments() {
		s.UpdateLimits()
		s.Checked = true
	}

	p.CR0 = 0x10
	p.CR2, p.CR3, p.CR4 = 0, 0, 0
	p.DR = [8]uint32{}
	p.DR[6] = 0xFFFF0FF0
	p.DR[7] = 0x400

	p.lazy = lazyFlags{}
	p.abort = false
	p.cplOverride = false
	p.oldCPL = 0
	p.inSys = false
	p.trap = false
	p.halted = false
	p.endBlockAfterIns = 0
	p.nmiPending = false
	p.nmiMask = false
	p.PrefetchFlush()
	p.prefetchPrefixes = 0
	p.updateStatus()
	p.mmu.Flush()
}

func (p *CPU) segments() []*processor.Segment {
	return []*processor.Segment{&p.CS, &p.DS, &p.ES, &p.SS, &p.FS, &p.GS, &p.LDTR, &p.TR, &p.IDTR, &p.GDTR}
}

func (p *CPU) Status() Status {
	return p.status
}

func (p *CPU) Protected() bool {
	return p.CR0&CR0PE != 0
}

func (p *CPU) V86() bool {
	return p.Protected() && p.EFlags.GetBool(processor.Virtual8086)
}

// CPL is the privilege level of the executing code segment.
func (p *CPU) CPL() int {
	switch {
	case !p.Protected():
		return 0
	case p.V86():
		return 3
	default:
		return p.CS.DPL()
	}
}

// ResumedCPL is the privilege level cached for the next translated block.
func (p *CPU) ResumedCPL() int {
	return p.oldCPL
}

func (p *CPU) InSystemCall() bool {
	return p.inSys
}

func (p *CPU) Halted() bool {
	return p.halted
}

// Halt is called by the HLT handler; the state is kept for AUTOHALT restart.
func (p *CPU) Halt() {
	p.halted = true
}

func (p *CPU) updateStatus() {
	p.status &^= StatusPMode | StatusV86 | StatusUse32 | StatusStack32 | StatusNotFlatDS | StatusNotFlatSS
	if p.Protected() {
		p.status |= StatusPMode
		if p.EFlags.GetBool(processor.Virtual8086) {
			p.status |= StatusV86
		}
	}
	if p.CS.ARHigh.Big() {
		p.status |= StatusUse32
	}
	if p.SS.ARHigh.Big() {
		p.status |= StatusStack32
	}
	if !p.DS.IsFlat() {
		p.status |= StatusNotFlatDS
	}
	if !p.SS.IsFlat() {
		p.status |= StatusNotFlatSS
	}
}

func (p *CPU) endBlock() {
	p.jit.EndBlock()
}

// State returns a copy of the architectural state.
func (p *CPU) State() processor.State {
	return processor.State{
		Regs:   p.Regs,
		EFLAGS: p.EFLAGS(),
		PC:     p.PC,
		CS:     p.CS, DS: p.DS, ES: p.ES, SS: p.SS, FS: p.FS, GS: p.GS,
		LDTR: p.LDTR, TR: p.TR, IDTR: p.IDTR, GDTR: p.GDTR,
		CR0: p.CR0, CR2: p.CR2, CR3: p.CR3, CR4: p.CR4,
		DR:     p.DR,
		CPL:    p.CPL(),
		SMBase: p.smm.smbase,
		SMM:    int(p.smm.state),
		Halted: p.halted,
	}
}

// Snapshot captures the state and the instruction bytes at CS:EIP.
func (p *CPU) Snapshot(label string) *debug.Snapshot {
	code := make([]byte, 15)
	for i := range code {
		code[i] = p.ReadByte(memory.Pointer(p.CS.Base + p.PC + uint32(i)))
	}
	return debug.NewSnapshot(label, p.State(), code)
}

func (p *CPU) logSnapshot(label string) {
	if p.recorder != nil {
		p.recorder.Record(label, p.State())
	}
	if !debug.EnableDebug {
		return
	}
	s := p.Snapshot(label)
	debug.Log.Debug(s.String())
	if p.dumper != nil {
		if _, err := p.dumper.WriteSnapshot(s); err != nil {
			debug.Log.WithError(err).Warn("could not write snapshot")
		}
	}
}

func (p *CPU) GetMappedMemoryDevice(addr memory.Pointer) memory.Memory {
	return p.memPeripherals[p.mmap[addr.Page()]]
}

func (p *CPU) GetMappedIODevice(port uint16) memory.IO {
	return p.ioPeripherals[p.iomap[port]]
}

func (p *CPU) InByte(port uint16) byte {
	p.stats.RX++
	return p.GetMappedIODevice(port).In(port)
}

func (p *CPU) OutByte(port uint16, data byte) {
	p.stats.TX++
	p.GetMappedIODevice(port).Out(port, data)
}

// ReadByte reads physical memory through the A20/bus mask.
func (p *CPU) ReadByte(addr memory.Pointer) byte {
	p.stats.RX++
	addr &= memory.Pointer(p.ramMask)
	return p.GetMappedMemoryDevice(addr).ReadByte(addr)
}

func (p *CPU) WriteByte(addr memory.Pointer, data byte) {
	p.stats.TX++
	addr &= memory.Pointer(p.ramMask)
	p.GetMappedMemoryDevice(addr).WriteByte(addr, data)
}

// SetRAMMask programs the address mask, normally driven by the A20 gate.
func (p *CPU) SetRAMMask(mask uint32) {
	p.ramMask = mask
	p.mmu.Flush()
}

func (p *CPU) RAMMask() uint32 {
	return p.ramMask
}

func (p *CPU) InstallMemoryDevice(device memory.Memory, from, to memory.Pointer) error {
	for i, d := range p.memPeripherals[:] {
		if d == device {
			for pg := from.Page(); pg <= to.Page(); pg++ {
				p.mmap[pg] = byte(i)
			}
			return nil
		}
	}
	return errors.New("could not find peripheral")
}

func (p *CPU) InstallIODevice(device memory.IO, from, to uint16) error {
	for i, d := range p.ioPeripherals[:] {
		if d == device {
			for port := uint32(from); port <= uint32(to); port++ {
				p.iomap[port] = byte(i)
			}
			return nil
		}
	}
	return errors.New("could not find peripheral")
}

func (p *CPU) InstallIODeviceAt(device memory.IO, port ...uint16) error {
	for _, a := range port {
		if err := p.InstallIODevice(device, a, a); err != nil {
			return err
		}
	}
	return nil
}

// StepPeripherals lets every peripheral advance by the given number of cycles.
func (p *CPU) StepPeripherals(cycles int) error {
	for _, d := range p.peripherals {
		if err := d.Step(cycles); err != nil {
			return err
		}
	}
	return nil
}

func (p *CPU) logger() *logrus.Entry {
	return debug.Log.WithFields(logrus.Fields{
		"model": p.model.Name,
		"cs":    p.CS.Selector,
		"eip":   p.PC,
	})
}
