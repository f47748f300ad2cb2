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
	"testing"

	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

const stackBase = 0x20000

func setVector(p *CPU, vector int, seg, off uint16) {
	p.WritePhysW(uint32(vector*4), off)
	p.WritePhysW(uint32(vector*4+2), seg)
}

func TestRealModeInterrupt(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 13, 0x4000, 0x1234)
	p.Flags.Set(processor.InterruptEnable | processor.Trap | processor.Carry)
	flags := uint16(p.Flags)

	p.PC = 0x105
	p.Cycles = 1000
	p.Interrupt(13)

	if p.Cycles != 1000-interruptLatency {
		t.Errorf("cycles = %d", p.Cycles)
	}
	if p.SP() != 0x1000-6 {
		t.Errorf("SP = 0x%X", p.SP())
	}
	if v := p.ReadPhysW(stackBase + 0xFFE); v != flags {
		t.Errorf("pushed flags = 0x%X, want 0x%X", v, flags)
	}
	if v := p.ReadPhysW(stackBase + 0xFFC); v != 0x1000 {
		t.Errorf("pushed CS = 0x%X", v)
	}
	if v := p.ReadPhysW(stackBase + 0xFFA); v != 0x100 {
		t.Errorf("pushed IP = 0x%X, want the faulting instruction", v)
	}
	if p.CS.Selector != 0x4000 || p.CS.Base != 0x40000 || p.PC != 0x1234 {
		t.Errorf("handler = %s:%X", p.CS.String(), p.PC)
	}
	if p.Flags.GetBool(processor.InterruptEnable) || p.Flags.GetBool(processor.Trap) {
		t.Error("IF/TF not cleared")
	}
}

func TestRealModeInterruptStack32(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 3, 0x4000, 0x10)
	p.SS.ARHigh = processor.ExtBig
	p.SS.Limit = 0xFFFFF
	p.SS.UpdateLimits()
	p.updateStatus()
	p.SetESP(0x12000)

	p.Interrupt(3)
	if p.ESP() != 0x12000-6 {
		t.Errorf("ESP = 0x%X", p.ESP())
	}
	if v := p.ReadPhysW(stackBase + 0x12000 - 4); v != 0x1000 {
		t.Errorf("pushed CS = 0x%X", v)
	}
}

func TestRealModeTripleFault(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	p.IDTR.Limit = 10

	p.Interrupt(13)

	if s := p.GetStats(); s.NumResets != 1 {
		t.Fatalf("NumResets = %d", s.NumResets)
	}
	if p.CS.Selector != 0xF000 || p.PC != 0xFFF0 {
		t.Errorf("CPU not at reset vector: %s:%X", p.CS.String(), p.PC)
	}
	if p.EDX() != p.Model().Signature {
		t.Error("EDX does not hold the signature")
	}
	if v := p.ReadPhysW(stackBase + 0xFFA); v != 0 {
		t.Error("stack frame written before reset")
	}
}

func TestRealModeDoubleFault(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 8, 0x5000, 0x88)
	p.IDTR.Limit = 0x30

	p.Interrupt(13)
	if p.CS.Selector != 0x5000 || p.PC != 0x88 {
		t.Errorf("handler = %s:%X, want double fault", p.CS.String(), p.PC)
	}
}

func TestSoftwareInterrupt(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 0x21, 0x4000, 0x20)

	p.PC = 0x102
	p.Cycles = 1000
	p.SetTrap(true)
	p.SoftwareInterrupt(0x21)

	if v := p.ReadPhysW(stackBase + 0xFFA); v != 0x102 {
		t.Errorf("pushed IP = 0x%X, want the next instruction", v)
	}
	if want := 1000 - p.Model().TimingInt - p.Model().TimingIntRM; p.Cycles != want {
		t.Errorf("cycles = %d, want %d", p.Cycles, want)
	}
	if p.TrapPending() {
		t.Error("trap not cleared")
	}
	if p.CS.Selector != 0x4000 || p.PC != 0x20 {
		t.Errorf("handler = %s:%X", p.CS.String(), p.PC)
	}
}

func TestSoftwareInterruptOutOfRange(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 13, 0x4000, 0x1300)
	p.IDTR.Limit = 0x3F

	p.SoftwareInterrupt(0x21)
	if p.PC != 0x1300 {
		t.Errorf("PC = 0x%X, want the #GP handler", p.PC)
	}
}

func TestSoftwareInterruptRM(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 0x10, 0x4000, 0x40)
	p.Flags.Set(processor.InterruptEnable)

	if err := p.SoftwareInterruptRM(0x10); err != nil {
		t.Fatal(err)
	}
	if p.SP() != 0x1000-6 || p.PC != 0x40 || p.CS.Selector != 0x4000 {
		t.Error("frame not committed")
	}
	if p.Flags.GetBool(processor.InterruptEnable) {
		t.Error("IF not cleared")
	}
}

func TestSoftwareInterruptRMAbort(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 0x10, 0x4000, 0x40)
	p.Flags.Set(processor.InterruptEnable)

	// Expand down stack that only holds two words below SP.
	p.SS.Access = 0x97
	p.SS.Limit = 0xFFB
	p.SS.UpdateLimits()

	before := p.State()
	err := p.SoftwareInterruptRM(0x10)
	if !errors.Is(err, processor.ErrAbort) {
		t.Fatalf("err = %v", err)
	}
	after := p.State()

	if after.Regs != before.Regs || after.PC != before.PC || after.CS != before.CS {
		t.Error("state committed after aborted push")
	}
	if !p.Flags.GetBool(processor.InterruptEnable) {
		t.Error("IF cleared after aborted push")
	}
}

func TestProtectedModeDelegates(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupProtected(p, 0)
	g := &recordingGates{}
	p.SetGateWalker(g)

	p.SoftwareInterrupt(0x80)
	p.Interrupt(14)

	if len(g.vectors) != 2 || g.vectors[0] != 0x80 || !g.software[0] || g.vectors[1] != 14 || g.software[1] {
		t.Errorf("gate walker saw %v %v", g.vectors, g.software)
	}
}

type countingObserver struct {
	n int
}

func (o *countingObserver) EndBlock() {
	o.n++
}

func TestInterruptEndsBlock(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	o := &countingObserver{}
	p.SetBlockObserver(o)

	p.Interrupt(1)
	p.SoftwareInterrupt(2)
	if o.n != 2 {
		t.Errorf("EndBlock called %d times", o.n)
	}
}

func TestServicePendingNMI(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, vectorNMI, 0x4000, 0x200)
	ctrl := p.GetInterruptController().(*pic.Device)
	ctrl.Out(0xA0, 0x80)

	p.RaiseNMI()
	if !p.ServicePending() || p.PC != 0x200 {
		t.Fatal("NMI not delivered")
	}
	if !p.NMIMasked() || ctrl.NMIEnabled() {
		t.Error("NMI not masked while its handler runs")
	}

	p.RaiseNMI()
	if p.ServicePending() {
		t.Error("masked NMI delivered")
	}
	p.SetNMIMask(false)
	if !p.ServicePending() {
		t.Error("pending NMI lost")
	}
}

func TestServicePendingIRQ(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	setVector(p, 1, 0x4000, 0x300)
	p.GetInterruptController().IRQ(1)

	if p.ServicePending() {
		t.Fatal("IRQ delivered with IF clear")
	}

	p.Flags.Set(processor.InterruptEnable)
	p.SetInterruptShadow()
	if p.ServicePending() {
		t.Fatal("IRQ delivered inside the interrupt shadow")
	}
	if !p.ServicePending() || p.PC != 0x300 {
		t.Fatal("IRQ not delivered")
	}
}

func TestServicePendingWakesHalt(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupReal(p)
	p.Flags.Set(processor.InterruptEnable)
	p.Halt()
	p.GetInterruptController().IRQ(0)

	if !p.ServicePending() || p.Halted() {
		t.Error("CPU still halted after IRQ")
	}
}
