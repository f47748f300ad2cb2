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
	"testing"

	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

const (
	idtBase = 0x1000
	gdtBase = 0x2000
	tssBase = 0x3000
)

func writeDescriptor(p *CPU, index int, s processor.Segment) {
	lo, hi := s.Descriptor()
	p.WritePhysL(gdtBase+uint32(index)*8, lo)
	p.WritePhysL(gdtBase+uint32(index)*8+4, hi)
}

func writeGate(p *CPU, vector int, selector uint16, target uint32, access processor.AccessRights) {
	p.WritePhysL(idtBase+uint32(vector)*8, uint32(selector)<<16|target&0xFFFF)
	p.WritePhysL(idtBase+uint32(vector)*8+4, target&0xFFFF0000|uint32(access)<<8)
}

// setupIDT builds a flat GDT, a ring 0 stack in the TSS and an empty IDT.
func setupIDT(t *testing.T, cpl int) *CPU {
	p := newTestCPU(t, "pentium")
	setupProtected(p, cpl)

	var code, data processor.Segment
	code.MakeFlat(0, 0, processor.FlatCode0, processor.ExtFlat32)
	data.MakeFlat(0, 0, processor.FlatData0, processor.ExtFlat32)
	writeDescriptor(p, 1, code)
	writeDescriptor(p, 2, data)
	p.GDTR = processor.Segment{Base: gdtBase, Limit: 0x2F}
	p.IDTR = processor.Segment{Base: idtBase, Limit: 0x7FF}

	p.TR.Base = tssBase
	p.WritePhysL(tssBase+4, 0x9000)
	p.WritePhysL(tssBase+8, 0x10)
	return p
}

func TestGateInnerRing(t *testing.T) {
	p := setupIDT(t, 3)
	writeGate(p, 0x21, 0x08, 0x402000, 0xEE)
	p.Flags.Set(processor.InterruptEnable)
	flags := p.EFLAGS()

	p.SoftwareInterrupt(0x21)

	if p.PC != 0x402000 || p.CS.Selector != 0x08 || p.CPL() != 0 {
		t.Fatalf("handler = %s:%X CPL %d", p.CS.String(), p.PC, p.CPL())
	}
	if p.SS.Selector != 0x10 || p.ESP() != 0x8FEC {
		t.Fatalf("stack = %04X:%X", p.SS.Selector, p.ESP())
	}

	frame := []struct {
		name string
		want uint32
	}{
		{"EIP", 0x401000},
		{"CS", 0x0B},
		{"EFLAGS", flags},
		{"ESP", 0x8000},
		{"SS", 0x13},
	}
	for i, f := range frame {
		if v := p.ReadPhysL(0x8FEC + uint32(i)*4); v != f.want {
			t.Errorf("stacked %s = 0x%X, want 0x%X", f.name, v, f.want)
		}
	}
	if p.Flags.GetBool(processor.InterruptEnable) {
		t.Error("interrupt gate left IF set")
	}
}

func TestGateSameRingErrorCode(t *testing.T) {
	p := setupIDT(t, 0)
	writeGate(p, 13, 0x08, 0x403000, 0x8F)
	p.Flags.Set(processor.InterruptEnable)
	p.PC = 0x401004

	p.Interrupt(13)

	if p.PC != 0x403000 || p.ESP() != 0x8000-16 {
		t.Fatalf("handler %X with ESP %X", p.PC, p.ESP())
	}
	if v := p.ReadPhysL(0x8000 - 16); v != 0 {
		t.Errorf("error code = 0x%X", v)
	}
	if v := p.ReadPhysL(0x8000 - 12); v != 0x401000 {
		t.Errorf("stacked EIP = 0x%X, want faulting instruction", v)
	}
	if !p.Flags.GetBool(processor.InterruptEnable) {
		t.Error("trap gate cleared IF")
	}
}

func TestGatePrivilegeEscalatesToGP(t *testing.T) {
	p := setupIDT(t, 3)
	writeGate(p, 0x21, 0x08, 0x402000, 0x8E)
	writeGate(p, 13, 0x08, 0x403000, 0x8E)

	p.SoftwareInterrupt(0x21)

	if p.PC != 0x403000 {
		t.Fatalf("PC = 0x%X, want #GP handler", p.PC)
	}
	if v := p.ReadPhysL(p.ESP()); v != 0x21<<3|2 {
		t.Errorf("error code = 0x%X", v)
	}
	if s := p.GetStats(); s.NumExceptions != 1 {
		t.Errorf("NumExceptions = %d", s.NumExceptions)
	}
}

func TestGateNotPresent(t *testing.T) {
	p := setupIDT(t, 0)
	writeGate(p, 0x30, 0x08, 0x402000, 0x0E)
	writeGate(p, 11, 0x08, 0x404000, 0x8E)

	p.Interrupt(0x30)
	if p.PC != 0x404000 {
		t.Fatalf("PC = 0x%X, want #NP handler", p.PC)
	}
	if v := p.ReadPhysL(p.ESP()); v != 0x30<<3|2 {
		t.Errorf("error code = 0x%X", v)
	}
}

func TestGateDoubleFaultToReset(t *testing.T) {
	p := setupIDT(t, 0)
	p.IDTR.Limit = 7

	p.Interrupt(13)

	if s := p.GetStats(); s.NumResets != 1 {
		t.Fatalf("NumResets = %d", s.NumResets)
	}
	if p.Protected() || p.PC != 0xFFF0 {
		t.Error("CPU not reset")
	}
}

func TestGateV86IOPL(t *testing.T) {
	p := setupIDT(t, 0)
	writeGate(p, 0x21, 0x08, 0x402000, 0xEE)
	writeGate(p, 13, 0x08, 0x403000, 0x8E)
	p.EFlags.Set(processor.Virtual8086)
	for _, s := range []*processor.Segment{&p.CS, &p.SS, &p.DS, &p.ES, &p.FS, &p.GS} {
		*s = processor.Segment{Selector: 0x2000, Base: 0x20000, Limit: 0xFFFF, Access: processor.FlatData3, Checked: true}
		s.UpdateLimits()
	}
	p.PC = 0x100
	p.SetESP(0x800)
	p.updateStatus()

	p.SoftwareInterrupt(0x21)

	if p.PC != 0x403000 || p.V86() {
		t.Fatalf("PC = 0x%X V86 = %v, want #GP handler in ring 0", p.PC, p.V86())
	}
	if p.DS.Selector != 0 || p.GS.Selector != 0 {
		t.Error("data segments not cleared on V86 exit")
	}
	// GS FS DS ES SS ESP EFLAGS CS EIP and the error code.
	if p.ESP() != 0x9000-40 {
		t.Errorf("ESP = 0x%X", p.ESP())
	}
	if v := p.ReadPhysL(0x9000 - 4); v != 0x2000 {
		t.Errorf("stacked GS = 0x%X", v)
	}
}
