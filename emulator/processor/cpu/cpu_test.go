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
	"math/rand"
	"testing"

	"github.com/andreas-jonsson/virtualx86/emulator/peripheral"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/ram"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

const testRAMSize = 0x400000

func newTestCPU(tb testing.TB, model string) *CPU {
	tb.Helper()
	debug.MuteLogging(true)

	m, err := LookupModel(model)
	if err != nil {
		tb.Fatal(err)
	}

	p, errs := NewCPU(m, []peripheral.Peripheral{
		&ram.Device{Clear: true, Size: testRAMSize},
		&pic.Device{},
	})
	for _, err := range errs {
		tb.Error(err)
	}
	return p
}

// setupReal puts the CPU at 1000:0100 with the stack at 2000:1000.
func setupReal(p *CPU) {
	p.loadCS(0x1000)
	p.PC = 0x100
	p.OldPC = p.PC
	p.loadSegReal(&p.SS, 0x2000)
	p.loadSegReal(&p.DS, 0x3000)
	p.SetESP(0x1000)
}

// setupProtected switches to flat 32-bit protected mode at the given ring.
func setupProtected(p *CPU, cpl int) {
	p.CR0 |= CR0PE
	code, data := processor.FlatCode0, processor.FlatData0
	if cpl == 3 {
		code, data = processor.FlatCode3, processor.FlatData3
	}
	rpl := uint16(cpl)
	p.CS.MakeFlat(0x08|rpl, 0, code, processor.ExtFlat32)
	for _, s := range []*processor.Segment{&p.SS, &p.DS, &p.ES, &p.FS, &p.GS} {
		s.MakeFlat(0x10|rpl, 0, data, processor.ExtFlat32)
	}
	p.TR = processor.Segment{Selector: 0x28, Base: 0x5000, Limit: 0x67, Access: 0x8B, Checked: true}
	p.TR.UpdateLimits()
	p.LDTR = processor.Segment{Limit: 0xFFFF, Access: 0x82}
	p.LDTR.UpdateLimits()
	p.PC = 0x401000
	p.OldPC = p.PC
	p.SetESP(0x8000)
	p.updateStatus()
}

type recordingGates struct {
	vectors  []int
	software []bool
}

func (g *recordingGates) ProtectedModeInterrupt(vector int, software bool) {
	g.vectors = append(g.vectors, vector)
	g.software = append(g.software, software)
}

func TestLookupModel(t *testing.T) {
	m, err := LookupModel("Pentium")
	if err != nil {
		t.Fatal(err)
	}
	if m.Family != FamilyP5 {
		t.Errorf("family = %v", m.Family)
	}

	m.Name = "changed"
	if m2, _ := LookupModel("pentium"); m2.Name != "pentium" {
		t.Error("LookupModel returned a shared model")
	}

	if _, err := LookupModel("8080"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestReset(t *testing.T) {
	p := newTestCPU(t, "am486dx2")
	if p.EDX() != 0x0432 {
		t.Errorf("EDX = 0x%X, want model signature", p.EDX())
	}
	if p.CS.Base+p.PC != 0xFFFFFFF0 {
		t.Errorf("reset vector = 0x%X", p.CS.Base+p.PC)
	}
	if p.SMBase() != DefaultSMBase || p.InSMM() {
		t.Error("SMM session not reset")
	}
	if p.DR[7] != 0x400 {
		t.Errorf("DR7 = 0x%X", p.DR[7])
	}
}

func TestDivL(t *testing.T) {
	p := newTestCPU(t, "i386dx")
	setupReal(p)

	p.SetEDX(1)
	p.SetEAX(0)
	if p.DivL(2) {
		t.Fatal("unexpected fault")
	}
	if p.EAX() != 0x80000000 || p.EDX() != 0 {
		t.Errorf("got EAX=0x%X EDX=0x%X", p.EAX(), p.EDX())
	}

	p.SetEDX(2)
	p.SetEAX(7)
	if p.DivL(3) {
		t.Fatal("unexpected fault")
	}
	// (2<<32 + 7) / 3
	if p.EAX() != 0xAAAAAAAD || p.EDX() != 0 {
		t.Errorf("got EAX=0x%X EDX=0x%X", p.EAX(), p.EDX())
	}
}

func TestDivLFaults(t *testing.T) {
	for _, tc := range []struct {
		name     string
		edx, eax uint32
		divisor  uint32
	}{
		{"zero", 0, 10, 0},
		{"overflow", 2, 0, 2},
		{"max", 0xFFFFFFFF, 0xFFFFFFFF, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestCPU(t, "i386dx")
			setupReal(p)
			p.SetEDX(tc.edx)
			p.SetEAX(tc.eax)

			if !p.DivL(tc.divisor) {
				t.Fatal("expected divide fault")
			}
			if p.EDX() != tc.edx || p.EAX() != tc.eax {
				t.Error("registers modified on fault")
			}
			if s := p.GetStats(); s.NumExceptions != 1 {
				t.Errorf("NumExceptions = %d", s.NumExceptions)
			}
		})
	}
}

func TestIDivL(t *testing.T) {
	p := newTestCPU(t, "i386dx")
	setupReal(p)

	// -7 / 2
	p.SetEDX(0xFFFFFFFF)
	p.SetEAX(0xFFFFFFF9)
	if p.IDivL(2) {
		t.Fatal("unexpected fault")
	}
	if int32(p.EAX()) != -3 || int32(p.EDX()) != -1 {
		t.Errorf("got %d rem %d", int32(p.EAX()), int32(p.EDX()))
	}

	// The most negative quotient still fits.
	p.SetEDX(0xFFFFFFFF)
	p.SetEAX(0x80000000)
	if p.IDivL(1) {
		t.Fatal("unexpected fault")
	}
	if p.EAX() != 0x80000000 {
		t.Errorf("EAX = 0x%X", p.EAX())
	}

	p.SetEDX(0x80000000)
	p.SetEAX(0)
	if !p.IDivL(-1) {
		t.Fatal("expected fault for MinInt64 / -1")
	}
	if p.EDX() != 0x80000000 || p.EAX() != 0 {
		t.Error("registers modified on fault")
	}

	if !p.IDivL(0) {
		t.Fatal("expected fault for zero divisor")
	}
}

func TestDivLProperty(t *testing.T) {
	p := newTestCPU(t, "i386dx")
	setupReal(p)
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 10000; i++ {
		n := rnd.Uint64() >> uint(rnd.Intn(64))
		d := rnd.Uint32() >> uint(rnd.Intn(32))

		p.SetEDX(uint32(n >> 32))
		p.SetEAX(uint32(n))
		fault := p.DivL(d)

		if d == 0 || n/uint64(d) > 0xFFFFFFFF {
			if !fault || p.EDX() != uint32(n>>32) || p.EAX() != uint32(n) {
				t.Fatalf("%d / %d: expected untouched fault", n, d)
			}
			continue
		}
		if fault || uint64(p.EAX()) != n/uint64(d) || uint64(p.EDX()) != n%uint64(d) {
			t.Fatalf("%d / %d: got %d rem %d", n, d, p.EAX(), p.EDX())
		}
	}
}

func lockWindow(b ...byte) uint32 {
	var w uint32
	for i, v := range b {
		w |= uint32(v) << (8 * i)
	}
	return w
}

func TestIsLockLegal(t *testing.T) {
	m, _ := LookupModel("pentium")
	for _, tc := range []struct {
		name   string
		window uint32
		legal  bool
	}{
		{"ADD mem,reg", lockWindow(0x00, 0x07), true},
		{"ADD reg,reg", lockWindow(0x00, 0xC0), false},
		{"ADD reg,mem", lockWindow(0x02, 0x07), false},
		{"CMP mem,reg", lockWindow(0x38, 0x07), false},
		{"XCHG", lockWindow(0x86, 0x07), true},
		{"NOP", lockWindow(0x90, 0x00), false},
		{"ADD mem,imm", lockWindow(0x80, 0x06), true},
		{"CMP mem,imm", lockWindow(0x80, 0x3E), false},
		{"SUB mem,imm8", lockWindow(0x83, 0x2E), true},
		{"NOT mem", lockWindow(0xF6, 0x16), true},
		{"TEST mem", lockWindow(0xF6, 0x06), false},
		{"INC mem", lockWindow(0xFE, 0x06), true},
		{"DEC mem", lockWindow(0xFF, 0x0E), true},
		{"CALL mem", lockWindow(0xFF, 0x16), false},
		{"CMPXCHG", lockWindow(0x0F, 0xB1, 0x0F), true},
		{"CMPXCHG reg", lockWindow(0x0F, 0xB1, 0xC8), false},
		{"XADD", lockWindow(0x0F, 0xC1, 0x07), true},
		{"BT", lockWindow(0x0F, 0xA3, 0x07), false},
		{"BTS", lockWindow(0x0F, 0xAB, 0x07), true},
		{"BTS imm", lockWindow(0x0F, 0xBA, 0x2E), true},
		{"BT imm", lockWindow(0x0F, 0xBA, 0x26), false},
		{"CMPXCHG8B", lockWindow(0x0F, 0xC7, 0x0E), true},
		{"MOV CR", lockWindow(0x0F, 0x22, 0x07), false},
	} {
		if got := IsLockLegal(m, tc.window); got != tc.legal {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.legal)
		}
	}
}

func TestIsLockLegalPure(t *testing.T) {
	p := newTestCPU(t, "pentium")
	rnd := rand.New(rand.NewSource(2))

	windows := make([]uint32, 512)
	first := make([]bool, len(windows))
	for i := range windows {
		windows[i] = rnd.Uint32() & 0xFFFFFF
		first[i] = p.IsLockLegal(windows[i])
	}
	for _, i := range rnd.Perm(len(windows)) {
		if p.IsLockLegal(windows[i]) != first[i] {
			t.Fatalf("verdict for 0x%06X changed", windows[i])
		}
	}
}

func TestIsLockLegalWithoutCheck(t *testing.T) {
	m, _ := LookupModel("i286")
	if IsLockLegal(m, lockWindow(0x00, 0x07)) {
		t.Error("model without lock checking accepted LOCK")
	}
}

func BenchmarkIsLockLegal(b *testing.B) {
	m, _ := LookupModel("pentium")
	w := lockWindow(0x0F, 0xBA, 0x2E)
	for i := 0; i < b.N; i++ {
		IsLockLegal(m, w)
	}
}

func setupTSS(p *CPU, limit uint32, access processor.AccessRights) {
	const base = 0x10000
	p.TR = processor.Segment{Selector: 0x28, Base: base, Limit: limit, Access: access, Checked: true}
	p.TR.UpdateLimits()
	p.WritePhysW(base+tssIOMapBase, 0x68)
	p.WriteByte(base+0x68+0x60/8, 0x01)
}

func TestCheckIO(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupProtected(p, 3)
	setupTSS(p, 0x67+0x2000, 0x89)

	for _, tc := range []struct {
		port   uint16
		mask   uint
		denied bool
	}{
		{0x60, 1, true},
		{0x61, 1, false},
		{0x5F, 1, false},
		{0x5F, 3, true},
		{0x62, 0xF, false},
		{0x5E, 0xF, true},
	} {
		if got := p.CheckIO(tc.port, tc.mask); got != tc.denied {
			t.Errorf("port 0x%X mask 0x%X: denied=%v", tc.port, tc.mask, got)
		}
		if p.cplOverride {
			t.Fatal("CPL override left active")
		}
	}
}

func TestCheckIOLimit(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupProtected(p, 3)
	setupTSS(p, 0x74, 0x89)

	if p.CheckIO(0x61, 1) {
		t.Error("port inside the bitmap was denied")
	}
	if !p.CheckIO(0x68, 1) {
		t.Error("port beyond the TSS limit was allowed")
	}

	// The map base itself is outside the segment.
	p.TR.Limit = 0x60
	p.TR.UpdateLimits()
	p.ClearAbort()
	if !p.CheckIO(0x61, 1) {
		t.Error("aborted bitmap read was allowed")
	}
	if p.cplOverride {
		t.Error("CPL override left active")
	}
}

func TestCheckIONoBitmap(t *testing.T) {
	p := newTestCPU(t, "pentium")
	setupProtected(p, 3)
	setupTSS(p, 0x67, 0x81)

	if !p.CheckIO(0x61, 1) {
		t.Error("CPL 3 > IOPL 0 was allowed")
	}
	p.Flags.Set(processor.IOPrivilege)
	if p.CheckIO(0x60, 1) {
		t.Error("IOPL 3 was denied")
	}
}

func TestDisplacementBytes(t *testing.T) {
	for _, tc := range []struct {
		modrm int
		ea32  bool
		n     int
	}{
		{0x00, false, 0},
		{0x06, false, 2},
		{0x46, false, 1},
		{0x86, false, 2},
		{0xC6, false, 0},
		{0x00, true, 0},
		{0x05, true, 4},
		{0x45, true, 1},
		{0x85, true, 4},
		{0x04, true, 1},
		{0x504, true, 5},
		{0x44, true, 2},
		{0x84, true, 5},
		{0xC4, true, 0},
	} {
		if n := displacementBytes(tc.modrm, tc.ea32); n != tc.n {
			t.Errorf("modrm 0x%X ea32=%v: got %d, want %d", tc.modrm, tc.ea32, n, tc.n)
		}
	}
}

func TestPrefetchRun(t *testing.T) {
	p := newTestCPU(t, "i386dx")
	p.Cycles = 100

	p.PrefetchRun(PrefetchRun{Cycles: 2, Bytes: 3, ModRM: NoModRM})
	if p.PrefetchBytes() != 5 {
		t.Errorf("queue = %d, want 5", p.PrefetchBytes())
	}
	if p.Cycles != 98 {
		t.Errorf("cycles = %d, want 98", p.Cycles)
	}

	p.PrefetchPrefix()
	p.PrefetchPrefix()
	p.PrefetchRun(PrefetchRun{Cycles: 0, Bytes: 2, ModRM: 0x06})
	if p.PrefetchBytes() != 3 {
		t.Errorf("queue = %d, want 3", p.PrefetchBytes())
	}

	p.PrefetchFlush()
	if p.PrefetchBytes() != 0 {
		t.Error("flush did not empty the queue")
	}
}

func TestPrefetchBounds(t *testing.T) {
	p := newTestCPU(t, "i386sx")
	rnd := rand.New(rand.NewSource(3))

	for i := 0; i < 10000; i++ {
		for n := rnd.Intn(3); n > 0; n-- {
			p.PrefetchPrefix()
		}
		modrm := NoModRM
		if rnd.Intn(2) == 0 {
			modrm = rnd.Intn(0x800)
		}
		p.PrefetchRun(PrefetchRun{
			Cycles: rnd.Intn(40),
			Bytes:  1 + rnd.Intn(6),
			ModRM:  modrm,
			Reads:  rnd.Intn(3), ReadsL: rnd.Intn(2),
			Writes: rnd.Intn(2), WritesL: rnd.Intn(2),
			EA32: rnd.Intn(2) == 0,
		})
		if b := p.PrefetchBytes(); b < 0 || b > prefetchQueueSize {
			t.Fatalf("queue out of range: %d", b)
		}
		if rnd.Intn(10) == 0 {
			p.PrefetchFlush()
			if p.PrefetchBytes() != 0 {
				t.Fatal("flush did not empty the queue")
			}
		}
	}
}

func TestPrefetchDisabledWithCache(t *testing.T) {
	p := newTestCPU(t, "pentium")
	p.Cycles = 100
	p.PrefetchRun(PrefetchRun{Cycles: 1, Bytes: 15, ModRM: 0x84, EA32: true})
	if p.PrefetchBytes() != 0 || p.Cycles != 100 {
		t.Error("prefetch model ran with an internal cache")
	}
}

func TestLazyFlags(t *testing.T) {
	p := newTestCPU(t, "i386dx")

	p.SetLazyFlags(FlagsAdd, 8, 0xFF, 0x01, 0x100)
	p.FlagsRebuild()
	if !p.Flags.GetBool(processor.Carry) || !p.Flags.GetBool(processor.Zero) || !p.Flags.GetBool(processor.Adjust) {
		t.Errorf("flags = 0x%X", uint16(p.Flags))
	}

	// INC keeps the carry from the ADD.
	p.SetLazyFlags(FlagsInc, 8, 0x7F, 0x01, 0x80)
	p.FlagsRebuild()
	if !p.Flags.GetBool(processor.Carry) || !p.Flags.GetBool(processor.Overflow) || !p.Flags.GetBool(processor.Sign) {
		t.Errorf("flags = 0x%X", uint16(p.Flags))
	}

	p.SetLazyFlags(FlagsSub, 32, 1, 2, 0xFFFFFFFF)
	p.FlagsRebuild()
	if !p.Flags.GetBool(processor.Carry) || p.Flags.GetBool(processor.Overflow) {
		t.Errorf("flags = 0x%X", uint16(p.Flags))
	}
}
