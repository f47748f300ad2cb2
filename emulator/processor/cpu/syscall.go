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

const vectorInvalidOpcode = 6

// fastCallFault raises #GP for a failed precondition. Nothing else is changed.
func (p *CPU) fastCallFault(op string) bool {
	p.logger().WithField("cpl", p.CPL()).Debugf("%s: general protection fault", op)
	p.stats.NumExceptions++
	p.Interrupt(vectorGP)
	return false
}

func (p *CPU) invalidOpcode() bool {
	p.stats.NumExceptions++
	p.Interrupt(vectorInvalidOpcode)
	return false
}

func (p *CPU) finishFastCall(op string) {
	p.updateStatus()
	p.logSnapshot(op)
	p.PrefetchFlush()
	p.endBlock()
}

// Sysenter enters ring 0 at SYSENTER_EIP with the stack at SYSENTER_ESP.
func (p *CPU) Sysenter() bool {
	if !p.model.Sysenter {
		return p.invalidOpcode()
	}
	if !p.Protected() || p.MSR.SysenterCS&0xFFF8 == 0 {
		return p.fastCallFault("SYSENTER")
	}

	p.EFlags.Clear(processor.Resume | processor.Virtual8086)
	p.Flags.Clear(processor.InterruptEnable)
	p.OldCS = p.CS.Selector
	p.OldPC = p.PC

	p.SetESP(p.MSR.SysenterESP)
	p.PC = p.MSR.SysenterEIP

	cs := uint16(p.MSR.SysenterCS)
	p.CS.MakeFlat(cs&0xFFFC, 0, processor.FlatCode0, processor.ExtFlat32)
	p.SS.MakeFlat((cs+8)&0xFFFC, 0, processor.FlatData0, processor.ExtFlat32)

	p.oldCPL = 0
	p.inSys = true
	p.finishFastCall("sysenter")
	return true
}

// Sysexit returns to ring 3 at EDX with the stack at ECX.
func (p *CPU) Sysexit() bool {
	if !p.model.Sysenter {
		return p.invalidOpcode()
	}
	if p.MSR.SysenterCS&0xFFF8 == 0 || !p.Protected() || p.CPL() != 0 {
		return p.fastCallFault("SYSEXIT")
	}

	p.SetESP(p.ECX())
	p.PC = p.EDX()

	cs := uint16(p.MSR.SysenterCS)
	p.CS.MakeFlat((cs+16)&0xFFFC|3, 0, processor.FlatCode3, processor.ExtFlat32)
	p.SS.MakeFlat((cs+24)&0xFFFC|3, 0, processor.FlatData3, processor.ExtFlat32)
	p.mmu.FlushNoPC()

	p.oldCPL = 3
	p.inSys = false
	p.finishFastCall("sysexit")
	return true
}

// STAR fields.
func (m *MSRs) syscallEIP() uint32 {
	return uint32(m.STAR)
}

func (m *MSRs) syscallCS() uint16 {
	return uint16(m.STAR>>32) & 0xFFFC
}

func (m *MSRs) sysretCS() uint16 {
	return uint16(m.STAR>>48) & 0xFFFC
}

// Syscall enters ring 0 at STAR[31:0] with the return address in ECX.
func (p *CPU) Syscall() bool {
	if !p.model.Syscall {
		return p.invalidOpcode()
	}

	p.EFlags.Clear(processor.Virtual8086)
	p.Flags.Clear(processor.InterruptEnable)
	p.SetECX(p.PC)

	cs := p.MSR.syscallCS()
	p.CS.MakeFlat(cs, 0, processor.FlatCode0, processor.ExtFlat32)
	p.SS.MakeFlat(cs+8, 0, processor.FlatData0, processor.ExtFlat32)
	p.PC = p.MSR.syscallEIP()

	p.oldCPL = 0
	p.inSys = true
	p.finishFastCall("syscall")
	return true
}

// Sysret returns to ring 3 at ECX. The next instruction always completes
// before a pending interrupt is taken.
func (p *CPU) Sysret() bool {
	if !p.model.Syscall {
		return p.invalidOpcode()
	}
	if p.CPL() != 0 {
		return p.fastCallFault("SYSRET")
	}

	p.Flags.Set(processor.InterruptEnable)
	p.SetInterruptShadow()
	p.PC = p.ECX()

	cs := p.MSR.sysretCS()
	p.CS.MakeFlat(cs|3, 0, processor.FlatCode3, processor.ExtFlat32)
	p.SS.MakeFlat((cs+8)|3, 0, processor.FlatData3, processor.ExtFlat32)
	p.mmu.FlushNoPC()

	p.oldCPL = 3
	p.inSys = false
	p.finishFastCall("sysret")
	return true
}
