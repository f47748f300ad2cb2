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
	"github.com/sirupsen/logrus"
)

const (
	vectorDebug       = 1
	vectorNMI         = 2
	vectorDoubleFault = 8
	vectorInvalidTSS  = 10
	vectorNotPresent  = 11
	vectorStackFault  = 12
	vectorGP          = 13
	vectorPageFault   = 14
	vectorAlignment   = 17
)

const (
	// Cycles charged for delivering a hardware interrupt or exception.
	interruptLatency = 70

	// An IVT limit below this cannot hold the double fault vector.
	realModeIVTMinimum = 35
)

// Interrupt delivers a CPU generated exception or external interrupt. The
// return address is the start of the faulting instruction.
func (p *CPU) Interrupt(vector int) {
	p.stats.NumInterrupts++
	p.FlagsRebuild()
	p.PC = p.OldPC

	if p.Protected() {
		p.gates.ProtectedModeInterrupt(vector, false)
	} else {
		addr := uint32(vector<<2) + p.IDTR.Base
		if uint32(vector<<2)+3 > p.IDTR.Limit {
			if p.IDTR.Limit < realModeIVTMinimum {
				p.abort = false
				p.logger().WithField("vector", vector).WithError(processor.ErrTripleFault).Warn("IVT too small")
				p.SoftReset()
				p.FlagsExtract()
			} else {
				p.Interrupt(vectorDoubleFault)
			}
		} else {
			p.pushRealFrame()
			p.Flags.Clear(processor.InterruptEnable | processor.Trap)
			p.PC = uint32(p.readLinearW(addr))
			p.loadCS(p.readLinearW(addr + 2))
		}
	}

	p.Cycles -= interruptLatency
	p.PrefetchFlush()
	p.endBlock()
}

// SoftwareInterrupt executes INT n. The return address is the next instruction.
func (p *CPU) SoftwareInterrupt(vector int) {
	p.stats.NumInterrupts++
	p.FlagsRebuild()
	p.Cycles -= p.model.TimingInt

	if p.Protected() {
		p.gates.ProtectedModeInterrupt(vector, true)
	} else {
		addr := uint32(vector<<2) + p.IDTR.Base
		if uint32(vector<<2)+3 > p.IDTR.Limit {
			p.Interrupt(vectorGP)
		} else {
			p.pushRealFrame()
			p.Flags.Clear(processor.InterruptEnable | processor.Trap)
			p.PC = uint32(p.readLinearW(addr))
			p.loadCS(p.readLinearW(addr + 2))
			p.Cycles -= p.model.TimingIntRM
		}
	}

	p.trap = false
	p.PrefetchFlush()
	p.endBlock()
}

// SoftwareInterruptRM is INT n through the real-mode vector table for code
// that must not commit anything when the frame cannot be written. It returns
// processor.ErrAbort with CS, EIP, SP and flags untouched on failure.
func (p *CPU) SoftwareInterruptRM(vector int) error {
	p.FlagsRebuild()
	p.Cycles -= p.model.TimingInt

	addr := uint32(vector<<2) + p.IDTR.Base
	newPC := p.readLinearW(addr)
	newCS := p.readLinearW(addr + 2)
	if p.abort {
		return processor.ErrAbort
	}

	sp := p.SP()
	p.writeMemW(&p.SS, uint32(sp-2), uint16(p.Flags))
	if p.abort {
		return processor.ErrAbort
	}
	p.writeMemW(&p.SS, uint32(sp-4), p.CS.Selector)
	if p.abort {
		return processor.ErrAbort
	}
	p.writeMemW(&p.SS, uint32(sp-6), uint16(p.PC))
	if p.abort {
		return processor.ErrAbort
	}
	p.SetSP(sp - 6)

	if p.V86() {
		p.EFlags.Clear(processor.VirtualIF)
	} else {
		p.Flags.Clear(processor.InterruptEnable)
	}
	p.Flags.Clear(processor.Trap)
	p.PC = uint32(newPC)
	p.loadCS(newCS)

	p.stats.NumInterrupts++
	p.Cycles -= p.model.TimingIntRM
	p.trap = false
	p.PrefetchFlush()
	p.endBlock()
	return nil
}

func (p *CPU) pushRealFrame() {
	if p.status&StatusStack32 != 0 {
		esp := p.ESP()
		p.writeMemW(&p.SS, esp-2, uint16(p.Flags))
		p.writeMemW(&p.SS, esp-4, p.CS.Selector)
		p.writeMemW(&p.SS, esp-6, uint16(p.PC))
		p.SetESP(esp - 6)
		return
	}

	sp := p.SP()
	p.writeMemW(&p.SS, uint32(sp-2), uint16(p.Flags))
	p.writeMemW(&p.SS, uint32(sp-4), p.CS.Selector)
	p.writeMemW(&p.SS, uint32(sp-6), uint16(p.PC))
	p.SetSP(sp - 6)
}

// SetTrap arms a single-step trap for the next instruction boundary.
func (p *CPU) SetTrap(b bool) {
	p.trap = b
}

func (p *CPU) TrapPending() bool {
	return p.trap
}

// RaiseNMI is the entry point for device models asserting NMI.
func (p *CPU) RaiseNMI() {
	if p.timer != nil {
		p.timer.Kick()
	}
	p.nmiPending = true
}

func (p *CPU) NMIMasked() bool {
	return p.nmiMask
}

// SetNMIMask masks or unmasks the NMI line, mirroring it to the controller.
func (p *CPU) SetNMIMask(masked bool) {
	p.nmiMask = masked
	if c, ok := p.pic.(processor.NMIController); ok {
		c.MaskNMI(masked)
	}
}

// InterruptShadow reports whether maskable interrupts are held off for the
// next instruction.
func (p *CPU) InterruptShadow() bool {
	return p.endBlockAfterIns > 0
}

// SetInterruptShadow is used by STI, MOV SS and SYSRET.
func (p *CPU) SetInterruptShadow() {
	p.endBlockAfterIns = 1
}

// ServicePending runs at an instruction boundary and delivers, in priority
// order, a pending SMI, NMI, single-step trap or maskable interrupt. It
// returns true when control was transferred.
func (p *CPU) ServicePending() bool {
	if p.smm.line {
		p.EnterSMMCheck(p.halted)
		return p.smm.state != SMMInactive
	}

	p.OldPC = p.PC

	if p.nmiPending && !p.nmiMask {
		p.nmiPending = false
		p.halted = false
		p.SetNMIMask(true)
		p.logger().Debug("NMI")
		p.Interrupt(vectorNMI)
		return true
	}

	if p.trap {
		p.trap = false
		p.Interrupt(vectorDebug)
		return true
	}

	if p.endBlockAfterIns > 0 {
		p.endBlockAfterIns--
		return false
	}

	if p.Flags.GetBool(processor.InterruptEnable) && p.pic != nil {
		if n, err := p.pic.GetInterrupt(); err == nil {
			p.halted = false
			p.logger().WithFields(logrus.Fields{"vector": n}).Trace("IRQ")
			p.Interrupt(n)
			return true
		}
	}
	return false
}
