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

package apm

import (
	"testing"

	"github.com/andreas-jonsson/virtualx86/emulator/peripheral"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/ram"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/cpu"
)

func newMachine(t *testing.T, dev *Device) *cpu.CPU {
	t.Helper()
	debug.MuteLogging(true)

	m, err := cpu.LookupModel("pentium")
	if err != nil {
		t.Fatal(err)
	}
	p, errs := cpu.NewCPU(m, []peripheral.Peripheral{&ram.Device{Clear: true}, &pic.Device{}, dev})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	return p
}

func TestCommandPort(t *testing.T) {
	dev := &Device{}
	p := newMachine(t, dev)

	p.OutByte(StatusPort, 0xAA)
	if p.SMIPending() {
		t.Fatal("status port raised SMI")
	}

	p.OutByte(CommandPort, 0x55)
	if !p.SMIPending() || dev.SMICount() != 1 {
		t.Fatal("command port did not raise SMI")
	}
	if p.InByte(CommandPort) != 0x55 || dev.Command() != 0x55 {
		t.Error("command not latched")
	}
	if p.InByte(StatusPort) != 0xAA {
		t.Error("status not latched")
	}

	p.ServicePending()
	if !p.InSMM() {
		t.Error("SMI not taken")
	}
}

func TestTrigger(t *testing.T) {
	dev := &Device{}
	p := newMachine(t, dev)

	var _ peripheral.SMISource = dev
	dev.Trigger(0x01)
	dev.Trigger(0x02)
	if dev.SMICount() != 2 || dev.Command() != 0x02 || !p.SMIPending() {
		t.Error("Trigger did not behave as a port write")
	}

	dev.Reset()
	if dev.Command() != 0 || dev.SMICount() != 2 {
		t.Error("reset should clear the ports and keep the count")
	}
}
