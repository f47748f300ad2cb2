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

package pic

import (
	"errors"
	"testing"
)

func initialize(m *Device, base byte) {
	m.Out(0x20, 0x13) // ICW1: edge, single, ICW4 needed
	m.Out(0x21, base) // ICW2
	m.Out(0x21, 0x01) // ICW4: 8086 mode
}

func TestInterrupts(t *testing.T) {
	m := &Device{}
	initialize(m, 0x08)

	m.IRQ(3)
	m.IRQ(1)
	n, err := m.GetInterrupt()
	if err != nil || n != 9 {
		t.Fatalf("got %d, %v", n, err)
	}
	if n, _ = m.GetInterrupt(); n != 11 {
		t.Fatalf("got %d, want 11", n)
	}
	if _, err := m.GetInterrupt(); !errors.Is(err, ErrNoInterrupts) {
		t.Fatal("expected no interrupts")
	}

	m.Out(0x20, 0x0B) // OCW3: read ISR
	if v := m.In(0x20); v != 0x0A {
		t.Errorf("ISR = 0x%X", v)
	}
	m.Out(0x20, 0x20) // EOI
	if v := m.In(0x20); v != 0x08 {
		t.Errorf("ISR after EOI = 0x%X", v)
	}
}

func TestMask(t *testing.T) {
	m := &Device{}
	initialize(m, 0x08)

	m.Out(0x21, 0x02)
	if m.In(0x21) != 0x02 {
		t.Fatal("mask not stored")
	}
	m.IRQ(1)
	if _, err := m.GetInterrupt(); err == nil {
		t.Error("masked IRQ delivered")
	}
	m.Out(0x21, 0)
	if n, err := m.GetInterrupt(); err != nil || n != 9 {
		t.Error("unmasked IRQ lost")
	}
}

func TestNMIMask(t *testing.T) {
	m := &Device{}
	if m.NMIEnabled() {
		t.Fatal("NMI enabled after reset")
	}

	m.Out(0xA0, 0x80)
	if !m.NMIEnabled() || m.In(0xA0) != 0x80 {
		t.Fatal("NMI not enabled through port 0xA0")
	}

	m.MaskNMI(true)
	if m.NMIEnabled() {
		t.Error("NMI enabled while masked by the CPU")
	}
	m.MaskNMI(false)
	if !m.NMIEnabled() {
		t.Error("NMI still masked")
	}
}
