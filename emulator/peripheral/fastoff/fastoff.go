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

// Package fastoff is the chipset "fast off" timer. Every SMI or NMI kicks it
// and it raises SMI when it runs out, giving firmware a periodic SMM tick.
package fastoff

import (
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

type Device struct {
	// Period in CPU cycles. Zero disables the timer.
	Period int

	events    processor.SystemEvents
	remaining int
	armed     bool
	kicks     int
	smiCount  int
}

func (m *Device) Install(p processor.Processor) error {
	m.events = p
	p.InstallEventTimer(m)
	return nil
}

func (m *Device) Name() string {
	return "Fast Off Timer"
}

func (m *Device) Reset() {
	*m = Device{Period: m.Period, events: m.events}
}

func (m *Device) Kick() {
	m.kicks++
	if m.Period > 0 {
		m.remaining = m.Period
		m.armed = true
	}
}

func (m *Device) Step(cycles int) error {
	if !m.armed {
		return nil
	}
	if m.remaining -= cycles; m.remaining <= 0 {
		m.armed = false
		m.smiCount++
		m.events.RaiseSMI()
	}
	return nil
}

func (m *Device) Armed() bool {
	return m.armed
}

func (m *Device) Kicks() int {
	return m.kicks
}

func (m *Device) SMICount() int {
	return m.smiCount
}
