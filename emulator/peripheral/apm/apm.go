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

// Package apm is the APM control port pair found on chipsets with SMM.
// Writing the command port raises SMI.
package apm

import (
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

const (
	CommandPort = 0xB2
	StatusPort  = 0xB3
)

type Device struct {
	cpu             processor.SystemEvents
	command, status byte
	smiCount        int
}

func (m *Device) Install(p processor.Processor) error {
	m.cpu = p
	return p.InstallIODevice(m, CommandPort, StatusPort)
}

func (m *Device) Name() string {
	return "APM Control Port"
}

func (m *Device) Reset() {
	m.command, m.status = 0, 0
}

func (m *Device) Step(int) error {
	return nil
}

func (m *Device) SMICount() int {
	return m.smiCount
}

// Command returns the last value written to the command port.
func (m *Device) Command() byte {
	return m.command
}

// Trigger behaves as a guest write to the command port.
func (m *Device) Trigger(cmd byte) {
	m.Out(CommandPort, cmd)
}

func (m *Device) In(port uint16) byte {
	if port == CommandPort {
		return m.command
	}
	return m.status
}

func (m *Device) Out(port uint16, data byte) {
	switch port {
	case CommandPort:
		m.command = data
		m.smiCount++
		debug.Log.WithField("command", data).Debug("APM SMI")
		m.cpu.RaiseSMI()
	case StatusPort:
		m.status = data
	}
}
