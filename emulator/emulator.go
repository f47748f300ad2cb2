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

// Package emulator assembles a machine from its configuration.
package emulator

import (
	"errors"

	"github.com/andreas-jonsson/virtualx86/emulator/config"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/apm"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/fastoff"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/monitor"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/ram"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/rom"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/cpu"
	"github.com/gdamore/tcell"
	"github.com/spf13/afero"
)

type Machine struct {
	CPU    *cpu.CPU
	Config *config.Config

	PIC     *pic.Device
	APM     *apm.Device
	FastOff *fastoff.Device
	Monitor *monitor.Device
}

// New builds the machine. The BIOS image, when configured, is read from fs.
// A nil screen disables the monitor.
func New(cfg *config.Config, fs afero.Fs, screen tcell.Screen) (*Machine, error) {
	model, err := cfg.CPUModel()
	if err != nil {
		return nil, err
	}

	m := &Machine{
		Config:  cfg,
		PIC:     &pic.Device{},
		APM:     &apm.Device{},
		FastOff: &fastoff.Device{Period: cfg.FastTimer},
	}

	peripherals := []peripheral.Peripheral{
		&ram.Device{Size: cfg.RAM << 20}, // RAM (needs to go first since it maps from address zero)
	}
	if cfg.BIOS != "" {
		peripherals = append(peripherals, &rom.Device{
			RomName:     "BIOS",
			Fs:          fs,
			File:        cfg.BIOS,
			ResetVector: true,
		})
	}
	peripherals = append(peripherals,
		m.PIC,     // Programmable Interrupt Controller
		m.APM,     // APM control port
		m.FastOff, // Fast off timer
	)
	if screen != nil {
		m.Monitor = &monitor.Device{Screen: screen}
		peripherals = append(peripherals, m.Monitor)
	}

	p, errs := cpu.NewCPU(model, peripherals)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	m.CPU = p
	m.configure()

	debug.Log.WithField("model", model.Name).WithField("codec", codecName(p)).Info("machine ready")
	return m, nil
}

func codecName(p *cpu.CPU) string {
	if c := p.Codec(); c != nil {
		return c.Name()
	}
	return "none"
}

func (m *Machine) configure() {
	cfg := m.Config
	m.CPU.SetSMBase(cfg.SMBase)
	m.CPU.UnmaskA20InSMM = cfg.UnmaskA20InSMM
	m.CPU.Cyrix = cpu.CyrixConfig{
		ARR3Base: cfg.Cyrix.ARR3Base,
		ARR3Size: cfg.Cyrix.ARR3Size,
		CCR1:     cfg.Cyrix.CCR1,
	}
}

// Reset is a hard reset. SMBASE returns to its configured value.
func (m *Machine) Reset() {
	m.CPU.Reset()
	m.configure()
}

// Step lets the devices run for the given number of cycles and then
// services SMI, NMI and interrupt requests at the instruction boundary.
func (m *Machine) Step(cycles int) error {
	if err := m.CPU.StepPeripherals(cycles); err != nil {
		return err
	}
	m.CPU.ServicePending()
	return nil
}

// SMICount sums the SMIs raised by every SMI source in the machine.
func (m *Machine) SMICount() int {
	var n int
	for _, s := range []peripheral.SMISource{m.APM, m.FastOff} {
		n += s.SMICount()
	}
	return n
}

func (m *Machine) Close() {
	m.CPU.Close()
}
