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

// Package monitor draws the CPU state on a terminal.
package monitor

import (
	"errors"
	"fmt"

	"github.com/andreas-jonsson/virtualx86/emulator/processor"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/cpu"
	"github.com/gdamore/tcell"
)

const DefaultInterval = 1000000

var ErrNoState = errors.New("processor does not expose its state")

type StateSource interface {
	State() processor.State
}

type Device struct {
	Screen tcell.Screen

	// Cycles between refreshes.
	Interval int

	source StateSource
	cycles int
}

func (m *Device) Install(p processor.Processor) error {
	src, ok := p.(StateSource)
	if !ok {
		return ErrNoState
	}
	m.source = src
	if m.Interval == 0 {
		m.Interval = DefaultInterval
	}
	return nil
}

func (m *Device) Name() string {
	return "Terminal Monitor"
}

func (m *Device) Reset() {
	m.cycles = 0
}

func (m *Device) Step(cycles int) error {
	if m.cycles += cycles; m.cycles < m.Interval {
		return nil
	}
	m.cycles = 0
	m.Render()
	return nil
}

func (m *Device) Close() error {
	if m.Screen != nil {
		m.Screen.Fini()
	}
	return nil
}

var (
	labelStyle = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	smmStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
)

// Render draws the current state and shows it.
func (m *Device) Render() {
	if m.Screen == nil || m.source == nil {
		return
	}
	st := m.source.State()

	s := m.Screen
	s.Clear()
	lines := Lines(st)
	for y, line := range lines {
		style := tcell.StyleDefault
		switch {
		case y == 0:
			style = labelStyle
		case y == len(lines)-1 && st.SMM != 0:
			style = smmStyle
		}
		drawString(s, 0, y, line, style)
	}
	s.Show()
}

func drawString(s tcell.Screen, x, y int, str string, style tcell.Style) {
	for i, r := range str {
		s.SetContent(x+i, y, r, nil, style)
	}
}

// Lines formats the state one row per line.
func Lines(st processor.State) []string {
	r := st.Regs
	lines := []string{
		fmt.Sprintf("CPL %d  EIP %08X  EFLAGS %08X", st.CPL, st.PC, st.EFLAGS),
		fmt.Sprintf("EAX %08X  EBX %08X  ECX %08X  EDX %08X", r[processor.EAX], r[processor.EBX], r[processor.ECX], r[processor.EDX]),
		fmt.Sprintf("ESI %08X  EDI %08X  EBP %08X  ESP %08X", r[processor.ESI], r[processor.EDI], r[processor.EBP], r[processor.ESP]),
		fmt.Sprintf("CR0 %08X  CR2 %08X  CR3 %08X  CR4 %08X", st.CR0, st.CR2, st.CR3, st.CR4),
		fmt.Sprintf("DR6 %08X  DR7 %08X", st.DR[6], st.DR[7]),
	}
	for _, seg := range []struct {
		name string
		seg  processor.Segment
	}{{"CS", st.CS}, {"DS", st.DS}, {"ES", st.ES}, {"SS", st.SS}, {"FS", st.FS}, {"GS", st.GS}, {"TR", st.TR}, {"LDTR", st.LDTR}} {
		lines = append(lines, fmt.Sprintf("%-4s %s", seg.name, seg.seg.String()))
	}

	halted := ""
	if st.Halted {
		halted = " HLT"
	}
	lines = append(lines, fmt.Sprintf("SMM %s  SMBASE %08X%s", cpu.SMMState(st.SMM), st.SMBase, halted))
	return lines
}
