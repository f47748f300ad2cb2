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

package ram

import (
	"crypto/rand"
	"errors"

	"github.com/andreas-jonsson/virtualx86/emulator/memory"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

const DefaultSize = 0x100000 // 1MB

var ErrInvalidSize = errors.New("RAM size must be a multiple of the page size")

// Device is conventional and extended memory starting at address zero.
type Device struct {
	Clear bool
	Size  int
	mem   []byte
}

func (m *Device) Install(p processor.Processor) error {
	if m.Size == 0 {
		m.Size = DefaultSize
	}
	if m.Size%(1<<memory.PageShift) != 0 {
		return ErrInvalidSize
	}

	m.mem = make([]byte, m.Size)
	if !m.Clear {
		rand.Read(m.mem) // Scramble memory.
	}
	return p.InstallMemoryDevice(m, 0x0, memory.Pointer(m.Size-1))
}

func (m *Device) Name() string {
	return "RAM"
}

func (m *Device) Reset() {
}

func (m *Device) Step(int) error {
	return nil
}

func (m *Device) ReadByte(addr memory.Pointer) byte {
	if int(addr) >= len(m.mem) {
		return 0xFF
	}
	return m.mem[addr]
}

func (m *Device) WriteByte(addr memory.Pointer, data byte) {
	if int(addr) < len(m.mem) {
		m.mem[addr] = data
	}
}
