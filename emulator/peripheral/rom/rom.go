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

package rom

import (
	"errors"
	"fmt"

	"github.com/andreas-jonsson/virtualx86/emulator/memory"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
	"github.com/spf13/afero"
)

var ErrInvalidImage = errors.New("ROM image size must be a power of two")

// Device maps a firmware image at Base and, optionally, at Mirror. The image
// is read from Fs when Data is empty. With ResetVector set the image is placed
// just below 4GiB and mirrored below 1MiB, where the reset vector finds it.
type Device struct {
	mem []byte

	ResetVector  bool
	Base, Mirror memory.Pointer
	RomName      string
	File         string
	Fs           afero.Fs
	Data         []byte
}

func (m *Device) Install(p processor.Processor) error {
	m.mem = m.Data
	if len(m.mem) == 0 {
		if m.Fs == nil {
			m.Fs = afero.NewOsFs()
		}
		var err error
		if m.mem, err = afero.ReadFile(m.Fs, m.File); err != nil {
			return fmt.Errorf("could not load ROM image: %w", err)
		}
	}

	size := len(m.mem)
	if size == 0 || size&(size-1) != 0 {
		return ErrInvalidImage
	}
	if m.ResetVector {
		if size > 0x100000 {
			return ErrInvalidImage
		}
		m.Base = memory.Pointer(-size)
		m.Mirror = memory.Pointer(0x100000 - size)
	}
	if m.RomName == "" {
		m.RomName = "ROM"
	}

	if err := p.InstallMemoryDevice(m, m.Base, m.Base+memory.Pointer(size-1)); err != nil {
		return err
	}
	if m.Mirror != 0 {
		return p.InstallMemoryDevice(m, m.Mirror, m.Mirror+memory.Pointer(size-1))
	}
	return nil
}

func (m *Device) Name() string {
	return m.RomName
}

func (m *Device) Reset() {
}

func (m *Device) Step(int) error {
	return nil
}

func (m *Device) ReadByte(addr memory.Pointer) byte {
	return m.mem[uint32(addr)&uint32(len(m.mem)-1)]
}

func (m *Device) WriteByte(addr memory.Pointer, data byte) {
}
