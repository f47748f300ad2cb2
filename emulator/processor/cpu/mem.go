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
	"github.com/andreas-jonsson/virtualx86/emulator/memory"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

// Aborted reports whether a memory access failed since the last ClearAbort.
func (p *CPU) Aborted() bool {
	return p.abort
}

func (p *CPU) ClearAbort() {
	p.abort = false
}

// SetCPLOverride makes subsequent accesses supervisor accesses.
func (p *CPU) SetCPLOverride(b bool) {
	p.cplOverride = b
}

func (p *CPU) translate(linear uint32, write bool) (uint32, bool) {
	if p.CR0&CR0PG == 0 {
		return linear, true
	}
	user := p.CPL() == 3 && !p.cplOverride
	phys, ok := p.mmu.Translate(linear, write, user)
	if !ok {
		p.CR2 = linear
		p.abort = true
	}
	return phys, ok
}

func (p *CPU) readLinearB(addr uint32) byte {
	phys, ok := p.translate(addr, false)
	if !ok {
		return 0xFF
	}
	return p.ReadByte(memory.Pointer(phys))
}

func (p *CPU) writeLinearB(addr uint32, v byte) {
	if phys, ok := p.translate(addr, true); ok {
		p.WriteByte(memory.Pointer(phys), v)
	}
}

func (p *CPU) readLinearW(addr uint32) uint16 {
	lo := p.readLinearB(addr)
	hi := p.readLinearB(addr + 1)
	return uint16(lo) | uint16(hi)<<8
}

func (p *CPU) readLinearL(addr uint32) uint32 {
	return uint32(p.readLinearW(addr)) | uint32(p.readLinearW(addr+2))<<16
}

func (p *CPU) writeLinearW(addr uint32, v uint16) {
	p.writeLinearB(addr, byte(v))
	p.writeLinearB(addr+1, byte(v>>8))
}

func (p *CPU) writeLinearL(addr uint32, v uint32) {
	p.writeLinearW(addr, uint16(v))
	p.writeLinearW(addr+2, uint16(v>>16))
}

// checkSegment validates a segment relative access and flags an abort on
// limit or null selector violations.
func (p *CPU) checkSegment(s *processor.Segment, offset, size uint32) bool {
	if !s.Checked {
		p.abort = true
		return false
	}
	if !s.InLimit(offset, size) {
		p.abort = true
		return false
	}
	return true
}

func (p *CPU) readMemW(s *processor.Segment, offset uint32) uint16 {
	if !p.checkSegment(s, offset, 2) {
		return 0xFFFF
	}
	return p.readLinearW(s.Base + offset)
}

func (p *CPU) writeMemW(s *processor.Segment, offset uint32, v uint16) {
	if p.checkSegment(s, offset, 2) {
		p.writeLinearW(s.Base+offset, v)
	}
}

func (p *CPU) writeMemL(s *processor.Segment, offset uint32, v uint32) {
	if p.checkSegment(s, offset, 4) {
		p.writeLinearL(s.Base+offset, v)
	}
}

// ReadPhysL and WritePhysL bypass segmentation and paging.
func (p *CPU) ReadPhysL(addr uint32) uint32 {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		v |= uint32(p.ReadByte(memory.Pointer(addr+i))) << (8 * i)
	}
	return v
}

func (p *CPU) WritePhysL(addr, v uint32) {
	for i := uint32(0); i < 4; i++ {
		p.WriteByte(memory.Pointer(addr+i), byte(v>>(8*i)))
	}
}

func (p *CPU) ReadPhysW(addr uint32) uint16 {
	return uint16(p.ReadByte(memory.Pointer(addr))) | uint16(p.ReadByte(memory.Pointer(addr+1)))<<8
}

func (p *CPU) WritePhysW(addr uint32, v uint16) {
	p.WriteByte(memory.Pointer(addr), byte(v))
	p.WriteByte(memory.Pointer(addr+1), byte(v>>8))
}
