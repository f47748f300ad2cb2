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

const prefetchQueueSize = 16

// NoModRM marks instructions without a ModRM byte.
const NoModRM = -1

// PrefetchRun describes the cost of one executed instruction.
type PrefetchRun struct {
	Cycles int
	Bytes  int
	ModRM  int

	Reads, ReadsL   int
	Writes, WritesL int

	EA32 bool
}

func (p *CPU) prefetchEnabled() bool {
	return !p.model.InternalCache && p.model.PrefetchCycles > 0
}

// PrefetchPrefix accounts for one prefix byte of the next instruction.
func (p *CPU) PrefetchPrefix() {
	p.prefetchPrefixes++
}

// PrefetchBytes returns the number of bytes currently in the queue.
func (p *CPU) PrefetchBytes() int {
	return p.prefetchBytes
}

// PrefetchRun charges the queue refill cost of an instruction. Stall cycles
// go straight to the global cycle counter.
func (p *CPU) PrefetchRun(r PrefetchRun) {
	if !p.prefetchEnabled() {
		return
	}
	m := p.model

	memCycles := r.Reads*m.CyclesRead + r.ReadsL*m.CyclesReadL +
		r.Writes*m.CyclesWrite + r.WritesL*m.CyclesWriteL

	instrCycles := r.Cycles
	if instrCycles < memCycles {
		instrCycles = memCycles
	}

	p.prefetchBytes -= p.prefetchPrefixes
	p.prefetchBytes -= r.Bytes
	if r.ModRM != NoModRM {
		p.prefetchBytes -= displacementBytes(r.ModRM, r.EA32)
	}

	for p.prefetchBytes < 0 {
		p.prefetchBytes += m.PrefetchWidth
		p.Cycles -= m.PrefetchCycles
	}

	instrCycles -= memCycles
	for instrCycles >= m.PrefetchCycles {
		p.prefetchBytes += m.PrefetchWidth
		instrCycles -= m.PrefetchCycles
	}

	p.prefetchPrefixes = 0
	if p.prefetchBytes > prefetchQueueSize {
		p.prefetchBytes = prefetchQueueSize
	}
}

// displacementBytes returns the SIB and displacement bytes implied by modrm.
// For 32-bit addressing bits 8-10 carry the SIB base field.
func displacementBytes(modrm int, ea32 bool) int {
	mod := modrm & 0xC0
	if mod == 0xC0 {
		return 0
	}
	if ea32 {
		if modrm&7 == 4 {
			switch {
			case modrm&0x700 == 0x500 && mod == 0:
				return 5
			case mod == 0x40:
				return 2
			case mod == 0x80:
				return 5
			}
			return 1
		}
		switch {
		case modrm&0xC7 == 0x05:
			return 4
		case mod == 0x40:
			return 1
		case mod == 0x80:
			return 4
		}
		return 0
	}

	if modrm&0xC7 == 0x06 {
		return 2
	}
	return mod >> 6
}

// PrefetchFlush empties the queue after any control transfer.
func (p *CPU) PrefetchFlush() {
	p.prefetchBytes = 0
}
