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
	"math/bits"

	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

type FlagOp byte

const (
	FlagsNone FlagOp = iota
	FlagsAdd
	FlagsSub
	FlagsLogic
	FlagsInc
	FlagsDec
)

// lazyFlags holds the last flag producing operation. The arithmetic half of
// EFLAGS is only materialized when someone asks for it.
type lazyFlags struct {
	op        FlagOp
	width     uint
	a, b, res uint32
}

// SetLazyFlags records an ALU result; width is 8, 16 or 32.
func (p *CPU) SetLazyFlags(op FlagOp, width uint, a, b, res uint32) {
	if op == FlagsInc || op == FlagsDec {
		// INC/DEC leave CF alone, so it has to be resolved first.
		p.FlagsRebuild()
	}
	p.lazy = lazyFlags{op: op, width: width, a: a, b: b, res: res}
}

// FlagsRebuild commits any pending lazy computation into Flags.
func (p *CPU) FlagsRebuild() {
	l := &p.lazy
	if l.op == FlagsNone {
		return
	}

	mask := uint32(1)<<l.width - 1
	if l.width == 32 {
		mask = 0xFFFFFFFF
	}
	sign := uint32(1) << (l.width - 1)
	res := l.res & mask
	a, b := l.a&mask, l.b&mask

	f := p.Flags &^ processor.ArithmeticFlags
	if l.op == FlagsInc || l.op == FlagsDec {
		f |= p.Flags & processor.Carry
	}
	if res == 0 {
		f |= processor.Zero
	}
	if res&sign != 0 {
		f |= processor.Sign
	}
	if bits.OnesCount8(byte(res))&1 == 0 {
		f |= processor.Parity
	}

	switch l.op {
	case FlagsAdd, FlagsInc:
		if l.op == FlagsAdd && res < a {
			f |= processor.Carry
		}
		if (a^b^res)&0x10 != 0 {
			f |= processor.Adjust
		}
		if (res^a)&(res^b)&sign != 0 {
			f |= processor.Overflow
		}
	case FlagsSub, FlagsDec:
		if l.op == FlagsSub && a < b {
			f |= processor.Carry
		}
		if (a^b^res)&0x10 != 0 {
			f |= processor.Adjust
		}
		if (a^b)&(a^res)&sign != 0 {
			f |= processor.Overflow
		}
	}

	p.Flags = f
	l.op = FlagsNone
}

// FlagsExtract rebuilds the lazy cache from the canonical Flags value.
func (p *CPU) FlagsExtract() {
	p.lazy = lazyFlags{}
}
