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

// TSS offset of the I/O map base word.
const tssIOMapBase = 0x66

// CheckIO reports whether the current privilege level is denied access to
// port. Mask has one bit per byte of the access (1, 3 or 0xF).
func (p *CPU) CheckIO(port uint16, mask uint) bool {
	if !p.TR.Access.IOBitmap() {
		return p.CPL() > p.Flags.IOPL()
	}

	p.SetCPLOverride(true)
	defer p.SetCPLOverride(false)

	base := uint32(p.readMemW(&p.TR, tssIOMapBase))
	if p.abort {
		return true
	}

	offset := base + uint32(port>>3)
	mask <<= port & 7

	var bitmap uint
	if mask&0xFF00 != 0 {
		if offset >= p.TR.Limit {
			return true
		}
		bitmap = uint(p.readLinearW(p.TR.Base + offset))
	} else {
		if offset > p.TR.Limit {
			return true
		}
		bitmap = uint(p.readLinearB(p.TR.Base + offset))
	}
	if p.abort {
		return true
	}
	return bitmap&mask != 0
}
