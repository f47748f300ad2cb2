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

const vectorDivide = 0

func (p *CPU) divideFault() {
	p.stats.NumExceptions++
	p.Interrupt(vectorDivide)
}

// DivL divides EDX:EAX by an unsigned 32-bit value. It returns true if a
// divide fault was raised, in which case EAX and EDX are left untouched.
func (p *CPU) DivL(divisor uint32) bool {
	if divisor == 0 {
		p.divideFault()
		return true
	}

	num := uint64(p.EDX())<<32 | uint64(p.EAX())
	quo := num / uint64(divisor)
	rem := num % uint64(divisor)

	if quo > 0xFFFFFFFF {
		p.divideFault()
		return true
	}

	p.SetEDX(uint32(rem))
	p.SetEAX(uint32(quo))
	return false
}

// IDivL is the signed counterpart of DivL.
func (p *CPU) IDivL(divisor int32) bool {
	if divisor == 0 {
		p.divideFault()
		return true
	}

	num := int64(uint64(p.EDX())<<32 | uint64(p.EAX()))
	quo := num / int64(divisor)
	rem := num % int64(divisor)

	// MinInt64 / -1 wraps back to MinInt64, which the range check rejects.
	if quo != int64(int32(quo)) {
		p.divideFault()
		return true
	}

	p.SetEDX(uint32(int32(rem)))
	p.SetEAX(uint32(int32(quo)))
	return false
}
