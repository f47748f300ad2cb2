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

package processor

// State is a value copy of the architectural state, used for diagnostics.
type State struct {
	Regs       [8]uint32
	EFLAGS, PC uint32

	CS, DS, ES, SS, FS, GS Segment
	LDTR, TR, IDTR, GDTR   Segment

	CR0, CR2, CR3, CR4 uint32
	DR                 [8]uint32

	CPL    int
	SMBase uint32
	SMM    int
	Halted bool
}
