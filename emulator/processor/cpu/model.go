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
	"fmt"
	"strings"
)

type Family int

const (
	FamilyLegacy Family = iota
	FamilyAm486
	FamilyP5
	FamilyP6
	FamilyAMDK
	FamilyCyrix
)

func (f Family) String() string {
	switch f {
	case FamilyLegacy:
		return "legacy"
	case FamilyAm486:
		return "am486"
	case FamilyP5:
		return "p5"
	case FamilyP6:
		return "p6"
	case FamilyAMDK:
		return "amd-k"
	case FamilyCyrix:
		return "cyrix"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Model describes the static properties of an emulated CPU.
type Model struct {
	Name      string
	Family    Family
	Signature uint32

	LockCheck     bool
	InternalCache bool
	Bus16         bool
	Sysenter      bool
	Syscall       bool

	PrefetchWidth, PrefetchCycles int

	CyclesRead, CyclesReadL   int
	CyclesWrite, CyclesWriteL int

	TimingInt, TimingIntRM int
}

func (m *Model) HasSMM() bool {
	return m.Family != FamilyLegacy
}

var Models = []Model{
	{
		Name: "i286", Family: FamilyLegacy, Signature: 0x0000, Bus16: true,
		PrefetchWidth: 2, PrefetchCycles: 2,
		CyclesRead: 2, CyclesReadL: 4, CyclesWrite: 2, CyclesWriteL: 4,
		TimingInt: 23,
	},
	{
		Name: "i386sx", Family: FamilyLegacy, Signature: 0x2308, LockCheck: true, Bus16: true,
		PrefetchWidth: 2, PrefetchCycles: 2,
		CyclesRead: 2, CyclesReadL: 4, CyclesWrite: 2, CyclesWriteL: 4,
		TimingInt: 37,
	},
	{
		Name: "i386dx", Family: FamilyLegacy, Signature: 0x0308, LockCheck: true,
		PrefetchWidth: 4, PrefetchCycles: 2,
		CyclesRead: 2, CyclesReadL: 2, CyclesWrite: 2, CyclesWriteL: 2,
		TimingInt: 37,
	},
	{
		Name: "am486dx2", Family: FamilyAm486, Signature: 0x0432, LockCheck: true, InternalCache: true,
		TimingInt: 26, TimingIntRM: 4,
	},
	{
		Name: "pentium", Family: FamilyP5, Signature: 0x0525, LockCheck: true, InternalCache: true,
		TimingInt: 16, TimingIntRM: 3,
	},
	{
		Name: "pentium2", Family: FamilyP6, Signature: 0x0634, LockCheck: true, InternalCache: true,
		Sysenter: true, TimingInt: 16, TimingIntRM: 3,
	},
	{
		Name: "k6-2", Family: FamilyAMDK, Signature: 0x058C, LockCheck: true, InternalCache: true,
		Syscall: true, TimingInt: 16, TimingIntRM: 3,
	},
	{
		Name: "6x86", Family: FamilyCyrix, Signature: 0x0531, LockCheck: true, InternalCache: true,
		TimingInt: 16, TimingIntRM: 3,
	},
}

func LookupModel(name string) (*Model, error) {
	for i := range Models {
		if strings.EqualFold(Models[i].Name, name) {
			m := Models[i]
			return &m, nil
		}
	}
	return nil, fmt.Errorf("unknown CPU model: %q", name)
}
