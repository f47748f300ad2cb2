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

import (
	"errors"

	"github.com/andreas-jonsson/virtualx86/emulator/memory"
)

type Stats struct {
	NumInterrupts   uint32
	NumExceptions   uint32
	NumSMI          uint32
	NumResets       uint32
	NumInstructions uint64
	RX, TX          uint64
}

var (
	ErrAbort       = errors.New("memory access aborted")
	ErrTripleFault = errors.New("triple fault")
)

type Debug interface {
	Break()
	GetStats() Stats
}

type InterruptController interface {
	GetInterrupt() (int, error)
	IRQ(n int)
}

// NMIController is implemented by interrupt controllers that gate the NMI line.
type NMIController interface {
	MaskNMI(masked bool)
}

// MMU is the address translation collaborator. The CPU calls Translate only
// when paging is enabled; user is false while the privilege override is active.
type MMU interface {
	Translate(linear uint32, write, user bool) (uint32, bool)
	Flush()
	FlushNoPC()
}

// BlockObserver is notified when the current translated block must end.
type BlockObserver interface {
	EndBlock()
}

// EventTimer is a model specific periodic timer that SMI and NMI sources kick.
type EventTimer interface {
	Kick()
}

// Recorder receives a copy of the state at every mode transition.
type Recorder interface {
	Record(event string, st State)
}

// GateWalker delivers interrupts while protection is enabled.
type GateWalker interface {
	ProtectedModeInterrupt(vector int, software bool)
}

type SystemEvents interface {
	RaiseSMI()
	RaiseNMI()
}

type Processor interface {
	Debug
	SystemEvents

	InByte(port uint16) byte
	OutByte(port uint16, data byte)

	ReadByte(addr memory.Pointer) byte
	WriteByte(addr memory.Pointer, data byte)

	GetRegisters() *Registers
	GetMappedMemoryDevice(addr memory.Pointer) memory.Memory
	GetMappedIODevice(port uint16) memory.IO

	InstallMemoryDevice(device memory.Memory, from, to memory.Pointer) error
	InstallIODevice(device memory.IO, from, to uint16) error
	InstallIODeviceAt(device memory.IO, port ...uint16) error
	InstallEventTimer(t EventTimer)

	GetInterruptController() InterruptController
}
