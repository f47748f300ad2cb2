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

package debug

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"

	"github.com/andreas-jonsson/virtualx86/emulator/processor"
	"github.com/spf13/afero"
	"golang.org/x/arch/x86/x86asm"
)

var regNames = [8]string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI"}

type Snapshot struct {
	Label  string
	State  processor.State
	Code   []byte
	Disasm string
}

// NewSnapshot captures state together with the instruction bytes at CS:EIP.
func NewSnapshot(label string, st processor.State, code []byte) *Snapshot {
	s := &Snapshot{Label: label, State: st, Code: code, Disasm: "(none)"}
	if len(code) == 0 {
		return s
	}

	mode := 16
	if st.CS.ARHigh.Big() {
		mode = 32
	}
	if inst, err := x86asm.Decode(code, mode); err == nil {
		s.Disasm = x86asm.IntelSyntax(inst, uint64(st.CS.Base+st.PC), nil)
	} else {
		s.Disasm = "(bad)"
	}
	return s
}

func (s *Snapshot) String() string {
	var sb strings.Builder
	st := &s.State

	fmt.Fprintf(&sb, "[%s] CPL=%d SMM=%d SMBASE=0x%X halted=%v\n", s.Label, st.CPL, st.SMM, st.SMBase, st.Halted)
	for i, v := range st.Regs {
		fmt.Fprintf(&sb, "%s 0x%08X", regNames[i], v)
		if i%4 == 3 {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte('\t')
		}
	}
	fmt.Fprintf(&sb, "EIP 0x%08X\tEFLAGS 0x%08X\n", st.PC, st.EFLAGS)
	fmt.Fprintf(&sb, "CR0 0x%08X\tCR2 0x%08X\tCR3 0x%08X\tCR4 0x%08X\n", st.CR0, st.CR2, st.CR3, st.CR4)
	fmt.Fprintf(&sb, "DR6 0x%08X\tDR7 0x%08X\n", st.DR[6], st.DR[7])

	segs := []struct {
		name string
		seg  *processor.Segment
	}{
		{"CS", &st.CS}, {"DS", &st.DS}, {"ES", &st.ES}, {"SS", &st.SS}, {"FS", &st.FS},
		{"GS", &st.GS}, {"LDTR", &st.LDTR}, {"TR", &st.TR}, {"IDTR", &st.IDTR}, {"GDTR", &st.GDTR},
	}
	for _, e := range segs {
		fmt.Fprintf(&sb, "%-4s %s\n", e.name, e.seg.String())
	}
	fmt.Fprintf(&sb, "% X\t%s\n", s.Code, s.Disasm)
	return sb.String()
}

// Dumper writes snapshots and SMRAM images to a filesystem.
type Dumper struct {
	Fs  afero.Fs
	Dir string
	seq int
}

func NewDumper(fs afero.Fs, dir string) *Dumper {
	return &Dumper{Fs: fs, Dir: dir}
}

func (d *Dumper) next(name, ext string) (string, error) {
	if err := d.Fs.MkdirAll(d.Dir, 0755); err != nil {
		return "", err
	}
	d.seq++
	return path.Join(d.Dir, fmt.Sprintf("%03d-%s.%s", d.seq, name, ext)), nil
}

func (d *Dumper) WriteSnapshot(s *Snapshot) (string, error) {
	name, err := d.next(s.Label, "txt")
	if err != nil {
		return "", err
	}
	return name, afero.WriteFile(d.Fs, name, []byte(s.String()), 0644)
}

// WriteSaveState stores a save-state buffer as little endian words.
func (d *Dumper) WriteSaveState(label string, words []uint32) (string, error) {
	name, err := d.next(label, "bin")
	if err != nil {
		return "", err
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return name, afero.WriteFile(d.Fs, name, buf, 0644)
}

// ReadSaveState loads a buffer written by WriteSaveState.
func ReadSaveState(fs afero.Fs, name string) ([]uint32, error) {
	buf, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: truncated save-state image", name)
	}
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words, nil
}
