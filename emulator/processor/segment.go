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

import "fmt"

// AccessRights is the descriptor access byte (P, DPL, S, type).
type AccessRights byte

const (
	AccessPresent  AccessRights = 0x80
	AccessDPL      AccessRights = 0x60
	AccessSegment  AccessRights = 0x10
	AccessCode     AccessRights = 0x08
	AccessConform  AccessRights = 0x04
	AccessWritable AccessRights = 0x02
	AccessAccessed AccessRights = 0x01
)

// Common flat descriptors.
const (
	FlatData0 AccessRights = 0x93
	FlatCode0 AccessRights = 0x9B
	FlatData3 AccessRights = 0xF3
	FlatCode3 AccessRights = 0xFB
)

func (a AccessRights) Present() bool {
	return a&AccessPresent != 0
}

func (a AccessRights) DPL() int {
	return int(a&AccessDPL) >> 5
}

func (a AccessRights) WithDPL(dpl int) AccessRights {
	return a&^AccessDPL | AccessRights(dpl&3)<<5
}

// IsSystem reports descriptors with the S bit clear (TSS, LDT, gates).
func (a AccessRights) IsSystem() bool {
	return a&AccessSegment == 0
}

func (a AccessRights) IsCode() bool {
	return !a.IsSystem() && a&AccessCode != 0
}

func (a AccessRights) ExpandDown() bool {
	return a&(AccessSegment|AccessCode) == AccessSegment && a&AccessConform != 0
}

// IOBitmap is set for 32-bit TSS descriptors, which carry an I/O permission bitmap.
func (a AccessRights) IOBitmap() bool {
	return a&0x08 != 0
}

func (a AccessRights) Type() byte {
	return byte(a & 0x1F)
}

// ExtendedRights is the high access nibble (G, D/B, L, AVL) plus limit 19:16.
type ExtendedRights byte

const (
	ExtGranular ExtendedRights = 0x80
	ExtBig      ExtendedRights = 0x40
	ExtFlat32   ExtendedRights = 0xCF
	ExtFlat16   ExtendedRights = 0x80
)

func (e ExtendedRights) Granular() bool {
	return e&ExtGranular != 0
}

func (e ExtendedRights) Big() bool {
	return e&ExtBig != 0
}

// Segment is one entry of the descriptor cache.
type Segment struct {
	Selector            uint16
	Base, Limit         uint32
	LimitLow, LimitHigh uint32
	Access              AccessRights
	ARHigh              ExtendedRights
	Checked             bool
}

func (s *Segment) String() string {
	return fmt.Sprintf("%04X base=%08X limit=%08X ar=%02X%02X", s.Selector, s.Base, s.Limit, byte(s.ARHigh), byte(s.Access))
}

func (s *Segment) RPL() int {
	return int(s.Selector & 3)
}

func (s *Segment) DPL() int {
	return s.Access.DPL()
}

// UpdateLimits derives LimitLow/LimitHigh from Limit and the access byte.
func (s *Segment) UpdateLimits() {
	if s.Access.ExpandDown() {
		s.LimitLow = s.Limit + 1
		if s.ARHigh.Big() {
			s.LimitHigh = 0xFFFFFFFF
		} else {
			s.LimitHigh = 0xFFFF
		}
		return
	}
	s.LimitLow = 0
	s.LimitHigh = s.Limit
}

// InLimit reports whether the size bytes at offset are inside the segment.
func (s *Segment) InLimit(offset, size uint32) bool {
	end := offset + size - 1
	if end < offset && s.LimitHigh != 0xFFFFFFFF {
		return false
	}
	return offset >= s.LimitLow && end <= s.LimitHigh
}

// IsFlat reports a zero based 4GiB expand-up segment.
func (s *Segment) IsFlat() bool {
	return s.Base == 0 && s.LimitLow == 0 && s.LimitHigh == 0xFFFFFFFF
}

// MakeFlat loads a flat 4GiB segment.
func (s *Segment) MakeFlat(selector uint16, base uint32, access AccessRights, ext ExtendedRights) {
	*s = Segment{
		Selector:  selector,
		Base:      base,
		Limit:     0xFFFFFFFF,
		LimitLow:  0,
		LimitHigh: 0xFFFFFFFF,
		Access:    access,
		ARHigh:    ext,
		Checked:   true,
	}
}

// Descriptor encodes the cached segment as a raw 8-byte descriptor.
func (s *Segment) Descriptor() (lo, hi uint32) {
	limit := s.Limit
	ext := s.ARHigh &^ 0x0F
	if ext.Granular() {
		limit >>= 12
	}
	lo = (s.Base&0xFFFF)<<16 | limit&0xFFFF
	hi = s.Base&0xFF000000 | uint32(ext|ExtendedRights(limit>>16)&0x0F)<<16 |
		uint32(s.Access)<<8 | (s.Base>>16)&0xFF
	return
}

// LoadDescriptor fills the cache from a raw descriptor, keeping the selector.
func (s *Segment) LoadDescriptor(lo, hi uint32) {
	s.Base = lo>>16 | (hi&0xFF)<<16 | hi&0xFF000000
	s.Access = AccessRights(hi >> 8)
	s.ARHigh = ExtendedRights(hi >> 16)
	s.Limit = lo&0xFFFF | hi&0x000F0000
	if s.ARHigh.Granular() {
		s.Limit = s.Limit<<12 | 0xFFF
	}
	s.UpdateLimits()
}

// LoadReal loads a real-mode or V86 segment from its selector.
func (s *Segment) LoadReal(selector uint16) {
	s.Selector = selector
	s.Base = uint32(selector) << 4
}
