// Package ran holds the radio-access-network primitives shared by the
// scheduler and the CU-CP: slot points, UE and HARQ identifiers, PDU session
// and bearer identifiers.
package ran

import (
	"fmt"
	"log"
)

const (
	// NofSFNs is the number of system frame numbers before the SFN wraps.
	NofSFNs = 1024

	// NofSubframesPerFrame is the number of 1 ms subframes in a radio frame.
	NofSubframesPerFrame = 10

	// MaxNumerology is the largest supported subcarrier spacing index.
	MaxNumerology = 4

	// SlotWrapBase is the slot period at numerology 0. The period at
	// numerology mu is SlotWrapBase << mu.
	SlotWrapBase = NofSFNs * NofSubframesPerFrame
)

// SlotPoint identifies one slot of the air interface. Its counter wraps at the
// end of the hyper-frame, so ordering and differences are computed modulo the
// period.
type SlotPoint struct {
	numerology uint8
	count      uint32
}

// NewSlotPoint creates a slot point from a counter value. The counter is
// reduced modulo the numerology's period.
func NewSlotPoint(numerology uint8, count uint32) SlotPoint {
	if numerology > MaxNumerology {
		log.Panicf("invalid numerology %d", numerology)
	}

	return SlotPoint{
		numerology: numerology,
		count:      count % period(numerology),
	}
}

// NewSlotPointFromSFN creates a slot point from a system frame number and a
// slot index inside the frame.
func NewSlotPointFromSFN(numerology uint8, sfn, slotIndex uint32) SlotPoint {
	sp := NewSlotPoint(numerology, 0)
	if sfn >= NofSFNs || slotIndex >= sp.NofSlotsPerFrame() {
		log.Panicf("invalid sfn=%d slot=%d", sfn, slotIndex)
	}

	sp.count = sfn*sp.NofSlotsPerFrame() + slotIndex

	return sp
}

func period(numerology uint8) uint32 {
	return SlotWrapBase << numerology
}

// Numerology returns the subcarrier spacing index of the slot.
func (s SlotPoint) Numerology() uint8 {
	return s.numerology
}

// ToUint returns the slot counter.
func (s SlotPoint) ToUint() uint32 {
	return s.count
}

// NofSlotsPerFrame returns the number of slots in one radio frame.
func (s SlotPoint) NofSlotsPerFrame() uint32 {
	return NofSubframesPerFrame << s.numerology
}

// SFN returns the system frame number of the slot.
func (s SlotPoint) SFN() uint32 {
	return s.count / s.NofSlotsPerFrame()
}

// SlotIndex returns the index of the slot inside its frame.
func (s SlotPoint) SlotIndex() uint32 {
	return s.count % s.NofSlotsPerFrame()
}

// Add returns the slot n slots after s. A negative n moves backwards.
func (s SlotPoint) Add(n int) SlotPoint {
	p := int64(period(s.numerology))
	c := (int64(s.count) + int64(n)) % p
	if c < 0 {
		c += p
	}

	return SlotPoint{numerology: s.numerology, count: uint32(c)}
}

// Sub returns the signed distance in slots from other to s, choosing the
// shortest way around the wrap.
func (s SlotPoint) Sub(other SlotPoint) int {
	if s.numerology != other.numerology {
		log.Panicf("comparing slots of numerology %d and %d",
			s.numerology, other.numerology)
	}

	p := int64(period(s.numerology))
	d := (int64(s.count) - int64(other.count)) % p
	if d < 0 {
		d += p
	}

	if d >= p/2 {
		d -= p
	}

	return int(d)
}

// Before reports whether s comes before other.
func (s SlotPoint) Before(other SlotPoint) bool {
	return s.Sub(other) < 0
}

// After reports whether s comes after other.
func (s SlotPoint) After(other SlotPoint) bool {
	return s.Sub(other) > 0
}

// String formats the slot as "sfn.slot".
func (s SlotPoint) String() string {
	return fmt.Sprintf("%d.%d", s.SFN(), s.SlotIndex())
}
