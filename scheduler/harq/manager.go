// Package harq keeps track of the HARQ processes of a cell.
//
// A CellManager owns one repository per direction. Each repository keeps its
// process records in a flat pool allocated at build time, hands them out
// through free lists, and garbage collects processes whose acknowledgment
// never arrived with a timing wheel that is advanced by SlotIndication.
//
// The manager is not safe for concurrent use. All the calls, including the
// acknowledgment and CRC feedback, must come from the thread that drives the
// cell's slots.
package harq

import (
	"log"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/sim/hooking"
)

// ShortDTXTimeoutSlots is the default wait window applied after a non-final
// PUCCH occasion of a bundled acknowledgment has been received.
const ShortDTXTimeoutSlots = 8

// DefaultRingSize is the smallest number of timing wheel buckets.
const DefaultRingSize = 40

// Default scheduling bounds assumed when sizing the timing wheel.
const (
	DefaultMaxK1               = 15
	DefaultMaxTxLookaheadSlots = 4
)

// DLAckResult is the outcome of processing one downlink HARQ-ACK occasion.
type DLAckResult uint8

// Outcomes of a downlink HARQ-ACK.
const (
	DLAckNoUpdate DLAckResult = iota
	DLAckAcked
	DLAckNacked
	DLAckError
)

func (r DLAckResult) String() string {
	switch r {
	case DLAckAcked:
		return "acked"
	case DLAckNacked:
		return "nacked"
	case DLAckError:
		return "error"
	default:
		return "no_update"
	}
}

// CellManager manages the downlink and uplink HARQ processes of one cell.
type CellManager struct {
	*hooking.HookableBase

	name           string
	logger         logr.Logger
	shortDTXWindow int
	lastSlot       ran.SlotPoint

	dl *repository[dlExt]
	ul *repository[ulExt]
}

// Name returns the name of the manager.
func (m *CellManager) Name() string {
	return m.name
}

func (m *CellManager) emit(pos *hooking.HookPos, evt Event) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item:   evt,
	})
}

// SlotIndication advances the manager to a new slot and times out the
// processes whose acknowledgment deadline is the slot.
func (m *CellManager) SlotIndication(slot ran.SlotPoint) {
	m.lastSlot = slot
	m.dl.slotIndication(slot)
	m.ul.slotIndication(slot)
}

// LastSlot returns the slot of the most recent SlotIndication.
func (m *CellManager) LastSlot() ran.SlotPoint {
	return m.lastSlot
}

// Contains reports whether the UE has been added to the manager.
func (m *CellManager) Contains(ue ran.UEIndex) bool {
	return m.dl.contains(ue)
}

// AddUE reserves the HARQ processes of a UE and returns the entity that owns
// them. Adding a UE twice or with no processes is a programming error.
func (m *CellManager) AddUE(
	ue ran.UEIndex,
	rnti ran.RNTI,
	nofDLHARQs, nofULHARQs int,
) *UEEntity {
	if nofDLHARQs <= 0 || nofULHARQs <= 0 {
		log.Panicf("ue=%d: invalid number of HARQs dl=%d ul=%d",
			ue, nofDLHARQs, nofULHARQs)
	}

	if m.Contains(ue) {
		log.Panicf("ue=%d: creating UE with duplicate index", ue)
	}

	m.dl.reserveUE(ue, rnti, nofDLHARQs)
	m.ul.reserveUE(ue, rnti, nofULHARQs)

	return &UEEntity{mgr: m, ue: ue, rnti: rnti}
}

// RemoveUE returns all the processes of a UE to the free pools and drops its
// reservation. Removing a UE that is not present is a no-op.
func (m *CellManager) RemoveUE(ue ran.UEIndex) {
	if !m.Contains(ue) {
		return
	}

	m.dl.destroyUE(ue)
	m.ul.destroyUE(ue)
}

// NewDLTx allocates a downlink HARQ process for a PDSCH at slot whose
// HARQ-ACK is expected k1 slots later. It returns false if the cell or the UE
// has no free process.
func (m *CellManager) NewDLTx(
	ue ran.UEIndex,
	pdschSlot ran.SlotPoint,
	k1 uint,
	maxNofRetxs uint,
	bitIdx uint8,
) (DLProcess, bool) {
	ref := m.dl.alloc(ue, pdschSlot, pdschSlot.Add(int(k1)), maxNofRetxs)
	if ref == noRef {
		return DLProcess{}, false
	}

	p := &m.dl.procs[ref]
	p.ext = dlExt{
		chosenAck: ran.HARQDTX,
		bitIdx:    bitIdx,
	}

	return DLProcess{mgr: m, ref: ref}, true
}

// NewULTx allocates an uplink HARQ process for a PUSCH at slot. It returns
// false if the cell or the UE has no free process.
func (m *CellManager) NewULTx(
	ue ran.UEIndex,
	puschSlot ran.SlotPoint,
	maxNofRetxs uint,
) (ULProcess, bool) {
	ref := m.ul.alloc(ue, puschSlot, puschSlot, maxNofRetxs)
	if ref == noRef {
		return ULProcess{}, false
	}

	return ULProcess{mgr: m, ref: ref}, true
}

func (m *CellManager) dlAckInfo(
	ref int32,
	ack ran.HARQAckStatus,
	snr *float32,
) DLAckResult {
	p := &m.dl.procs[ref]
	if p.state != WaitingAck {
		m.logger.Info("ACK arrived for inactive DL HARQ",
			"ue", p.ue, "h_id", p.id, "slot", m.lastSlot)
		return DLAckError
	}

	// A decoded value wins over the chosen one if nothing was chosen yet or
	// if it was received with a better SNR.
	if ack != ran.HARQDTX &&
		(!p.ext.hasPUCCHSNR || (snr != nil && p.ext.lastPUCCHSNR < *snr)) {
		p.ext.chosenAck = ack
		p.ext.hasPUCCHSNR = snr != nil
		if snr != nil {
			p.ext.lastPUCCHSNR = *snr
		}
	}

	if p.ext.pucchAckToReceive <= 1 {
		finalAck := p.ext.chosenAck == ran.HARQAck
		m.dl.handleAck(ref, finalAck)

		if finalAck {
			return DLAckAcked
		}

		return DLAckNacked
	}

	// The remaining occasions arrive almost together with this one, so a
	// missing one only holds the process for the short window.
	p.ext.pucchAckToReceive--
	p.ackOnTimeout = p.ext.chosenAck == ran.HARQAck
	m.dl.rescheduleTimeout(ref, m.lastSlot.Add(m.shortDTXWindow))

	return DLAckNoUpdate
}

func (m *CellManager) ulCRCInfo(ref int32, ok bool) int {
	p := &m.ul.procs[ref]
	if p.state != WaitingAck {
		m.logger.Info("CRC arrived for UL HARQ not expecting it",
			"ue", p.ue, "h_id", p.id, "slot", m.lastSlot)
		return -1
	}

	tbs := int(p.prevTxParams.TBSBytes)
	m.ul.handleAck(ref, ok)

	if ok {
		return tbs
	}

	return 0
}

// NofFreeDLProcesses returns the number of unallocated downlink records.
func (m *CellManager) NofFreeDLProcesses() int {
	return m.dl.nofFreeProcesses()
}

// NofFreeULProcesses returns the number of unallocated uplink records.
func (m *CellManager) NofFreeULProcesses() int {
	return m.ul.nofFreeProcesses()
}

// RingSize returns the number of timing wheel buckets.
func (m *CellManager) RingSize() int {
	return m.dl.wheel.ringSize()
}
