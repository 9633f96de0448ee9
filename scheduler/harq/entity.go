package harq

import "github.com/sarchlab/ranstack/ran"

// UEEntity owns the HARQ processes of one UE in both directions. Only the
// CellManager creates entities. An entity must not be copied; use Assign to
// hand the ownership over.
type UEEntity struct {
	mgr  *CellManager
	ue   ran.UEIndex
	rnti ran.RNTI
}

// UE returns the index of the owned UE, or ran.InvalidUEIndex if the entity
// owns nothing.
func (e *UEEntity) UE() ran.UEIndex {
	if e.mgr == nil {
		return ran.InvalidUEIndex
	}

	return e.ue
}

// RNTI returns the C-RNTI of the owned UE.
func (e *UEEntity) RNTI() ran.RNTI {
	return e.rnti
}

// Empty reports whether the entity owns no UE.
func (e *UEEntity) Empty() bool {
	return e.mgr == nil
}

// Reset releases the owned UE and all its HARQ processes.
func (e *UEEntity) Reset() {
	if e.mgr == nil {
		return
	}

	e.mgr.RemoveUE(e.ue)
	e.mgr = nil
	e.ue = ran.InvalidUEIndex
}

// Assign releases the UE owned by e and takes over the UE owned by other.
// other is left empty.
func (e *UEEntity) Assign(other *UEEntity) {
	if e == other {
		return
	}

	e.Reset()

	e.mgr, e.ue, e.rnti = other.mgr, other.ue, other.rnti
	other.mgr = nil
	other.ue = ran.InvalidUEIndex
}

// NofDLHARQs returns the number of downlink processes reserved for the UE.
func (e *UEEntity) NofDLHARQs() int {
	return e.mgr.dl.ueEntry(e.ue).nofHARQs
}

// NofULHARQs returns the number of uplink processes reserved for the UE.
func (e *UEEntity) NofULHARQs() int {
	return e.mgr.ul.ueEntry(e.ue).nofHARQs
}

// NofAllocatedDLHARQs returns the number of downlink processes in use.
func (e *UEEntity) NofAllocatedDLHARQs() int {
	return e.mgr.dl.nofAllocated(e.ue)
}

// NofAllocatedULHARQs returns the number of uplink processes in use.
func (e *UEEntity) NofAllocatedULHARQs() int {
	return e.mgr.ul.nofAllocated(e.ue)
}

// AllocDLHARQ allocates a new downlink transmission.
func (e *UEEntity) AllocDLHARQ(
	slot ran.SlotPoint,
	k1 uint,
	maxNofRetxs uint,
	bitIdx uint8,
) (DLProcess, bool) {
	return e.mgr.NewDLTx(e.ue, slot, k1, maxNofRetxs, bitIdx)
}

// AllocULHARQ allocates a new uplink transmission.
func (e *UEEntity) AllocULHARQ(
	slot ran.SlotPoint,
	maxNofRetxs uint,
) (ULProcess, bool) {
	return e.mgr.NewULTx(e.ue, slot, maxNofRetxs)
}

// DLHARQ returns the downlink process with the given ID, if allocated.
func (e *UEEntity) DLHARQ(id ran.HARQID) (DLProcess, bool) {
	return e.dlView(e.mgr.dl.refOf(e.ue, id))
}

// ULHARQ returns the uplink process with the given ID, if allocated.
func (e *UEEntity) ULHARQ(id ran.HARQID) (ULProcess, bool) {
	return e.ulView(e.mgr.ul.refOf(e.ue, id))
}

// FindPendingDLRetx returns a downlink process waiting to be retransmitted.
func (e *UEEntity) FindPendingDLRetx() (DLProcess, bool) {
	return e.dlView(e.mgr.dl.findInState(e.ue, PendingRetx))
}

// FindPendingULRetx returns an uplink process waiting to be retransmitted.
func (e *UEEntity) FindPendingULRetx() (ULProcess, bool) {
	return e.ulView(e.mgr.ul.findInState(e.ue, PendingRetx))
}

// FindDLHARQWaitingAck returns a downlink process awaiting its HARQ-ACK.
func (e *UEEntity) FindDLHARQWaitingAck() (DLProcess, bool) {
	return e.dlView(e.mgr.dl.findInState(e.ue, WaitingAck))
}

// FindULHARQWaitingAck returns an uplink process awaiting its CRC.
func (e *UEEntity) FindULHARQWaitingAck() (ULProcess, bool) {
	return e.ulView(e.mgr.ul.findInState(e.ue, WaitingAck))
}

// FindDLHARQ returns the downlink process whose HARQ-ACK is expected at
// uciSlot in codebook position bitIdx.
func (e *UEEntity) FindDLHARQ(uciSlot ran.SlotPoint, bitIdx uint8) (DLProcess, bool) {
	ref := e.mgr.dl.find(e.ue, func(p *process[dlExt]) bool {
		return p.state == WaitingAck &&
			p.slotAck == uciSlot &&
			p.ext.bitIdx == bitIdx
	})

	return e.dlView(ref)
}

// FindULHARQ returns the uplink process transmitted at puschSlot.
func (e *UEEntity) FindULHARQ(puschSlot ran.SlotPoint) (ULProcess, bool) {
	ref := e.mgr.ul.find(e.ue, func(p *process[ulExt]) bool {
		return p.state == WaitingAck && p.slotTx == puschSlot
	})

	return e.ulView(ref)
}

func (e *UEEntity) dlView(ref int32) (DLProcess, bool) {
	if ref == noRef {
		return DLProcess{}, false
	}

	return DLProcess{mgr: e.mgr, ref: ref}, true
}

func (e *UEEntity) ulView(ref int32) (ULProcess, bool) {
	if ref == noRef {
		return ULProcess{}, false
	}

	return ULProcess{mgr: e.mgr, ref: ref}, true
}
