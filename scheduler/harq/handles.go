package harq

import (
	"github.com/sarchlab/ranstack/ran"
)

// DLProcess is a handle to an allocated downlink HARQ process. Handles are
// small values; a handle stays meaningful until its process returns to the
// free pool.
type DLProcess struct {
	mgr *CellManager
	ref int32
}

func (h DLProcess) proc() *process[dlExt] {
	return &h.mgr.dl.procs[h.ref]
}

// ID returns the HARQ process ID.
func (h DLProcess) ID() ran.HARQID { return h.proc().id }

// UE returns the index of the owning UE.
func (h DLProcess) UE() ran.UEIndex { return h.proc().ue }

// State returns the lifecycle state.
func (h DLProcess) State() State { return h.proc().state }

// Empty reports whether the process was returned to the free pool.
func (h DLProcess) Empty() bool { return h.proc().state == Empty }

// IsWaitingAck reports whether the process awaits its HARQ-ACK.
func (h DLProcess) IsWaitingAck() bool { return h.proc().state == WaitingAck }

// HasPendingRetx reports whether the process waits to be retransmitted.
func (h DLProcess) HasPendingRetx() bool { return h.proc().state == PendingRetx }

// NDI returns the new data indicator.
func (h DLProcess) NDI() bool { return h.proc().ndi }

// NofRetxs returns how many times the TB was retransmitted.
func (h DLProcess) NofRetxs() uint { return h.proc().nofRetxs }

// MaxNofRetxs returns the retransmission budget.
func (h DLProcess) MaxNofRetxs() uint { return h.proc().maxNofRetxs }

// SlotTx returns the PDSCH slot of the last transmission.
func (h DLProcess) SlotTx() ran.SlotPoint { return h.proc().slotTx }

// SlotAck returns the slot the HARQ-ACK is expected in.
func (h DLProcess) SlotAck() ran.SlotPoint { return h.proc().slotAck }

// BitIndex returns the position of the process in the HARQ-ACK codebook.
func (h DLProcess) BitIndex() uint8 { return h.proc().ext.bitIdx }

// PUCCHAckToReceive returns the number of outstanding PUCCH occasions.
func (h DLProcess) PUCCHAckToReceive() uint {
	return h.proc().ext.pucchAckToReceive
}

// ChosenAck returns the HARQ-ACK value chosen among the occasions received so
// far.
func (h DLProcess) ChosenAck() ran.HARQAckStatus { return h.proc().ext.chosenAck }

// TxParams returns the parameters of the last transmission.
func (h DLProcess) TxParams() TxParams { return h.proc().prevTxParams }

// SaveTxParams stores the parameters of the transmission just scheduled.
func (h DLProcess) SaveTxParams(p TxParams) { h.proc().prevTxParams = p }

// IncrementPUCCHCounter records one more PUCCH occasion carrying the
// HARQ-ACK of this process.
func (h DLProcess) IncrementPUCCHCounter() { h.proc().ext.pucchAckToReceive++ }

// AckInfo processes the HARQ-ACK decoded from one PUCCH occasion. snr is nil
// when no SNR measurement is available.
func (h DLProcess) AckInfo(ack ran.HARQAckStatus, snr *float32) DLAckResult {
	return h.mgr.dlAckInfo(h.ref, ack, snr)
}

// NewRetx schedules the retransmission of a process pending retransmission.
func (h DLProcess) NewRetx(pdschSlot ran.SlotPoint, k1 uint, bitIdx uint8) {
	h.mgr.dl.newRetx(h.ref, pdschSlot, pdschSlot.Add(int(k1)))

	p := h.proc()
	p.ext = dlExt{chosenAck: ran.HARQDTX, bitIdx: bitIdx}
}

// CancelRetxs stops any further retransmission of the process.
func (h DLProcess) CancelRetxs() { h.mgr.dl.cancelRetxs(h.ref) }

// Reset returns the process to the free pool.
func (h DLProcess) Reset() { h.mgr.dl.dealloc(h.ref) }

// ULProcess is a handle to an allocated uplink HARQ process.
type ULProcess struct {
	mgr *CellManager
	ref int32
}

func (h ULProcess) proc() *process[ulExt] {
	return &h.mgr.ul.procs[h.ref]
}

// ID returns the HARQ process ID.
func (h ULProcess) ID() ran.HARQID { return h.proc().id }

// UE returns the index of the owning UE.
func (h ULProcess) UE() ran.UEIndex { return h.proc().ue }

// State returns the lifecycle state.
func (h ULProcess) State() State { return h.proc().state }

// Empty reports whether the process was returned to the free pool.
func (h ULProcess) Empty() bool { return h.proc().state == Empty }

// IsWaitingAck reports whether the process awaits its CRC.
func (h ULProcess) IsWaitingAck() bool { return h.proc().state == WaitingAck }

// HasPendingRetx reports whether the process waits to be retransmitted.
func (h ULProcess) HasPendingRetx() bool { return h.proc().state == PendingRetx }

// NDI returns the new data indicator.
func (h ULProcess) NDI() bool { return h.proc().ndi }

// NofRetxs returns how many times the TB was retransmitted.
func (h ULProcess) NofRetxs() uint { return h.proc().nofRetxs }

// MaxNofRetxs returns the retransmission budget.
func (h ULProcess) MaxNofRetxs() uint { return h.proc().maxNofRetxs }

// SlotTx returns the PUSCH slot of the last transmission.
func (h ULProcess) SlotTx() ran.SlotPoint { return h.proc().slotTx }

// TxParams returns the parameters of the last transmission.
func (h ULProcess) TxParams() TxParams { return h.proc().prevTxParams }

// SaveTxParams stores the parameters of the transmission just scheduled.
func (h ULProcess) SaveTxParams(p TxParams) { h.proc().prevTxParams = p }

// CRCInfo processes the CRC of the PUSCH. It returns the TBS in bytes if the
// CRC passed, 0 if it failed and -1 if the process was not expecting a CRC.
func (h ULProcess) CRCInfo(ok bool) int {
	return h.mgr.ulCRCInfo(h.ref, ok)
}

// NewRetx schedules the retransmission of a process pending retransmission.
func (h ULProcess) NewRetx(puschSlot ran.SlotPoint) {
	h.mgr.ul.newRetx(h.ref, puschSlot, puschSlot)
}

// CancelRetxs stops any further retransmission of the process.
func (h ULProcess) CancelRetxs() { h.mgr.ul.cancelRetxs(h.ref) }

// Reset returns the process to the free pool.
func (h ULProcess) Reset() { h.mgr.ul.dealloc(h.ref) }
