// Package cell provides the per-cell scheduler component.
//
// A Cell ticks once per slot. Each tick first applies the HARQ-ACK and CRC
// indications that were received since the previous tick and then advances
// the HARQ processes of the cell to the slot, so feedback that arrived before
// a deadline is never beaten by it. Indications can be reported from any
// goroutine; everything else must run on the engine.
package cell

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/scheduler/harq"
	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/sim/timing"
)

// HookPosPUSCHKO is invoked when a UE misses a PUSCH, either because the CRC
// failed or because the uplink HARQ process timed out. The item is a PUSCHKO.
var HookPosPUSCHKO = &hooking.HookPos{Name: "PUSCHKO"}

// PUSCHKO describes a missed PUSCH.
type PUSCHKO struct {
	Slot        ran.SlotPoint
	UE          ran.UEIndex
	Consecutive uint
	Timeout     bool
}

type uciIndication struct {
	ue      ran.UEIndex
	uciSlot ran.SlotPoint
	ack     ran.HARQAckStatus
	bitIdx  uint8
	snr     *float32
}

type crcIndication struct {
	ue        ran.UEIndex
	puschSlot ran.SlotPoint
	ok        bool
}

// UE is the cell-level state of one UE.
type UE struct {
	harq *harq.UEEntity

	consecutivePUSCHKOs uint
	dlTimeouts          uint
	ulTimeouts          uint
}

// HARQ returns the HARQ entity of the UE.
func (u *UE) HARQ() *harq.UEEntity {
	return u.harq
}

// ConsecutivePUSCHKOs returns the number of PUSCHs missed since the last
// successful one.
func (u *UE) ConsecutivePUSCHKOs() uint {
	return u.consecutivePUSCHKOs
}

// NofDLTimeouts returns the number of downlink HARQ timeouts of the UE.
func (u *UE) NofDLTimeouts() uint {
	return u.dlTimeouts
}

// NofULTimeouts returns the number of uplink HARQ timeouts of the UE.
func (u *UE) NofULTimeouts() uint {
	return u.ulTimeouts
}

// Cell is the scheduler of a single cell.
type Cell struct {
	*timing.TickingComponent

	numerology  uint8
	nofDLHARQs  int
	nofULHARQs  int
	maxNofRetxs uint
	logger      logr.Logger

	harq *harq.CellManager
	ues  map[ran.UEIndex]*UE
	slot ran.SlotPoint

	feedbackLock sync.Mutex
	pendingUCIs  []uciIndication
	pendingCRCs  []crcIndication
}

// HARQ returns the HARQ manager of the cell.
func (c *Cell) HARQ() *harq.CellManager {
	return c.harq
}

// CurrentSlot returns the slot of the most recent tick.
func (c *Cell) CurrentSlot() ran.SlotPoint {
	return c.slot
}

// Start makes the cell tick from the current engine cycle on.
func (c *Cell) Start() {
	c.TickNow()
}

// Tick runs one slot.
func (c *Cell) Tick() bool {
	c.slot = c.slotAt(c.Engine.CurrentTime())
	c.drainFeedback()
	c.harq.SlotIndication(c.slot)

	return true
}

func (c *Cell) slotAt(now timing.VTimeInCycle) ran.SlotPoint {
	period := uint64(ran.SlotWrapBase) << c.numerology
	return ran.NewSlotPoint(c.numerology, uint32(uint64(now)%period))
}

// AddUE creates the HARQ entity of a UE.
func (c *Cell) AddUE(ue ran.UEIndex, rnti ran.RNTI) *UE {
	entity := c.harq.AddUE(ue, rnti, c.nofDLHARQs, c.nofULHARQs)
	u := &UE{harq: entity}
	c.ues[ue] = u

	c.logger.V(1).Info("UE added", "ue", ue, "rnti", rnti)

	return u
}

// RemoveUE releases all the HARQ processes of a UE.
func (c *Cell) RemoveUE(ue ran.UEIndex) {
	u, ok := c.ues[ue]
	if !ok {
		return
	}

	u.harq.Reset()
	delete(c.ues, ue)

	c.logger.V(1).Info("UE removed", "ue", ue)
}

// UE returns the cell-level state of a UE.
func (c *Cell) UE(ue ran.UEIndex) (*UE, bool) {
	u, ok := c.ues[ue]
	return u, ok
}

// NofUEs returns the number of UEs in the cell.
func (c *Cell) NofUEs() int {
	return len(c.ues)
}

// ScheduleDL allocates a downlink HARQ process for a PDSCH in the current
// slot. It reuses a process waiting for retransmission when there is one.
// PDSCHs acknowledged in the same UCI slot get consecutive HARQ-ACK bits.
func (c *Cell) ScheduleDL(
	ue ran.UEIndex,
	k1 uint,
	params harq.TxParams,
) (harq.DLProcess, bool) {
	u, ok := c.ues[ue]
	if !ok {
		return harq.DLProcess{}, false
	}

	bitIdx := c.nextAckBit(u, c.slot.Add(int(k1)))

	if h, found := u.harq.FindPendingDLRetx(); found {
		h.NewRetx(c.slot, k1, bitIdx)
		h.IncrementPUCCHCounter()
		return h, true
	}

	h, ok := u.harq.AllocDLHARQ(c.slot, k1, c.maxNofRetxs, bitIdx)
	if !ok {
		return harq.DLProcess{}, false
	}

	h.SaveTxParams(params)
	h.IncrementPUCCHCounter()

	return h, true
}

// nextAckBit returns the first HARQ-ACK bit of the UCI at uciSlot that no
// process of the UE is waiting on.
func (c *Cell) nextAckBit(u *UE, uciSlot ran.SlotPoint) uint8 {
	bit := uint8(0)
	for {
		if _, taken := u.harq.FindDLHARQ(uciSlot, bit); !taken {
			return bit
		}
		bit++
	}
}

// ScheduleUL allocates an uplink HARQ process for a PUSCH k2 slots after the
// current slot.
func (c *Cell) ScheduleUL(
	ue ran.UEIndex,
	k2 uint,
	params harq.TxParams,
) (harq.ULProcess, bool) {
	u, ok := c.ues[ue]
	if !ok {
		return harq.ULProcess{}, false
	}

	puschSlot := c.slot.Add(int(k2))

	if h, found := u.harq.FindPendingULRetx(); found {
		h.NewRetx(puschSlot)
		return h, true
	}

	h, ok := u.harq.AllocULHARQ(puschSlot, c.maxNofRetxs)
	if !ok {
		return harq.ULProcess{}, false
	}

	h.SaveTxParams(params)

	return h, true
}

// HandleDLAckInfo reports a HARQ-ACK bit received in a UCI. It is safe to
// call from any goroutine; the indication is applied at the next tick.
func (c *Cell) HandleDLAckInfo(
	ue ran.UEIndex,
	uciSlot ran.SlotPoint,
	ack ran.HARQAckStatus,
	bitIdx uint8,
	snr *float32,
) {
	c.feedbackLock.Lock()
	c.pendingUCIs = append(c.pendingUCIs, uciIndication{
		ue:      ue,
		uciSlot: uciSlot,
		ack:     ack,
		bitIdx:  bitIdx,
		snr:     snr,
	})
	c.feedbackLock.Unlock()
}

// HandleCRC reports the CRC of a decoded PUSCH. It is safe to call from any
// goroutine; the indication is applied at the next tick.
func (c *Cell) HandleCRC(ue ran.UEIndex, puschSlot ran.SlotPoint, ok bool) {
	c.feedbackLock.Lock()
	c.pendingCRCs = append(c.pendingCRCs, crcIndication{
		ue:        ue,
		puschSlot: puschSlot,
		ok:        ok,
	})
	c.feedbackLock.Unlock()
}

func (c *Cell) drainFeedback() {
	c.feedbackLock.Lock()
	ucis := c.pendingUCIs
	crcs := c.pendingCRCs
	c.pendingUCIs = nil
	c.pendingCRCs = nil
	c.feedbackLock.Unlock()

	for _, uci := range ucis {
		c.applyDLAckInfo(uci)
	}

	for _, crc := range crcs {
		c.applyCRC(crc)
	}
}

func (c *Cell) applyDLAckInfo(uci uciIndication) harq.DLAckResult {
	u, ok := c.ues[uci.ue]
	if !ok {
		c.logger.Info("HARQ-ACK for unknown UE", "ue", uci.ue)
		return harq.DLAckError
	}

	h, found := u.harq.FindDLHARQ(uci.uciSlot, uci.bitIdx)
	if !found {
		c.logger.Info("no DL HARQ waiting for HARQ-ACK",
			"ue", uci.ue, "slot", uci.uciSlot, "bit", uci.bitIdx)
		return harq.DLAckError
	}

	return h.AckInfo(uci.ack, uci.snr)
}

func (c *Cell) applyCRC(crc crcIndication) int {
	u, ok := c.ues[crc.ue]
	if !ok {
		c.logger.Info("CRC for unknown UE", "ue", crc.ue)
		return -1
	}

	h, found := u.harq.FindULHARQ(crc.puschSlot)
	if !found {
		c.logger.Info("no UL HARQ waiting for CRC",
			"ue", crc.ue, "slot", crc.puschSlot)
		return -1
	}

	tbs := h.CRCInfo(crc.ok)
	if tbs < 0 {
		return tbs
	}

	if crc.ok {
		u.consecutivePUSCHKOs = 0
	} else {
		c.puschKO(crc.ue, u, false)
	}

	return tbs
}

// OnHARQTimeout counts the HARQ timeouts of the UEs of the cell.
func (c *Cell) OnHARQTimeout(
	ue ran.UEIndex,
	dir harq.Direction,
	ackOnTimeout bool,
) {
	u, ok := c.ues[ue]
	if !ok {
		return
	}

	if dir == harq.Downlink {
		u.dlTimeouts++
		return
	}

	u.ulTimeouts++
	c.puschKO(ue, u, true)
}

func (c *Cell) puschKO(ue ran.UEIndex, u *UE, timeout bool) {
	u.consecutivePUSCHKOs++

	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosPUSCHKO,
		Item: PUSCHKO{
			Slot:        c.slot,
			UE:          ue,
			Consecutive: u.consecutivePUSCHKOs,
			Timeout:     timeout,
		},
	})
}
