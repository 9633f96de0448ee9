package harq

import (
	"log"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/sim/hooking"
)

// ueHARQs is the per-UE index of a repository.
type ueHARQs struct {
	present bool
	rnti    ran.RNTI

	nofHARQs int
	refs     [ran.MaxNofHARQs]int32
	ndi      [ran.MaxNofHARQs]bool
	freeIDs  []ran.HARQID
}

// eventSink receives the lifecycle events of the processes of a repository.
type eventSink interface {
	emit(pos *hooking.HookPos, evt Event)
}

// repository owns the HARQ processes of one direction of one cell. It is not
// safe for concurrent use; the owner confines it to the slot thread.
type repository[Ext any] struct {
	dir             Direction
	maxAckWaitSlots uint
	notifier        TimeoutNotifier
	logger          logr.Logger
	sink            eventSink

	procs    []process[Ext]
	links    []link
	freeRefs []int32
	ues      []ueHARQs

	wheel       timingWheel
	pendingRetx refList

	lastSlot ran.SlotPoint
	started  bool
}

func newRepository[Ext any](
	dir Direction,
	maxUEs int,
	maxAckWaitSlots uint,
	ringSize int,
	notifier TimeoutNotifier,
	logger logr.Logger,
	sink eventSink,
) *repository[Ext] {
	capacity := maxUEs * ran.MaxNofHARQs

	r := &repository[Ext]{
		dir:             dir,
		maxAckWaitSlots: maxAckWaitSlots,
		notifier:        notifier,
		logger:          logger,
		sink:            sink,
		procs:           make([]process[Ext], capacity),
		links:           make([]link, capacity),
		freeRefs:        make([]int32, capacity),
		ues:             make([]ueHARQs, maxUEs),
		wheel:           newTimingWheel(ringSize),
		pendingRetx:     newRefList(),
	}

	// The free list is popped from the back, so ref 0 goes out first.
	for i := range r.freeRefs {
		r.freeRefs[i] = int32(capacity - i - 1)
		r.links[i] = link{prev: noRef, next: noRef}
	}

	for i := range r.ues {
		r.ues[i].freeIDs = make([]ran.HARQID, 0, ran.MaxNofHARQs)
		for j := range r.ues[i].refs {
			r.ues[i].refs[j] = noRef
		}
	}

	return r
}

func (r *repository[Ext]) ueEntry(ue ran.UEIndex) *ueHARQs {
	if int(ue) >= len(r.ues) {
		log.Panicf("ue=%d out of range, max %d UEs", ue, len(r.ues))
	}

	return &r.ues[ue]
}

func (r *repository[Ext]) reserveUE(ue ran.UEIndex, rnti ran.RNTI, nofHARQs int) {
	if nofHARQs <= 0 || nofHARQs > ran.MaxNofHARQs {
		log.Panicf("ue=%d: invalid number of %s HARQs %d", ue, r.dir, nofHARQs)
	}

	u := r.ueEntry(ue)
	u.present = true
	u.rnti = rnti
	u.nofHARQs = nofHARQs
	u.ndi = [ran.MaxNofHARQs]bool{}

	// IDs are popped from the back, so ID 0 is handed out first.
	u.freeIDs = u.freeIDs[:0]
	for i := nofHARQs - 1; i >= 0; i-- {
		u.freeIDs = append(u.freeIDs, ran.HARQID(i))
	}
}

// releaseUEHARQs returns every process of the UE to the pools. The UE keeps
// its reservation.
func (r *repository[Ext]) releaseUEHARQs(ue ran.UEIndex) {
	u := r.ueEntry(ue)
	for _, ref := range u.refs {
		if ref != noRef {
			r.dealloc(ref)
		}
	}
}

func (r *repository[Ext]) destroyUE(ue ran.UEIndex) {
	r.releaseUEHARQs(ue)

	u := r.ueEntry(ue)
	u.present = false
	u.nofHARQs = 0
	u.freeIDs = u.freeIDs[:0]
}

func (r *repository[Ext]) contains(ue ran.UEIndex) bool {
	return int(ue) < len(r.ues) && r.ues[ue].present
}

func (r *repository[Ext]) alloc(
	ue ran.UEIndex,
	slotTx, slotAck ran.SlotPoint,
	maxNofRetxs uint,
) int32 {
	u := r.ueEntry(ue)
	if len(r.freeRefs) == 0 || len(u.freeIDs) == 0 {
		return noRef
	}

	timeout := slotAck.Add(int(r.maxAckWaitSlots))
	r.mustBeWithinLap(ue, timeout)

	id := u.freeIDs[len(u.freeIDs)-1]
	u.freeIDs = u.freeIDs[:len(u.freeIDs)-1]

	ref := r.freeRefs[len(r.freeRefs)-1]
	r.freeRefs = r.freeRefs[:len(r.freeRefs)-1]
	u.refs[id] = ref
	u.ndi[id] = !u.ndi[id]

	p := &r.procs[ref]
	p.ue = ue
	p.id = id
	p.state = WaitingAck
	p.slotTx = slotTx
	p.slotAck = slotAck
	p.nofRetxs = 0
	p.maxNofRetxs = maxNofRetxs
	p.ndi = u.ndi[id]
	p.ackOnTimeout = false
	p.retxsCancelled = false
	p.prevTxParams = TxParams{}

	p.slotTimeout = timeout
	r.wheel.bucket(p.slotTimeout.ToUint()).pushFront(r.links, ref)

	r.sink.emit(HookPosAlloc, r.event(ref))

	return ref
}

func (r *repository[Ext]) dealloc(ref int32) {
	p := &r.procs[ref]
	if p.state == Empty {
		return
	}

	u := &r.ues[p.ue]
	u.refs[p.id] = noRef
	u.freeIDs = append(u.freeIDs, p.id)

	r.freeRefs = append(r.freeRefs, ref)

	if p.state == WaitingAck {
		r.wheel.bucket(p.slotTimeout.ToUint()).remove(r.links, ref)
	} else {
		r.pendingRetx.remove(r.links, ref)
	}

	p.state = Empty

	r.sink.emit(HookPosRelease, r.event(ref))
}

func (r *repository[Ext]) handleAck(ref int32, ack bool) {
	p := &r.procs[ref]

	if !ack && p.nofRetxs >= p.maxNofRetxs {
		cause := "maximum number of retxs exceeded"
		if p.retxsCancelled {
			cause = "retxs for this HARQ process were cancelled"
		}

		r.logger.Info("Discarding HARQ process TB",
			"ue", p.ue, "h_id", p.id, "dir", r.dir,
			"tbs", p.prevTxParams.TBSBytes,
			"max_retxs", p.maxNofRetxs,
			"cause", cause)
		r.sink.emit(HookPosDiscard, r.event(ref))
	}

	if ack {
		r.sink.emit(HookPosAck, r.event(ref))
	} else {
		r.sink.emit(HookPosNack, r.event(ref))
	}

	if ack || p.nofRetxs >= p.maxNofRetxs {
		r.dealloc(ref)
		return
	}

	r.setPendingRetx(ref)
}

func (r *repository[Ext]) setPendingRetx(ref int32) {
	p := &r.procs[ref]

	switch p.state {
	case Empty:
		log.Panicf("ue=%d h_id=%d: %s HARQ in wrong state %s",
			p.ue, p.id, r.dir, p.state)
	case PendingRetx:
		return
	}

	r.wheel.bucket(p.slotTimeout.ToUint()).remove(r.links, ref)
	r.pendingRetx.pushFront(r.links, ref)
	p.state = PendingRetx
}

// newRetx moves a process that is pending retransmission back to waiting for
// its acknowledgment.
func (r *repository[Ext]) newRetx(ref int32, slotTx, slotAck ran.SlotPoint) {
	p := &r.procs[ref]
	if p.state != PendingRetx {
		log.Panicf("ue=%d h_id=%d: %s HARQ retx in state %s",
			p.ue, p.id, r.dir, p.state)
	}

	timeout := slotAck.Add(int(r.maxAckWaitSlots))
	r.mustBeWithinLap(p.ue, timeout)

	r.pendingRetx.remove(r.links, ref)

	p.state = WaitingAck
	p.slotTx = slotTx
	p.slotAck = slotAck
	p.nofRetxs++
	p.ackOnTimeout = false
	p.slotTimeout = timeout
	r.wheel.bucket(p.slotTimeout.ToUint()).pushFront(r.links, ref)

	r.sink.emit(HookPosRetx, r.event(ref))
}

func (r *repository[Ext]) cancelRetxs(ref int32) {
	p := &r.procs[ref]
	if p.state == Empty {
		return
	}

	p.maxNofRetxs = p.nofRetxs
	p.retxsCancelled = true
}

// rescheduleTimeout moves a waiting process to another wheel bucket.
func (r *repository[Ext]) rescheduleTimeout(ref int32, timeout ran.SlotPoint) {
	p := &r.procs[ref]

	r.wheel.bucket(p.slotTimeout.ToUint()).remove(r.links, ref)
	p.slotTimeout = timeout
	r.wheel.bucket(p.slotTimeout.ToUint()).pushFront(r.links, ref)
}

// mustBeWithinLap panics if a timeout would share its wheel bucket with an
// earlier slot still to come.
func (r *repository[Ext]) mustBeWithinLap(ue ran.UEIndex, timeout ran.SlotPoint) {
	if !r.started {
		return
	}

	if d := timeout.Sub(r.lastSlot); d >= r.wheel.ringSize() {
		log.Panicf("ue=%d: %s HARQ timeout %s is %d slots ahead of %s, "+
			"ring size %d", ue, r.dir, timeout, d, r.lastSlot, r.wheel.ringSize())
	}
}

func (r *repository[Ext]) slotIndication(slot ran.SlotPoint) {
	r.lastSlot = slot
	r.started = true

	r.wheel.bucket(slot.ToUint()).forEach(r.links, func(ref int32) {
		// Records of a later lap share the bucket.
		if r.procs[ref].slotTimeout.ToUint() != slot.ToUint() {
			return
		}

		r.handleTimeout(ref)
	})
}

func (r *repository[Ext]) handleTimeout(ref int32) {
	p := &r.procs[ref]
	if p.state != WaitingAck {
		log.Panicf("ue=%d h_id=%d: %s HARQ timed out in state %s",
			p.ue, p.id, r.dir, p.state)
	}

	// A single-slot wait window means timeouts are the expected outcome, so
	// they are neither logged nor reported.
	if r.maxAckWaitSlots != 1 {
		waited := p.slotTimeout.Sub(p.slotAck)
		if p.ackOnTimeout {
			r.logger.V(1).Info(
				"Setting HARQ to ACKed on HARQ-ACK wait timeout, one positive ACK was received",
				"ue", p.ue, "h_id", p.id, "dir", r.dir, "wait_slots", waited)
		} else {
			r.logger.Info(
				"Discarding HARQ on HARQ-ACK wait timeout, no positive ACK was received",
				"ue", p.ue, "h_id", p.id, "dir", r.dir, "wait_slots", waited)
		}

		r.notifier.OnHARQTimeout(p.ue, r.dir, p.ackOnTimeout)
	}

	r.sink.emit(HookPosTimeout, r.event(ref))
	r.dealloc(ref)
}

// findInState returns the first process of the UE, in HARQ-ID order, that is
// in the given state.
func (r *repository[Ext]) findInState(ue ran.UEIndex, state State) int32 {
	for _, ref := range r.ueEntry(ue).refs {
		if ref != noRef && r.procs[ref].state == state {
			return ref
		}
	}

	return noRef
}

func (r *repository[Ext]) find(
	ue ran.UEIndex,
	match func(p *process[Ext]) bool,
) int32 {
	for _, ref := range r.ueEntry(ue).refs {
		if ref != noRef && match(&r.procs[ref]) {
			return ref
		}
	}

	return noRef
}

func (r *repository[Ext]) refOf(ue ran.UEIndex, id ran.HARQID) int32 {
	u := r.ueEntry(ue)
	if int(id) >= u.nofHARQs {
		return noRef
	}

	return u.refs[id]
}

func (r *repository[Ext]) nofFreeProcesses() int {
	return len(r.freeRefs)
}

func (r *repository[Ext]) nofAllocated(ue ran.UEIndex) int {
	n := 0
	for _, ref := range r.ueEntry(ue).refs {
		if ref != noRef {
			n++
		}
	}

	return n
}

func (r *repository[Ext]) event(ref int32) Event {
	p := &r.procs[ref]

	return Event{
		Slot:     r.lastSlot,
		UE:       p.ue,
		Dir:      r.dir,
		ID:       p.id,
		NofRetxs: p.nofRetxs,
		TBS:      p.prevTxParams.TBSBytes,
	}
}
