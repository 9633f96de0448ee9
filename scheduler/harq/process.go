package harq

import (
	"fmt"

	"github.com/sarchlab/ranstack/ran"
)

// Direction tells the downlink and uplink repositories apart.
type Direction uint8

// The two HARQ directions.
const (
	Downlink Direction = iota
	Uplink
)

func (d Direction) String() string {
	if d == Downlink {
		return "DL"
	}

	return "UL"
}

// State is the lifecycle state of a HARQ process.
type State uint8

// HARQ process states. A process moves from Empty to WaitingAck on
// allocation, may bounce between WaitingAck and PendingRetx, and returns to
// Empty on acknowledgment, timeout, budget exhaustion or UE teardown.
const (
	Empty State = iota
	WaitingAck
	PendingRetx
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case WaitingAck:
		return "waiting_ack"
	case PendingRetx:
		return "pending_retx"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// TxParams are the parameters of the last transmission of a process.
type TxParams struct {
	TBSBytes uint32
	MCS      uint8
	NofPRBs  uint16
}

// process is one record of the flat pool. Ext carries the direction-specific
// fields.
type process[Ext any] struct {
	ue    ran.UEIndex
	id    ran.HARQID
	state State

	slotTx      ran.SlotPoint
	slotAck     ran.SlotPoint
	slotTimeout ran.SlotPoint

	nofRetxs    uint
	maxNofRetxs uint

	ndi            bool
	ackOnTimeout   bool
	retxsCancelled bool

	prevTxParams TxParams

	ext Ext
}

// dlExt holds the downlink-only fields.
type dlExt struct {
	pucchAckToReceive uint
	chosenAck         ran.HARQAckStatus
	lastPUCCHSNR      float32
	hasPUCCHSNR       bool
	bitIdx            uint8
}

// ulExt is empty; uplink processes only use the common fields.
type ulExt struct{}
