package harq

import (
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/sim/hooking"
)

// Hook positions of the HARQ process lifecycle. The item of the hook context
// is an Event.
var (
	HookPosAlloc   = &hooking.HookPos{Name: "HARQAlloc"}
	HookPosRetx    = &hooking.HookPos{Name: "HARQRetx"}
	HookPosAck     = &hooking.HookPos{Name: "HARQAck"}
	HookPosNack    = &hooking.HookPos{Name: "HARQNack"}
	HookPosDiscard = &hooking.HookPos{Name: "HARQDiscard"}
	HookPosTimeout = &hooking.HookPos{Name: "HARQTimeout"}
	HookPosRelease = &hooking.HookPos{Name: "HARQRelease"}
)

// Event describes a HARQ process at the moment a hook is invoked.
type Event struct {
	Slot     ran.SlotPoint
	UE       ran.UEIndex
	Dir      Direction
	ID       ran.HARQID
	NofRetxs uint
	TBS      uint32
}

// TimeoutNotifier is told about HARQ processes that reached their
// acknowledgment timeout. It runs on the slot thread and must not block or
// call back into the manager.
type TimeoutNotifier interface {
	OnHARQTimeout(ue ran.UEIndex, dir Direction, ackOnTimeout bool)
}

type noopTimeoutNotifier struct{}

func (noopTimeoutNotifier) OnHARQTimeout(ran.UEIndex, Direction, bool) {}
