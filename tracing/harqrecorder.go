package tracing

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/datarecording"
	"github.com/sarchlab/ranstack/scheduler/harq"
	"github.com/sarchlab/ranstack/sim/hooking"
)

// HARQTable is the table written by the HARQRecorder.
const HARQTable = "harq_event"

// HARQRow is the record of one HARQ lifecycle event.
type HARQRow struct {
	Cell     string
	Event    string
	SFN      uint32
	Slot     uint32
	UE       uint16
	Dir      string
	HARQID   uint8
	NofRetxs uint64
	TBS      uint32
}

var harqEventNames = map[*hooking.HookPos]string{
	harq.HookPosAlloc:   "alloc",
	harq.HookPosRetx:    "retx",
	harq.HookPosAck:     "ack",
	harq.HookPosNack:    "nack",
	harq.HookPosDiscard: "discard",
	harq.HookPosTimeout: "timeout",
	harq.HookPosRelease: "release",
}

// HARQRecorder is a hook that stores the HARQ events of the cells it is
// attached to.
type HARQRecorder struct {
	backend datarecording.DataRecorder
	logger  logr.Logger
}

// NewHARQRecorder creates the HARQ table and returns a recorder that fills
// it.
func NewHARQRecorder(
	backend datarecording.DataRecorder,
	logger logr.Logger,
) (*HARQRecorder, error) {
	if err := backend.CreateTable(HARQTable, HARQRow{}); err != nil {
		return nil, fmt.Errorf("harq recorder: %w", err)
	}

	return &HARQRecorder{backend: backend, logger: logger}, nil
}

// Func records a HARQ event.
func (r *HARQRecorder) Func(ctx hooking.HookCtx) {
	name, ok := harqEventNames[ctx.Pos]
	if !ok {
		return
	}

	evt := ctx.Item.(harq.Event)

	cell := ""
	if named, ok := ctx.Domain.(interface{ Name() string }); ok {
		cell = named.Name()
	}

	err := r.backend.InsertData(HARQTable, HARQRow{
		Cell:     cell,
		Event:    name,
		SFN:      evt.Slot.SFN(),
		Slot:     evt.Slot.SlotIndex(),
		UE:       uint16(evt.UE),
		Dir:      evt.Dir.String(),
		HARQID:   uint8(evt.ID),
		NofRetxs: uint64(evt.NofRetxs),
		TBS:      evt.TBS,
	})
	if err != nil {
		r.logger.Error(err, "recording HARQ event", "ue", evt.UE, "h_id", evt.ID)
	}
}
