package harq

import (
	"log"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/sim/hooking"
)

// Builder can build cell HARQ managers.
type Builder struct {
	name            string
	maxUEs          int
	maxAckWaitSlots uint
	shortDTXSlots   uint
	maxK1           uint
	lookaheadSlots  uint
	ringSize        int
	notifier        TimeoutNotifier
	logger          logr.Logger
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		name:            "HARQ",
		maxUEs:          64,
		maxAckWaitSlots: 16,
		shortDTXSlots:   ShortDTXTimeoutSlots,
		maxK1:           DefaultMaxK1,
		lookaheadSlots:  DefaultMaxTxLookaheadSlots,
		ringSize:        DefaultRingSize,
		notifier:        noopTimeoutNotifier{},
		logger:          logr.Discard(),
	}
}

// WithName sets the name of the manager.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithMaxUEs sets the number of UEs the cell can hold.
func (b Builder) WithMaxUEs(n int) Builder {
	b.maxUEs = n
	return b
}

// WithMaxAckWaitSlots sets how many slots after the expected HARQ-ACK slot a
// process waits before it times out.
func (b Builder) WithMaxAckWaitSlots(n uint) Builder {
	b.maxAckWaitSlots = n
	return b
}

// WithShortDTXTimeoutSlots sets the wait window applied after a non-final
// PUCCH occasion.
func (b Builder) WithShortDTXTimeoutSlots(n uint) Builder {
	b.shortDTXSlots = n
	return b
}

// WithMaxK1 sets the largest distance, in slots, between a PDSCH and its
// HARQ-ACK.
func (b Builder) WithMaxK1(k1 uint) Builder {
	b.maxK1 = k1
	return b
}

// WithMaxTxLookaheadSlots sets how far ahead of the current slot
// transmissions can be allocated.
func (b Builder) WithMaxTxLookaheadSlots(n uint) Builder {
	b.lookaheadSlots = n
	return b
}

// WithRingSize sets the number of timing wheel buckets.
func (b Builder) WithRingSize(n int) Builder {
	b.ringSize = n
	return b
}

// WithTimeoutNotifier sets the collaborator told about timeouts.
func (b Builder) WithTimeoutNotifier(n TimeoutNotifier) Builder {
	b.notifier = n
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger logr.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a new CellManager.
func (b Builder) Build() *CellManager {
	b.mustBeValid()

	m := &CellManager{
		HookableBase:   hooking.NewHookableBase(),
		name:           b.name,
		logger:         b.logger,
		shortDTXWindow: int(b.shortDTXSlots),
	}

	m.dl = newRepository[dlExt](Downlink, b.maxUEs, b.maxAckWaitSlots,
		b.ringSize, b.notifier, b.logger, m)
	m.ul = newRepository[ulExt](Uplink, b.maxUEs, b.maxAckWaitSlots,
		b.ringSize, b.notifier, b.logger, m)

	return m
}

func (b Builder) mustBeValid() {
	if b.maxUEs <= 0 {
		log.Panicf("invalid max UEs %d", b.maxUEs)
	}

	if b.maxAckWaitSlots == 0 {
		log.Panic("HARQ-ACK wait window must be at least one slot")
	}

	if b.shortDTXSlots == 0 {
		log.Panic("short DTX wait window must be at least one slot")
	}

	if b.notifier == nil {
		log.Panic("timeout notifier is nil")
	}

	// Every timeout must land less than one lap ahead of the current slot.
	window := b.maxAckWaitSlots
	if b.shortDTXSlots > window {
		window = b.shortDTXSlots
	}

	reach := b.lookaheadSlots + b.maxK1 + window
	if b.ringSize <= 0 || uint(b.ringSize) <= reach {
		log.Panicf("ring size %d must exceed the furthest timeout %d "+
			"(lookahead %d, k1 %d, wait %d)",
			b.ringSize, reach, b.lookaheadSlots, b.maxK1, window)
	}
}
