package cell

import (
	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/config"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/scheduler/harq"
	"github.com/sarchlab/ranstack/sim/timing"
)

// Builder can build cells.
type Builder struct {
	engine     timing.EventScheduler
	numerology uint8
	harqConfig config.HARQConfig
	logger     logr.Logger
}

// MakeBuilder returns a Builder with the default HARQ configuration.
func MakeBuilder() Builder {
	return Builder{
		numerology: 1,
		harqConfig: config.Default().HARQ,
		logger:     logr.Discard(),
	}
}

// WithEngine sets the engine that drives the cell.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithNumerology sets the subcarrier spacing configuration of the cell.
func (b Builder) WithNumerology(mu uint8) Builder {
	b.numerology = mu
	return b
}

// WithHARQConfig sets the HARQ parameters.
func (b Builder) WithHARQConfig(cfg config.HARQConfig) Builder {
	b.harqConfig = cfg
	return b
}

// WithLogger sets the logger of the cell and its HARQ manager.
func (b Builder) WithLogger(logger logr.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a cell with the given name.
func (b Builder) Build(name string) *Cell {
	if b.engine == nil {
		panic("cell: engine is not set")
	}

	if b.numerology > ran.MaxNumerology {
		panic("cell: invalid numerology")
	}

	logger := b.logger.WithValues("cell", name)

	c := &Cell{
		numerology:  b.numerology,
		nofDLHARQs:  b.harqConfig.NofDLHARQs,
		nofULHARQs:  b.harqConfig.NofULHARQs,
		maxNofRetxs: b.harqConfig.MaxNofHARQRetxs,
		logger:      logger,
		ues:         make(map[ran.UEIndex]*UE),
	}
	c.TickingComponent = timing.NewTickingComponent(name, b.engine, c)

	c.harq = harq.MakeBuilder().
		WithName(name + ".HARQ").
		WithMaxUEs(b.harqConfig.MaxUEs).
		WithMaxAckWaitSlots(b.harqConfig.MaxAckWaitSlots).
		WithShortDTXTimeoutSlots(b.harqConfig.ShortDTXTimeoutSlots).
		WithMaxK1(b.harqConfig.MaxK1).
		WithMaxTxLookaheadSlots(b.harqConfig.MaxTxLookaheadSlots).
		WithRingSize(b.harqConfig.RingSize()).
		WithTimeoutNotifier(c).
		WithLogger(logger).
		Build()

	c.slot = c.slotAt(b.engine.CurrentTime())

	return c
}
