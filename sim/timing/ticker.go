package timing

import (
	"sync"

	"github.com/sarchlab/ranstack/sim/hooking"
)

// TickEvent is a generic event that a component uses to update its state once
// per slot.
type TickEvent struct {
	Time VTimeInCycle
}

// A Ticker is an object that updates states with ticks. Tick returns true if
// the component made progress and wants to tick again in the next slot.
type Ticker interface {
	Tick() bool
}

// TickScheduler can help schedule tick events.
type TickScheduler struct {
	lock      sync.Mutex
	handler   Handler
	Engine    EventScheduler
	secondary bool

	nextTickTime VTimeInCycle
	scheduled    bool
}

// NewTickScheduler creates a scheduler for tick events.
func NewTickScheduler(handler Handler, engine EventScheduler) *TickScheduler {
	return &TickScheduler{
		handler: handler,
		Engine:  engine,
	}
}

// NewSecondaryTickScheduler creates a scheduler that always schedule
// secondary tick events.
func NewSecondaryTickScheduler(
	handler Handler,
	engine EventScheduler,
) *TickScheduler {
	t := NewTickScheduler(handler, engine)
	t.secondary = true

	return t
}

// TickNow schedules a tick event at the current cycle.
func (t *TickScheduler) TickNow() {
	t.tickAt(t.Engine.CurrentTime())
}

// TickLater schedules a tick event at the cycle after the current one.
func (t *TickScheduler) TickLater() {
	t.tickAt(t.Engine.CurrentTime() + 1)
}

func (t *TickScheduler) tickAt(time VTimeInCycle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.scheduled && t.nextTickTime >= time {
		return
	}

	t.nextTickTime = time
	t.scheduled = true

	t.Engine.Schedule(ScheduledEvent{
		Event:       TickEvent{Time: time},
		Time:        time,
		Handler:     t.handler,
		IsSecondary: t.secondary,
	})
}

// TickingComponent is a component that updates its state from slot to slot.
// A programmer only needs to provide the Tick function.
type TickingComponent struct {
	*hooking.HookableBase
	*TickScheduler

	name   string
	ticker Ticker
}

// NewTickingComponent creates a new ticking component.
func NewTickingComponent(
	name string,
	engine EventScheduler,
	ticker Ticker,
) *TickingComponent {
	tc := &TickingComponent{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		ticker:       ticker,
	}
	tc.TickScheduler = NewTickScheduler(tc, engine)

	return tc
}

// Name returns the name of the component.
func (c *TickingComponent) Name() string {
	return c.name
}

// Handle triggers the tick function of the TickingComponent.
func (c *TickingComponent) Handle(_ any) error {
	if c.ticker.Tick() {
		c.TickLater()
	}

	return nil
}
