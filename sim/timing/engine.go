// Package timing provides the discrete-event engine that drives ranstack.
//
// The engine clock counts slots: one VTimeInCycle unit is one air-interface
// slot. Components that act once per slot implement Ticker and are scheduled
// through a TickScheduler.
package timing

import (
	"github.com/sarchlab/ranstack/sim/hooking"
)

// VTimeInCycle is the engine clock, counted in slots.
type VTimeInCycle uint64

// TimeTeller exposes the current engine cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events in the engine timeline.
type EventScheduler interface {
	TimeTeller

	Schedule(evt ScheduledEvent)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run processes all the events until no event is left.
	Run() error

	// RunUntil processes all the events scheduled no later than deadline.
	RunUntil(deadline VTimeInCycle) error

	// Pause pauses the engine until Continue is called.
	Pause()

	// Continue resumes a paused engine.
	Continue()
}
