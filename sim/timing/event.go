package timing

import "github.com/sarchlab/ranstack/sim/hooking"

// HookPosBeforeEvent is a hook position that triggers before handling an event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

// Handler processes events of various types. Events are plain data; handlers
// use a type switch to tell them apart:
//
//	func (c *Comp) Handle(event any) error {
//	    switch e := event.(type) {
//	    case TickEvent:
//	        return c.TickingComponent.Handle(e)
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	}
type Handler interface {
	Handle(event any) error
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
type ScheduledEvent struct {
	// Event is the payload delivered to the handler.
	Event any

	// Time is the cycle when the event should be processed.
	Time VTimeInCycle

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary marks events that run after all the primary events of the
	// same cycle.
	IsSecondary bool
}

// FuncEvent is an event whose handling is the call of Fn. It is used to post
// closures onto the engine's execution context.
type FuncEvent struct {
	Fn func()
}

// FuncHandler runs FuncEvent payloads.
type FuncHandler struct{}

// Handle runs the closure carried by a FuncEvent.
func (FuncHandler) Handle(event any) error {
	if e, ok := event.(FuncEvent); ok && e.Fn != nil {
		e.Fn()
	}

	return nil
}
