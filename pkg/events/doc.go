// Package events provides the process-wide event bus used to drive the
// bedrock lifecycle.
//
// Every component, and every application module built on bedrock, talks to
// the rest of the process through named events such as [Init] or [Started].
//
// # Emission
//
// Emit never calls listeners on the caller's stack. Dispatch is handed to the
// bus scheduler and listeners are read when dispatch starts, so code that
// registers a listener right after emitting still observes the event:
//
//	f := bus.Emit(ctx, events.Started)
//	bus.On(events.Started, onStarted) // still invoked
//	ok, err := f.Wait(ctx)
//
// Listeners run sequentially in registration order. [Bus.EmitParallel] runs
// them concurrently instead. In both modes the future settles only after every
// listener has returned.
//
// # Cancellation and failure
//
// A listener returns [ErrCancel] to cancel the emission; Wait then reports
// false with no error, and sequential emissions skip the remaining listeners.
// Any other error, or a recovered panic ([PanicError]), fails the emission.
// Whether that is fatal is up to the caller.
package events
