package events

import "context"

type eventKey struct{}

// ContextWithEvent returns a copy of ctx carrying e.
func ContextWithEvent(ctx context.Context, e *Event) context.Context {
	return context.WithValue(ctx, eventKey{}, e)
}

// FromContext returns the event being dispatched, if any.
// Listeners receive a context that carries their event.
func FromContext(ctx context.Context) (*Event, bool) {
	e, ok := ctx.Value(eventKey{}).(*Event)
	return e, ok && e != nil
}
