package core

import (
	"context"
	"reflect"
	"time"
)

// Event is a fact that already happened.
type Event interface {
	EventID() string
	EventName() string
	OccurredOn() time.Time
}

// EventHandler handles one event type.
type EventHandler[E Event] interface {
	Handle(ctx context.Context, event E) error
}

// EventPublisher is the publishing half of an EventBus.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus publishes events and fans them out to subscribers.
type EventBus interface {
	EventPublisher
	Subscribe(prototype Event, handler EventHandler[Event]) error
	Run(ctx context.Context) error
	Close() error
}

// SubscribeEvent registers a typed handler on bus.
func SubscribeEvent[E Event](bus EventBus, handler EventHandler[E]) error {
	var zero E
	// A nil pointer prototype cannot answer EventName, so allocate one.
	val := reflect.ValueOf(zero)
	if val.Kind() == reflect.Ptr && val.IsNil() {
		val = reflect.New(val.Type().Elem())
		zero = val.Interface().(E)
	}
	return bus.Subscribe(zero, &eventHandlerWrapper[E]{handler: handler})
}

type eventHandlerWrapper[E Event] struct {
	handler EventHandler[E]
}

func (w *eventHandlerWrapper[E]) Handle(ctx context.Context, event Event) error {
	return w.handler.Handle(ctx, event.(E))
}
