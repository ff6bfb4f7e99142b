package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/Deepreo/cronkit/core"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const poisonQueueTopic = "poison_queue"

// InMemory is an EventBus on a watermill go-channel pub/sub. Subscribe
// before Run; handlers added later are not started.
type InMemory struct {
	router *message.Router
	pubSub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

var _ core.EventBus = (*InMemory)(nil)

func NewInMemory(sl *slog.Logger) (*InMemory, error) {
	if sl == nil {
		sl = slog.Default()
	}
	logger := watermill.NewSlogLogger(sl.With("component", "event_bus"))
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, logger)
	if err != nil {
		return nil, err
	}
	// PreserveContext keeps trace data flowing from publisher to handler.
	pubSub := gochannel.NewGoChannel(gochannel.Config{PreserveContext: true}, logger)
	return &InMemory{router: router, pubSub: pubSub, logger: logger}, nil
}

func (b *InMemory) Use(middleware ...message.HandlerMiddleware) {
	b.router.AddMiddleware(middleware...)
}

func (b *InMemory) Publish(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessageWithContext(ctx, watermill.NewUUID(), payload)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	return b.pubSub.Publish(event.EventName(), msg)
}

func (b *InMemory) Subscribe(prototype core.Event, handler core.EventHandler[core.Event]) error {
	eventName := prototype.EventName()
	eventType := reflect.TypeOf(prototype)
	if eventType.Kind() == reflect.Ptr {
		eventType = eventType.Elem()
	}

	b.router.AddNoPublisherHandler(
		eventName+"_"+watermill.NewShortUUID(),
		eventName,
		b.pubSub,
		func(msg *message.Message) error {
			newEvent := reflect.New(eventType).Interface()
			if err := json.Unmarshal(msg.Payload, newEvent); err != nil {
				return err
			}
			evt, ok := newEvent.(core.Event)
			if !ok {
				return fmt.Errorf("%s does not implement core.Event", eventType)
			}
			return handler.Handle(msg.Context(), evt)
		},
	)
	return nil
}

// Running is closed once the router has started its handlers.
func (b *InMemory) Running() chan struct{} {
	return b.router.Running()
}

func (b *InMemory) Run(ctx context.Context) error {
	poisonQueue, err := middleware.PoisonQueue(b.pubSub, poisonQueueTopic)
	if err != nil {
		return err
	}
	retry := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		Logger:          b.logger,
	}
	b.router.AddMiddleware(
		OTelMiddleware,
		poisonQueue,
		retry.Middleware,
	)
	return b.router.Run(ctx)
}

func (b *InMemory) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubSub.Close()
}
