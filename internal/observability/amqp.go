package observability

import (
	"context"
	"sync/atomic"
)

// Publisher is the event bus sink used for domain and lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type publisherHolder struct {
	Publisher
}

var defaultPublisher atomic.Pointer[publisherHolder]

func SetPublisher(publisher Publisher) {
	if publisher == nil {
		defaultPublisher.Store(nil)
		return
	}
	defaultPublisher.Store(&publisherHolder{publisher})
}

// PublishEvent forwards to the configured publisher. Without one it is a no-op.
func PublishEvent(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	holder := defaultPublisher.Load()
	if holder == nil {
		return nil
	}

	err := holder.Publish(ctx, routingKey, event, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
