package mqtt

import (
	"context"
)

// MessageHandler processes one received message. ctx is bounded by
// ClientConfig.HandlerTimeout.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Publisher is the half of a client used by components that only send,
// such as the command gateway.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// IsConnected reports whether the last observed connection event was an
	// established connection.
	IsConnected() bool
}

// Subscriber routes inbound publishes to handlers. Subscriptions are
// replayed after every reconnect.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error
	Unsubscribe(ctx context.Context, topic string) error
}

// Client is a broker session that reconnects on its own.
type Client interface {
	Publisher
	Subscriber

	// Start dials in the background and returns immediately.
	Start(ctx context.Context) error

	// AwaitConnection blocks until the first connection is up or ctx ends.
	AwaitConnection(ctx context.Context) error

	Disconnect(ctx context.Context)
}
