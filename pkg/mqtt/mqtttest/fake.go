// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/beacon/pkg/mqtt"
)

var _ mqtt.Client = (*Client)(nil)

// Published is one message handed to Publish.
type Published struct {
	Topic   string
	QoS     int
	Retain  bool
	Payload []byte
}

// Client records publishes and lets tests deliver messages to subscribers.
// It starts disconnected; Start marks it connected.
type Client struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string]mqtt.MessageHandler
	published  []Published
	PublishErr error
}

func New() *Client {
	return &Client{subs: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) Start(context.Context) error {
	c.SetConnected(true)
	return nil
}

func (c *Client) Disconnect(context.Context) { c.SetConnected(false) }

func (c *Client) SetConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	return errors.New("mqtttest: not connected")
}

func (c *Client) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Retain: retain, Payload: payload})
	return nil
}

func (c *Client) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	return nil
}

func (c *Client) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
	return nil
}

// Deliver calls the handler subscribed to filter synchronously. It reports
// whether a handler was found.
func (c *Client) Deliver(ctx context.Context, filter, topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.subs[filter]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(ctx, topic, payload)
	return true
}

// Published returns a copy of everything published so far.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Subscriptions returns the subscribed topic filters.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}
