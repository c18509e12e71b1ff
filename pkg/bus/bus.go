// Package bus publishes and consumes lvfs events over NATS JetStream.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream holding lvfs events.
	StreamName = "LVFS_EVENTS"
	// SubjectPrefix prefixes every event subject.
	SubjectPrefix = "lvfs.events."

	maxDeliver      = 5
	redeliveryDelay = 2 * time.Second
)

// Bus wraps a NATS JetStream connection for publishing and consuming events.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to url and makes sure the event stream exists.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	b := &Bus{conn: nc, js: js}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) ensureStream() error {
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ">"},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}
	return nil
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON and publishes it to subj. The publish fails
// unless the event stream captured the message.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, nats.Context(ctx), nats.ExpectStream(StreamName))
	return err
}

// Handler processes one event payload. A non-nil error schedules redelivery.
type Handler func(ctx context.Context, data []byte) error

// consumer drains its subscription at most once, either on Close or when
// the subscribing context ends.
type consumer struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (c *consumer) Close() error {
	c.once.Do(func() { c.err = c.sub.Drain() })
	return c.err
}

// Subscribe binds a durable consumer on the event stream to subj. Messages
// are acked when fn succeeds and nak'd with a delay otherwise, up to
// maxDeliver attempts.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn Handler) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	sub, err := b.js.Subscribe(subj, settle(ctx, fn),
		nats.BindStream(StreamName),
		nats.Durable(durable),
		nats.DeliverAll(),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return nil, err
	}

	c := &consumer{sub: sub}
	context.AfterFunc(ctx, func() { _ = c.Close() })
	return c, nil
}

func settle(ctx context.Context, fn Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if err := fn(ctx, msg.Data); err != nil {
			_ = msg.NakWithDelay(redeliveryDelay)
			return
		}
		_ = msg.Ack()
	}
}
