package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/slot-booking/internal/model"
)

// dialTimeout caps connecting to the broker, TLS and AMQP handshake
// included.  A shorter context deadline wins.
const dialTimeout = 3 * time.Second

// Publisher sends BookingConfirmedEvents to RabbitMQ.  The connection is
// opened on first use and reused; after a failure it is dropped and the
// next publish dials again.  Messages are marked persistent.
type Publisher struct {
	url string
	log logrus.FieldLogger

	// sem guards conn and ch.  Waiting for it gives up with the caller's
	// context.
	sem  chan struct{}
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.  It does not
// connect until the first event is published.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, log: log, sem: make(chan struct{}, 1)}
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) unlock() { <-p.sem }

// Notify publishes the booking's event.  It satisfies the reservation
// service's notifier.
func (p *Publisher) Notify(ctx context.Context, b model.Booking, slots []model.TimeSlot) error {
	return p.Publish(ctx, NewBookingConfirmedEvent(b, slots))
}

// Publish sends one event to the booking.confirmed queue.
func (p *Publisher) Publish(ctx context.Context, event BookingConfirmedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.lock(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer p.unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    event.Reference,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                    // default exchange
		BookingConfirmedQueue, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		pub,
	); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	p.log.WithField("reference", event.Reference).Debug("booking event published")
	return nil
}

// channel returns the cached channel, dialling and declaring the queue when
// there is none.  Callers hold the lock.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	p.reset()
	return nil
}
