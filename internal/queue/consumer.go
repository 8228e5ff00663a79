package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Sink stores one confirmed booking event.
type Sink interface {
	Write(ev BookingConfirmedEvent) error
}

// FileSink appends one human readable line per event to a file, creating
// the directory on first use.
type FileSink struct {
	Path string

	mu sync.Mutex
}

// DefaultLogPath is where the consumer writes when no path is configured.
var DefaultLogPath = filepath.Join("logs", "booking.log")

// Write appends ev to the file.
func (s *FileSink) Write(ev BookingConfirmedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path
	if path == "" {
		path = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders the single log line for ev, newline terminated.
func FormatLine(ev BookingConfirmedEvent) string {
	starts := make([]string, 0, len(ev.Slots))
	for _, s := range ev.Slots {
		starts = append(starts, s.StartsAt)
	}
	line := fmt.Sprintf("[%s] Booking confirmed | reference=%s | origin=%s | customer=%q | phone=%q | equipment=%t | total=%d cents | slots=[%s]",
		ev.ConfirmedAt, ev.Reference, ev.Origin, ev.CustomerName, ev.Phone, ev.EquipmentRental, ev.TotalPriceCents, strings.Join(starts, ","))
	if ev.CreatedBy != "" {
		line += " | created_by=" + ev.CreatedBy
	}
	return line + "\n"
}

// Consumer reads booking.confirmed and hands each event to Sink.  It keeps
// reconnecting with exponential backoff until its context is cancelled.
type Consumer struct {
	URL  string
	Sink Sink
	Log  logrus.FieldLogger
}

// Run consumes until ctx is done and then returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).Warnf("booking-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("booking-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.WithError(err).Warn("booking-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.Log.WithError(err).Error("booking-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Reference == "" {
		return errors.New("event without reference")
	}
	if err := c.Sink.Write(ev); err != nil {
		return err
	}
	c.Log.WithField("reference", ev.Reference).Info("booking recorded")
	return nil
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
