package instrument

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventWriter persists a batch of events.
type EventWriter interface {
	WriteEvents(ctx context.Context, events []Event) error
}

// EventBuffer collects events in memory and hands them to an EventWriter
// on a timer or once maxSize events are pending.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	writer  EventWriter
	maxSize int
	flushMu sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	stopped sync.WaitGroup
}

func NewEventBuffer(writer EventWriter, maxSize int, flushInterval time.Duration) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	eb := &EventBuffer{
		writer:  writer,
		maxSize: maxSize,
		ticker:  time.NewTicker(flushInterval),
		done:    make(chan struct{}),
	}
	eb.stopped.Add(1)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	defer eb.stopped.Done()
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Record queues an event. A full buffer triggers an asynchronous flush.
func (eb *EventBuffer) Record(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		go eb.Flush()
	}
}

// Pending returns the number of queued events.
func (eb *EventBuffer) Pending() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes every queued event. Failed batches are logged and dropped.
func (eb *EventBuffer) Flush() {
	eb.flushMu.Lock()
	defer eb.flushMu.Unlock()

	eb.mu.Lock()
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eb.writer.WriteEvents(ctx, batch); err != nil {
		log.Printf("ERROR: event buffer dropped %d events: %v", len(batch), err)
	}
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	eb.ticker.Stop()
	close(eb.done)
	eb.stopped.Wait()
	eb.Flush()
}

var eventColumns = []string{
	"trace_id", "span_id", "parent_span_id", "event_type", "component", "action",
	"entity", "record_id", "user_id", "duration_ms", "status", "metadata", "created_at",
}

// PgEventWriter copies events into the _events table.
type PgEventWriter struct {
	Pool *pgxpool.Pool
}

func (w PgEventWriter) WriteEvents(ctx context.Context, events []Event) error {
	rows := make([][]any, len(events))
	for i, e := range events {
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		rows[i] = []any{
			e.TraceID, e.SpanID, e.ParentSpanID, e.EventType, e.Component, e.Action,
			e.Entity, e.RecordID, e.UserID, e.DurationMs, e.Status, e.Metadata, created,
		}
	}

	n, err := w.Pool.CopyFrom(ctx, pgx.Identifier{"_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy events: %w", err)
	}
	if int(n) != len(events) {
		return fmt.Errorf("copy events: wrote %d of %d", n, len(events))
	}
	return nil
}
