// Package instrument records request traces as rows of the _events table.
// A trace is a tree of timed spans sharing one trace id; spans started
// without a tracer in the context are inert.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	tracerKey ctxKey = iota
	traceIDKey
	parentSpanIDKey
	userIDKey
)

// Event represents a row in the _events table.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"` // span or business
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Entity       *string        `json:"entity"`
	RecordID     *string        `json:"record_id"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Recorder accepts finished events. *EventBuffer is the production recorder.
type Recorder interface {
	Record(Event)
}

// Tracer hands out spans that report to a Recorder.
type Tracer struct {
	rec Recorder
}

func NewTracer(rec Recorder) *Tracer {
	return &Tracer{rec: rec}
}

// WithTrace attaches the tracer and a trace id to ctx.
func WithTrace(ctx context.Context, t *Tracer, traceID string) context.Context {
	ctx = context.WithValue(ctx, tracerKey, t)
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id of ctx, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithUserID records the authenticated user for spans started from ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user recorded on ctx, or "".
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func stringFrom(ctx context.Context, key ctxKey) *string {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return &v
	}
	return nil
}

// StartSpan opens a span under whatever span ctx carries. The returned
// context parents spans started from it. Without a tracer the span is nil,
// and every Span method accepts a nil receiver.
func StartSpan(ctx context.Context, component, action string) (context.Context, *Span) {
	t, _ := ctx.Value(tracerKey).(*Tracer)
	if t == nil {
		return ctx, nil
	}

	s := &Span{
		rec: t.rec,
		event: Event{
			TraceID:      TraceID(ctx),
			SpanID:       uuid.NewString(),
			ParentSpanID: stringFrom(ctx, parentSpanIDKey),
			EventType:    "span",
			Component:    component,
			Action:       action,
			UserID:       stringFrom(ctx, userIDKey),
			Metadata:     make(map[string]any),
		},
		start: time.Now(),
	}
	return context.WithValue(ctx, parentSpanIDKey, s.event.SpanID), s
}

// Emit records a one-shot business event such as a write.
func Emit(ctx context.Context, action, entity, recordID string) {
	t, _ := ctx.Value(tracerKey).(*Tracer)
	if t == nil {
		return
	}
	e := Event{
		TraceID:      TraceID(ctx),
		SpanID:       uuid.NewString(),
		ParentSpanID: stringFrom(ctx, parentSpanIDKey),
		EventType:    "business",
		Component:    "api",
		Action:       action,
		UserID:       stringFrom(ctx, userIDKey),
		CreatedAt:    time.Now(),
	}
	if entity != "" {
		e.Entity = &entity
	}
	if recordID != "" {
		e.RecordID = &recordID
	}
	t.rec.Record(e)
}

// Span is one timed operation of a trace.
type Span struct {
	rec   Recorder
	start time.Time

	mu    sync.Mutex
	event Event
	ended bool
}

func (s *Span) SpanID() string {
	if s == nil {
		return ""
	}
	return s.event.SpanID
}

func (s *Span) SetStatus(status string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Status = &status
}

func (s *Span) SetEntity(entity string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Entity = &entity
}

func (s *Span) SetMetadata(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Metadata[key] = value
}

// End records the span. Later calls are ignored.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	ms := float64(time.Since(s.start).Microseconds()) / 1000.0
	s.event.DurationMs = &ms
	s.event.CreatedAt = s.start
	e := s.event
	s.mu.Unlock()

	s.rec.Record(e)
}

// EndWith sets the status from err and ends the span.
func (s *Span) EndWith(err error) {
	if err != nil {
		s.SetStatus("error")
		s.SetMetadata("error", err.Error())
	} else {
		s.SetStatus("ok")
	}
	s.End()
}
