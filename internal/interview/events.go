package interview

import (
	"context"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

// EventSink receives session events as they happen. Publish failures are
// logged by the controller and never affect the session.
type EventSink interface {
	Publish(ctx context.Context, event *model.SessionEvent) error
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(context.Context, *model.SessionEvent) error { return nil }
