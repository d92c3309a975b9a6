package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

const (
	// StreamName is the name of the interview events stream.
	StreamName = "INTERVIEWS"

	// SubjectPrefix is the prefix for all interview subjects.
	SubjectPrefix = "interview"
)

// EventStream publishes session events to JetStream, replays them, and
// follows them live.
type EventStream struct {
	js   jetstream.JetStream
	conn *nats.Conn
}

// NewEventStream creates an event stream on client.
func NewEventStream(client *Client) *EventStream {
	return &EventStream{js: client.JetStream(), conn: client.conn}
}

// EnsureStream creates the interviews stream unless it already exists.
func (s *EventStream) EnsureStream(ctx context.Context) error {
	_, err := s.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Simulated interview messages and lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a message appended by role.
func MessageSubject(sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, sessionID, role)
}

// EventSubject returns the subject for a lifecycle event.
func EventSubject(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, sessionID, eventType)
}

// SessionFilter matches every subject of one session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sessionID)
}

// Subject picks the subject event is published on.
func Subject(event *model.SessionEvent) string {
	if event.Type == model.EventTypeMessageAppended && event.Message != nil {
		return MessageSubject(event.SessionID, event.Message.Role)
	}
	return EventSubject(event.SessionID, event.Type)
}

// Publish sends event to JetStream, using the event id for de-duplication.
func (s *EventStream) Publish(ctx context.Context, event *model.SessionEvent) error {
	if event.SessionID == "" {
		return errors.New("event has no session id")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.js.Publish(ctx, Subject(event), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// SessionEvents replays up to limit events of one session in stream order.
func (s *EventStream) SessionEvents(ctx context.Context, sessionID string, limit int) ([]model.SessionEvent, error) {
	consumer, err := s.js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject:     SessionFilter(sessionID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]model.SessionEvent, 0, limit)
	for msg := range batch.Messages() {
		var event model.SessionEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return events, nil
}

// Follow delivers events of one session as they are published, until ctx is
// done. The returned channel is closed when following stops.
func (s *EventStream) Follow(ctx context.Context, sessionID string) (<-chan model.SessionEvent, error) {
	if s.conn == nil {
		return nil, errors.New("live follow requires a NATS connection")
	}

	msgs := make(chan *nats.Msg, 64)
	sub, err := s.conn.ChanSubscribe(SessionFilter(sessionID), msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan model.SessionEvent, 64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				var event model.SessionEvent
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
