package llm

import (
	"context"
	"io"
)

// eventStream adapts a producer goroutine to the Stream interface. The
// producer writes events into the channel; its return value is surfaced
// by Recv only after every buffered event has been delivered, so a
// final EventDone is never lost to a racing cancellation.
type eventStream struct {
	cancel context.CancelFunc
	events chan Event

	// err is written exactly once, before events is closed; the close
	// publishes it to readers.
	err error
}

// newEventStream runs the producer in a goroutine and exposes its
// output as a Stream. The producer must honor ctx so Close can end it
// early.
func newEventStream(ctx context.Context, run func(context.Context, chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{cancel: cancel, events: make(chan Event, 16)}
	go func() {
		s.err = run(ctx, s.events)
		close(s.events)
	}()
	return s
}

// Recv returns the next event. After the producer finishes it returns
// the producer's error, or io.EOF on a clean end.
func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

// Close cancels the producer. Safe to call concurrently with Recv and
// more than once.
func (s *eventStream) Close() error {
	s.cancel()
	return nil
}
