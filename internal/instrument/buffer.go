package instrument

import (
	"context"
	"log"
	"sync"
	"time"
)

// EventSink is where flushed events land. Implemented by the archive
// store's batch insert.
type EventSink interface {
	InsertEvents(ctx context.Context, events []Event) error
}

// EventBuffer collects events in memory and periodically flushes them
// to the sink in a batch. Event loss on a failed flush is tolerated;
// the durable audit record is the compiled report and its manifest,
// not the event stream.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	sink    EventSink
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(sink EventSink, maxSize int, flushIntervalMs int) *EventBuffer {
	eb := &EventBuffer{
		sink:    sink,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Enqueue adds an event. A full buffer triggers an async flush.
func (eb *EventBuffer) Enqueue(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Flush writes buffered events to the sink.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eb.sink.InsertEvents(ctx, batch); err != nil {
		log.Printf("ERROR: event flush: %v (%d events dropped)", err, len(batch))
	}
}

// Stop flushes remaining events and stops the background loop.
func (eb *EventBuffer) Stop() {
	close(eb.done)
	eb.ticker.Stop()
	eb.Flush()
}
