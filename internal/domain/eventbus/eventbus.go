// Package eventbus fans training job lifecycle events out to subscribers:
// the websocket event stream, the persistence sink and anything else that
// registers. Synchronous publish dispatches inline; async publish hands the
// event to a bounded worker pool and never blocks the publisher.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"chorus-server-go/internal/platform/logging"
)

const (
	defaultWorkers = 4
	queueCapacity  = 1000
)

type queuedEvent struct {
	topic string
	event JobEvent
}

// Bus is the process-wide training event bus.
type Bus struct {
	bus    evbus.Bus
	logger *logging.Logger

	workChan chan queuedEvent
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the bus and starts its async workers.
func New(workers int, logger *logging.Logger) *Bus {
	if workers <= 0 {
		workers = defaultWorkers
	}
	b := &Bus{
		bus:      evbus.New(),
		logger:   logger,
		workChan: make(chan queuedEvent, queueCapacity),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Publish dispatches the event to every subscriber of the topic, inline.
func (b *Bus) Publish(topic string, event JobEvent) {
	b.bus.Publish(topic, event)
}

// PublishAsync enqueues the event for a worker. A full queue drops the event
// rather than stall the training pipeline.
func (b *Bus) PublishAsync(topic string, event JobEvent) {
	select {
	case b.workChan <- queuedEvent{topic: topic, event: event}:
	default:
		b.logger.WarnTag("Events", "queue full, dropping %s for job %s", topic, event.JobID)
	}
}

// Subscribe registers a handler for one topic.
func (b *Bus) Subscribe(topic string, fn func(JobEvent)) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAll registers the handler on every training topic. The handler
// receives the topic alongside the event.
func (b *Bus) SubscribeAll(fn func(topic string, event JobEvent)) error {
	for _, topic := range Topics() {
		topic := topic
		if err := b.bus.Subscribe(topic, func(event JobEvent) {
			fn(topic, event)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe removes a handler previously registered with Subscribe.
func (b *Bus) Unsubscribe(topic string, fn func(JobEvent)) error {
	return b.bus.Unsubscribe(topic, fn)
}

// HasSubscribers reports whether anyone listens on the topic.
func (b *Bus) HasSubscribers(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Close stops the async workers. Events still queued are delivered first.
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	b.wg.Wait()
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case qe := <-b.workChan:
			b.dispatch(qe)
		case <-b.stopChan:
			// Drain what was already accepted.
			for {
				select {
				case qe := <-b.workChan:
					b.dispatch(qe)
				default:
					return
				}
			}
		}
	}
}

// dispatch publishes one queued event, catching subscriber panics so a bad
// handler cannot kill the worker.
func (b *Bus) dispatch(qe queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorTag("Events", "subscriber panic on %s: %v", qe.topic, r)
		}
	}()
	b.bus.Publish(qe.topic, qe.event)
}
