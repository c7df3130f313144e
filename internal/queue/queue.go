package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler consumes one payload. A non-nil error asks the queue to retry.
type Handler func(payload any) error

// Queue is the publish/subscribe surface shared by the in-process and AMQP
// implementations.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue fans each published payload out to the topic's handlers,
// each on its own goroutine, retrying failed handlers with linear backoff.
type InMemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      zerolog.Logger
	attempts int
	backoff  time.Duration
	inflight sync.WaitGroup
}

func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		log:      log.With().Str("component", "queue").Logger(),
		attempts: 4,
		backoff:  500 * time.Millisecond,
	}
}

func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	q.mu.Unlock()
	return nil
}

// Publish hands payload to every subscriber of topic without waiting for them.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.RLock()
	subs := append([]Handler(nil), q.handlers[topic]...)
	q.mu.RUnlock()

	if len(subs) == 0 {
		return fmt.Errorf("queue: topic %q has no subscribers", topic)
	}
	for _, h := range subs {
		q.inflight.Add(1)
		go q.deliver(topic, h, payload)
	}
	return nil
}

func (q *InMemoryQueue) deliver(topic string, h Handler, payload any) {
	defer q.inflight.Done()

	var err error
	for attempt := 1; attempt <= q.attempts; attempt++ {
		if err = h(payload); err == nil {
			return
		}
		q.log.Warn().Err(err).Str("topic", topic).Int("attempt", attempt).Msg("handler failed")
		if attempt < q.attempts {
			time.Sleep(time.Duration(attempt) * q.backoff)
		}
	}
	q.log.Error().Err(err).Str("topic", topic).Interface("payload", payload).Msg("giving up on message")
}

// Wait blocks until every in-flight delivery has finished. Used on shutdown.
func (q *InMemoryQueue) Wait() {
	q.inflight.Wait()
}
