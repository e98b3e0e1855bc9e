package status

import (
	"sync"
	"sync/atomic"

	"goa.design/tandem/telemetry"
)

// Handler receives published Events. A Handler must not block for long: the
// bus delivers to it from a dedicated per-subscriber goroutine, so a slow
// handler only delays its own subscriber's queue, never the publisher or
// other subscribers (spec §4.5).
type Handler func(Event)

// Subscription is returned by Bus.Subscribe. Close is idempotent and safe to
// call from any goroutine, mirroring the teacher's hooks.Subscription
// contract in runtime/agent/hooks/bus.go.
type Subscription interface {
	Close()
}

// Bus is a non-blocking, fan-out publisher of Events. Unlike the teacher's
// hooks.Bus (runtime/agent/hooks/bus.go), which dispatches synchronously and
// stops at the first subscriber error, Bus here never lets a subscriber's
// pace or failure affect publication: each subscriber owns a bounded buffer
// drained by its own goroutine, and a full buffer drops its oldest pending
// event rather than blocking the publisher (spec §4.5).
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	bufferSize  int
	metrics     telemetry.Metrics

	dropped atomic.Int64
}

type subscriber struct {
	handler Handler
	ch      chan Event
	done    chan struct{}
	closeMu sync.Mutex
	closeCh chan struct{}
	closed  bool

	sendMu sync.Mutex
}

// New constructs a Bus whose subscribers each buffer up to bufferSize
// pending events before the oldest is dropped. bufferSize must be >= 1; a
// non-positive value is treated as 1.
func New(bufferSize int, metrics telemetry.Metrics) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Bus{bufferSize: bufferSize, metrics: metrics}
}

// Subscribe registers handler to receive future Events, invoked in
// registration order relative to other subscribers but independently of
// them. The returned Subscription's Close unregisters handler and stops its
// delivery goroutine.
func (b *Bus) Subscribe(handler Handler) Subscription {
	s := &subscriber{
		handler: handler,
		ch:      make(chan Event, b.bufferSize),
		done:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()

	go s.run()

	return &subscription{bus: b, sub: s}
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.ch:
			s.handler(ev)
		case <-s.closeCh:
			// Drain any events already queued before stopping, preserving
			// per-workflow publication order for events enqueued prior to
			// Close being requested.
			for {
				select {
				case ev := <-s.ch:
					s.handler(ev)
				default:
					return
				}
			}
		}
	}
}

type subscription struct {
	bus     *Bus
	sub     *subscriber
	onceErr sync.Once
}

func (s *subscription) Close() {
	s.onceErr.Do(func() {
		s.sub.closeMu.Lock()
		if !s.sub.closed {
			s.sub.closed = true
			close(s.sub.closeCh)
		}
		s.sub.closeMu.Unlock()
		<-s.sub.done

		s.bus.mu.Lock()
		for i, sub := range s.bus.subscribers {
			if sub == s.sub {
				s.bus.subscribers = append(s.bus.subscribers[:i], s.bus.subscribers[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
}

// Publish fans ev out to every current subscriber. It never blocks: if a
// subscriber's buffer is full, the oldest queued event for that subscriber
// is dropped (incrementing the dropped counter) before ev is enqueued.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		s.deliver(ev, b)
	}
}

func (s *subscriber) deliver(ev Event, b *Bus) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest queued event, then enqueue ev. Holding
	// sendMu across the drop+push keeps this atomic with respect to other
	// Publish calls for the same subscriber, preserving per-workflow order.
	select {
	case <-s.ch:
		b.dropped.Add(1)
		b.metrics.IncCounter("tandem_events_dropped_total", 1)
	default:
	}
	select {
	case s.ch <- ev:
	default:
		// Not expected: sendMu serializes every sender to this subscriber and
		// its goroutine only receives, so the slot freed above stays free.
		// Should the buffer still be full, drop ev itself rather than block.
		b.dropped.Add(1)
		b.metrics.IncCounter("tandem_events_dropped_total", 1)
	}
}

// EventsDroppedTotal returns the cumulative number of events dropped across
// all subscribers due to buffer overflow, for Coordinator.Diagnostics.
func (b *Bus) EventsDroppedTotal() int64 {
	return b.dropped.Load()
}
