package status_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/tandem/status"
)

func drainInto(b *status.Bus) (chan status.Event, status.Subscription) {
	ch := make(chan status.Event, 64)
	sub := b.Subscribe(func(ev status.Event) { ch <- ev })
	return ch, sub
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := status.New(8, nil)
	chA, subA := drainInto(b)
	chB, subB := drainInto(b)
	defer subA.Close()
	defer subB.Close()

	b.Publish(status.NewWorkflowStarted("wf-1", 100))

	for _, ch := range []chan status.Event{chA, chB} {
		select {
		case ev := <-ch:
			assert.Equal(t, status.EventWorkflowStarted, ev.Type)
			assert.Equal(t, "wf-1", ev.WorkflowID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event delivery")
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := status.New(2, nil)

	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	sub := b.Subscribe(func(ev status.Event) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
	})
	defer func() {
		close(release)
		sub.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(status.NewStepStarted("wf-1", int64(i), i, "agent", "act"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestOverflowDropsOldestAndCountsDropped(t *testing.T) {
	b := status.New(1, nil)

	release := make(chan struct{})
	var received []int64
	var mu sync.Mutex
	sub := b.Subscribe(func(ev status.Event) {
		<-release
		mu.Lock()
		received = append(received, ev.Timestamp)
		mu.Unlock()
	})

	// First publish is picked up by the handler goroutine immediately (it
	// blocks on release), so the buffer holds none yet; the next two fill
	// and then overflow the size-1 buffer.
	b.Publish(status.NewWorkflowStarted("wf-1", 1))
	time.Sleep(20 * time.Millisecond) // let the handler goroutine claim event 1
	b.Publish(status.NewWorkflowStarted("wf-1", 2))
	b.Publish(status.NewWorkflowStarted("wf-1", 3))

	close(release)
	sub.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2, "handler should see the in-flight event plus only the newest queued one")
	assert.Equal(t, int64(1), received[0])
	assert.Equal(t, int64(3), received[1], "oldest queued event (ts=2) must be dropped in favor of the newest (ts=3)")
	assert.Equal(t, int64(1), b.EventsDroppedTotal())
}

func TestIndependentSubscribersUnaffectedByOneAnothersSlowness(t *testing.T) {
	b := status.New(4, nil)

	release := make(chan struct{})
	slow := b.Subscribe(func(status.Event) { <-release })
	defer func() {
		close(release)
		slow.Close()
	}()

	fastCh, fast := drainInto(b)
	defer fast.Close()

	b.Publish(status.NewWorkflowStarted("wf-1", 1))

	select {
	case ev := <-fastCh:
		assert.Equal(t, "wf-1", ev.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by a slow one")
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	b := status.New(4, nil)
	var calls int
	var mu sync.Mutex
	sub := b.Subscribe(func(status.Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	sub.Close()
	sub.Close() // must not panic

	b.Publish(status.NewWorkflowStarted("wf-1", 1))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls, "closed subscription must not receive further events")
}
