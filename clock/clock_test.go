package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/tandem/clock"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	assert.Equal(t, start, fake.Now())

	fake.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), fake.Now())

	later := start.Add(time.Hour)
	fake.Set(later)
	assert.Equal(t, later, fake.Now())
}

func TestDeriveDeadlineNarrowsToEarlier(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	parentCtx, parentCancel := context.WithDeadline(context.Background(), fake.Now().Add(10*time.Second))
	defer parentCancel()

	ctx, cancel := clock.DeriveDeadline(parentCtx, fake, 2*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, fake.Now().Add(2*time.Second), deadline)
}

func TestDeriveDeadlineKeepsParentWhenEarlier(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	parentCtx, parentCancel := context.WithDeadline(context.Background(), fake.Now().Add(1*time.Second))
	defer parentCancel()

	ctx, cancel := clock.DeriveDeadline(parentCtx, fake, 10*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, fake.Now().Add(1*time.Second), deadline)
}

func TestDeriveDeadlineFiresOnlyWhenFakeClockAdvancesPastIt(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	ctx, cancel := clock.DeriveDeadline(context.Background(), fake, 10*time.Second)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context must not be done before the fake clock reaches its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(10 * time.Second)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context must be done once the fake clock is advanced past its deadline")
	}
	assert.Equal(t, context.DeadlineExceeded, ctx.Err())
}

func TestDeriveDeadlineNestedContextReportsDeadlineExceededAtEachLevel(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	outer, cancelOuter := clock.DeriveDeadline(context.Background(), fake, 5*time.Millisecond)
	defer cancelOuter()
	inner, cancelInner := clock.DeriveDeadline(outer, fake, time.Hour) // parent's deadline binds
	defer cancelInner()

	deadline, ok := inner.Deadline()
	require.True(t, ok)
	assert.Equal(t, fake.Now().Add(5*time.Millisecond), deadline)

	fake.Advance(5 * time.Millisecond)

	for _, ctx := range []context.Context{outer, inner} {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("context must be done once the fake clock reaches the inherited deadline")
		}
		assert.Equal(t, context.DeadlineExceeded, ctx.Err(), "nested context must itself report DeadlineExceeded, not a bare Canceled from parent propagation")
	}
}

func TestDeriveDeadlineAlreadyElapsedCancelsImmediately(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	ctx, cancel := clock.DeriveDeadline(context.Background(), fake, -time.Second)
	defer cancel()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("a non-positive local timeout must leave the context already done")
	}
}

func TestDeriveDeadlineCancelStopsPendingFakeTimer(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	ctx, cancel := clock.DeriveDeadline(context.Background(), fake, 10*time.Second)
	cancel()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel must close Done immediately")
	}

	// Advancing the clock after an explicit cancel must not panic or
	// otherwise misbehave even though the scheduled timer was stopped.
	fake.Advance(20 * time.Second)
}

func TestRemainingNoDeadline(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	_, ok := clock.Remaining(context.Background(), fake)
	assert.False(t, ok)
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := clock.WithCorrelation(context.Background(), clock.Correlation{WorkflowID: "wf-1", CallerID: "cli"})
	ctx = clock.WithStep(ctx, 3)

	c, ok := clock.CorrelationFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "wf-1", c.WorkflowID)
	assert.Equal(t, "cli", c.CallerID)
	assert.Equal(t, 3, c.StepIndex)
}
