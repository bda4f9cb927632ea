package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateResolveDeliversAnswer(t *testing.T) {
	g := NewInputGate()

	got := make(chan string, 1)
	go func() {
		got <- g.Request(context.Background(), PendingInput{Question: "Years of Go?", SuggestedAnswer: "5"})
	}()

	// Wait until the request is armed before resolving.
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)

	err := g.Resolve("8")
	assert.NoError(t, err)

	select {
	case answer := <-got:
		assert.Equal(t, "8", answer)
	case <-time.After(time.Second):
		t.Fatal("request did not unblock")
	}
	assert.Nil(t, g.Pending())
}

func TestGateResolveWithoutPending(t *testing.T) {
	g := NewInputGate()
	err := g.Resolve("anything")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestGateResolveIsOneShot(t *testing.T) {
	g := NewInputGate()

	go g.Request(context.Background(), PendingInput{Question: "q"})
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)

	assert.NoError(t, g.Resolve("first"))
	assert.ErrorIs(t, g.Resolve("second"), ErrNoPending)
}

func TestGateEmptyAnswerFallsBackToSuggestion(t *testing.T) {
	g := NewInputGate()

	got := make(chan string, 1)
	go func() {
		got <- g.Request(context.Background(), PendingInput{Question: "q", SuggestedAnswer: "fallback"})
	}()
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)

	assert.NoError(t, g.Resolve(""))
	assert.Equal(t, "fallback", <-got)
}

func TestGateCancelReleasesWithSuggestion(t *testing.T) {
	g := NewInputGate()

	got := make(chan string, 1)
	go func() {
		got <- g.Request(context.Background(), PendingInput{Question: "q", SuggestedAnswer: "suggested"})
	}()
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)

	g.Cancel()
	assert.Equal(t, "suggested", <-got)
	assert.Nil(t, g.Pending())
}

func TestGateCancelBeforeRequestFallsThrough(t *testing.T) {
	g := NewInputGate()

	// Cancel racing ahead of the arming must not leave the next request
	// blocked: it resolves immediately with the suggestion.
	g.Cancel()
	assert.Nil(t, g.Pending())

	done := make(chan string, 1)
	go func() {
		done <- g.Request(context.Background(), PendingInput{Question: "q", SuggestedAnswer: "latched"})
	}()
	select {
	case answer := <-done:
		assert.Equal(t, "latched", answer)
	case <-time.After(time.Second):
		t.Fatal("request blocked despite prior cancel")
	}

	// The latch is one-shot: the next request arms normally.
	go g.Request(context.Background(), PendingInput{Question: "q2"})
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)
	assert.NoError(t, g.Resolve("answered"))
}

func TestGateResetDropsLatchedCancel(t *testing.T) {
	g := NewInputGate()
	g.Cancel()
	g.resetCancel()

	// After a reset the stale latch must not swallow the request.
	go g.Request(context.Background(), PendingInput{Question: "q"})
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)
	assert.NoError(t, g.Resolve("ok"))
}

func TestGateContextCancellation(t *testing.T) {
	g := NewInputGate()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	go func() {
		got <- g.Request(ctx, PendingInput{Question: "q", SuggestedAnswer: "ctx-fallback"})
	}()
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)

	cancel()
	assert.Equal(t, "ctx-fallback", <-got)
}

func TestGatePendingReturnsCopy(t *testing.T) {
	g := NewInputGate()

	go g.Request(context.Background(), PendingInput{Question: "original"})
	assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, 5*time.Millisecond)

	p := g.Pending()
	p.Question = "mutated"
	assert.Equal(t, "original", g.Pending().Question)

	g.Cancel()
}
