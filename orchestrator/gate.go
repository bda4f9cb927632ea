package orchestrator

import (
	"context"
	"errors"
	"sync"

	"applier/vision"
)

// ErrNoPending is returned when Resolve is called with nothing pending.
var ErrNoPending = errors.New("no input request pending")

// PendingInput is the single in-flight human-input request. At most one
// exists at a time; it is cleared the instant it resolves.
type PendingInput struct {
	Question        string                 `json:"question"`
	Context         string                 `json:"context"`
	Field           vision.FieldDescriptor `json:"field"`
	SuggestedAnswer string                 `json:"suggested_answer"`
}

// InputGate is a one-shot, single-slot suspension primitive. One workflow
// step blocks in Request; exactly one Resolve (or Cancel) releases it.
// Single occupancy is enforced by construction: the orchestrator processes
// fields sequentially, never concurrently, within a job.
type InputGate struct {
	mu        sync.Mutex
	pending   *PendingInput
	resolve   chan string
	cancelled bool
}

func NewInputGate() *InputGate {
	return &InputGate{}
}

// Request records the pending request and suspends the caller until an
// external Resolve, a Cancel, or context cancellation. Cancellation paths
// resume with the original suggestion so a stopped run never hangs here.
// A Cancel that raced ahead of the arming is honored immediately.
func (g *InputGate) Request(ctx context.Context, req PendingInput) string {
	g.mu.Lock()
	if g.cancelled {
		g.cancelled = false
		g.mu.Unlock()
		return req.SuggestedAnswer
	}
	g.pending = &req
	g.resolve = make(chan string, 1)
	ch := g.resolve
	g.mu.Unlock()

	select {
	case answer := <-ch:
		if answer == "" {
			return req.SuggestedAnswer
		}
		return answer
	case <-ctx.Done():
		g.clear()
		return req.SuggestedAnswer
	}
}

// Resolve releases the suspended step with the given answer. Accepted only
// while a request is pending.
func (g *InputGate) Resolve(answer string) error {
	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return ErrNoPending
	}
	ch := g.resolve
	g.pending = nil
	g.resolve = nil
	g.mu.Unlock()

	ch <- answer
	return nil
}

// Cancel releases the suspended step using the original suggestion as the
// answer. With nothing pending it latches instead, so a Request arming just
// after the cancel still falls through rather than blocking until timeout.
func (g *InputGate) Cancel() {
	g.mu.Lock()
	if g.pending == nil {
		g.cancelled = true
		g.mu.Unlock()
		return
	}
	suggestion := g.pending.SuggestedAnswer
	ch := g.resolve
	g.pending = nil
	g.resolve = nil
	g.mu.Unlock()

	ch <- suggestion
}

// Pending returns a copy of the outstanding request, if any.
func (g *InputGate) Pending() *PendingInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	cp := *g.pending
	return &cp
}

func (g *InputGate) clear() {
	g.mu.Lock()
	g.pending = nil
	g.resolve = nil
	g.mu.Unlock()
}

// resetCancel drops a latched cancellation. Called at run start so a latch
// left over from a previous stop cannot leak into the new run's first
// request.
func (g *InputGate) resetCancel() {
	g.mu.Lock()
	g.cancelled = false
	g.mu.Unlock()
}
