package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"applier/eventbus"
	"applier/hunter"
	"applier/vision"
)

// processedMarker is the optional dedup hook a job source may expose.
// Sources that implement it get completed job IDs back, so the next run
// skips them.
type processedMarker interface {
	MarkProcessed(ctx context.Context, jobID string) error
}

// Browser is the page-driving surface the orchestrator needs. vision.Agent
// implements it; tests substitute fakes.
type Browser interface {
	StartSession(ctx context.Context) error
	Close() error
	Navigate(ctx context.Context, url string) error
	ScanPage(ctx context.Context) ([]vision.FieldDescriptor, error)
	FillForm(ctx context.Context, fieldMap map[string]string) map[string]bool
	ClickButton(ctx context.Context, selector, text string) error
	CaptureState(ctx context.Context) (string, error)
}

// Config carries the per-run options.
type Config struct {
	// DryRun performs every step except the final submission.
	DryRun bool
	// BatchSize bounds how many jobs one run consumes (default 10).
	BatchSize int
	// SettleDelay is the pause after navigation before scanning, giving
	// client-side rendering a moment. Shortened in tests.
	SettleDelay time.Duration
	// SubmitDelay is the pause after clicking submit.
	SubmitDelay time.Duration
}

// Orchestrator sequences navigation, scanning, answering, filling and
// submission across a batch of jobs, owns the human-input gate and emits
// lifecycle events into the sink. One run loop goroutine mutates all state;
// external actors only touch the gate's resolution channel and the stop flag.
type Orchestrator struct {
	cfg     Config
	source  hunter.Source
	oracle  Oracle
	browser Browser
	sink    eventbus.Sink
	gate    *InputGate

	stopRequested atomic.Bool

	mu         sync.Mutex
	runID      string
	state      State
	stats      Stats
	currentJob *JobApplication
	history    []JobApplication
	running    bool
	cancelRun  context.CancelFunc
	done       chan struct{}
}

func New(cfg Config, source hunter.Source, oracle Oracle, browser Browser, sink eventbus.Sink) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = hunter.DefaultBatchSize
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.SubmitDelay == 0 {
		cfg.SubmitDelay = 2 * time.Second
	}
	if sink == nil {
		sink = eventbus.NewMemorySink(0)
	}
	return &Orchestrator{
		cfg:     cfg,
		source:  source,
		oracle:  oracle,
		browser: browser,
		sink:    sink,
		gate:    NewInputGate(),
		state:   StateIdle,
	}
}

// SetDryRun toggles submission for subsequent runs. No effect on a job
// already past the filling step.
func (o *Orchestrator) SetDryRun(v bool) {
	o.mu.Lock()
	o.cfg.DryRun = v
	o.mu.Unlock()
}

// Start launches the run loop in the background and returns immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.runID = uuid.NewString()
	o.stats = Stats{}
	o.history = nil
	o.currentJob = nil
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancelRun = cancel
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	o.stopRequested.Store(false)
	o.gate.resetCancel()
	o.setState(StateStarting)

	if err := o.browser.StartSession(ctx); err != nil {
		o.setState(StateError)
		o.emitError(fmt.Sprintf("browser session failed: %v", err))
		o.finishRun(done, cancel)
		return err
	}

	go func() {
		defer o.finishRun(done, cancel)
		o.runLoop(runCtx)
	}()

	o.emitLog("🚀 Orchestrator started")
	return nil
}

// Stop requests a cooperative stop: the flag is checked at job boundaries
// and the gate is released immediately so a suspended run cannot hang.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	running := o.running
	done := o.done
	o.mu.Unlock()
	if !running {
		return nil
	}

	o.emitLog("🛑 Stop requested, finishing current job...")
	o.stopRequested.Store(true)
	o.gate.Cancel()

	if done != nil {
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			log.Printf("⚠️ Run loop did not finish in time, cancelling")
			o.mu.Lock()
			if o.cancelRun != nil {
				o.cancelRun()
			}
			o.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SubmitOverride feeds a human answer into the gate. Accepted only while
// the orchestrator is waiting for input.
func (o *Orchestrator) SubmitOverride(answer string) error {
	if o.CurrentState() != StateWaitingInput {
		return ErrNoPending
	}
	if err := o.gate.Resolve(answer); err != nil {
		return err
	}
	o.mu.Lock()
	o.stats.QuestionsManualOverride++
	o.mu.Unlock()

	preview := answer
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	o.emitLog(fmt.Sprintf("✅ Received human input: %s", preview))
	return nil
}

// CurrentState returns the active state.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns an immutable snapshot for status queries.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		RunID:          o.runID,
		State:          o.state,
		IsRunning:      o.running,
		IsWaitingInput: o.state == StateWaitingInput,
		Stats:          o.stats,
	}
	if o.currentJob != nil {
		cp := *o.currentJob
		st.CurrentJob = &cp
	}
	if pending := o.gate.Pending(); pending != nil {
		st.PendingQuestion = pending.Question
	}
	return st
}

// History returns copies of the job records processed so far this run.
func (o *Orchestrator) History() []JobApplication {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]JobApplication, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) finishRun(done chan struct{}, cancel context.CancelFunc) {
	cancel()
	_ = o.browser.Close()
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	close(done)
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.setState(StateError)
			o.emitError(fmt.Sprintf("run loop panic: %v", r))
		}
		o.mu.Lock()
		o.stats.RuntimeSeconds = time.Since(start).Seconds()
		o.mu.Unlock()
		o.emitLog(fmt.Sprintf("⏱ Total runtime: %.1fs", time.Since(start).Seconds()))
		o.emitStats()
	}()

	o.setState(StateFetchingJobs)
	jobs, err := o.source.FetchJobs(ctx, o.cfg.BatchSize)
	if err != nil {
		log.Printf("❌ Failed to fetch jobs: %v", err)
		jobs = nil
	}
	if len(jobs) == 0 {
		o.emitLog("⚠️ No jobs found matching criteria")
		o.setState(StateCompleted)
		return
	}

	o.emitLog(fmt.Sprintf("📋 Found %d jobs to process", len(jobs)))

	for _, job := range jobs {
		if o.stopRequested.Load() {
			o.emitLog("Stop requested, exiting loop")
			break
		}

		err := o.processJob(ctx, job)
		o.mu.Lock()
		if err != nil {
			o.stats.JobsFailed++
		} else {
			o.stats.JobsSuccessful++
		}
		o.stats.JobsProcessed++
		if o.currentJob != nil {
			o.history = append(o.history, *o.currentJob)
		}
		o.mu.Unlock()

		if err != nil {
			o.emitError(fmt.Sprintf("Job failed: %v", err))
		} else if m, ok := o.source.(processedMarker); ok {
			if merr := m.MarkProcessed(ctx, job.ID); merr != nil {
				log.Printf("⚠️ Failed to mark job processed: %v", merr)
			}
		}
		o.emitStats()
	}

	if o.stopRequested.Load() {
		o.setState(StateStopped)
		o.emitLog("✅ Orchestrator stopped")
	} else {
		o.setState(StateCompleted)
	}
}

// processJob runs one application end to end: navigate, scan, answer each
// field (suspending on low confidence), fill, submit.
func (o *Orchestrator) processJob(ctx context.Context, job hunter.Job) error {
	app := newJobApplication(job)
	o.mu.Lock()
	o.currentJob = app
	o.mu.Unlock()

	o.emitLog(fmt.Sprintf("📄 Processing: %s @ %s", app.Title, app.Company))
	jobContext := fmt.Sprintf("%s at %s", app.Title, app.Company)

	o.setState(StateNavigating)
	if err := o.browser.Navigate(ctx, app.URL); err != nil {
		app.Status = JobStatusError
		app.Error = err.Error()
		return fmt.Errorf("failed to navigate to %s: %w", app.URL, err)
	}

	o.sleep(ctx, o.cfg.SettleDelay)

	o.setState(StateScanning)
	fields, err := o.browser.ScanPage(ctx)
	if err != nil {
		// Extraction degrades to an empty result by policy.
		log.Printf("❌ Page scan failed: %v", err)
		fields = nil
	}
	app.FieldsDetected = len(fields)

	if len(fields) == 0 {
		o.emitLog("⚠️ No form fields detected on page")
		app.Status = JobStatusNoFields
		return nil
	}
	o.emitLog(fmt.Sprintf("🔍 Detected %d form fields", len(fields)))

	answers := make(map[string]string)
	for _, field := range fields {
		if o.stopRequested.Load() {
			break
		}
		if field.IsStructural() {
			continue
		}
		question := field.Question()
		if question == "" {
			continue
		}

		o.setState(StateAnswering)
		app.QuestionsAsked++

		answer := o.askOracle(ctx, question, jobContext)

		if NeedsHuman(answer.Confidence) {
			o.emitLog(fmt.Sprintf("⚠️ Low confidence (%.2f) for: %s", answer.Confidence, question))
			fieldCtx := fmt.Sprintf("Field type: %s, Required: %v", field.Type, field.Required)
			answer.Text = o.requestHumanInput(ctx, question, fieldCtx, field, answer.Text)
			app.QuestionsManual++
		}

		if answer.Text != "" {
			answers[field.Selector] = answer.Text
			o.mu.Lock()
			o.stats.QuestionsAnswered++
			o.mu.Unlock()
		}
	}

	if len(answers) > 0 {
		o.setState(StateFilling)
		o.emitLog(fmt.Sprintf("✍️ Filling %d fields...", len(answers)))
		results := o.browser.FillForm(ctx, answers)
		for _, ok := range results {
			if ok {
				app.FieldsFilled++
			}
		}
	}

	o.mu.Lock()
	dryRun := o.cfg.DryRun
	o.mu.Unlock()

	if dryRun {
		o.emitLog("🔸 Dry run mode - skipping submission")
	} else {
		o.setState(StateSubmitting)
		o.emitLog("📤 Submitting application...")
		if err := o.browser.ClickButton(ctx, "", "Submit"); err != nil {
			// Best-effort submission is policy, not a guarantee.
			log.Printf("⚠️ Submit button click failed: %v", err)
		} else {
			o.sleep(ctx, o.cfg.SubmitDelay)
			_, _ = o.browser.CaptureState(ctx)
		}
	}

	now := time.Now()
	app.Status = JobStatusCompleted
	app.CompletedAt = &now
	o.emitLog(fmt.Sprintf("✅ Completed: %s", app.Title))
	return nil
}

// askOracle queries the answer oracle, absorbing any failure into a
// confidence-0 result so it routes to human input instead of crashing
// the run.
func (o *Orchestrator) askOracle(ctx context.Context, question, jobContext string) Answer {
	answer, err := o.oracle.Ask(ctx, question, jobContext)
	if err != nil {
		log.Printf("❌ Oracle query failed: %v", err)
		return Answer{}
	}
	return answer
}

// requestHumanInput is the suspension point of the human-in-the-loop flow:
// transition to WaitingInput, emit the request event, block on the gate,
// then return to Answering with whatever answer resolved it.
func (o *Orchestrator) requestHumanInput(ctx context.Context, question, fieldCtx string, field vision.FieldDescriptor, suggestion string) string {
	// A stop issued between the per-field check and here should not arm the
	// gate; fall through with the suggestion immediately.
	if o.stopRequested.Load() {
		return suggestion
	}

	reqCtx := fieldCtx
	if suggestion != "" {
		reqCtx = fmt.Sprintf("%s\n\nSuggested answer: %s", fieldCtx, suggestion)
	}

	req := PendingInput{
		Question:        question,
		Context:         reqCtx,
		Field:           field,
		SuggestedAnswer: suggestion,
	}

	o.setState(StateWaitingInput)
	o.emitRequestInput(req)
	o.emitLog(fmt.Sprintf("⏸ Waiting for human input: %s", question))

	answer := o.gate.Request(ctx, req)

	o.setState(StateAnswering)
	return answer
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Event emission. Publishing is fire-and-forget; sink failures are logged
// by the sink layer and never disturb the run.

func (o *Orchestrator) emit(typ eventbus.EventType, payload interface{}) {
	_ = o.sink.Publish(context.Background(), eventbus.New("orchestrator", typ, payload))
}

func (o *Orchestrator) emitLog(message string) {
	log.Printf("[EVENT] %s", message)
	o.emit(eventbus.TypeLog, message)
}

func (o *Orchestrator) emitError(message string) {
	log.Printf("[ERROR] %s", message)
	o.emit(eventbus.TypeError, message)
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	log.Printf("[STATE] %s", state)
	o.emit(eventbus.TypeState, eventbus.StatePayload{
		State:     string(state),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (o *Orchestrator) emitStats() {
	o.mu.Lock()
	stats := o.stats
	o.mu.Unlock()
	o.emit(eventbus.TypeStats, stats)
}

func (o *Orchestrator) emitRequestInput(req PendingInput) {
	fieldJSON, _ := json.Marshal(req.Field)
	o.emit(eventbus.TypeRequestInput, eventbus.RequestInputPayload{
		Question:  req.Question,
		Context:   req.Context,
		Field:     fieldJSON,
		Suggested: req.SuggestedAnswer,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// EmitScreenshot forwards a captured screenshot into the event stream.
// Wired as the vision agent's screenshot callback.
func (o *Orchestrator) EmitScreenshot(b64 string) {
	o.emit(eventbus.TypeScreenshot, b64)
}
