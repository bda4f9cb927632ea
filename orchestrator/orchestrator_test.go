package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"applier/eventbus"
	"applier/hunter"
	"applier/vision"
)

type fakeSource struct {
	jobs []hunter.Job
	err  error

	mu     sync.Mutex
	marked []string
}

func (s *fakeSource) FetchJobs(ctx context.Context, limit int) ([]hunter.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.jobs) > limit {
		return s.jobs[:limit], nil
	}
	return s.jobs, nil
}

func (s *fakeSource) MarkProcessed(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, jobID)
	return nil
}

type fakeOracle struct {
	ask func(question string) Answer
}

func (o *fakeOracle) Ask(ctx context.Context, question, jobContext string) (Answer, error) {
	if o.ask != nil {
		return o.ask(question), nil
	}
	return Answer{Text: "answered: " + question, Confidence: 0.95}, nil
}

type fakeBrowser struct {
	mu         sync.Mutex
	sessionErr error
	navErrURL  string
	scan       []vision.FieldDescriptor
	scanErr    error
	fills      []map[string]string
	submits    int
	closed     bool
}

func (b *fakeBrowser) StartSession(ctx context.Context) error { return b.sessionErr }

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	if b.navErrURL != "" && url == b.navErrURL {
		return errors.New("net::ERR_CONNECTION_REFUSED")
	}
	return nil
}

func (b *fakeBrowser) ScanPage(ctx context.Context) ([]vision.FieldDescriptor, error) {
	return b.scan, b.scanErr
}

func (b *fakeBrowser) FillForm(ctx context.Context, fieldMap map[string]string) map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make(map[string]string, len(fieldMap))
	for k, v := range fieldMap {
		cp[k] = v
	}
	b.fills = append(b.fills, cp)
	results := make(map[string]bool, len(fieldMap))
	for k := range fieldMap {
		results[k] = true
	}
	return results
}

func (b *fakeBrowser) ClickButton(ctx context.Context, selector, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	return nil
}

func (b *fakeBrowser) CaptureState(ctx context.Context) (string, error) { return "", nil }

func (b *fakeBrowser) lastFill() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.fills) == 0 {
		return nil
	}
	return b.fills[len(b.fills)-1]
}

func testJobs(n int) []hunter.Job {
	urls := []string{
		"https://boards.greenhouse.io/acme/jobs/1",
		"https://jobs.lever.co/acme/2",
		"https://jobs.ashbyhq.com/acme/3",
	}
	var jobs []hunter.Job
	for i := 0; i < n; i++ {
		jobs = append(jobs, hunter.Job{
			ID:      hunter.JobID("Acme", string(rune('A'+i))),
			Title:   "Engineer " + string(rune('A'+i)),
			Company: "Acme",
			URL:     urls[i%len(urls)],
		})
	}
	return jobs
}

func textField(id, label string) vision.FieldDescriptor {
	return vision.FieldDescriptor{
		ID: id, Name: id, Type: "text", TagName: "input",
		Label: label, Selector: "#" + id,
	}
}

func testConfig() Config {
	return Config{DryRun: true, SettleDelay: time.Millisecond, SubmitDelay: time.Millisecond}
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	assert.Eventually(t, func() bool { return o.CurrentState() == want },
		5*time.Second, 5*time.Millisecond, "expected state %s, got %s", want, o.CurrentState())
}

func waitForFinish(t *testing.T, o *Orchestrator) {
	t.Helper()
	assert.Eventually(t, func() bool { return !o.Status().IsRunning },
		5*time.Second, 5*time.Millisecond, "run did not finish")
}

func TestRunProcessesAllJobs(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("name", "Full Name")}}
	o := New(testConfig(), &fakeSource{jobs: testJobs(3)}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	assert.Equal(t, StateCompleted, o.CurrentState())
	stats := o.Status().Stats
	assert.Equal(t, 3, stats.JobsProcessed)
	assert.Equal(t, 3, stats.JobsSuccessful)
	assert.Equal(t, 0, stats.JobsFailed)
	assert.Equal(t, 3, len(o.History()))
	assert.True(t, browser.closed)
}

func TestRunContinuesPastNavigationFailure(t *testing.T) {
	jobs := testJobs(3)
	browser := &fakeBrowser{
		navErrURL: jobs[1].URL,
		scan:      []vision.FieldDescriptor{textField("email", "Email")},
	}
	o := New(testConfig(), &fakeSource{jobs: jobs}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	stats := o.Status().Stats
	assert.Equal(t, 3, stats.JobsProcessed)
	assert.Equal(t, 2, stats.JobsSuccessful)
	assert.Equal(t, 1, stats.JobsFailed)
	assert.Equal(t, StateCompleted, o.CurrentState())

	history := o.History()
	assert.Equal(t, JobStatusError, history[1].Status)
	assert.NotEmpty(t, history[1].Error)
	assert.Equal(t, JobStatusCompleted, history[0].Status)
	assert.Equal(t, JobStatusCompleted, history[2].Status)
}

func TestSuccessfulJobsMarkedProcessed(t *testing.T) {
	jobs := testJobs(3)
	src := &fakeSource{jobs: jobs}
	browser := &fakeBrowser{navErrURL: jobs[1].URL}
	o := New(testConfig(), src, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	// The failed navigation stays unmarked for the next run to retry.
	assert.Equal(t, []string{jobs[0].ID, jobs[2].ID}, src.marked)
}

func TestRunWithNoJobsCompletesImmediately(t *testing.T) {
	browser := &fakeBrowser{}
	o := New(testConfig(), &fakeSource{}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	assert.Equal(t, StateCompleted, o.CurrentState())
	assert.Equal(t, 0, o.Status().Stats.JobsProcessed)
}

func TestJobWithNoFields(t *testing.T) {
	browser := &fakeBrowser{scan: nil}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	history := o.History()
	assert.Equal(t, 1, len(history))
	assert.Equal(t, JobStatusNoFields, history[0].Status)
	// A page without a form is not a failure.
	assert.Equal(t, 1, o.Status().Stats.JobsSuccessful)
	assert.Equal(t, 0, len(browser.fills))
}

func TestScanFailureDegradesToNoFields(t *testing.T) {
	browser := &fakeBrowser{scanErr: errors.New("execution context destroyed")}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	history := o.History()
	assert.Equal(t, JobStatusNoFields, history[0].Status)
	assert.Equal(t, 1, o.Status().Stats.JobsSuccessful)
}

func TestStructuralAndUnlabeledFieldsSkipped(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{
		textField("name", "Full Name"),
		{TagName: "button", Selector: "#apply", Label: "Apply"},
		{TagName: "input", Type: "hidden", Name: "csrf", Selector: "[name=\"csrf\"]"},
		{TagName: "input", Type: "text", Selector: "#mystery"}, // no label, name, or placeholder
	}}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	fill := browser.lastFill()
	assert.Equal(t, 1, len(fill))
	assert.Contains(t, fill, "#name")
	assert.Equal(t, 1, o.History()[0].QuestionsAsked)
}

func TestLowConfidenceSuspendsUntilOverride(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("visa", "Do you require visa sponsorship?")}}
	oracle := &fakeOracle{ask: func(q string) Answer {
		return Answer{Text: "No", Confidence: 0.4}
	}}
	sink := eventbus.NewMemorySink(64)
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, oracle, browser, sink)

	assert.NoError(t, o.Start(context.Background()))
	waitForState(t, o, StateWaitingInput)

	status := o.Status()
	assert.True(t, status.IsWaitingInput)
	assert.Equal(t, "Do you require visa sponsorship?", status.PendingQuestion)

	// The suspension was announced with the suggested answer attached.
	var reqPayload *eventbus.RequestInputPayload
	for _, evt := range sink.Recent(64) {
		if evt.Type == eventbus.TypeRequestInput {
			var p eventbus.RequestInputPayload
			assert.NoError(t, json.Unmarshal(evt.Payload, &p))
			reqPayload = &p
		}
	}
	assert.NotNil(t, reqPayload)
	assert.Equal(t, "No", reqPayload.Suggested)

	assert.NoError(t, o.SubmitOverride("Yes, I need sponsorship"))
	waitForFinish(t, o)

	assert.Equal(t, StateCompleted, o.CurrentState())
	assert.Equal(t, map[string]string{"#visa": "Yes, I need sponsorship"}, browser.lastFill())
	assert.Equal(t, 1, o.Status().Stats.QuestionsManualOverride)
	assert.Equal(t, 1, o.History()[0].QuestionsManual)
}

func TestEmptyOverrideUsesSuggestion(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("salary", "Expected salary")}}
	oracle := &fakeOracle{ask: func(q string) Answer {
		return Answer{Text: "Negotiable", Confidence: 0.3}
	}}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, oracle, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForState(t, o, StateWaitingInput)

	assert.NoError(t, o.SubmitOverride(""))
	waitForFinish(t, o)

	assert.Equal(t, map[string]string{"#salary": "Negotiable"}, browser.lastFill())
}

func TestSubmitOverrideWithoutPending(t *testing.T) {
	o := New(testConfig(), &fakeSource{}, &fakeOracle{}, &fakeBrowser{}, nil)
	assert.ErrorIs(t, o.SubmitOverride("anything"), ErrNoPending)
}

func TestStopWhileWaitingInput(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{
		textField("q1", "Question one"),
		textField("q2", "Question two"),
	}}
	oracle := &fakeOracle{ask: func(q string) Answer {
		return Answer{Text: "suggested", Confidence: 0.1}
	}}
	o := New(testConfig(), &fakeSource{jobs: testJobs(2)}, oracle, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForState(t, o, StateWaitingInput)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, o.Stop(ctx))

	assert.Equal(t, StateStopped, o.CurrentState())
	assert.False(t, o.Status().IsRunning)
	// Only the interrupted job ran.
	assert.Equal(t, 1, o.Status().Stats.JobsProcessed)
	// The released question fell back to the suggestion.
	assert.Equal(t, "suggested", browser.lastFill()["#q1"])
}

type blockingSource struct {
	release chan struct{}
	jobs    []hunter.Job
}

func (s *blockingSource) FetchJobs(ctx context.Context, limit int) ([]hunter.Job, error) {
	select {
	case <-s.release:
		return s.jobs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestStopDuringFetchSkipsAllJobs(t *testing.T) {
	src := &blockingSource{release: make(chan struct{}), jobs: testJobs(3)}
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("name", "Name")}}
	o := New(testConfig(), src, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForState(t, o, StateFetchingJobs)

	stopDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopDone <- o.Stop(ctx)
	}()

	// Let the fetch return after the stop was requested: the loop must
	// consume nothing.
	time.Sleep(20 * time.Millisecond)
	close(src.release)

	assert.NoError(t, <-stopDone)
	assert.Equal(t, StateStopped, o.CurrentState())
	assert.Equal(t, 0, o.Status().Stats.JobsProcessed)
}

func TestStartWhileRunning(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("q", "Question")}}
	oracle := &fakeOracle{ask: func(q string) Answer { return Answer{Confidence: 0} }}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, oracle, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForState(t, o, StateWaitingInput)

	assert.Error(t, o.Start(context.Background()))

	assert.NoError(t, o.SubmitOverride("done"))
	waitForFinish(t, o)
}

func TestBrowserSessionFailure(t *testing.T) {
	browser := &fakeBrowser{sessionErr: errors.New("playwright not installed")}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, &fakeOracle{}, browser, nil)

	assert.Error(t, o.Start(context.Background()))
	assert.Equal(t, StateError, o.CurrentState())
	assert.False(t, o.Status().IsRunning)
}

func TestOracleFailureRoutesToHuman(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("q", "Tricky question")}}
	failing := &erroringOracle{}
	o := New(testConfig(), &fakeSource{jobs: testJobs(1)}, failing, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForState(t, o, StateWaitingInput)

	assert.NoError(t, o.SubmitOverride("human answer"))
	waitForFinish(t, o)

	assert.Equal(t, "human answer", browser.lastFill()["#q"])
}

type erroringOracle struct{}

func (o *erroringOracle) Ask(ctx context.Context, question, jobContext string) (Answer, error) {
	return Answer{}, errors.New("oracle unavailable")
}

func TestLiveRunClicksSubmit(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("name", "Name")}}
	cfg := testConfig()
	cfg.DryRun = false
	o := New(cfg, &fakeSource{jobs: testJobs(2)}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	assert.Equal(t, 2, browser.submits)
}

func TestDryRunNeverSubmits(t *testing.T) {
	browser := &fakeBrowser{scan: []vision.FieldDescriptor{textField("name", "Name")}}
	o := New(testConfig(), &fakeSource{jobs: testJobs(2)}, &fakeOracle{}, browser, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	assert.Equal(t, 0, browser.submits)
	assert.Equal(t, 2, len(browser.fills))
}

func TestSourceErrorCompletesEmpty(t *testing.T) {
	o := New(testConfig(), &fakeSource{err: errors.New("redis down")}, &fakeOracle{}, &fakeBrowser{}, nil)

	assert.NoError(t, o.Start(context.Background()))
	waitForFinish(t, o)

	assert.Equal(t, StateCompleted, o.CurrentState())
	assert.Equal(t, 0, o.Status().Stats.JobsProcessed)
}
