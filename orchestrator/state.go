package orchestrator

import (
	"time"

	"applier/hunter"
)

// State is the orchestrator's state machine position. Exactly one state is
// active at any instant; every transition is emitted as a state event.
type State string

const (
	StateIdle         State = "idle"
	StateStarting     State = "starting"
	StateFetchingJobs State = "fetching_jobs"
	StateNavigating   State = "navigating"
	StateScanning     State = "scanning"
	StateAnswering    State = "answering"
	StateWaitingInput State = "waiting_input"
	StateFilling      State = "filling"
	StateSubmitting   State = "submitting"
	StateCompleted    State = "completed"
	StateError        State = "error"
	StateStopped      State = "stopped"
)

// Job application status values.
const (
	JobStatusPending   = "pending"
	JobStatusNoFields  = "no_fields"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
)

// JobApplication tracks one unit of work. Owned exclusively by the
// orchestrator while the job is processed; status queries see copies.
type JobApplication struct {
	JobID           string     `json:"job_id"`
	Company         string     `json:"company"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	ATSProvider     string     `json:"ats_provider"`
	Status          string     `json:"status"`
	FieldsDetected  int        `json:"fields_detected"`
	FieldsFilled    int        `json:"fields_filled"`
	QuestionsAsked  int        `json:"questions_asked"`
	QuestionsManual int        `json:"questions_manual"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func newJobApplication(job hunter.Job) *JobApplication {
	now := time.Now()
	return &JobApplication{
		JobID:       job.ID,
		Company:     job.Company,
		Title:       job.Title,
		URL:         job.URL,
		ATSProvider: job.ATSProvider,
		Status:      JobStatusPending,
		StartedAt:   &now,
	}
}

// Stats are the run counters, emitted after every job and on demand.
type Stats struct {
	JobsProcessed           int     `json:"jobs_processed"`
	JobsSuccessful          int     `json:"jobs_successful"`
	JobsFailed              int     `json:"jobs_failed"`
	QuestionsAnswered       int     `json:"questions_answered"`
	QuestionsManualOverride int     `json:"questions_manual"`
	RuntimeSeconds          float64 `json:"runtime_seconds"`
}

// Status is the immutable snapshot exposed to status queries.
type Status struct {
	RunID           string          `json:"run_id,omitempty"`
	State           State           `json:"state"`
	IsRunning       bool            `json:"is_running"`
	IsWaitingInput  bool            `json:"is_waiting_input"`
	PendingQuestion string          `json:"pending_question,omitempty"`
	Stats           Stats           `json:"stats"`
	CurrentJob      *JobApplication `json:"current_job,omitempty"`
}
