package domain

import "time"

// Job status constants
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// Step status constants
const (
	StepStatusQueued  = "queued"
	StepStatusRunning = "running"
	StepStatusDone    = "done"
	StepStatusError   = "error"
	StepStatusSkipped = "skipped"
)

// Pipeline step names, in execution order
const (
	StepOCRIdentity      = "ocr_identity"
	StepGradeModel       = "grade_model"
	StepParseValidate    = "parse_validate"
	StepPostGradingValue = "post_grading_value"
)

// StepOrder is the fixed execution order of the pipeline steps.
var StepOrder = []string{
	StepOCRIdentity,
	StepGradeModel,
	StepParseValidate,
	StepPostGradingValue,
}

// StepState tracks the progress of a single pipeline step.
type StepState struct {
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ElapsedMS  int64      `json:"elapsed_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// PartialResult holds pipeline output published to pollers before the job finishes.
type PartialResult struct {
	Identity         *CardIdentity       `json:"identity,omitempty"`
	PreliminaryRange string              `json:"preliminary_range,omitempty"`
	Probabilities    *GradeProbabilities `json:"probabilities,omitempty"`
	Evidence         *Evidence           `json:"evidence,omitempty"`
}

// FinalResult is the completed payload once parse/validate succeeds. It may exist
// even when a later, non-fatal step is marked as failed.
type FinalResult struct {
	Identity         *CardIdentity       `json:"identity,omitempty"`
	PreliminaryRange string              `json:"preliminary_range,omitempty"`
	Probabilities    *GradeProbabilities `json:"probabilities,omitempty"`
	Evidence         *Evidence           `json:"evidence,omitempty"`
	Estimate         *GradeEstimate      `json:"estimate,omitempty"`
	PostGradingValue *WorthGradingResult `json:"post_grading_value,omitempty"`
}

// Job is the unit of work and its progress ledger. It is mutated exclusively by
// the single goroutine executing its pipeline; pollers read snapshots.
type Job struct {
	JobID     string                `json:"job_id"`
	Status    string                `json:"status"`
	Steps     map[string]*StepState `json:"steps"`
	Partial   PartialResult         `json:"partial"`
	Final     *FinalResult          `json:"final,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// NewJob creates a queued job with all four steps initialized.
func NewJob(jobID string, ttl time.Duration) *Job {
	now := time.Now()
	steps := make(map[string]*StepState, len(StepOrder))
	for _, name := range StepOrder {
		steps[name] = &StepState{Status: StepStatusQueued}
	}
	return &Job{
		JobID:     jobID,
		Status:    JobStatusQueued,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the job's TTL has passed.
func (j *Job) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

// Snapshot returns a deep copy safe for concurrent readers.
func (j *Job) Snapshot() *Job {
	cp := *j
	cp.Steps = make(map[string]*StepState, len(j.Steps))
	for name, st := range j.Steps {
		stCopy := *st
		cp.Steps[name] = &stCopy
	}
	cp.Partial = j.Partial.copy()
	if j.Final != nil {
		f := FinalResult{
			Identity:         copyIdentity(j.Final.Identity),
			PreliminaryRange: j.Final.PreliminaryRange,
			Probabilities:    j.Final.Probabilities.Copy(),
			Evidence:         copyEvidence(j.Final.Evidence),
			Estimate:         copyEstimate(j.Final.Estimate),
			PostGradingValue: copyWorth(j.Final.PostGradingValue),
		}
		cp.Final = &f
	}
	return &cp
}

func (p PartialResult) copy() PartialResult {
	return PartialResult{
		Identity:         copyIdentity(p.Identity),
		PreliminaryRange: p.PreliminaryRange,
		Probabilities:    p.Probabilities.Copy(),
		Evidence:         copyEvidence(p.Evidence),
	}
}

func copyIdentity(id *CardIdentity) *CardIdentity {
	if id == nil {
		return nil
	}
	cp := *id
	if id.FieldConfidence != nil {
		cp.FieldConfidence = make(map[string]float64, len(id.FieldConfidence))
		for k, v := range id.FieldConfidence {
			cp.FieldConfidence[k] = v
		}
	}
	return &cp
}

func copyEvidence(e *Evidence) *Evidence {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

func copyEstimate(e *GradeEstimate) *GradeEstimate {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Probabilities = e.Probabilities.Copy()
	return &cp
}

func copyWorth(w *WorthGradingResult) *WorthGradingResult {
	if w == nil {
		return nil
	}
	cp := *w
	cp.PSA = w.PSA.copy()
	cp.BGS = w.BGS.copy()
	return &cp
}
