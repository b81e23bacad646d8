package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// DefaultModelTimeout bounds the condition-model invocation. A hung model call
// becomes a non-fatal step error instead of stalling the job forever.
const DefaultModelTimeout = 60 * time.Second

// Dependencies are the external collaborators consumed by the pipeline. All are
// injected so the runner can be tested with deterministic stand-ins.
type Dependencies struct {
	Images   ImageResolver
	Identity IdentityExtractor
	Model    ConditionModel
	Value    ValueEstimator // optional; nil skips the post-grading value step
	Events   StepListener   // optional
}

// Input is one estimate request handed to the runner.
type Input struct {
	Images        []ImageRef
	KnownIdentity *domain.CardIdentity // skips re-deriving identity when set
}

// Runner executes the four pipeline steps for a job, in order, publishing
// partial results as they become available. Exactly one Run call mutates any
// given job; status polls read snapshots from the store.
type Runner struct {
	store        *Store
	deps         Dependencies
	modelTimeout time.Duration
	logger       *slog.Logger
}

// NewRunner creates a pipeline runner. A non-positive modelTimeout falls back
// to DefaultModelTimeout.
func NewRunner(store *Store, deps Dependencies, modelTimeout time.Duration, logger *slog.Logger) *Runner {
	if modelTimeout <= 0 {
		modelTimeout = DefaultModelTimeout
	}
	return &Runner{
		store:        store,
		deps:         deps,
		modelTimeout: modelTimeout,
		logger:       logger,
	}
}

// Run drives a job through its steps. Errors never escape: every failure is
// recorded as structured step/job state per the fatality rules of each step.
func (r *Runner) Run(ctx context.Context, jobID string, in Input) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Pipeline panicked",
				slog.String("job_id", jobID),
				slog.Any("panic", rec),
			)
			r.failJob(ctx, jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	r.store.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobStatusRunning
	})

	// Step 1: resolve images and extract identity. Any failure here is fatal.
	r.startStep(ctx, jobID, domain.StepOCRIdentity)
	images, stats, err := r.deps.Images.Resolve(ctx, in.Images)
	identity := in.KnownIdentity
	if err == nil && identity == nil {
		identity, err = r.deps.Identity.ExtractIdentity(ctx, images)
	}
	if err != nil {
		r.finishStep(ctx, jobID, domain.StepOCRIdentity, err)
		r.failJob(ctx, jobID, err.Error())
		return
	}
	r.finishStep(ctx, jobID, domain.StepOCRIdentity, nil)

	// Identity is visible to pollers before the slower model call starts.
	r.store.Update(jobID, func(j *domain.Job) {
		j.Partial.Identity = identity
	})

	// Step 2: condition model, bounded by the step deadline. Non-fatal: a
	// failure leaves modelText nil and the parser falls back downstream.
	r.startStep(ctx, jobID, domain.StepGradeModel)
	var modelText *string
	modelCtx, cancel := context.WithTimeout(ctx, r.modelTimeout)
	text, err := r.deps.Model.AssessCondition(modelCtx, images)
	cancel()
	if err != nil {
		r.logger.Warn("Condition model failed, continuing with fallback",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		r.finishStep(ctx, jobID, domain.StepGradeModel, err)
	} else {
		modelText = &text
		r.finishStep(ctx, jobID, domain.StepGradeModel, nil)
	}

	// Step 3: parse and validate. The parser falls back internally rather than
	// failing; only a missing-stats precondition ends the job here.
	r.startStep(ctx, jobID, domain.StepParseValidate)
	if stats.Count == 0 {
		err := domain.ErrMissingImageStats
		r.finishStep(ctx, jobID, domain.StepParseValidate, err)
		r.failJob(ctx, jobID, err.Error())
		return
	}
	out := ParseModelOutput(ParseInput{ModelText: modelText, Stats: stats})
	r.store.Update(jobID, func(j *domain.Job) {
		j.Partial.PreliminaryRange = out.PreliminaryRange
		j.Partial.Probabilities = out.Probabilities
		j.Partial.Evidence = out.Evidence
		j.Final = &domain.FinalResult{
			Identity:         identity,
			PreliminaryRange: out.PreliminaryRange,
			Probabilities:    out.Probabilities,
			Evidence:         out.Evidence,
			Estimate:         out.Estimate,
		}
	})
	r.finishStep(ctx, jobID, domain.StepParseValidate, nil)

	// Step 4: post-grading value. Optional and best-effort: skipped without
	// the dependency or sufficient inputs, and a failure stays at step level.
	r.runValueStep(ctx, jobID, identity, out.Estimate)

	r.store.Update(jobID, func(j *domain.Job) {
		if j.Status != domain.JobStatusError {
			j.Status = domain.JobStatusDone
		}
	})

	r.logger.Info("Pipeline finished",
		slog.String("job_id", jobID),
	)
}

func (r *Runner) runValueStep(ctx context.Context, jobID string, identity *domain.CardIdentity, estimate *domain.GradeEstimate) {
	usable := estimate != nil && estimate.Probabilities != nil &&
		estimate.AnalysisStatus != domain.AnalysisStatusUnable

	if r.deps.Value == nil || !usable || !identity.Priceable() {
		r.skipStep(ctx, jobID, domain.StepPostGradingValue)
		return
	}

	r.startStep(ctx, jobID, domain.StepPostGradingValue)
	worth, err := r.deps.Value.Compute(ctx, identity, estimate)
	if err != nil {
		r.logger.Warn("Post-grading value lookup failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		r.finishStep(ctx, jobID, domain.StepPostGradingValue, err)
		return
	}
	r.store.Update(jobID, func(j *domain.Job) {
		if j.Final != nil {
			j.Final.PostGradingValue = worth
		}
	})
	r.finishStep(ctx, jobID, domain.StepPostGradingValue, nil)
}

func (r *Runner) startStep(ctx context.Context, jobID, step string) {
	now := time.Now()
	r.store.Update(jobID, func(j *domain.Job) {
		st := j.Steps[step]
		st.Status = domain.StepStatusRunning
		st.StartedAt = &now
	})
	r.notify(ctx, jobID, step, domain.StepStatusRunning)
	r.logger.Debug("Step started",
		slog.String("job_id", jobID),
		slog.String("step", step),
	)
}

func (r *Runner) finishStep(ctx context.Context, jobID, step string, stepErr error) {
	now := time.Now()
	status := domain.StepStatusDone
	if stepErr != nil {
		status = domain.StepStatusError
	}
	r.store.Update(jobID, func(j *domain.Job) {
		st := j.Steps[step]
		st.Status = status
		st.FinishedAt = &now
		if st.StartedAt != nil {
			st.ElapsedMS = now.Sub(*st.StartedAt).Milliseconds()
		}
		if stepErr != nil {
			st.Error = stepErr.Error()
		}
	})
	r.notify(ctx, jobID, step, status)
}

func (r *Runner) skipStep(ctx context.Context, jobID, step string) {
	r.store.Update(jobID, func(j *domain.Job) {
		j.Steps[step].Status = domain.StepStatusSkipped
	})
	r.notify(ctx, jobID, step, domain.StepStatusSkipped)
	r.logger.Debug("Step skipped",
		slog.String("job_id", jobID),
		slog.String("step", step),
	)
}

// failJob ends the job with the triggering message preserved verbatim.
func (r *Runner) failJob(ctx context.Context, jobID, message string) {
	r.store.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobStatusError
		j.Error = message
	})
	r.logger.Error("Pipeline failed",
		slog.String("job_id", jobID),
		slog.String("error", message),
	)
}

func (r *Runner) notify(ctx context.Context, jobID, step, status string) {
	if r.deps.Events == nil {
		return
	}
	r.deps.Events.StepChanged(ctx, jobID, step, status)
}
