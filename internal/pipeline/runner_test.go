package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

type fakeResolver struct {
	images []ResolvedImage
	stats  domain.ImageStats
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, refs []ImageRef) ([]ResolvedImage, domain.ImageStats, error) {
	return f.images, f.stats, f.err
}

type fakeExtractor struct {
	identity *domain.CardIdentity
	err      error
	calls    int
}

func (f *fakeExtractor) ExtractIdentity(ctx context.Context, images []ResolvedImage) (*domain.CardIdentity, error) {
	f.calls++
	return f.identity, f.err
}

type fakeModel struct {
	text   string
	err    error
	onCall func()
}

func (f *fakeModel) AssessCondition(ctx context.Context, images []ResolvedImage) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.text, f.err
}

type fakeValue struct {
	result *domain.WorthGradingResult
	err    error
	calls  int
}

func (f *fakeValue) Compute(ctx context.Context, card *domain.CardIdentity, estimate *domain.GradeEstimate) (*domain.WorthGradingResult, error) {
	f.calls++
	return f.result, f.err
}

type recordedEvent struct {
	Step   string
	Status string
}

type fakeListener struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeListener) StepChanged(ctx context.Context, jobID, step, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Step: step, Status: status})
}

func (f *fakeListener) recorded() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func testIdentity() *domain.CardIdentity {
	return &domain.CardIdentity{
		Player:  "Mike Trout",
		Year:    "2011",
		Brand:   "Topps",
		SetName: "Topps Update",
	}
}

func okModelText() string {
	return `{"status": "ok", "grade_low": 8, "grade_high": 9, "confidence": "high",
		"centering": "55/45", "corners": "sharp", "surface": "clean", "edges": "clean"}`
}

func defaultDeps() Dependencies {
	return Dependencies{
		Images: &fakeResolver{
			images: []ResolvedImage{{Data: []byte("img"), MIME: "image/jpeg"}},
			stats:  domain.ImageStats{Count: 2, AvgBytes: 900 * 1024},
		},
		Identity: &fakeExtractor{identity: testIdentity()},
		Model:    &fakeModel{text: okModelText()},
	}
}

func runPipeline(t *testing.T, deps Dependencies, in Input) (*Store, *domain.Job) {
	t.Helper()

	store := NewStore(time.Minute, testLogger())
	job := store.Create()

	runner := NewRunner(store, deps, time.Second, testLogger())
	runner.Run(context.Background(), job.JobID, in)

	got, err := store.Get(job.JobID)
	require.NoError(t, err)
	return store, got
}

func TestRunner_HappyPath(t *testing.T) {
	value := &fakeValue{result: &domain.WorthGradingResult{
		RawPrice:       40,
		Recommendation: domain.RecommendationYes,
	}}
	deps := defaultDeps()
	deps.Value = value

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Empty(t, job.Error)
	for _, step := range domain.StepOrder {
		assert.Equal(t, domain.StepStatusDone, job.Steps[step].Status, "step %s", step)
		assert.NotNil(t, job.Steps[step].StartedAt)
		assert.NotNil(t, job.Steps[step].FinishedAt)
	}

	require.NotNil(t, job.Partial.Identity)
	assert.Equal(t, "Mike Trout", job.Partial.Identity.Player)
	assert.Equal(t, "PSA 8-9", job.Partial.PreliminaryRange)
	require.NotNil(t, job.Partial.Probabilities)
	require.NotNil(t, job.Partial.Evidence)

	require.NotNil(t, job.Final)
	assert.Equal(t, "PSA 8-9", job.Final.PreliminaryRange)
	require.NotNil(t, job.Final.Estimate)
	assert.Equal(t, domain.AnalysisStatusOK, job.Final.Estimate.AnalysisStatus)
	require.NotNil(t, job.Final.PostGradingValue)
	assert.Equal(t, domain.RecommendationYes, job.Final.PostGradingValue.Recommendation)
	assert.Equal(t, 1, value.calls)
}

func TestRunner_ImageResolveFailureIsFatal(t *testing.T) {
	deps := defaultDeps()
	deps.Images = &fakeResolver{err: domain.ErrNoImages}

	_, job := runPipeline(t, deps, Input{})

	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Equal(t, domain.ErrNoImages.Error(), job.Error)
	assert.Equal(t, domain.StepStatusError, job.Steps[domain.StepOCRIdentity].Status)
	// Later steps never started.
	assert.Equal(t, domain.StepStatusQueued, job.Steps[domain.StepGradeModel].Status)
	assert.Equal(t, domain.StepStatusQueued, job.Steps[domain.StepParseValidate].Status)
	assert.Nil(t, job.Final)
}

func TestRunner_IdentityExtractionFailureIsFatal(t *testing.T) {
	deps := defaultDeps()
	deps.Identity = &fakeExtractor{err: errors.New("vision call failed")}

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Equal(t, "vision call failed", job.Error)
	assert.Equal(t, domain.StepStatusError, job.Steps[domain.StepOCRIdentity].Status)
	assert.Nil(t, job.Partial.Identity)
}

func TestRunner_KnownIdentitySkipsExtraction(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("should not be called")}
	deps := defaultDeps()
	deps.Identity = extractor

	known := testIdentity()
	_, job := runPipeline(t, deps, Input{
		Images:        []ImageRef{{URL: "https://cards.test/a.jpg"}},
		KnownIdentity: known,
	})

	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, 0, extractor.calls)
	require.NotNil(t, job.Partial.Identity)
	assert.Equal(t, known.Player, job.Partial.Identity.Player)
}

func TestRunner_ModelFailureFallsBack(t *testing.T) {
	deps := defaultDeps()
	deps.Model = &fakeModel{err: errors.New("model timed out")}

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	// A failed model call degrades the estimate, it does not fail the job.
	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, domain.StepStatusError, job.Steps[domain.StepGradeModel].Status)
	assert.Equal(t, "model timed out", job.Steps[domain.StepGradeModel].Error)
	assert.Equal(t, domain.StepStatusDone, job.Steps[domain.StepParseValidate].Status)

	require.NotNil(t, job.Final)
	require.NotNil(t, job.Final.Estimate)
	assert.Equal(t, domain.AnalysisStatusUnable, job.Final.Estimate.AnalysisStatus)
	assert.Equal(t, NoModelResponseReason, job.Final.Estimate.AnalysisReason)
	require.NotNil(t, job.Final.Probabilities)
	assert.InDelta(t, 1.0, sumPSA(t, job.Final.Probabilities.PSA), probTolerance)
}

func TestRunner_MissingStatsIsFatal(t *testing.T) {
	deps := defaultDeps()
	deps.Images = &fakeResolver{images: nil, stats: domain.ImageStats{}}

	_, job := runPipeline(t, deps, Input{})

	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Equal(t, domain.ErrMissingImageStats.Error(), job.Error)
	assert.Equal(t, domain.StepStatusError, job.Steps[domain.StepParseValidate].Status)
	assert.Nil(t, job.Final)
}

func TestRunner_IdentityVisibleBeforeModelFinishes(t *testing.T) {
	store := NewStore(time.Minute, testLogger())
	job := store.Create()

	var observed *domain.Job
	model := &fakeModel{text: okModelText()}
	model.onCall = func() {
		snap, err := store.Get(job.JobID)
		require.NoError(t, err)
		observed = snap
	}

	deps := defaultDeps()
	deps.Model = model

	runner := NewRunner(store, deps, time.Second, testLogger())
	runner.Run(context.Background(), job.JobID, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	// While the model was still being invoked, the identity was already
	// published and the final result was not.
	require.NotNil(t, observed)
	assert.Equal(t, domain.JobStatusRunning, observed.Status)
	require.NotNil(t, observed.Partial.Identity)
	assert.Equal(t, "Mike Trout", observed.Partial.Identity.Player)
	assert.Nil(t, observed.Final)
}

func TestRunner_ValueStepSkipped(t *testing.T) {
	tests := []struct {
		name  string
		setup func(deps *Dependencies)
	}{
		{
			name: "no estimator configured",
			setup: func(deps *Dependencies) {
				deps.Value = nil
			},
		},
		{
			name: "identity not priceable",
			setup: func(deps *Dependencies) {
				deps.Identity = &fakeExtractor{identity: &domain.CardIdentity{Player: "Mike Trout"}}
				deps.Value = &fakeValue{}
			},
		},
		{
			name: "estimate unusable",
			setup: func(deps *Dependencies) {
				deps.Model = &fakeModel{err: errors.New("model down")}
				deps.Value = &fakeValue{}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := defaultDeps()
			tt.setup(&deps)

			_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

			assert.Equal(t, domain.JobStatusDone, job.Status)
			assert.Equal(t, domain.StepStatusSkipped, job.Steps[domain.StepPostGradingValue].Status)
			require.NotNil(t, job.Final)
			assert.Nil(t, job.Final.PostGradingValue)

			if v, ok := deps.Value.(*fakeValue); ok {
				assert.Equal(t, 0, v.calls)
			}
		})
	}
}

func TestRunner_ValueStepFailureIsNotFatal(t *testing.T) {
	deps := defaultDeps()
	deps.Value = &fakeValue{err: errors.New("no price data")}

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, domain.StepStatusError, job.Steps[domain.StepPostGradingValue].Status)
	assert.Equal(t, "no price data", job.Steps[domain.StepPostGradingValue].Error)
	require.NotNil(t, job.Final)
	assert.Nil(t, job.Final.PostGradingValue)
	// The grading result itself is untouched by the value failure.
	require.NotNil(t, job.Final.Estimate)
	assert.Equal(t, domain.AnalysisStatusOK, job.Final.Estimate.AnalysisStatus)
}

func TestRunner_StepEventsPublishedInOrder(t *testing.T) {
	listener := &fakeListener{}
	deps := defaultDeps()
	deps.Value = &fakeValue{result: &domain.WorthGradingResult{}}
	deps.Events = listener

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})
	require.Equal(t, domain.JobStatusDone, job.Status)

	want := []recordedEvent{
		{Step: domain.StepOCRIdentity, Status: domain.StepStatusRunning},
		{Step: domain.StepOCRIdentity, Status: domain.StepStatusDone},
		{Step: domain.StepGradeModel, Status: domain.StepStatusRunning},
		{Step: domain.StepGradeModel, Status: domain.StepStatusDone},
		{Step: domain.StepParseValidate, Status: domain.StepStatusRunning},
		{Step: domain.StepParseValidate, Status: domain.StepStatusDone},
		{Step: domain.StepPostGradingValue, Status: domain.StepStatusRunning},
		{Step: domain.StepPostGradingValue, Status: domain.StepStatusDone},
	}
	assert.Equal(t, want, listener.recorded())
}

func TestRunner_PanicBecomesJobError(t *testing.T) {
	deps := defaultDeps()
	deps.Model = &fakeModel{onCall: func() { panic("boom") }}

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "boom")
}

func TestRunner_ElapsedRecorded(t *testing.T) {
	deps := defaultDeps()

	_, job := runPipeline(t, deps, Input{Images: []ImageRef{{URL: "https://cards.test/a.jpg"}}})

	require.Equal(t, domain.JobStatusDone, job.Status)
	for _, step := range []string{domain.StepOCRIdentity, domain.StepGradeModel, domain.StepParseValidate} {
		st := job.Steps[step]
		require.NotNil(t, st.StartedAt)
		require.NotNil(t, st.FinishedAt)
		assert.GreaterOrEqual(t, st.ElapsedMS, int64(0))
	}
}
