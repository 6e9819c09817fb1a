package session

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/scoring"
)

// State is the lifecycle state of a search.
type State string

const (
	StateOpen             State = "OPEN"
	StateResultsAvailable State = "RESULTS_AVAILABLE"
	StateEnded            State = "ENDED"
)

// ProgressState is the progress of a search or request at the time a record
// was emitted.
type ProgressState string

const (
	ProgressPending   ProgressState = "PENDING"
	ProgressRunning   ProgressState = "RUNNING"
	ProgressCompleted ProgressState = "COMPLETED"
	ProgressErrored   ProgressState = "ERRORED"
)

// Progress describes where a search or request stands.
type Progress struct {
	State  ProgressState
	Status string
	Start  time.Time
	End    time.Time
}

// ScoringMethodHoldout is the only scoring method the manager uses.
const ScoringMethodHoldout = "HOLDOUT"

// ScoringConfig records how scores were computed.
type ScoringConfig struct {
	Method         string
	TrainTestRatio float64
	RandomSeed     uint64
}

// SearchRequest starts a search.
type SearchRequest struct {
	Problem    *problem.Problem `validate:"required"`
	DatasetURI string           `validate:"required"`
	// TimeBound limits the whole search. Zero uses the manager default.
	TimeBound time.Duration `validate:"gte=0"`
	// Template, when set, is evaluated as the only candidate instead of
	// consulting the proposer.
	Template *pipeline.Pipeline `validate:"-"`
}

var validate = validator.New()

// Validate checks the request and its problem description.
func (r *SearchRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return &InvalidRequestError{Op: "search", Err: err}
	}
	if err := r.Problem.Validate(); err != nil {
		return &InvalidRequestError{Op: "search", Err: err}
	}
	return nil
}

// SearchResult is one record of a search stream. Every record announces one
// solution.
type SearchResult struct {
	Progress      Progress
	DoneTicks     int
	AllTicks      int
	SolutionID    string
	InternalScore float64
	Scores        []scoring.Result
	ScoringConfig ScoringConfig
}

// Solution is a fitted candidate that survived fitting and scoring.
type Solution struct {
	ID            string
	SearchID      string
	Seq           int64
	Fitted        *engine.FittedPipeline
	InternalScore float64
	Scores        []scoring.Result
	Created       time.Time
}

// RequestKind distinguishes queued evaluation requests.
type RequestKind string

const (
	RequestScore   RequestKind = "SCORE"
	RequestProduce RequestKind = "PRODUCE"
)

// RequestResult is one progress record of a score or produce request.
// Scores are set on completed score requests, Outputs on completed produce
// requests, keyed "outputs.N". Err is set on the terminal ERRORED record.
type RequestResult struct {
	RequestID string
	Kind      RequestKind
	Progress  Progress
	Scores    []scoring.Result
	Outputs   map[string]any
	Err       error
}

// SearchSummary is a point-in-time view of one search.
type SearchSummary struct {
	SearchID   string    `json:"search_id"`
	State      State     `json:"state"`
	ProblemID  string    `json:"problem_id"`
	DatasetURI string    `json:"dataset_uri"`
	Solutions  int       `json:"solutions"`
	Failed     int       `json:"failed"`
	Done       int       `json:"done"`
	Stopped    bool      `json:"stopped"`
	Finished   bool      `json:"finished"`
	Started    time.Time `json:"started"`
	Error      string    `json:"error,omitempty"`
}

// Proposer enumerates candidate pipelines for a problem.
type Proposer interface {
	Propose(ctx context.Context, prob *problem.Problem) iter.Seq2[*pipeline.Pipeline, error]
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, prob *problem.Problem) iter.Seq2[*pipeline.Pipeline, error]

// Propose calls f.
func (f ProposerFunc) Propose(ctx context.Context, prob *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
	return f(ctx, prob)
}

// single proposes exactly one pipeline.
func single(p *pipeline.Pipeline) ProposerFunc {
	return func(context.Context, *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
		return func(yield func(*pipeline.Pipeline, error) bool) {
			yield(p, nil)
		}
	}
}

// DatasetLoader resolves dataset URIs.
type DatasetLoader interface {
	Load(ctx context.Context, uri string) (*dataset.Dataset, error)
}

// Archiver persists fitted pipelines.
type Archiver interface {
	Archive(ctx context.Context, fp *engine.FittedPipeline) error
}

// Executor fits and runs pipelines. *engine.Engine implements it.
type Executor interface {
	Fit(ctx context.Context, p *pipeline.Pipeline, inputs []any, datasetID string, overrides engine.Overrides) (*engine.FittedPipeline, error)
	Produce(ctx context.Context, f *engine.FittedPipeline, inputs []any) (*engine.RunResult, error)
}

var _ Executor = (*engine.Engine)(nil)

// predictions extracts the first pipeline output as a column of cells.
func predictions(res *engine.RunResult) ([]string, error) {
	if len(res.Outputs) == 0 {
		return nil, fmt.Errorf("pipeline exposes no outputs")
	}
	switch v := res.Outputs[0].(type) {
	case dataset.Column:
		return v.Values, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("pipeline output is %T, not a column", res.Outputs[0])
	}
}
