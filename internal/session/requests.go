package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/scoring"
)

// request is a queued score or produce evaluation of one solution.
type request struct {
	id         string
	kind       RequestKind
	solution   *Solution
	holdout    *dataset.Dataset
	target     string
	metrics    []problem.PerformanceMetric
	datasetURI string
	expose     []string

	mu      sync.Mutex
	start   time.Time
	records []RequestResult
	done    bool
	changed chan struct{}
}

// advance appends a progress record and wakes waiting streams. A terminal
// record closes the request.
func (r *request) advance(rec RequestResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.RequestID = r.id
	rec.Kind = r.kind
	rec.Progress.Start = r.start
	r.records = append(r.records, rec)
	if rec.Progress.State == ProgressCompleted || rec.Progress.State == ProgressErrored {
		r.done = true
	}
	close(r.changed)
	r.changed = make(chan struct{})
}

// ScoreSolution queues a scoring of a solution and returns its request id.
// With an empty datasetURI the solution's search holdout is scored. Empty
// metrics use the problem's metrics.
func (m *Manager) ScoreSolution(solutionID string, metrics []problem.PerformanceMetric, datasetURI string) (string, error) {
	for _, pm := range metrics {
		if _, err := problem.ParseMetric(string(pm.Metric)); err != nil {
			return "", &InvalidRequestError{Op: "score", Err: err}
		}
	}
	return m.enqueue(RequestScore, solutionID, metrics, datasetURI)
}

// ProduceSolution queues a run of a solution on a dataset and returns its
// request id. The completed record carries the outputs named in expose, or
// every output when expose is empty.
func (m *Manager) ProduceSolution(solutionID, datasetURI string, expose ...string) (string, error) {
	if datasetURI == "" {
		return "", &InvalidRequestError{Op: "produce", Err: fmt.Errorf("dataset uri is required")}
	}
	return m.enqueue(RequestProduce, solutionID, nil, datasetURI, expose...)
}

func (m *Manager) enqueue(kind RequestKind, solutionID string, metrics []problem.PerformanceMetric, datasetURI string, expose ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrManagerClosed
	}

	sol, ok := m.solutions[solutionID]
	if !ok {
		return "", &UnknownSolutionError{SolutionID: solutionID}
	}
	s := m.searches[sol.SearchID]

	r := &request{
		id:         m.ids.Generate(),
		kind:       kind,
		solution:   sol,
		target:     s.req.Problem.TargetColumn(),
		metrics:    metrics,
		datasetURI: datasetURI,
		expose:     expose,
		start:      time.Now(),
		changed:    make(chan struct{}),
	}
	if len(r.metrics) == 0 {
		r.metrics = s.metrics
	}
	s.mu.Lock()
	r.holdout = s.holdout
	s.mu.Unlock()

	r.advance(RequestResult{Progress: Progress{State: ProgressPending, Status: "queued"}})
	m.requests[r.id] = r
	m.queue.Enqueue(r)

	m.logger.Debug("request queued",
		"request_id", r.id,
		"kind", kind,
		"solution_id", solutionID,
	)
	return r.id, nil
}

// work runs queued requests until the queue is closed and drained.
func (m *Manager) work() {
	defer m.wg.Done()
	for {
		r, ok := m.queue.Dequeue()
		if !ok {
			return
		}
		m.run(m.root, r)
	}
}

func (m *Manager) run(ctx context.Context, r *request) {
	ctx, span := tracer.Start(ctx, "session.Request",
		trace.WithAttributes(
			attribute.String("request.id", r.id),
			attribute.String("request.kind", string(r.kind)),
			attribute.String("solution.id", r.solution.ID),
		),
	)
	defer span.End()

	r.advance(RequestResult{Progress: Progress{State: ProgressRunning, Status: "running"}})

	var (
		rec RequestResult
		err error
	)
	switch r.kind {
	case RequestScore:
		rec.Scores, err = m.score(ctx, r)
	case RequestProduce:
		rec.Outputs, err = m.produce(ctx, r)
	}

	outcome := "completed"
	if err != nil {
		outcome = "errored"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("request failed", "request_id", r.id, "kind", r.kind, "error", err)
		rec = RequestResult{
			Progress: Progress{State: ProgressErrored, Status: err.Error(), End: time.Now()},
			Err:      err,
		}
	} else {
		span.SetStatus(codes.Ok, "")
		rec.Progress = Progress{State: ProgressCompleted, Status: "completed", End: time.Now()}
	}
	r.advance(rec)

	if m.requestCount != nil {
		m.requestCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(r.kind)),
			attribute.String("outcome", outcome),
		))
	}
}

func (m *Manager) score(ctx context.Context, r *request) ([]scoring.Result, error) {
	data := r.holdout
	if r.datasetURI != "" {
		var err error
		if data, err = m.loader.Load(ctx, r.datasetURI); err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
	}
	if data == nil {
		return nil, fmt.Errorf("solution %s has no holdout data", r.solution.ID)
	}
	truth, err := data.Column(r.target)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}

	res, err := m.exec.Produce(ctx, r.solution.Fitted, []any{data})
	if err != nil {
		return nil, err
	}
	predicted, err := predictions(res)
	if err != nil {
		return nil, err
	}
	return scoring.ScoreAll(r.metrics, truth.Values, predicted)
}

func (m *Manager) produce(ctx context.Context, r *request) (map[string]any, error) {
	data, err := m.loader.Load(ctx, r.datasetURI)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	res, err := m.exec.Produce(ctx, r.solution.Fitted, []any{data})
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(res.Outputs))
	for i, v := range res.Outputs {
		out[fmt.Sprintf("outputs.%d", i)] = v
	}
	if len(r.expose) == 0 {
		return out, nil
	}
	exposed := make(map[string]any, len(r.expose))
	for _, name := range r.expose {
		v, ok := out[name]
		if !ok {
			return nil, fmt.Errorf("unknown output %q", name)
		}
		exposed[name] = v
	}
	return exposed, nil
}

// ExportSolution persists a solution's fitted pipeline through the
// archiver.
func (m *Manager) ExportSolution(ctx context.Context, solutionID string) error {
	sol, err := m.Solution(solutionID)
	if err != nil {
		return err
	}
	if m.archiver == nil {
		return ErrNoArchiver
	}
	if err := m.archiver.Archive(ctx, sol.Fitted); err != nil {
		return fmt.Errorf("export solution %s: %w", solutionID, err)
	}
	m.logger.Info("solution exported", "solution_id", solutionID, "fitted_pipeline", sol.Fitted.ID())
	return nil
}
