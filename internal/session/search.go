package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/scoring"
)

// search is the state of one search session.
type search struct {
	id      string
	req     SearchRequest
	metrics []problem.PerformanceMetric
	config  ScoringConfig
	ticks   int
	started time.Time

	ctx         context.Context // cancelled by end or the time bound
	cancel      context.CancelFunc
	proposeCtx  context.Context // additionally cancelled by stop
	stopPropose context.CancelFunc

	mu        sync.Mutex
	state     State
	stopped   bool
	finished  bool
	failure   error
	done      int
	failed    int
	holdout   *dataset.Dataset
	solutions []string
	records   []SearchResult
	changed   chan struct{}
}

// notify wakes every stream waiting on s. Callers hold s.mu.
func (s *search) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// end moves s to ENDED and cancels its work. Reports whether s was not
// already ended.
func (s *search) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return false
	}
	s.state = StateEnded
	s.cancel()
	s.notify()
	return true
}

func (s *search) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stopPropose()
}

// finish records that proposing is over. err is the proposer or setup
// failure, if any.
func (s *search) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.failure = err
	s.notify()
}

func (s *search) summary() SearchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := SearchSummary{
		SearchID:   s.id,
		State:      s.state,
		ProblemID:  s.req.Problem.ID,
		DatasetURI: s.req.DatasetURI,
		Solutions:  len(s.solutions),
		Failed:     s.failed,
		Done:       s.done,
		Stopped:    s.stopped,
		Finished:   s.finished,
		Started:    s.started,
	}
	if s.failure != nil {
		sum.Error = s.failure.Error()
	}
	return sum
}

// candidate is the outcome of fitting and scoring one proposed pipeline.
type candidate struct {
	pipeline *pipeline.Pipeline
	fitted   *engine.FittedPipeline
	scores   []scoring.Result
	err      error
}

// StartSearch registers a search in state OPEN and starts it in the
// background. It returns the fresh search id without waiting for any
// candidate.
func (m *Manager) StartSearch(ctx context.Context, req SearchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	bound := req.TimeBound
	if bound == 0 {
		bound = m.timeBound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrManagerClosed
	}

	s := &search{
		id:      m.ids.Generate(),
		req:     req,
		metrics: req.Problem.EffectiveMetrics(),
		config: ScoringConfig{
			Method:         ScoringMethodHoldout,
			TrainTestRatio: m.holdoutRatio,
			RandomSeed:     m.seed,
		},
		ticks:   m.maxCandidates,
		started: time.Now(),
		state:   StateOpen,
		changed: make(chan struct{}),
	}
	if bound > 0 {
		s.ctx, s.cancel = context.WithTimeout(m.root, bound)
	} else {
		s.ctx, s.cancel = context.WithCancel(m.root)
	}
	s.proposeCtx, s.stopPropose = context.WithCancel(s.ctx)
	m.searches[s.id] = s

	if m.searchCounter != nil {
		m.searchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task", string(req.Problem.TaskType))))
	}
	m.logger.Info("search started",
		"search_id", s.id,
		"problem", req.Problem.ID,
		"dataset", req.DatasetURI,
		"time_bound", bound,
	)

	m.wg.Add(1)
	go m.runSearch(s)
	return s.id, nil
}

// runSearch loads and splits the dataset, then fits proposed candidates on
// a bounded worker group and commits them in proposer order.
func (m *Manager) runSearch(s *search) {
	defer m.wg.Done()
	defer s.stopPropose()

	ctx, span := tracer.Start(s.ctx, "session.Search",
		trace.WithAttributes(
			attribute.String("search.id", s.id),
			attribute.String("problem.id", s.req.Problem.ID),
		),
	)
	defer span.End()

	err := m.search(ctx, s)
	if m.searchLatency != nil {
		m.searchLatency.Record(ctx, time.Since(s.started).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("search failed", "search_id", s.id, "error", err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.finish(err)
	s.mu.Lock()
	m.logger.Info("search finished",
		"search_id", s.id,
		"solutions", len(s.solutions),
		"failed", s.failed,
		"duration", time.Since(s.started),
	)
	s.mu.Unlock()
}

func (m *Manager) search(ctx context.Context, s *search) error {
	ds, err := m.loader.Load(ctx, s.req.DatasetURI)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	train, holdout, err := ds.Split(m.holdoutRatio, m.seed)
	if err != nil {
		return err
	}
	truth, err := holdout.Column(s.req.Problem.TargetColumn())
	if err != nil {
		return fmt.Errorf("holdout targets: %w", err)
	}

	s.mu.Lock()
	s.holdout = holdout
	s.mu.Unlock()

	quota := newCandidateQuota(m.maxCandidates)
	order := make(chan chan candidate, m.parallelism)
	committed := make(chan struct{})
	go func() {
		defer close(committed)
		for slot := range order {
			m.commit(ctx, s, <-slot)
		}
	}()

	var g errgroup.Group
	g.SetLimit(m.parallelism)

	proposer := m.proposer
	if s.req.Template != nil {
		proposer = single(s.req.Template)
	}

	var failure error
	for p, err := range proposer.Propose(s.proposeCtx, s.req.Problem) {
		if err != nil {
			failure = fmt.Errorf("propose: %w", err)
			break
		}
		// Proposers are not required to watch ctx.
		if s.proposeCtx.Err() != nil {
			break
		}
		if err := quota.Check(s.id); err != nil {
			m.logger.Debug("candidate quota reached", "search_id", s.id, "limit", quota.Limit())
			break
		}

		slot := make(chan candidate, 1)
		g.Go(func() error {
			slot <- m.evaluate(ctx, s, p, ds.ID, train, holdout, truth.Values)
			return nil
		})
		order <- slot
	}

	_ = g.Wait()
	close(order)
	<-committed

	// A stop, the time bound and EndSearch all end proposing normally.
	if s.proposeCtx.Err() != nil && (errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded)) {
		return nil
	}
	return failure
}

// evaluate fits p on train and scores it on holdout.
func (m *Manager) evaluate(ctx context.Context, s *search, p *pipeline.Pipeline, datasetID string, train, holdout *dataset.Dataset, truth []string) candidate {
	c := candidate{pipeline: p}

	fp, err := m.exec.Fit(ctx, p, []any{train}, datasetID, nil)
	if err != nil {
		c.err = fmt.Errorf("fit: %w", err)
		return c
	}
	res, err := m.exec.Produce(ctx, fp, []any{holdout})
	if err != nil {
		c.err = fmt.Errorf("produce holdout: %w", err)
		return c
	}
	predicted, err := predictions(res)
	if err != nil {
		c.err = err
		return c
	}
	scores, err := scoring.ScoreAll(s.metrics, truth, predicted)
	if err != nil {
		c.err = err
		return c
	}

	c.fitted = fp
	c.scores = scores
	return c
}

// commit records c as a solution, or counts it as failed. Candidates that
// finish after the search ended are dropped.
func (m *Manager) commit(ctx context.Context, s *search, c candidate) {
	m.mu.Lock()
	s.mu.Lock()

	s.done++
	if c.err != nil {
		s.failed++
		done := s.done
		s.mu.Unlock()
		m.mu.Unlock()

		if m.failureCount != nil {
			m.failureCount.Add(ctx, 1)
		}
		m.logger.Warn("candidate dropped",
			"search_id", s.id,
			"pipeline", c.pipeline.ID(),
			"candidate", done,
			"error", c.err,
		)
		return
	}
	if s.state == StateEnded {
		s.mu.Unlock()
		m.mu.Unlock()
		return
	}

	sol := &Solution{
		ID:            m.ids.Generate(),
		SearchID:      s.id,
		Seq:           m.clock.Next(),
		Fitted:        c.fitted,
		InternalScore: c.scores[0].Internal(),
		Scores:        c.scores,
		Created:       time.Now(),
	}
	m.solutions[sol.ID] = sol
	s.solutions = append(s.solutions, sol.ID)
	s.state = StateResultsAvailable
	s.records = append(s.records, SearchResult{
		Progress: Progress{
			State:  ProgressRunning,
			Status: fmt.Sprintf("solution %d fitted and scored", len(s.solutions)),
			Start:  s.started,
		},
		DoneTicks:     s.done,
		AllTicks:      s.ticks,
		SolutionID:    sol.ID,
		InternalScore: sol.InternalScore,
		Scores:        sol.Scores,
		ScoringConfig: s.config,
	})
	s.notify()
	s.mu.Unlock()
	m.mu.Unlock()

	if m.solutionCount != nil {
		m.solutionCount.Add(ctx, 1)
	}
	m.logger.Debug("solution committed",
		"search_id", s.id,
		"solution_id", sol.ID,
		"pipeline", c.pipeline.ID(),
		"seq", sol.Seq,
		"internal_score", sol.InternalScore,
	)

	if m.archiveAll && m.archiver != nil {
		if err := m.archiver.Archive(ctx, sol.Fitted); err != nil {
			m.logger.Warn("archive failed", "solution_id", sol.ID, "error", err)
		}
	}
}
