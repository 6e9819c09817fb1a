package session

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/ta2/internal/ids"
)

var (
	tracer = otel.Tracer("ta2.session")
	meter  = otel.Meter("ta2.session")
)

// Manager owns every search, solution and request. All state is scoped to
// the Manager; Close ends every search and waits for in-flight work.
//
// Lock order: Manager.mu before search.mu before request.mu.
type Manager struct {
	exec     Executor
	proposer Proposer
	loader   DatasetLoader
	archiver Archiver
	ids      ids.Generator
	logger   *slog.Logger
	clock    *Clock

	parallelism   int
	maxCandidates int
	timeBound     time.Duration
	holdoutRatio  float64
	seed          uint64
	workers       int
	retention     time.Duration
	archiveAll    bool

	root   context.Context
	cancel context.CancelFunc
	queue  *jobQueue
	wg     sync.WaitGroup

	mu        sync.RWMutex
	searches  map[string]*search
	solutions map[string]*Solution
	requests  map[string]*request
	timers    map[string]*time.Timer
	closed    bool

	metricsOnce   sync.Once
	searchCounter metric.Int64Counter
	solutionCount metric.Int64Counter
	failureCount  metric.Int64Counter
	requestCount  metric.Int64Counter
	searchLatency metric.Float64Histogram
}

// Option configures a Manager.
type Option func(*Manager)

// WithParallelism bounds how many candidates of one search fit at once.
// Default: 4.
func WithParallelism(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithMaxCandidates bounds how many candidates one search consumes.
// Zero means unbounded.
func WithMaxCandidates(n int) Option {
	return func(m *Manager) { m.maxCandidates = n }
}

// WithTimeBound sets the time bound for searches that do not name one.
// Zero means unbounded.
func WithTimeBound(d time.Duration) Option {
	return func(m *Manager) { m.timeBound = d }
}

// WithHoldout sets the holdout ratio and split seed. Default: 0.25, 0.
func WithHoldout(ratio float64, seed uint64) Option {
	return func(m *Manager) {
		m.holdoutRatio = ratio
		m.seed = seed
	}
}

// WithWorkers sets the size of the score/produce worker pool. Default: 2.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithRetention discards ended searches after d. Zero keeps them until
// Close.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) { m.retention = d }
}

// WithArchiver sets the archiver used by ExportSolution. With all set,
// every committed solution is archived as well.
func WithArchiver(a Archiver, all bool) Option {
	return func(m *Manager) {
		m.archiver = a
		m.archiveAll = all
	}
}

// WithIDGenerator sets the generator for search, solution and request ids.
// Default: ids.AlnumGenerator.
func WithIDGenerator(g ids.Generator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager and starts its worker pool.
func NewManager(exec Executor, proposer Proposer, loader DatasetLoader, opts ...Option) *Manager {
	m := &Manager{
		exec:         exec,
		proposer:     proposer,
		loader:       loader,
		ids:          ids.AlnumGenerator{},
		logger:       slog.Default(),
		clock:        NewClock(),
		parallelism:  4,
		holdoutRatio: 0.25,
		workers:      2,
		queue:        newJobQueue(),
		searches:     make(map[string]*search),
		solutions:    make(map[string]*Solution),
		requests:     make(map[string]*request),
		timers:       make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.root, m.cancel = context.WithCancel(context.Background())
	m.initMetrics()

	for range m.workers {
		m.wg.Add(1)
		go m.work()
	}
	return m
}

func (m *Manager) initMetrics() {
	m.metricsOnce.Do(func() {
		var err error
		m.searchCounter, err = meter.Int64Counter("ta2_searches_total",
			metric.WithDescription("Number of searches started"),
		)
		if err != nil {
			m.logger.Warn("search metric unavailable", "error", err)
		}
		m.solutionCount, err = meter.Int64Counter("ta2_solutions_total",
			metric.WithDescription("Number of committed solutions"),
		)
		if err != nil {
			m.logger.Warn("solution metric unavailable", "error", err)
		}
		m.failureCount, err = meter.Int64Counter("ta2_candidate_failures_total",
			metric.WithDescription("Number of candidates dropped during fit or scoring"),
		)
		if err != nil {
			m.logger.Warn("candidate failure metric unavailable", "error", err)
		}
		m.requestCount, err = meter.Int64Counter("ta2_requests_total",
			metric.WithDescription("Number of finished score and produce requests"),
		)
		if err != nil {
			m.logger.Warn("request metric unavailable", "error", err)
		}
		m.searchLatency, err = meter.Float64Histogram("ta2_search_duration_seconds",
			metric.WithDescription("Time from search start until proposing stops"),
			metric.WithUnit("s"),
		)
		if err != nil {
			m.logger.Warn("search latency metric unavailable", "error", err)
		}
	})
}

// lookupSearch returns the search or an UnknownSessionError.
func (m *Manager) lookupSearch(id string) (*search, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.searches[id]
	if !ok {
		return nil, &UnknownSessionError{SearchID: id}
	}
	return s, nil
}

// Solution returns a committed solution.
func (m *Manager) Solution(id string) (*Solution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sol, ok := m.solutions[id]
	if !ok {
		return nil, &UnknownSolutionError{SolutionID: id}
	}
	return sol, nil
}

// Ranked returns a search's solutions by internal score, best first. Equal
// scores keep commit order.
func (m *Manager) Ranked(searchID string) ([]*Solution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.searches[searchID]
	if !ok {
		return nil, &UnknownSessionError{SearchID: searchID}
	}

	s.mu.Lock()
	out := make([]*Solution, 0, len(s.solutions))
	for _, id := range s.solutions {
		out = append(out, m.solutions[id])
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b *Solution) int {
		if c := cmp.Compare(b.InternalScore, a.InternalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out, nil
}

// Snapshot summarizes every search the manager holds, oldest first.
func (m *Manager) Snapshot() []SearchSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SearchSummary, 0, len(m.searches))
	for _, s := range m.searches {
		out = append(out, s.summary())
	}
	slices.SortFunc(out, func(a, b SearchSummary) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return cmp.Compare(a.SearchID, b.SearchID)
	})
	return out
}

// EndSearch moves a search to ENDED and cancels its work. Records stay
// queryable until the search is discarded. Ending an ended search is a
// no-op.
func (m *Manager) EndSearch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.searches[id]
	if !ok {
		return &UnknownSessionError{SearchID: id}
	}
	if !s.end() {
		return nil
	}

	m.logger.Info("search ended", "search_id", id)
	if m.retention > 0 && !m.closed {
		m.timers[id] = time.AfterFunc(m.retention, func() {
			if err := m.Discard(id); err != nil && !IsUnknownSessionError(err) {
				m.logger.Warn("discard failed", "search_id", id, "error", err)
			}
		})
	}
	return nil
}

// StopSearch stops a search from proposing further candidates. Candidates
// already fitting still commit, and the search stays open for scoring.
func (m *Manager) StopSearch(id string) error {
	s, err := m.lookupSearch(id)
	if err != nil {
		return err
	}
	s.stop()
	m.logger.Info("search stopped", "search_id", id)
	return nil
}

// Discard ends a search if needed and drops it with its solutions and
// requests.
func (m *Manager) Discard(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.searches[id]
	if !ok {
		return &UnknownSessionError{SearchID: id}
	}
	s.end()

	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}

	s.mu.Lock()
	for _, sol := range s.solutions {
		delete(m.solutions, sol)
	}
	s.mu.Unlock()

	for rid, r := range m.requests {
		if r.solution.SearchID == id {
			delete(m.requests, rid)
		}
	}
	delete(m.searches, id)

	m.logger.Debug("search discarded", "search_id", id)
	return nil
}

// Close ends every search, drains the request queue and waits for all
// in-flight work. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	for _, s := range m.searches {
		s.end()
	}
	m.mu.Unlock()

	m.queue.Close()
	m.wg.Wait()
	m.cancel()
	return nil
}
