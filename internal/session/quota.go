package session

import (
	"errors"
	"fmt"
)

// candidateQuota bounds how many candidates one search consumes from its
// proposer. A limit of zero means unbounded.
//
// Not thread-safe: a search's proposal loop is its only caller.
type candidateQuota struct {
	limit   int
	current int
}

func newCandidateQuota(limit int) *candidateQuota {
	return &candidateQuota{limit: limit}
}

// Check counts one candidate and fails once the limit is exceeded.
func (q *candidateQuota) Check(searchID string) error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &CandidatesExceededError{
			SearchID:   searchID,
			Candidates: q.current,
			Limit:      q.limit,
		}
	}
	return nil
}

// Limit returns the configured limit, 0 when unbounded.
func (q *candidateQuota) Limit() int {
	return q.limit
}

// CandidatesExceededError is returned when a search would consume more
// candidates than its quota. The search stops proposing; it is not failed.
type CandidatesExceededError struct {
	SearchID   string
	Candidates int
	Limit      int
}

func (e *CandidatesExceededError) Error() string {
	return fmt.Sprintf("search %s exceeded candidate quota: %d candidates > %d limit",
		e.SearchID, e.Candidates, e.Limit)
}

// IsCandidatesExceededError checks if an error is a CandidatesExceededError.
func IsCandidatesExceededError(err error) bool {
	var ce *CandidatesExceededError
	return errors.As(err, &ce)
}
