package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateQuota_Check(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		checks int
		failAt int // 0 means never
	}{
		{"unbounded", 0, 100, 0},
		{"within limit", 3, 3, 0},
		{"exceeded", 3, 5, 4},
		{"limit one", 1, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newCandidateQuota(tt.limit)
			assert.Equal(t, tt.limit, q.Limit())

			for i := 1; i <= tt.checks; i++ {
				err := q.Check("search-1")
				if tt.failAt == 0 || i < tt.failAt {
					require.NoError(t, err, "check %d", i)
					continue
				}
				require.Error(t, err)
				assert.True(t, IsCandidatesExceededError(err))
				assert.Contains(t, err.Error(), "search-1")
				break
			}
		})
	}
}

func TestCandidatesExceededError(t *testing.T) {
	err := &CandidatesExceededError{SearchID: "s", Candidates: 4, Limit: 3}
	assert.Equal(t, "search s exceeded candidate quota: 4 candidates > 3 limit", err.Error())
	assert.False(t, IsCandidatesExceededError(nil))
}
