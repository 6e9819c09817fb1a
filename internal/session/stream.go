package session

import (
	"context"
	"io"
)

// SearchStream pulls the records of one search in commit order.
// A stream is not safe for concurrent use; open one per consumer.
type SearchStream struct {
	s          *search
	next       int
	failedSent bool
}

// SearchResults opens a stream over a search's records.
func (m *Manager) SearchResults(searchID string) (*SearchStream, error) {
	s, err := m.lookupSearch(searchID)
	if err != nil {
		return nil, err
	}
	return &SearchStream{s: s}, nil
}

// Next returns the next record, blocking while the search may still
// produce one. After the last record it returns a *SearchFailedError once
// if the search failed, then io.EOF. Cancelling ctx stops only this
// consumer.
func (st *SearchStream) Next(ctx context.Context) (SearchResult, error) {
	for {
		st.s.mu.Lock()
		if st.next < len(st.s.records) {
			r := st.s.records[st.next]
			st.next++
			st.s.mu.Unlock()
			return r, nil
		}
		if st.s.finished || st.s.state == StateEnded {
			failure := st.s.failure
			st.s.mu.Unlock()
			if failure != nil && !st.failedSent {
				st.failedSent = true
				return SearchResult{}, &SearchFailedError{SearchID: st.s.id, Err: failure}
			}
			return SearchResult{}, io.EOF
		}
		wait := st.s.changed
		st.s.mu.Unlock()

		select {
		case <-ctx.Done():
			return SearchResult{}, ctx.Err()
		case <-wait:
		}
	}
}

// RequestStream pulls the progress records of one request.
type RequestStream struct {
	r    *request
	next int
}

// RequestResults opens a stream over a request's progress records.
func (m *Manager) RequestResults(requestID string) (*RequestStream, error) {
	m.mu.RLock()
	r, ok := m.requests[requestID]
	m.mu.RUnlock()
	if !ok {
		return nil, &UnknownRequestError{RequestID: requestID}
	}
	return &RequestStream{r: r}, nil
}

// Next returns the next progress record, blocking until the request
// advances. After the terminal COMPLETED or ERRORED record it returns
// io.EOF.
func (st *RequestStream) Next(ctx context.Context) (RequestResult, error) {
	for {
		st.r.mu.Lock()
		if st.next < len(st.r.records) {
			rec := st.r.records[st.next]
			st.next++
			st.r.mu.Unlock()
			return rec, nil
		}
		if st.r.done {
			st.r.mu.Unlock()
			return RequestResult{}, io.EOF
		}
		wait := st.r.changed
		st.r.mu.Unlock()

		select {
		case <-ctx.Done():
			return RequestResult{}, ctx.Err()
		case <-wait:
		}
	}
}
