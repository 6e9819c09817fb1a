// Package session owns search sessions and the requests made against their
// solutions.
//
// A Manager starts searches that propose candidate pipelines, fits them on a
// deterministic train split and scores them on the holdout. Each surviving
// candidate becomes a Solution under a fresh id, committed in proposer
// order. Score and produce requests against solutions are queued to a fixed
// worker pool and observed through pull streams:
//
//	id, _ := m.StartSearch(ctx, session.SearchRequest{Problem: prob, DatasetURI: uri})
//	stream, _ := m.SearchResults(id)
//	for {
//		rec, err := stream.Next(ctx)
//		if err == io.EOF {
//			break
//		}
//		...
//	}
//	_ = m.EndSearch(id)
//
// Search states move OPEN -> RESULTS_AVAILABLE -> ENDED. Ended searches keep
// their records until discarded, either explicitly or after the configured
// retention.
package session
