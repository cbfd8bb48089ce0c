package memory

import (
	"strings"

	"github.com/settld/core/internal/domain/job"
)

// ActiveJobStreams scans every job stream belonging to tenantID and returns
// the ones the liveness worker must check, i.e. currently EXECUTING,
// ASSISTED, or STALLED. A Postgres deployment indexes this from the job
// projection table instead of scanning; this in-memory Store has no index
// to query, so a full scan is the honest equivalent. Matches
// workers.Liveness.ActiveJobStreams's func(tenantID string) ([]string,
// error) shape exactly so a memory-backed cmd/worker can pass the method
// value directly.
func (s *Store) ActiveJobStreams(tenantID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := tenantID + "/job/"

	var ids []string

	for streamID, events := range s.streams {
		if !strings.HasPrefix(streamID, prefix) {
			continue
		}

		state, err := job.Reduce(events)
		if err != nil {
			continue
		}

		switch state.Status {
		case job.StatusExecuting, job.StatusAssisted, job.StatusStalled:
			ids = append(ids, streamID)
		}
	}

	return ids, nil
}
