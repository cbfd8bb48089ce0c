package postgres

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/domain/job"
)

// ActiveJobStreams returns every job stream for tenantID currently
// EXECUTING, ASSISTED, or STALLED, matching workers.Liveness's
// ActiveJobStreams(tenantID string) ([]string, error) shape. A production
// deployment would back this with a job projection table kept up to date by
// triggers or a read-model worker; querying stream_heads distinct
// stream_ids and reducing each is the honest equivalent without one.
func (s *Store) ActiveJobStreams(tenantID string) ([]string, error) {
	ctx := context.Background()

	rows, err := s.pool().Query(ctx, `SELECT stream_id FROM stream_heads WHERE stream_id LIKE $1`, tenantID+"/job/%")
	if err != nil {
		return nil, fmt.Errorf("postgres: list job streams: %w", err)
	}
	defer rows.Close()

	var candidates []string

	for rows.Next() {
		var streamID string
		if err := rows.Scan(&streamID); err != nil {
			return nil, fmt.Errorf("postgres: scan job stream id: %w", err)
		}

		candidates = append(candidates, streamID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate job streams: %w", err)
	}

	var active []string

	for _, streamID := range candidates {
		events, err := s.LoadEvents(ctx, streamID)
		if err != nil {
			continue
		}

		state, err := job.Reduce(events)
		if err != nil {
			continue
		}

		switch state.Status {
		case job.StatusExecuting, job.StatusAssisted, job.StatusStalled:
			active = append(active, streamID)
		}
	}

	return active, nil
}
