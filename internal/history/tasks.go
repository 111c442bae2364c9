package history

import (
	"context"
	"fmt"
	"time"

	"seedshelf/internal/conversion"
	"seedshelf/internal/services"
)

// TaskCounts returns the number of stored task snapshots per status.
func (s *Store) TaskCounts(ctx context.Context) (map[conversion.Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM conversion_tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query task counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[conversion.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		if parsed, ok := conversion.ParseStatus(status); ok {
			counts[parsed] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task counts: %w", err)
	}
	return counts, nil
}

// CancelPendingTask marks a stored pending task snapshot as failed with a
// cancellation reason. Snapshots in any other state are refused; a live
// scheduler owns its running tasks and this only applies to rows left behind
// by an interrupted run.
func (s *Store) CancelPendingTask(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM conversion_tasks WHERE id = ?", id).Scan(&status)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "history", "cancel task", "unknown task "+id, nil)
	}
	if parsed, ok := conversion.ParseStatus(status); !ok || parsed != conversion.StatusPending {
		return services.Wrap(services.ErrValidation, "history", "cancel task", fmt.Sprintf("task %s is %s; only pending tasks can be cancelled", id, status), nil)
	}
	return s.execWithRetry(ctx,
		"UPDATE conversion_tasks SET status = ?, error = ?, completed_at = ? WHERE id = ?",
		string(conversion.StatusFailed),
		"Cancelled by user",
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
}

// ClearTerminalTasks deletes completed and failed task snapshots and reports
// how many rows were removed.
func (s *Store) ClearTerminalTasks(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			"DELETE FROM conversion_tasks WHERE status IN (?, ?)",
			string(conversion.StatusCompleted),
			string(conversion.StatusFailed),
		)
		if execErr != nil {
			return execErr
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear terminal tasks: %w", err)
	}
	return removed, nil
}
