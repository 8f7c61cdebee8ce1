package gormstore

import "gorm.io/gorm/clause"

// onConflictUpdateWorker upserts a worker row by its primary key
// (worker_id), used by Register so a caller-supplied worker_id that
// re-registers (process restart under the same id) refreshes the row
// instead of failing a duplicate-key insert.
func onConflictUpdateWorker() clause.Expression {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "worker_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"hostname", "pid", "version", "max_concurrent_jobs", "status", "started_at", "updated_at"}),
	}
}
