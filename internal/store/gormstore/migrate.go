package gormstore

import "gorm.io/gorm"

// AutoMigrateAll creates/updates every table this package owns, then
// installs the raw-SQL constraints and indexes GORM's struct tags can't
// express (the partial claim-scan index, the reverse-edge index, and the
// CHECK that rejects a job depending on itself). No foreign keys are
// created on the edge tables.
func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Job{},
		&JobDependency{},
		&Worker{},
		&Workflow{},
		&WorkflowJob{},
	); err != nil {
		return err
	}
	return ensureIndexes(db)
}

func ensureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim_scan ON jobs (status, scheduled_at) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_job_dependencies_depends_on ON job_dependencies (depends_on_job_id)`,
		`ALTER TABLE job_dependencies ADD CONSTRAINT chk_job_dependencies_no_self_edge CHECK (job_id <> depends_on_job_id)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			// CHECK/INDEX additions are idempotent in intent but Postgres
			// has no "ADD CONSTRAINT IF NOT EXISTS"; ignore duplicate errors.
			if !isDuplicateObject(err) {
				return err
			}
		}
	}
	return nil
}

func isDuplicateObject(err error) bool {
	type sqlStater interface{ SQLState() string }
	if se, ok := err.(sqlStater); ok {
		return se.SQLState() == "42710" || se.SQLState() == "42P07"
	}
	return false
}
