// Package gormstore is the durable store (C3): GORM models and repositories
// for jobs, workers, workflows, and the dependency/membership edge tables.
package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job is the unit of work. Status values mirror jobstate.Status but are
// kept as a plain string column here so the store package has no
// dependency on the pure state-machine package's type.
type Job struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	IdempotencyKey string         `gorm:"column:idempotency_key;uniqueIndex;not null" json:"idempotency_key"`
	Type           string         `gorm:"column:type;not null;index" json:"type"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`

	Priority    int       `gorm:"column:priority;not null;default:5;check:priority >= 0 AND priority <= 10" json:"priority"`
	ScheduledAt time.Time `gorm:"column:scheduled_at;not null;index" json:"scheduled_at"`

	MaxRetries     int    `gorm:"column:max_retries;not null;default:3;check:max_retries >= 0" json:"max_retries"`
	RetryCount     int    `gorm:"column:retry_count;not null;default:0;check:retry_count >= 0" json:"retry_count"`
	RetryPolicy    string `gorm:"column:retry_policy;not null;default:'EXPONENTIAL'" json:"retry_policy"`
	TimeoutSeconds *int   `gorm:"column:timeout_seconds;check:timeout_seconds IS NULL OR timeout_seconds > 0" json:"timeout_seconds,omitempty"`

	Status string `gorm:"column:status;not null;index" json:"status"`

	WorkerID     *string    `gorm:"column:worker_id;index" json:"worker_id,omitempty"`
	StartedAt    *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ErrorMessage *string    `gorm:"column:error_message" json:"error_message,omitempty"`
	ErrorDetails datatypes.JSON `gorm:"column:error_details;type:jsonb" json:"error_details,omitempty"`
	Result       datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`

	ParentJobID *uuid.UUID `gorm:"type:uuid;column:parent_job_id;index" json:"parent_job_id,omitempty"`

	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Job) TableName() string { return "jobs" }

// JobDependency is a self-referential edge: JobID depends on
// DependsOnJobID succeeding before JobID is ready.
type JobDependency struct {
	JobID         uuid.UUID `gorm:"type:uuid;column:job_id;primaryKey" json:"job_id"`
	DependsOnJobID uuid.UUID `gorm:"type:uuid;column:depends_on_job_id;primaryKey" json:"depends_on_job_id"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

func (JobDependency) TableName() string { return "job_dependencies" }

// Worker is a registered executor instance.
type Worker struct {
	WorkerID          string         `gorm:"column:worker_id;primaryKey" json:"worker_id"`
	Hostname          string         `gorm:"column:hostname;not null" json:"hostname"`
	PID               int            `gorm:"column:pid;not null" json:"pid"`
	Version           string         `gorm:"column:version" json:"version,omitempty"`
	MaxConcurrentJobs int            `gorm:"column:max_concurrent_jobs;not null;check:max_concurrent_jobs > 0" json:"max_concurrent_jobs"`
	CurrentJobCount   int            `gorm:"column:current_job_count;not null;default:0;check:current_job_count >= 0" json:"current_job_count"`
	Processed         int64          `gorm:"column:processed;not null;default:0;check:processed >= 0" json:"processed"`
	Succeeded         int64          `gorm:"column:succeeded;not null;default:0;check:succeeded >= 0" json:"succeeded"`
	FailedCount       int64          `gorm:"column:failed_count;not null;default:0;check:failed_count >= 0" json:"failed_count"`
	CPUPercent        *float64       `gorm:"column:cpu_percent" json:"cpu_percent,omitempty"`
	MemPercent        *float64       `gorm:"column:mem_percent" json:"mem_percent,omitempty"`
	Capabilities      datatypes.JSON `gorm:"column:capabilities;type:jsonb" json:"capabilities,omitempty"`
	Metadata          datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	Status string `gorm:"column:status;not null;index" json:"status"`

	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	StoppedAt       *time.Time `gorm:"column:stopped_at" json:"stopped_at,omitempty"`
	LastHeartbeatAt *time.Time `gorm:"column:last_heartbeat_at;index" json:"last_heartbeat_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Worker) TableName() string { return "workers" }

// Workflow is a named grouping of jobs for status rollup.
type Workflow struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name        string         `gorm:"column:name;uniqueIndex;not null" json:"name"`
	Description *string        `gorm:"column:description" json:"description,omitempty"`
	Config      datatypes.JSON `gorm:"column:config;type:jsonb" json:"config,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Workflow) TableName() string { return "workflows" }

// WorkflowJob is the many-to-many join between workflows and jobs.
type WorkflowJob struct {
	WorkflowID uuid.UUID `gorm:"type:uuid;column:workflow_id;primaryKey" json:"workflow_id"`
	JobID      uuid.UUID `gorm:"type:uuid;column:job_id;primaryKey" json:"job_id"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

func (WorkflowJob) TableName() string { return "workflow_jobs" }
