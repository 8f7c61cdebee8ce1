// Package executor implements the job executor (C8): driving one claimed
// job through RUNNING->(SUCCESS|FAILED) with timeout handling, result/
// error writeback, and timestamp bookkeeping. It does not decide
// retries; see retrylayer.go for the outer layer that does.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/core/jobstate"
	"github.com/schedora/engine/internal/handler"
	"github.com/schedora/engine/internal/pkg/pointers"
	"github.com/schedora/engine/internal/platform/ctxutil"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/store/gormstore"
)

// Executor drives a single claimed job to completion.
type Executor struct {
	jobs     gormstore.JobRepo
	registry *handler.Registry
	log      *logger.Logger
}

// New constructs an Executor.
func New(jobs gormstore.JobRepo, registry *handler.Registry, baseLog *logger.Logger) *Executor {
	return &Executor{jobs: jobs, registry: registry, log: baseLog.With("component", "Executor")}
}

// errorDetails is the structured shape written to Job.ErrorDetails.
type errorDetails struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Execute runs job to completion, writing every observed transition and
// the eventual result or error back to the durable store.
func (e *Executor) Execute(ctx context.Context, job *gormstore.Job) error {
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RequestID: job.ID.String()})

	if job.Status != string(jobstate.Running) {
		if err := jobstate.ValidateTransition(jobstate.Status(job.Status), jobstate.Running); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := e.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
			"status":     string(jobstate.Running),
			"started_at": now,
		}); err != nil {
			return err
		}
		job.Status = string(jobstate.Running)
		job.StartedAt = pointers.Ptr(now)
	}

	h, ok := e.registry.Get(job.Type)
	if !ok {
		return e.fail(ctx, job, "handler_missing", engineerr.ErrHandlerMissing.Error())
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if job.TimeoutSeconds != nil && *job.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(*job.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	payload, err := decodePayload(job.Payload)
	if err != nil {
		return e.fail(ctx, job, "bad_payload", err.Error())
	}

	resultCh := make(chan handlerOutcome, 1)
	go func() {
		result, runErr := h.Run(runCtx, payload)
		resultCh <- handlerOutcome{result: result, err: runErr}
	}()

	select {
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			return e.fail(ctx, job, "timeout", engineerr.ErrHandlerTimeout.Error())
		}
		return e.fail(ctx, job, "canceled", runCtx.Err().Error())
	case outcome := <-resultCh:
		if outcome.err != nil {
			return e.fail(ctx, job, "handler_failure", outcome.err.Error())
		}
		return e.succeed(ctx, job, outcome.result)
	}
}

type handlerOutcome struct {
	result handler.Result
	err    error
}

func (e *Executor) succeed(ctx context.Context, job *gormstore.Job, result handler.Result) error {
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), jobstate.Success); err != nil {
		return err
	}
	resultJSON, err := encodeResult(result)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := e.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
		"status":       string(jobstate.Success),
		"completed_at": now,
		"result":       resultJSON,
	}); err != nil {
		return err
	}
	job.Status = string(jobstate.Success)
	job.CompletedAt = pointers.Ptr(now)
	job.Result = resultJSON
	return nil
}

func (e *Executor) fail(ctx context.Context, job *gormstore.Job, kind, detail string) error {
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), jobstate.Failed); err != nil {
		return err
	}
	details := errorDetails{Kind: kind, Detail: detail}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	msg := kind + ": " + detail
	if err := e.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
		"status":        string(jobstate.Failed),
		"completed_at":  now,
		"error_message": msg,
		"error_details": datatypes.JSON(detailsJSON),
	}); err != nil {
		return err
	}
	job.Status = string(jobstate.Failed)
	job.CompletedAt = pointers.Ptr(now)
	job.ErrorMessage = pointers.Ptr(msg)
	job.ErrorDetails = datatypes.JSON(detailsJSON)
	if td := ctxutil.GetTraceData(ctx); td != nil {
		e.log.Warn("job failed", "job_id", job.ID, "job_type", job.Type, "kind", kind, "request_id", td.RequestID)
	} else {
		e.log.Warn("job failed", "job_id", job.ID, "job_type", job.Type, "kind", kind)
	}
	return nil
}

func decodePayload(raw datatypes.JSON) (handler.Payload, error) {
	if len(raw) == 0 {
		return handler.Payload{}, nil
	}
	var p handler.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func encodeResult(result handler.Result) (datatypes.JSON, error) {
	if result == nil {
		return datatypes.JSON([]byte("null")), nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
