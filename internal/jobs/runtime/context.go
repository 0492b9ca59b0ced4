package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

// JobNotifier receives terminal job transitions. Optional.
type JobNotifier interface {
	JobDone(job *types.JobRun)
	JobFailed(job *types.JobRun, stage string, msg string)
}

/*
Context is the execution handle for a single claimed job run.
Pipelines never touch job_run directly: they read the payload through it and
finish through Fail or Succeed, which refuse to overwrite a canceled row.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    jobrepo.JobRunRepo
	Notify  JobNotifier
	payload map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobrepo.JobRunRepo, notify JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	payload := c.Payload()
	traceID, _ := payload["trace_id"].(string)
	reqID, _ := payload["request_id"].(string)
	if strings.TrimSpace(traceID) == "" && strings.TrimSpace(reqID) == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   strings.TrimSpace(traceID),
		RequestID: strings.TrimSpace(reqID),
	})
}

// Payload returns the decoded payload map. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// Decode unmarshals the raw payload into v.
func (c *Context) Decode(v any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("job has no payload")
	}
	if err := json.Unmarshal(c.Job.Payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (c *Context) Progress(stage string, pct int) {
	if c == nil || c.Job == nil || c.Repo == nil {
		return
	}
	now := time.Now().UTC()
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctxutil.Default(c.Ctx)}, c.Job.ID, []string{jobstatus.StatusCanceled}, map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if !ok {
		return
	}
	c.Job.Stage = stage
	c.Job.Progress = pct
	c.Job.HeartbeatAt = &now
}

// Heartbeat marks the run as alive without touching its stage. Long stages
// call it between units of work so the row is not reclaimed as stale.
func (c *Context) Heartbeat() {
	if c == nil || c.Job == nil || c.Repo == nil {
		return
	}
	if err := c.Repo.Heartbeat(dbctx.Context{Ctx: ctxutil.Default(c.Ctx)}, c.Job.ID); err != nil {
		return
	}
	now := time.Now().UTC()
	c.Job.HeartbeatAt = &now
}

/*
Checkpoint records stage and data on the run once a side effect outside the
database has happened. The data lives in the result column until Succeed
replaces it, so a retried attempt can read it back with Checkpointed and skip
work that must not repeat.
*/
func (c *Context) Checkpoint(stage string, data map[string]any) {
	if c == nil || c.Job == nil || c.Repo == nil {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctxutil.Default(c.Ctx)}, c.Job.ID, []string{jobstatus.StatusCanceled}, map[string]interface{}{
		"stage":        stage,
		"result":       datatypes.JSON(b),
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if !ok {
		return
	}
	c.Job.Stage = stage
	c.Job.Result = datatypes.JSON(b)
	c.Job.HeartbeatAt = &now
}

// Checkpointed returns a string recorded by an earlier Checkpoint, or "".
func (c *Context) Checkpointed(key string) string {
	if c == nil || c.Job == nil || len(c.Job.Result) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Result, &m); err != nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

/*
Fail records an error on the run. The row stays retryable until attempts
reach max_attempts; run_at is pushed out by the row's fixed backoff so the
next claim happens no earlier than that.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	var backoff time.Duration
	if c.Job != nil {
		backoff = time.Duration(c.Job.BackoffMS) * time.Millisecond
	}
	runAt := now.Add(backoff)

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctxutil.Default(c.Ctx)}, c.Job.ID, []string{jobstatus.StatusCanceled}, map[string]interface{}{
			"status":        jobstatus.StatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"run_at":        runAt,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobstatus.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.RunAt = runAt
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctxutil.Default(c.Ctx)}, c.Job.ID, []string{jobstatus.StatusCanceled}, map[string]interface{}{
			"status":       jobstatus.StatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobstatus.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job)
	}
}
