package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/assistflow-backend/internal/domain"

	"github.com/yungbote/assistflow-backend/internal/http/response"
	"github.com/yungbote/assistflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/assistflow-backend/internal/pkg/errors"
	"github.com/yungbote/assistflow-backend/internal/services"
)

// credentialField is the payload key of an inbound assistant credential.
const credentialField = "assistant_key"

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	companyID, ok := ctxutil.CompanyID(c.Request.Context())
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", apperr.ErrUnauthorized)
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, companyID, jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, apperr.ErrNotFound) {
			status = http.StatusNotFound
		}
		response.RespondError(c, status, "job_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"job": publicJob(job)})
}

// publicJob returns a copy of job whose payload no longer carries the
// assistant credential.
func publicJob(job *types.JobRun) *types.JobRun {
	if job == nil || len(job.Payload) == 0 {
		return job
	}
	var payload map[string]any
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		out := *job
		out.Payload = nil
		return &out
	}
	if _, ok := payload[credentialField]; !ok {
		return job
	}
	delete(payload, credentialField)
	b, err := json.Marshal(payload)
	out := *job
	out.Payload = nil
	if err == nil {
		out.Payload = datatypes.JSON(b)
	}
	return &out
}
