package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
)

// SubmitRequest is the body of POST /v1/jobs.
type SubmitRequest struct {
	ProjectID string             `json:"project_id"`
	Code      string             `json:"code"`
	Language  string             `json:"language"`
	Priority  evalqueue.Priority `json:"priority"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	Context   map[string]any     `json:"context,omitempty"`
}

func (a *API) submitJob(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	j, err := a.eng.AddToQueue(c.Request.Context(), req.ProjectID, c.GetHeader(HeaderUserID), job.Submission{
		Code:     req.Code,
		Language: req.Language,
		Metadata: req.Metadata,
		Context:  req.Context,
	}, req.Priority)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (a *API) getJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	j, found := a.eng.GetQueueItem(c.Request.Context(), jobID)
	if !found {
		abortWithError(c, http.StatusNotFound, evalqueue.ErrJobNotFound)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) cancelJob(c *gin.Context) {
	a.transition(c, a.eng.CancelQueueItem)
}

func (a *API) retryJob(c *gin.Context) {
	a.transition(c, a.eng.RetryQueueItem)
}

// transition runs a cancel or retry. An ineligible job is a 409, as is
// an unknown one: neither operation says which.
func (a *API) transition(c *gin.Context, op func(ctx context.Context, jobID id.JobID, userID string) bool) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	userID := c.GetHeader(HeaderUserID)
	if userID == "" {
		abortWithError(c, http.StatusUnauthorized, evalqueue.ErrMissingUser)
		return
	}
	if !op(c.Request.Context(), jobID, userID) {
		c.JSON(http.StatusConflict, OKResponse{OK: false})
		return
	}
	c.JSON(http.StatusOK, OKResponse{OK: true})
}

func (a *API) listUserJobs(c *gin.Context) {
	jobs := a.eng.GetUserQueueItems(c.Request.Context(), c.Param("userId"))
	if jobs == nil {
		jobs = []*job.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func parseJobID(c *gin.Context) (id.JobID, bool) {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid job ID: %w", err))
		return id.Nil, false
	}
	return jobID, true
}
