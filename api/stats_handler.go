package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aliendabz/evalqueue/stream"
)

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status     string             `json:"status"`
	IsRunning  bool               `json:"is_running"`
	ActiveJobs int                `json:"active_jobs"`
	QueueSize  int                `json:"queue_size"`
	LastActive string             `json:"last_activity,omitempty"`
	Streams    stream.BrokerStats `json:"streams"`
}

func (a *API) stats(c *gin.Context) {
	c.JSON(http.StatusOK, a.eng.GetQueueStats(c.Request.Context()))
}

// health answers 503 while the queue is stopped so load balancers stop
// routing to it.
func (a *API) health(c *gin.Context) {
	h := a.eng.GetHealthStatus()
	resp := HealthResponse{
		Status:     "ok",
		IsRunning:  h.IsRunning,
		ActiveJobs: h.ActiveJobs,
		QueueSize:  h.QueueSize,
		Streams:    a.broker.Stats(),
	}
	if !h.LastActivity.IsZero() {
		resp.LastActive = h.LastActivity.Format(timeFormat)
	}
	status := http.StatusOK
	if !h.IsRunning {
		resp.Status = "stopped"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
