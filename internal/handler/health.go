package handler

import (
	"github.com/gin-gonic/gin"

	"viral-clipper/internal/response"
	"viral-clipper/internal/storage"
)

type HealthData struct {
	Status      string `json:"status"`
	JobMode     string `json:"job_mode"`
	PendingJobs int    `json:"pending_jobs"`
	Database    bool   `json:"database"`
}

func (h Handler) Health(c *gin.Context) {
	data := HealthData{Status: "ok", JobMode: "none", Database: storage.DB != nil}
	switch {
	case h.Queue != nil:
		data.JobMode = "queue"
	case h.Runner != nil:
		data.JobMode = "runner"
		data.PendingJobs = h.Runner.Pending()
	}
	response.Success(c, data)
}
