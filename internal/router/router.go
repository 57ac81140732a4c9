package router

import (
	"github.com/gin-gonic/gin"

	"viral-clipper/internal/handler"
)

func SetupRouter(r *gin.Engine, hdl handler.Handler) {
	api := r.Group("/api")
	{
		api.GET("/health", hdl.Health)

		clipper := api.Group("/clipper")
		clipper.POST("/analyze", hdl.Analyze)
		clipper.POST("/jobs", hdl.SubmitJob)
		clipper.GET("/jobs/:jobId", hdl.GetJob)
		clipper.DELETE("/jobs/:jobId", hdl.DeleteJob)
		clipper.GET("/jobs/:jobId/events", hdl.JobEvents)
		clipper.GET("/jobs/:jobId/result", hdl.DownloadResult)
		clipper.GET("/history", hdl.GetHistory)

		// Cookie Management Routes
		api.GET("/cookie/status", hdl.GetCookieStatus)
		api.POST("/cookie/upload", hdl.UploadCookie)
		api.POST("/cookie/validate", hdl.ValidateCookie)
	}
}
