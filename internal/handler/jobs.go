package handler

import (
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/appcore"
	"viral-clipper/internal/dto"
	"viral-clipper/internal/response"
	"viral-clipper/internal/service"
	"viral-clipper/internal/storage"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// SubmitJob queues an analysis and returns its job id immediately.
func (h Handler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		log.GetLogger().Error("SubmitJob ShouldBindJSON err", zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "invalid parameters", err))
		return
	}
	req.AnalyzeConfig = req.AnalyzeConfig.WithDefaults()
	if err := dto.Validate(req); err != nil {
		response.ErrorResponse(c, err)
		return
	}
	if req.CallbackUrl == "" {
		req.CallbackUrl = config.Conf.Server.CallbackUrl
	}

	jobReq := appcore.JobRequest{
		SourceRef:   req.Url,
		Config:      req.AnalyzeConfig,
		CallbackUrl: req.CallbackUrl,
		Metadata:    map[string]string{"client_ip": c.ClientIP()},
	}

	var jobID string
	switch {
	case h.Queue != nil:
		id, err := h.Queue.EnqueueAnalyzeTask(c.Request.Context(), jobReq)
		if err != nil {
			response.ErrorResponse(c, err)
			return
		}
		jobID = id
	case h.Runner != nil:
		handle, err := h.Runner.Submit(c.Request.Context(), jobReq)
		if err != nil {
			response.ErrorResponse(c, err)
			return
		}
		jobID = handle.ID()
	default:
		response.ErrorResponse(c, apperrors.New(apperrors.CodeUnknown, "no job runner configured"))
		return
	}

	log.GetLogger().Info("SubmitJob accepted", zap.String("job_id", jobID), zap.String("url", req.Url))
	response.Success(c, dto.SubmitJobResData{JobId: jobID})
}

func (h Handler) GetJob(c *gin.Context) {
	job, err := storage.GetJob(c.Param("jobId"))
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, service.JobStatus(job))
}

// DeleteJob cancels an active job, or removes a finished one together with
// its result file.
func (h Handler) DeleteJob(c *gin.Context) {
	jobID := c.Param("jobId")

	if h.Runner != nil && h.Runner.Active(jobID) {
		if err := h.Runner.Cancel(jobID); err != nil {
			response.ErrorResponse(c, err)
			return
		}
		response.Success(c, gin.H{"job_id": jobID, "canceled": true})
		return
	}

	if _, err := storage.GetJob(jobID); err != nil {
		response.ErrorResponse(c, err)
		return
	}
	if path, ok := resolveResultFile(jobID); ok {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.GetLogger().Error("DeleteJob remove result err", zap.String("path", path), zap.Error(err))
		}
	}
	if err := storage.DeleteJob(jobID); err != nil {
		response.ErrorResponse(c, err)
		return
	}
	h.Hub.Forget(jobID)
	response.Success(c, gin.H{"job_id": jobID, "deleted": true})
}

func (h Handler) GetHistory(c *gin.Context) {
	limit := queryInt(c, "limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := max(queryInt(c, "offset", 0), 0)

	jobs, total, err := storage.GetJobHistory(limit, offset)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	items := lo.Map(jobs, func(j storage.AnalysisJob, _ int) dto.HistoryItem {
		return dto.HistoryItem{
			JobId:      j.JobId,
			SourceUrl:  j.SourceUrl,
			VideoTitle: j.VideoTitle,
			Status:     j.Status,
			ClipsFound: j.ClipsFound,
			CreatedAt:  j.CreatedAt,
		}
	})
	response.Success(c, dto.HistoryResData{Items: items, Total: total})
}

// DownloadResult serves the result file of a finished job.
func (h Handler) DownloadResult(c *gin.Context) {
	jobID := c.Param("jobId")
	path, ok := resolveResultFile(jobID)
	if !ok {
		c.JSON(404, response.FromError(apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "result not found", jobID, nil)))
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.JSON(404, response.FromError(apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "result not found", jobID, err)))
		return
	}
	c.FileAttachment(path, jobID+".json")
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
