package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"viral-clipper/internal/dto"
	"viral-clipper/internal/response"
	"viral-clipper/internal/service"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

// Analyze runs the pipeline synchronously and returns the ranked clips.
func (h Handler) Analyze(c *gin.Context) {
	var req dto.AnalyzeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		log.GetLogger().Error("Analyze ShouldBindJSON err", zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "invalid parameters", err))
		return
	}
	req.AnalyzeConfig = req.AnalyzeConfig.WithDefaults()
	if err := dto.Validate(req); err != nil {
		response.ErrorResponse(c, err)
		return
	}
	log.GetLogger().Info("Analyze received request",
		zap.String("url", req.Url),
		zap.Int("max_clips", req.MaxClips),
		zap.String("whisper_model", req.WhisperModel))

	result, err := h.Analyzer.Analyze(c.Request.Context(), req.Url, req.AnalyzeConfig, nil)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, service.BuildResponse(result, req.IncludeTranscript))
}
