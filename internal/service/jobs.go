package service

import (
	"encoding/json"

	"go.uber.org/zap"

	"viral-clipper/internal/appcore"
	"viral-clipper/internal/dto"
	"viral-clipper/internal/storage"
	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

// NewJobRecord persists a queued job for req.
func NewJobRecord(req appcore.JobRequest) (*storage.AnalysisJob, error) {
	cfg, err := json.Marshal(req.Config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidParams, "encode job config", err)
	}
	job := &storage.AnalysisJob{
		JobId:     req.ID,
		SourceUrl: req.SourceRef,
		Config:    string(cfg),
		Status:    appcore.JobStageQueued.String(),
	}
	if err = storage.SaveJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// RecordJobStage stores a job's progress. Failures are logged only.
func RecordJobStage(jobID string, stage appcore.JobStage) {
	if err := storage.UpdateJobStatus(jobID, stage.String()); err != nil {
		log.GetLogger().Warn("failed to record job stage",
			zap.String("job_id", jobID),
			zap.String("stage", stage.String()),
			zap.Error(err))
	}
}

// RecordJobOutcome stores the terminal state of job. On success the response
// is also written to the job's result file, whose path is returned.
func RecordJobOutcome(job *storage.AnalysisJob, result *types.RankedResult, cfg dto.AnalyzeConfig, runErr error) (appcore.JobStage, string, error) {
	stage := appcore.JobStageSucceeded
	var outputPath string

	if runErr != nil {
		stage = appcore.JobStageFailed
		if apperrors.Is(runErr, apperrors.CodeCanceled) {
			stage = appcore.JobStageCanceled
		}
		job.ErrorCode = apperrors.GetCode(runErr)
		job.ErrorKind = apperrors.Kind(runErr)
		job.ErrorStage = apperrors.GetStage(runErr)
		job.ErrorMsg = runErr.Error()
	} else {
		res := BuildResponse(result, cfg.IncludeTranscript)
		data, err := json.Marshal(res)
		if err != nil {
			return appcore.JobStageFailed, "", apperrors.Wrap(apperrors.CodeUnknown, "encode result", err)
		}
		job.Result = string(data)
		job.VideoTitle = res.VideoTitle
		job.ClipsFound = res.ViralClipsFound

		if path, err := ResolveResultPath(job.JobId); err != nil {
			log.GetLogger().Warn("no result path for job", zap.String("job_id", job.JobId), zap.Error(err))
		} else if err = WriteResult(path, res); err != nil {
			log.GetLogger().Warn("failed to write result file", zap.String("job_id", job.JobId), zap.Error(err))
		} else {
			outputPath = path
		}
	}

	job.Status = stage.String()
	return stage, outputPath, storage.SaveJob(job)
}

// JobStatus converts a stored job to its API shape.
func JobStatus(job *storage.AnalysisJob) dto.JobStatusData {
	data := dto.JobStatusData{
		JobId:     job.JobId,
		SourceUrl: job.SourceUrl,
		Status:    job.Status,
		Stage:     job.ErrorStage,
		ErrorKind: job.ErrorKind,
		ErrorMsg:  job.ErrorMsg,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Result != "" {
		var res dto.AnalyzeResult
		if err := json.Unmarshal([]byte(job.Result), &res); err != nil {
			log.GetLogger().Warn("stored result unreadable", zap.String("job_id", job.JobId), zap.Error(err))
		} else {
			data.Result = &res
		}
	}
	return data
}

// JobConfig decodes the settings a job was submitted with.
func JobConfig(job *storage.AnalysisJob) dto.AnalyzeConfig {
	var cfg dto.AnalyzeConfig
	if job.Config != "" {
		if err := json.Unmarshal([]byte(job.Config), &cfg); err != nil {
			log.GetLogger().Warn("stored job config unreadable, using defaults",
				zap.String("job_id", job.JobId), zap.Error(err))
			cfg = dto.AnalyzeConfig{}
		}
	}
	return cfg.WithDefaults()
}
