package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"viral-clipper/internal/appcore"
	"viral-clipper/internal/service"
	"viral-clipper/internal/storage"
	"viral-clipper/internal/taskrunner"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

// TaskHandlers runs queued analyses in the worker process.
type TaskHandlers struct {
	analyzer service.Analyzer
	hub      *appcore.EventHub
	notifier *taskrunner.Notifier
}

// NewTaskHandlers creates a new TaskHandlers instance. hub may be nil when
// nobody in this process streams job events.
func NewTaskHandlers(analyzer service.Analyzer, hub *appcore.EventHub) *TaskHandlers {
	return &TaskHandlers{
		analyzer: analyzer,
		hub:      hub,
		notifier: taskrunner.NewNotifier(10*time.Second, 2),
	}
}

// HandleAnalyzeTask processes one analysis. Transient failures are returned
// for asynq to retry; everything else is recorded and archived.
func (h *TaskHandlers) HandleAnalyzeTask(ctx context.Context, t *asynq.Task) error {
	var payload AnalyzePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logger := log.GetLogger().With(zap.String("job_id", payload.JobID))
	logger.Info("[Queue] processing analyze task", zap.String("url", payload.URL))

	record, err := storage.GetJob(payload.JobID)
	if err != nil {
		if !apperrors.Is(err, apperrors.CodeNotFound) {
			return err
		}
		record, err = service.NewJobRecord(appcore.JobRequest{
			ID:        payload.JobID,
			SourceRef: payload.URL,
			Config:    payload.Config,
		})
		if err != nil {
			return err
		}
	}

	result, runErr := h.analyzer.Analyze(ctx, payload.URL, payload.Config, func(stage appcore.JobStage, message string) {
		service.RecordJobStage(payload.JobID, stage)
		h.publish(payload.JobID, stage, message, nil)
	})

	if runErr != nil && apperrors.Retryable(runErr) && willRetry(ctx) {
		logger.Warn("[Queue] retryable failure, task will be retried", zap.String("kind", apperrors.Kind(runErr)), zap.Error(runErr))
		service.RecordJobStage(payload.JobID, appcore.JobStageQueued)
		h.publish(payload.JobID, appcore.JobStageQueued, "retrying after "+apperrors.Kind(runErr), nil)
		return runErr
	}

	stage, _, saveErr := service.RecordJobOutcome(record, result, payload.Config, runErr)
	if saveErr != nil {
		logger.Error("[Queue] failed to persist job outcome", zap.Error(saveErr))
	}
	message := "done"
	if runErr != nil {
		message = runErr.Error()
	}
	h.publish(payload.JobID, stage, message, runErr)

	if payload.CallbackUrl != "" {
		if err := h.notifier.Notify(context.WithoutCancel(ctx), payload.CallbackUrl, service.JobStatus(record)); err != nil {
			logger.Warn("[Queue] callback failed", zap.String("url", payload.CallbackUrl), zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("%v: %w", runErr, asynq.SkipRetry)
	}
	logger.Info("[Queue] analyze task completed", zap.Int("clips", record.ClipsFound))
	return nil
}

var willRetry = retriesLeft

func retriesLeft(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried < maxRetry
}

func (h *TaskHandlers) publish(jobID string, stage appcore.JobStage, message string, err error) {
	if h.hub == nil {
		return
	}
	h.hub.Publish(appcore.JobEvent{
		JobID:      jobID,
		Stage:      stage,
		Message:    message,
		Err:        err,
		OccurredAt: time.Now(),
	})
}

// RegisterHandlers registers all task handlers with the Asynq server mux
func (h *TaskHandlers) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAnalyzeTask, h.HandleAnalyzeTask)
}

// StartWorker starts the Asynq worker in the background. Stop it with Close.
func StartWorker(q *Queue, analyzer service.Analyzer, hub *appcore.EventHub) error {
	handlers := NewTaskHandlers(analyzer, hub)

	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	log.GetLogger().Info("[Queue] starting worker",
		zap.String("redis_addr", q.config.RedisAddr),
		zap.Int("concurrency", q.config.Concurrency))

	return q.server.Start(mux)
}
