// Package queue provides Redis-backed analysis jobs using Asynq.
// Jobs survive server restarts and are retried on transient failures.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/appcore"
	"viral-clipper/internal/dto"
	"viral-clipper/internal/service"
	"viral-clipper/internal/storage"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

// Task type names
const (
	TypeAnalyzeTask = "clipper:analyze"
)

// AnalyzePayload contains the data for one analysis task
type AnalyzePayload struct {
	JobID       string            `json:"job_id"`
	URL         string            `json:"url"`
	Config      dto.AnalyzeConfig `json:"config"`
	CallbackUrl string            `json:"callback_url,omitempty"`
}

// QueueConfig holds Redis configuration for Asynq
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	MaxRetry      int
	Timeout       time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig() QueueConfig {
	return QueueConfig{
		RedisAddr:   "localhost:6379",
		RedisDB:     0,
		Concurrency: 2,
		MaxRetry:    2,
		Timeout:     time.Hour,
	}
}

// ConfigFromApp builds the queue configuration from the loaded app config.
func ConfigFromApp(conf config.Config) QueueConfig {
	cfg := DefaultConfig()
	if conf.Queue.RedisAddr != "" {
		cfg.RedisAddr = conf.Queue.RedisAddr
	}
	cfg.RedisPassword = conf.Queue.RedisPassword
	cfg.RedisDB = conf.Queue.RedisDB
	if conf.Queue.Concurrency > 0 {
		cfg.Concurrency = conf.Queue.Concurrency
	}
	if conf.App.RunTimeoutSec > 0 {
		// leave headroom for result persistence after the run deadline
		cfg.Timeout = time.Duration(conf.App.RunTimeoutSec)*time.Second + time.Minute
	}
	return cfg
}

// Queue manages task enqueueing and processing
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	config QueueConfig
}

// NewQueue creates a new Queue instance
func NewQueue(cfg QueueConfig) *Queue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Exponential backoff: 10s, 20s, 40s, ...
				return time.Duration(10<<uint(n)) * time.Second
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.GetLogger().Error("[Queue] task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	return &Queue{
		client: client,
		server: server,
		config: cfg,
	}
}

// NewAnalyzeTask builds the asynq task for payload. The job id doubles as
// the task id so a job cannot be queued twice.
func NewAnalyzeTask(payload AnalyzePayload, cfg QueueConfig) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeAnalyzeTask, data,
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(cfg.MaxRetry),
		asynq.Timeout(cfg.Timeout),
		asynq.Queue("default"),
	), nil
}

// EnqueueAnalyzeTask records a queued job and hands it to Redis. It returns
// the job id.
func (q *Queue) EnqueueAnalyzeTask(ctx context.Context, req appcore.JobRequest) (string, error) {
	req.SourceRef = strings.TrimSpace(req.SourceRef)
	if req.SourceRef == "" {
		return "", apperrors.New(apperrors.CodeInvalidParams, "source url is required")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Config = req.Config.WithDefaults()
	if err := req.Config.Validate(); err != nil {
		return "", err
	}

	task, err := NewAnalyzeTask(AnalyzePayload{
		JobID:       req.ID,
		URL:         req.SourceRef,
		Config:      req.Config,
		CallbackUrl: req.CallbackUrl,
	}, q.config)
	if err != nil {
		return "", err
	}

	if _, err = service.NewJobRecord(req); err != nil {
		return "", err
	}

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", apperrors.WrapWithDetail(apperrors.CodeInvalidParams, "job already queued", req.ID, err)
		}
		if delErr := storage.DeleteJob(req.ID); delErr != nil {
			log.GetLogger().Warn("[Queue] failed to remove unqueued job", zap.String("job_id", req.ID), zap.Error(delErr))
		}
		return "", apperrors.Wrap(apperrors.CodeUnknown, "failed to enqueue task", err)
	}

	log.GetLogger().Info("[Queue] analyze task enqueued",
		zap.String("job_id", req.ID),
		zap.String("queue_id", info.ID),
		zap.String("queue", info.Queue))

	return req.ID, nil
}

// Close gracefully shuts down the queue
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	q.server.Shutdown()
	return nil
}
