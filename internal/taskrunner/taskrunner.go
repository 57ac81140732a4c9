package taskrunner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"viral-clipper/internal/appcore"
	"viral-clipper/internal/service"
	"viral-clipper/internal/storage"
	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

const (
	defaultQueueSize       = 128
	defaultConcurrency     = 2
	defaultCallbackTimeout = 10 * time.Second
)

var ErrRunnerStopped = errors.New("task runner stopped")

// Config controls in-process task runner behavior.
type Config struct {
	QueueSize       int
	Concurrency     int
	CallbackTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:       defaultQueueSize,
		Concurrency:     defaultConcurrency,
		CallbackTimeout: defaultCallbackTimeout,
	}
}

// job is the runner's JobHandle.
type job struct {
	req         appcore.JobRequest
	record      *storage.AnalysisJob
	ctx         context.Context
	cancel      context.CancelFunc
	events      <-chan appcore.JobEvent
	unsubscribe func()
	result      chan appcore.JobResult
}

func (j *job) ID() string                       { return j.req.ID }
func (j *job) Events() <-chan appcore.JobEvent  { return j.events }
func (j *job) Result() <-chan appcore.JobResult { return j.result }
func (j *job) Cancel() error                    { j.cancel(); return nil }

// Runner executes analysis jobs with in-memory workers. Job state is
// persisted to storage and every stage change is published to the hub.
type Runner struct {
	analyzer service.Analyzer
	hub      *appcore.EventHub
	notifier *Notifier
	config   Config

	queue  chan *job
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job

	workerWg sync.WaitGroup
	closed   atomic.Bool
}

var _ appcore.Runner = (*Runner)(nil)

// New creates and starts a task runner.
func New(analyzer service.Analyzer, hub *appcore.EventHub, cfg Config) *Runner {
	if hub == nil {
		hub = appcore.NewEventHub(16)
	}
	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	runner := &Runner{
		analyzer: analyzer,
		hub:      hub,
		notifier: NewNotifier(cfg.CallbackTimeout, 2),
		config:   cfg,
		queue:    make(chan *job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*job),
	}

	for i := 0; i < cfg.Concurrency; i++ {
		runner.workerWg.Add(1)
		go runner.worker(i + 1)
	}

	return runner
}

func normalizeConfig(cfg Config) Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = defaultCallbackTimeout
	}
	return cfg
}

// Hub returns the event hub jobs publish to.
func (r *Runner) Hub() *appcore.EventHub {
	return r.hub
}

// Submit records and queues an analysis job. The job runs detached from ctx;
// use the handle or Cancel to stop it.
func (r *Runner) Submit(ctx context.Context, req appcore.JobRequest) (appcore.JobHandle, error) {
	if r.closed.Load() {
		return nil, ErrRunnerStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCanceled, "submit canceled", err)
	}

	req.SourceRef = strings.TrimSpace(req.SourceRef)
	if req.SourceRef == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "source url is required")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Config = req.Config.WithDefaults()
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	record, err := service.NewJobRecord(req)
	if err != nil {
		return nil, err
	}

	jobCtx, jobCancel := context.WithCancel(r.ctx)
	events, unsubscribe := r.hub.Subscribe(req.ID)
	j := &job{
		req:         req,
		record:      record,
		ctx:         jobCtx,
		cancel:      jobCancel,
		events:      events,
		unsubscribe: unsubscribe,
		result:      make(chan appcore.JobResult, 1),
	}

	// closed is re-checked under mu so Close never misses a queued job
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		r.reject(j)
		return nil, ErrRunnerStopped
	}
	r.jobs[req.ID] = j
	r.publish(req.ID, appcore.JobStageQueued, "waiting for a worker", nil)
	select {
	case r.queue <- j:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		r.reject(j)
		return nil, apperrors.ErrQueueFull
	}

	log.GetLogger().Info("[TaskRunner] job submitted",
		zap.String("job_id", req.ID),
		zap.String("source", req.SourceRef))
	return j, nil
}

// Cancel stops a queued or running job.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return apperrors.WrapWithDetail(apperrors.CodeNotFound, "no active job", jobID, nil)
	}
	log.GetLogger().Info("[TaskRunner] cancel requested", zap.String("job_id", jobID))
	return j.Cancel()
}

// Active reports whether jobID is queued or running in this process.
func (r *Runner) Active(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[jobID]
	return ok
}

// reject forgets a job that never reached the queue.
func (r *Runner) reject(j *job) {
	r.mu.Lock()
	delete(r.jobs, j.req.ID)
	r.mu.Unlock()
	j.cancel()
	j.unsubscribe()
	r.hub.Forget(j.req.ID)
	if err := storage.DeleteJob(j.req.ID); err != nil {
		log.GetLogger().Warn("[TaskRunner] failed to remove rejected job", zap.String("job_id", j.req.ID), zap.Error(err))
	}
}

func (r *Runner) worker(workerID int) {
	defer r.workerWg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		select {
		case <-r.ctx.Done():
			return
		case j := <-r.queue:
			r.processJob(workerID, j)
		}
	}
}

func (r *Runner) processJob(workerID int, j *job) {
	started := time.Now()
	var (
		result *types.RankedResult
		err    error
	)

	if j.ctx.Err() != nil {
		err = apperrors.Wrap(apperrors.CodeCanceled, "job canceled before start", j.ctx.Err())
	} else {
		log.GetLogger().Info("[TaskRunner] job started",
			zap.Int("worker_id", workerID),
			zap.String("job_id", j.req.ID))
		result, err = r.analyzer.Analyze(j.ctx, j.req.SourceRef, j.req.Config, func(stage appcore.JobStage, message string) {
			service.RecordJobStage(j.req.ID, stage)
			r.publish(j.req.ID, stage, message, nil)
		})
	}

	r.finish(j, result, err, started)
}

func (r *Runner) finish(j *job, result *types.RankedResult, runErr error, started time.Time) {
	stage, outputPath, saveErr := service.RecordJobOutcome(j.record, result, j.req.Config, runErr)
	if saveErr != nil {
		log.GetLogger().Error("[TaskRunner] failed to persist job outcome",
			zap.String("job_id", j.req.ID),
			zap.Error(saveErr))
	}

	r.mu.Lock()
	delete(r.jobs, j.req.ID)
	r.mu.Unlock()

	message := "done"
	if runErr != nil {
		message = runErr.Error()
		log.GetLogger().Error("[TaskRunner] job failed",
			zap.String("job_id", j.req.ID),
			zap.String("kind", apperrors.Kind(runErr)),
			zap.Error(runErr))
	} else {
		log.GetLogger().Info("[TaskRunner] job completed",
			zap.String("job_id", j.req.ID),
			zap.Int("clips", len(result.Clips)),
			zap.Duration("elapsed", time.Since(started)))
	}
	r.publish(j.req.ID, stage, message, runErr)

	j.result <- appcore.JobResult{
		JobID:      j.req.ID,
		Stage:      stage,
		OutputPath: outputPath,
		Result:     result,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Err:        runErr,
	}
	close(j.result)
	j.cancel()
	j.unsubscribe()

	if j.req.CallbackUrl != "" {
		if err := r.notifier.Notify(context.Background(), j.req.CallbackUrl, service.JobStatus(j.record)); err != nil {
			log.GetLogger().Warn("[TaskRunner] callback failed",
				zap.String("job_id", j.req.ID),
				zap.String("url", j.req.CallbackUrl),
				zap.Error(err))
		}
	}
}

func (r *Runner) publish(jobID string, stage appcore.JobStage, message string, err error) {
	r.hub.Publish(appcore.JobEvent{
		JobID:      jobID,
		Stage:      stage,
		Message:    message,
		Err:        err,
		OccurredAt: time.Now(),
	})
}

// Close stops workers and rejects new jobs. Jobs still queued finish as
// canceled.
func (r *Runner) Close() {
	r.mu.Lock()
	stopping := r.closed.CompareAndSwap(false, true)
	r.mu.Unlock()
	if !stopping {
		return
	}

	r.cancel()
	r.workerWg.Wait()

	for {
		select {
		case j := <-r.queue:
			r.finish(j, nil, apperrors.Wrap(apperrors.CodeCanceled, "runner stopped", context.Canceled), time.Now())
		default:
			return
		}
	}
}

// Pending returns the number of queued jobs waiting for workers.
func (r *Runner) Pending() int {
	return len(r.queue)
}
