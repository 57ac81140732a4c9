package appcore

import (
	"context"
	"time"

	"viral-clipper/internal/dto"
	"viral-clipper/internal/types"
)

type JobRequest struct {
	ID          string
	SourceRef   string
	Config      dto.AnalyzeConfig
	CallbackUrl string
	Metadata    map[string]string
}

type JobStage uint8

const (
	JobStageQueued JobStage = iota + 1
	JobStageAcquiring
	JobStageTranscribing
	JobStageAnalyzing
	JobStageSucceeded
	JobStageFailed
	JobStageCanceled
)

func (s JobStage) String() string {
	switch s {
	case JobStageQueued:
		return "queued"
	case JobStageAcquiring:
		return "acquiring"
	case JobStageTranscribing:
		return "transcribing"
	case JobStageAnalyzing:
		return "analyzing"
	case JobStageSucceeded:
		return "succeeded"
	case JobStageFailed:
		return "failed"
	case JobStageCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s JobStage) IsTerminal() bool {
	return s == JobStageSucceeded || s == JobStageFailed || s == JobStageCanceled
}

// ParseJobStage is the inverse of String. Unknown names yield 0.
func ParseJobStage(name string) JobStage {
	for s := JobStageQueued; s <= JobStageCanceled; s++ {
		if s.String() == name {
			return s
		}
	}
	return 0
}

type JobProgress struct {
	Stage     JobStage
	Current   int64
	Total     int64
	Percent   float64
	Message   string
	UpdatedAt time.Time
}

type JobEvent struct {
	JobID      string
	Stage      JobStage
	Progress   *JobProgress
	Message    string
	Err        error
	OccurredAt time.Time
}

type JobResult struct {
	JobID      string
	Stage      JobStage
	OutputPath string
	Result     *types.RankedResult
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type JobHandle interface {
	ID() string
	Events() <-chan JobEvent
	Result() <-chan JobResult
	Cancel() error
}

type Runner interface {
	Submit(ctx context.Context, req JobRequest) (JobHandle, error)
}
