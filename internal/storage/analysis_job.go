package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"viral-clipper/internal/appcore"
	apperrors "viral-clipper/pkg/errors"
)

// AnalysisJob is the persisted record of one asynchronous analysis.
type AnalysisJob struct {
	Id         uint   `gorm:"primaryKey"`
	JobId      string `gorm:"uniqueIndex;size:64"`
	SourceUrl  string
	VideoTitle string
	Config     string
	Status     string `gorm:"index;size:16"`
	ErrorCode  int
	ErrorKind  string
	ErrorStage string
	ErrorMsg   string
	ClipsFound int
	Result     string
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

var activeStatuses = []string{
	appcore.JobStageQueued.String(),
	appcore.JobStageAcquiring.String(),
	appcore.JobStageTranscribing.String(),
	appcore.JobStageAnalyzing.String(),
}

func SaveJob(job *AnalysisJob) error {
	if err := checkDB(); err != nil {
		return err
	}
	var existing AnalysisJob
	result := DB.Where("job_id = ?", job.JobId).First(&existing)
	switch {
	case result.Error == nil:
		job.Id = existing.Id
		job.CreatedAt = existing.CreatedAt
		return wrapDB(DB.Save(job).Error)
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		return wrapDB(DB.Create(job).Error)
	default:
		return wrapDB(result.Error)
	}
}

// UpdateJobStatus changes only the status column of a job.
func UpdateJobStatus(jobId, status string) error {
	if err := checkDB(); err != nil {
		return err
	}
	result := DB.Model(&AnalysisJob{}).Where("job_id = ?", jobId).Update("status", status)
	if result.Error != nil {
		return wrapDB(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.WrapWithDetail(apperrors.CodeNotFound, "job not found", jobId, nil)
	}
	return nil
}

func GetJob(jobId string) (*AnalysisJob, error) {
	if err := checkDB(); err != nil {
		return nil, err
	}
	var job AnalysisJob
	if err := DB.Where("job_id = ?", jobId).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WrapWithDetail(apperrors.CodeNotFound, "job not found", jobId, err)
		}
		return nil, wrapDB(err)
	}
	return &job, nil
}

// GetJobHistory returns jobs newest first together with the total count.
func GetJobHistory(limit, offset int) ([]AnalysisJob, int64, error) {
	if err := checkDB(); err != nil {
		return nil, 0, err
	}
	var total int64
	if err := DB.Model(&AnalysisJob{}).Count(&total).Error; err != nil {
		return nil, 0, wrapDB(err)
	}
	var jobs []AnalysisJob
	err := DB.Omit("result").Order("created_at desc").Order("id desc").Limit(limit).Offset(offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, wrapDB(err)
	}
	return jobs, total, nil
}

func DeleteJob(jobId string) error {
	if err := checkDB(); err != nil {
		return err
	}
	return wrapDB(DB.Where("job_id = ?", jobId).Delete(&AnalysisJob{}).Error)
}

// MarkStaleJobs fails every job left unfinished by a previous process.
// Call it once at startup before workers run.
func MarkStaleJobs() (int64, error) {
	if err := checkDB(); err != nil {
		return 0, err
	}
	result := DB.Model(&AnalysisJob{}).
		Where("status IN ?", activeStatuses).
		Updates(map[string]interface{}{
			"status":     appcore.JobStageFailed.String(),
			"error_code": apperrors.CodeCanceled,
			"error_kind": "Canceled",
			"error_msg":  "Job interrupted by server restart",
		})
	return result.RowsAffected, wrapDB(result.Error)
}

func wrapDB(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.CodeDBError, "database error", err)
}
