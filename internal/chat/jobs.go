package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type JobRepo struct {
	db *gorm.DB
}

func NewJobRepo(db *gorm.DB) *JobRepo {
	return &JobRepo{db: db}
}

// Get without a user scope is for the worker, which only knows the job id.
func (r *JobRepo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, storageErr("get job", err)
	}
	return &j, nil
}

func (r *JobRepo) GetForUser(ctx context.Context, userID uint64, id string) (*Job, error) {
	var j Job
	err := r.db.WithContext(ctx).First(&j, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, storageErr("get job", err)
	}
	return &j, nil
}

// CreateOrGetExisting inserts job unless (user_id, idempotency_key) is
// already taken, in which case the earlier job is returned with created=false.
func (r *JobRepo) CreateOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey != nil && *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}
	if job.IdempotencyKey == nil {
		return nil, false, storageErr("create job", err)
	}

	var existing Job
	getErr := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", job.UserID, *job.IdempotencyKey).
		First(&existing).Error
	if getErr == nil {
		return &existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, storageErr("create job", err)
	}
	return nil, false, storageErr("get job by idempotency key", getErr)
}

// MarkRunning only moves queued jobs; it reports whether this caller won.
func (r *JobRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	if res.Error != nil {
		return false, storageErr("mark job running", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *JobRepo) MarkSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
	return storageErr("mark job succeeded", err)
}

func (r *JobRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
	return storageErr("mark job failed", err)
}
