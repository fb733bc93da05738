package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/models"
)

// EnrollmentJobRepository handles database operations for EnrollmentJob
// entities.
type EnrollmentJobRepository struct {
	DB *gorm.DB
}

// Ensure EnrollmentJobRepository implements EnrollmentJobRepositoryInterface
var _ EnrollmentJobRepositoryInterface = (*EnrollmentJobRepository)(nil)

// NewEnrollmentJobRepository creates a new instance of EnrollmentJobRepository
func NewEnrollmentJobRepository(db *gorm.DB) *EnrollmentJobRepository {
	return &EnrollmentJobRepository{DB: db}
}

// Create creates a new enrollment job record
func (r *EnrollmentJobRepository) Create(job *models.EnrollmentJob) error {
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := r.DB.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create enrollment job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID retrieves an enrollment job by its ID
func (r *EnrollmentJobRepository) GetByID(id string) (*models.EnrollmentJob, error) {
	var job models.EnrollmentJob
	err := r.DB.First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get enrollment job %s: %w", id, err)
	}
	return &job, nil
}

// SetProcessing moves a pending job into PROCESSING
func (r *EnrollmentJobRepository) SetProcessing(id string) error {
	result := r.DB.Model(&models.EnrollmentJob{}).
		Where("id = ? AND status = ?", id, models.EnrollmentJobPending).
		Updates(map[string]interface{}{
			"status":     models.EnrollmentJobProcessing,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark enrollment job %s processing: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetResult writes the job outcome, guarded on the job still running
func (r *EnrollmentJobRepository) SetResult(id string, status models.EnrollmentJobStatus, errMsg *string, embeddingID *uint) (bool, error) {
	if status != models.EnrollmentJobCompleted && status != models.EnrollmentJobFailed {
		return false, fmt.Errorf("invalid enrollment job outcome status %q for job %s", status, id)
	}

	result := r.DB.Model(&models.EnrollmentJob{}).
		Where("id = ? AND status = ?", id, models.EnrollmentJobProcessing).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"embedding_id":  embeddingID,
			"updated_at":    time.Now().Unix(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to set enrollment job %s result: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}
