package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/models"
)

// DetectionRepository handles database operations for Detection entities
type DetectionRepository struct {
	DB *gorm.DB
}

// Ensure DetectionRepository implements DetectionRepositoryInterface
var _ DetectionRepositoryInterface = (*DetectionRepository)(nil)

// NewDetectionRepository creates a new instance of DetectionRepository
func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{DB: db}
}

// CreateBatch inserts all detections of one pipeline run
func (r *DetectionRepository) CreateBatch(detections []models.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	now := time.Now().Unix()
	for i := range detections {
		detections[i].CreatedAt = now
		detections[i].UpdatedAt = now
	}
	if err := r.DB.Create(&detections).Error; err != nil {
		return fmt.Errorf("failed to create %d detections: %w", len(detections), err)
	}
	return nil
}

// ListBySession returns a session's detections ordered by face index
func (r *DetectionRepository) ListBySession(sessionID string) ([]models.Detection, error) {
	var detections []models.Detection
	err := r.DB.Where("session_id = ?", sessionID).Order("face_index ASC").Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list detections for session %s: %w", sessionID, err)
	}
	return detections, nil
}

// GetByID retrieves a detection by its ID
func (r *DetectionRepository) GetByID(id uint) (*models.Detection, error) {
	var detection models.Detection
	err := r.DB.First(&detection, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get detection %d: %w", id, err)
	}
	return &detection, nil
}
