package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/models"
)

// EmbeddingRepository handles database operations for ReferenceEmbedding
// entities.
type EmbeddingRepository struct {
	DB *gorm.DB
}

// Ensure EmbeddingRepository implements EmbeddingRepositoryInterface
var _ EmbeddingRepositoryInterface = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new instance of EmbeddingRepository
func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{DB: db}
}

// Create stores a new reference embedding
func (r *EmbeddingRepository) Create(embedding *models.ReferenceEmbedding) error {
	now := time.Now().Unix()
	if embedding.CreatedAt == 0 {
		embedding.CreatedAt = now
	}
	embedding.UpdatedAt = now

	if err := r.DB.Create(embedding).Error; err != nil {
		return fmt.Errorf("failed to create reference embedding for student %d: %w", embedding.StudentID, err)
	}
	return nil
}

// GetByID retrieves a reference embedding by its ID
func (r *EmbeddingRepository) GetByID(id uint) (*models.ReferenceEmbedding, error) {
	var embedding models.ReferenceEmbedding
	err := r.DB.First(&embedding, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get reference embedding %d: %w", id, err)
	}
	return &embedding, nil
}

// ListActiveByClass is the matching read path. It joins through the class
// membership table so the result can only contain active embeddings of
// students currently assigned to the given class — never a school-wide or
// global list filtered afterward. A leak here would mark a student present
// in the wrong class, so this stays one explicit, auditable query.
func (r *EmbeddingRepository) ListActiveByClass(classID uint) ([]models.ReferenceEmbedding, error) {
	var embeddings []models.ReferenceEmbedding
	err := r.DB.
		Joins("JOIN class_memberships ON class_memberships.student_id = reference_embeddings.student_id").
		Joins("JOIN students ON students.id = reference_embeddings.student_id").
		Where("class_memberships.class_id = ?", classID).
		Where("students.is_active = ?", true).
		Where("reference_embeddings.is_active = ?", true).
		Find(&embeddings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active embeddings for class %d: %w", classID, err)
	}
	return embeddings, nil
}

// Deactivate soft-disables an embedding. The row survives for the audit
// trail; every matching read filters on is_active, so the very next run
// excludes it.
func (r *EmbeddingRepository) Deactivate(id uint) error {
	result := r.DB.Model(&models.ReferenceEmbedding{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate reference embedding %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountActive counts live embeddings, optionally scoped to one school
func (r *EmbeddingRepository) CountActive(schoolID *uint) (int64, error) {
	query := r.DB.Model(&models.ReferenceEmbedding{}).Where("is_active = ?", true)
	if schoolID != nil {
		query = query.Where("school_id = ?", *schoolID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count active embeddings: %w", err)
	}
	return count, nil
}
