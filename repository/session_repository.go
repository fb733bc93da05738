package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/models"
)

// SessionRepository handles database operations for Session entities
type SessionRepository struct {
	DB *gorm.DB
}

// Ensure SessionRepository implements SessionRepositoryInterface
var _ SessionRepositoryInterface = (*SessionRepository)(nil)

// NewSessionRepository creates a new instance of SessionRepository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Create creates a new session record in the database
func (r *SessionRepository) Create(session *models.Session) error {
	now := time.Now().Unix()
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if err := r.DB.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

// GetByID retrieves a session with its detections
func (r *SessionRepository) GetByID(id string) (*models.Session, error) {
	var session models.Session
	err := r.DB.Preload("Detections", func(db *gorm.DB) *gorm.DB {
		return db.Order("detections.face_index ASC")
	}).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

// BeginProcessing moves a non-terminal session into PROCESSING and clears
// prior pipeline output. Runs in one transaction so a half-cleared session is
// never observable.
func (r *SessionRepository) BeginProcessing(id string, startedAt int64) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Session{}).
			Where("id = ? AND status <> ?", id, models.SessionConfirmed).
			Updates(map[string]interface{}{
				"status":                models.SessionProcessing,
				"processing_started_at": startedAt,
				"error_message":         nil,
				"detected_count":        0,
				"matched_count":         0,
				"flagged_count":         0,
				"ignored_count":         0,
				"updated_at":            time.Now().Unix(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark session %s processing: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Where("session_id = ?", id).Delete(&models.Detection{}).Error; err != nil {
			return fmt.Errorf("failed to clear detections for session %s: %w", id, err)
		}
		return nil
	})
}

// FinishProcessing writes the pipeline outcome. The WHERE guard on PROCESSING
// makes the write idempotent per session id: a stray duplicate job finds the
// session already settled and affects zero rows.
func (r *SessionRepository) FinishProcessing(id string, status models.SessionStatus, errMsg *string, counts SessionCounts) (bool, error) {
	if status != models.SessionNeedsReview && status != models.SessionFailed {
		return false, fmt.Errorf("invalid pipeline outcome status %q for session %s", status, id)
	}

	result := r.DB.Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.SessionProcessing).
		Updates(map[string]interface{}{
			"status":         status,
			"error_message":  errMsg,
			"detected_count": counts.Detected,
			"matched_count":  counts.Matched,
			"flagged_count":  counts.Flagged,
			"ignored_count":  counts.Ignored,
			"updated_at":     time.Now().Unix(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to finish session %s: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Confirm atomically applies the reviewed detection states, upserts the
// attendance records and flips the session to CONFIRMED. Any failure rolls
// everything back so a rejected confirmation has zero side effects.
func (r *SessionRepository) Confirm(session *models.Session, detections []models.Detection, records []models.AttendanceRecord) error {
	now := time.Now().Unix()
	return r.DB.Transaction(func(tx *gorm.DB) error {
		// the status guard repeats inside the transaction so concurrent
		// confirmations cannot both pass the service-level check
		result := tx.Model(&models.Session{}).
			Where("id = ? AND status IN ?", session.ID, []models.SessionStatus{models.SessionNeedsReview, models.SessionFailed}).
			Updates(map[string]interface{}{
				"status":       models.SessionConfirmed,
				"confirmed_by": session.ConfirmedBy,
				"confirmed_at": session.ConfirmedAt,
				"updated_at":   now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to confirm session %s: %w", session.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		for i := range detections {
			d := &detections[i]
			err := tx.Model(&models.Detection{}).
				Where("id = ? AND session_id = ?", d.ID, session.ID).
				Updates(map[string]interface{}{
					"matched_student_id": d.MatchedStudentID,
					"match_status":       d.MatchStatus,
					"updated_at":         now,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update detection %d: %w", d.ID, err)
			}
		}

		for i := range records {
			if err := upsertAttendanceRecord(tx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountByStatus counts sessions in the given state
func (r *SessionRepository) CountByStatus(status models.SessionStatus) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Session{}).Where("status = ?", status).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions by status %s: %w", status, err)
	}
	return count, nil
}
