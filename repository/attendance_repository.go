package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classkit/attendancebackend/models"
)

// AttendanceRepository is the downstream attendance ledger. The engine writes
// through a single upsert contract keyed on (student, date).
type AttendanceRepository struct {
	DB *gorm.DB
}

// Ensure AttendanceRepository implements AttendanceRepositoryInterface
var _ AttendanceRepositoryInterface = (*AttendanceRepository)(nil)

// NewAttendanceRepository creates a new instance of AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

// Upsert creates or replaces the attendance record for (student, date)
func (r *AttendanceRepository) Upsert(record *models.AttendanceRecord) error {
	return upsertAttendanceRecord(r.DB, record)
}

// upsertAttendanceRecord is the single (student, date) upsert. Confirmation
// calls it inside the session transaction; the standalone Upsert uses the
// root handle.
func upsertAttendanceRecord(db *gorm.DB, record *models.AttendanceRecord) error {
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"class_id", "school_id", "status", "source", "session_id", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert attendance record for student %d on %s: %w", record.StudentID, record.Date, err)
	}
	return nil
}

// ListBySession returns the records a confirmed session produced
func (r *AttendanceRepository) ListBySession(sessionID string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := r.DB.Where("session_id = ?", sessionID).Order("student_id ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records for session %s: %w", sessionID, err)
	}
	return records, nil
}
