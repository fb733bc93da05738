package repository

import (
	"github.com/classkit/attendancebackend/models"
)

// SessionCounts summarizes detection outcomes written back to a session row.
type SessionCounts struct {
	Detected int
	Matched  int
	Flagged  int
	Ignored  int
}

// SessionRepositoryInterface defines the methods for attendance session data
// operations. The session row is the single write-contended resource; every
// status write here is atomic and the final-status write is idempotent per
// session id.
type SessionRepositoryInterface interface {
	Create(session *models.Session) error
	GetByID(id string) (*models.Session, error)
	// BeginProcessing moves a non-terminal session (back) into PROCESSING,
	// clearing any prior error, counts and detections
	BeginProcessing(id string, startedAt int64) error
	// FinishProcessing writes the terminal pipeline outcome guarded on the
	// session still being in PROCESSING; returns false when a stray
	// duplicate job lost the race
	FinishProcessing(id string, status models.SessionStatus, errMsg *string, counts SessionCounts) (bool, error)
	// Confirm atomically applies detection review updates, upserts the
	// attendance records and flips the session to CONFIRMED
	Confirm(session *models.Session, detections []models.Detection, records []models.AttendanceRecord) error
	CountByStatus(status models.SessionStatus) (int64, error)
}

// DetectionRepositoryInterface defines the methods for detection data operations
type DetectionRepositoryInterface interface {
	CreateBatch(detections []models.Detection) error
	ListBySession(sessionID string) ([]models.Detection, error)
	GetByID(id uint) (*models.Detection, error)
}

// EmbeddingRepositoryInterface defines the methods for reference embedding
// data operations. ListActiveByClass is the engine's safety-critical read:
// it must only ever return active embeddings of students currently assigned
// to the given class.
type EmbeddingRepositoryInterface interface {
	Create(embedding *models.ReferenceEmbedding) error
	GetByID(id uint) (*models.ReferenceEmbedding, error)
	ListActiveByClass(classID uint) ([]models.ReferenceEmbedding, error)
	Deactivate(id uint) error
	CountActive(schoolID *uint) (int64, error)
}

// RosterRepositoryInterface is the read-only seam to the roster service
// (students, classes, memberships owned by the school-management system).
type RosterRepositoryInterface interface {
	GetClass(id uint) (*models.Class, error)
	GetStudent(id uint) (*models.Student, error)
	ListStudentsByClass(classID uint) ([]models.Student, error)
}

// AttendanceRepositoryInterface is the downstream attendance ledger seam:
// one upsert contract per (student, date, status, provenance).
type AttendanceRepositoryInterface interface {
	Upsert(record *models.AttendanceRecord) error
	ListBySession(sessionID string) ([]models.AttendanceRecord, error)
}

// EnrollmentJobRepositoryInterface defines the methods for enrollment job
// handle data operations.
type EnrollmentJobRepositoryInterface interface {
	Create(job *models.EnrollmentJob) error
	GetByID(id string) (*models.EnrollmentJob, error)
	SetProcessing(id string) error
	// SetResult is guarded on the job still being PROCESSING, mirroring the
	// session idempotency rule
	SetResult(id string, status models.EnrollmentJobStatus, errMsg *string, embeddingID *uint) (bool, error)
}
