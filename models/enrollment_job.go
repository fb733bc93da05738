package models

// EnrollmentJobStatus tracks an asynchronous enrollment request.
type EnrollmentJobStatus string

const (
	EnrollmentJobPending    EnrollmentJobStatus = "PENDING"
	EnrollmentJobProcessing EnrollmentJobStatus = "PROCESSING"
	EnrollmentJobCompleted  EnrollmentJobStatus = "COMPLETED"
	EnrollmentJobFailed     EnrollmentJobStatus = "FAILED"
)

// EnrollmentJob is the pollable handle returned by the enroll operation.
// It corresponds to the 'enrollment_jobs' table.
type EnrollmentJob struct {
	ID           string              `gorm:"primaryKey;size:36" json:"id"`
	StudentID    uint                `gorm:"not null;index" json:"student_id"`
	SchoolID     uint                `gorm:"not null;index" json:"school_id"`
	ImageRef     string              `gorm:"not null" json:"image_ref"`
	Status       EnrollmentJobStatus `gorm:"not null;index;default:'PENDING'" json:"status"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	EmbeddingID  *uint               `json:"embedding_id,omitempty"` // set on completion
	CreatedBy    string              `gorm:"not null" json:"created_by"`
	CreatedAt    int64               `gorm:"not null" json:"created_at"`
	UpdatedAt    int64               `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (EnrollmentJob) TableName() string {
	return "enrollment_jobs"
}
