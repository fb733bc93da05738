package models

// SessionStatus is the persisted state of an attendance session's state machine.
type SessionStatus string

const (
	SessionUploading   SessionStatus = "UPLOADING"
	SessionProcessing  SessionStatus = "PROCESSING"
	SessionNeedsReview SessionStatus = "NEEDS_REVIEW"
	SessionFailed      SessionStatus = "FAILED"
	SessionConfirmed   SessionStatus = "CONFIRMED"
)

// ThresholdSnapshot is the matching configuration copied into a session when its
// processing job is dispatched. Later changes to the global configuration never
// alter the classification of an already-processed session.
type ThresholdSnapshot struct {
	HighThreshold   float64 `gorm:"not null;column:threshold_high" json:"high_threshold"`
	MediumThreshold float64 `gorm:"not null;column:threshold_medium" json:"medium_threshold"`
	Version         string  `gorm:"not null;column:threshold_version" json:"version"`
}

// Session represents one classroom-photo attendance run.
// It corresponds to the 'attendance_sessions' table and owns its detections.
type Session struct {
	ID           string        `gorm:"primaryKey;size:36" json:"id"`
	SchoolID     uint          `gorm:"not null;index" json:"school_id"`
	ClassID      uint          `gorm:"not null;index" json:"class_id"`
	Date         string        `gorm:"not null;index;size:10" json:"date"` // YYYY-MM-DD
	Status       SessionStatus `gorm:"not null;index;default:'UPLOADING'" json:"status"`
	ErrorMessage *string       `gorm:"column:error_message" json:"error_message,omitempty"`
	ImageRef     string        `gorm:"not null" json:"image_ref"`

	DetectedCount int `gorm:"not null;default:0" json:"detected_count"`
	MatchedCount  int `gorm:"not null;default:0" json:"matched_count"`
	FlaggedCount  int `gorm:"not null;default:0" json:"flagged_count"`
	IgnoredCount  int `gorm:"not null;default:0" json:"ignored_count"`

	Thresholds ThresholdSnapshot `gorm:"embedded" json:"thresholds"`

	CreatedBy           string  `gorm:"not null" json:"created_by"`
	ConfirmedBy         *string `json:"confirmed_by,omitempty"`
	ConfirmedAt         *int64  `json:"confirmed_at,omitempty"`
	ProcessingStartedAt *int64  `gorm:"index" json:"processing_started_at,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`

	Detections []Detection `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"detections,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Session) TableName() string {
	return "attendance_sessions"
}

// IsTerminal reports whether the session can no longer change state.
// CONFIRMED is the only terminal state; FAILED sessions stay reprocessable.
func (s *Session) IsTerminal() bool {
	return s.Status == SessionConfirmed
}

// CanTransition reports whether moving from the session's current status to the
// target status is a legal state-machine edge. Transitions are monotonic except
// for the reprocess edge back to PROCESSING from any non-terminal state.
func (s *Session) CanTransition(target SessionStatus) bool {
	switch target {
	case SessionProcessing:
		// reprocess: allowed from every non-terminal state, including a
		// PROCESSING session whose job was lost to a crash or restart
		return !s.IsTerminal()
	case SessionNeedsReview, SessionFailed:
		return s.Status == SessionProcessing
	case SessionConfirmed:
		// FAILED sessions may still be confirmed manually (all-manual roll call)
		return s.Status == SessionNeedsReview || s.Status == SessionFailed
	default:
		return false
	}
}
