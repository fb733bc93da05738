package models

// AttendanceStatus is the final authoritative presence state for a student.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
)

// AttendanceSource tags the subsystem that produced a record (provenance).
const AttendanceSourceFaceRecognition = "face_recognition"

// AttendanceRecord is the authoritative attendance ledger row created when a
// session is confirmed. It corresponds to the 'attendance_records' table.
// One record per (student, date); confirmation upserts.
type AttendanceRecord struct {
	ID        uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID uint             `gorm:"not null;uniqueIndex:idx_attendance_student_date" json:"student_id"`
	Date      string           `gorm:"not null;uniqueIndex:idx_attendance_student_date;size:10" json:"date"`
	ClassID   uint             `gorm:"not null;index" json:"class_id"`
	SchoolID  uint             `gorm:"not null;index" json:"school_id"`
	Status    AttendanceStatus `gorm:"not null" json:"status"`
	Source    string           `gorm:"not null" json:"source"`
	SessionID string           `gorm:"not null;index;size:36" json:"session_id"`
	CreatedAt int64            `gorm:"not null" json:"created_at"`
	UpdatedAt int64            `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (AttendanceRecord) TableName() string {
	return "attendance_records"
}
