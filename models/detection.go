package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MatchStatus classifies one detected face's relationship to the class roster.
type MatchStatus string

const (
	MatchAutoMatched     MatchStatus = "AUTO_MATCHED"
	MatchFlagged         MatchStatus = "FLAGGED"
	MatchIgnored         MatchStatus = "IGNORED"
	MatchManuallyMatched MatchStatus = "MANUALLY_MATCHED"
	MatchRemoved         MatchStatus = "REMOVED"
)

// IsMatched reports whether the status claims a student.
func (m MatchStatus) IsMatched() bool {
	return m == MatchAutoMatched || m == MatchManuallyMatched
}

// AlternativeMatch is a runner-up candidate kept for human review.
type AlternativeMatch struct {
	StudentID uint    `json:"student_id"`
	Distance  float64 `json:"distance"`
}

// AlternativeList stores runner-up candidates as a JSON column.
type AlternativeList []AlternativeMatch

// Value implements driver.Valuer for JSON storage.
func (a AlternativeList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alternatives: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON storage.
func (a *AlternativeList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for AlternativeList", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Detection represents one face found in a session image, with its quality,
// embedding and match state. It corresponds to the 'detections' table.
// Detections are looked up by indexed student id rather than via a collection
// on the student row.
type Detection struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"not null;index;size:36" json:"session_id"`
	FaceIndex int    `gorm:"not null" json:"face_index"`

	X1 int `gorm:"not null" json:"x1"`
	Y1 int `gorm:"not null" json:"y1"`
	X2 int `gorm:"not null" json:"x2"`
	Y2 int `gorm:"not null" json:"y2"`

	CropRef      string  `gorm:"not null" json:"crop_ref"`
	QualityScore float64 `gorm:"not null" json:"quality_score"`
	Embedding    []byte  `gorm:"column:embedding_data" json:"-"` // nil when extraction failed
	ModelVersion string  `json:"model_version,omitempty"`

	MatchedStudentID *uint           `gorm:"index" json:"matched_student_id,omitempty"`
	MatchStatus      MatchStatus     `gorm:"not null;index;default:'IGNORED'" json:"match_status"`
	MatchDistance    *float64        `json:"match_distance,omitempty"`
	Confidence       float64         `gorm:"not null;default:0" json:"confidence"`
	Alternatives     AlternativeList `gorm:"type:text" json:"alternatives,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Detection) TableName() string {
	return "detections"
}

// GetEmbedding converts the BLOB data to []float32
func (d *Detection) GetEmbedding() []float32 {
	return vectorFromBytes(d.Embedding)
}

// SetEmbedding converts []float32 to BLOB data
func (d *Detection) SetEmbedding(embedding []float32) {
	d.Embedding = vectorToBytes(embedding)
}
