package models

import (
	"math"

	"gorm.io/gorm"
)

// EmbeddingDim is the fixed length of every face embedding vector.
const EmbeddingDim = 128

// ReferenceEmbedding represents an enrolled student's stored face fingerprint.
// It corresponds to the 'reference_embeddings' table. Rows are never hard
// deleted: deactivation flips IsActive so the audit trail survives, and every
// matching read filters on it.
type ReferenceEmbedding struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID      uint           `gorm:"not null;index" json:"student_id"`
	SchoolID       uint           `gorm:"not null;index" json:"school_id"` // denormalized for tenant-scoped listings
	EmbeddingData  []byte         `gorm:"not null;column:embedding_data" json:"-"`
	ModelVersion   string         `gorm:"not null;column:model_version;default:'arcface'" json:"model_version"`
	SourceImageRef string         `gorm:"not null" json:"source_image_ref"`
	QualityScore   float64        `gorm:"not null" json:"quality_score"`
	IsActive       bool           `gorm:"not null;index;default:true" json:"is_active"`
	CreatedAt      int64          `gorm:"not null" json:"created_at"`
	UpdatedAt      int64          `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (ReferenceEmbedding) TableName() string {
	return "reference_embeddings"
}

// Vector converts the BLOB data to []float32
func (re *ReferenceEmbedding) Vector() []float32 {
	return vectorFromBytes(re.EmbeddingData)
}

// SetVector converts []float32 to BLOB data
func (re *ReferenceEmbedding) SetVector(embedding []float32) {
	re.EmbeddingData = vectorToBytes(embedding)
}

// vectorFromBytes decodes a little-endian float32 vector from its byte layout.
func vectorFromBytes(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}

	embedding := make([]float32, len(data)/4) // 4 bytes per float32
	for i := 0; i < len(embedding); i++ {
		offset := i * 4
		bits := uint32(data[offset]) |
			uint32(data[offset+1])<<8 |
			uint32(data[offset+2])<<16 |
			uint32(data[offset+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

// vectorToBytes encodes a float32 vector into its little-endian byte layout.
func vectorToBytes(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}

	data := make([]byte, len(embedding)*4) // 4 bytes per float32
	for i, val := range embedding {
		offset := i * 4
		bits := math.Float32bits(val)
		data[offset] = byte(bits)
		data[offset+1] = byte(bits >> 8)
		data[offset+2] = byte(bits >> 16)
		data[offset+3] = byte(bits >> 24)
	}
	return data
}
