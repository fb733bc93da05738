package models

// Student is the roster-service view of an enrolled student. The matching
// engine only ever reads these tables; the school-management system owns them.
type Student struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SchoolID  uint   `gorm:"not null;index" json:"school_id"`
	FullName  string `gorm:"not null" json:"full_name"`
	IsActive  bool   `gorm:"not null;default:true" json:"is_active"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
	UpdatedAt int64  `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Student) TableName() string {
	return "students"
}

// Class is the roster-service view of a class.
type Class struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SchoolID  uint   `gorm:"not null;index" json:"school_id"`
	Name      string `gorm:"not null" json:"name"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
	UpdatedAt int64  `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Class) TableName() string {
	return "classes"
}

// ClassMembership assigns a student to a class. Matching reads join through
// this table so only students currently assigned to the photographed class
// are ever candidates.
type ClassMembership struct {
	ID        uint  `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassID   uint  `gorm:"not null;uniqueIndex:idx_membership_class_student" json:"class_id"`
	StudentID uint  `gorm:"not null;uniqueIndex:idx_membership_class_student" json:"student_id"`
	CreatedAt int64 `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (ClassMembership) TableName() string {
	return "class_memberships"
}
