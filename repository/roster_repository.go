package repository

import (
	"errors"
	"fmt"
	"sort"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/models"
)

// RosterRepository reads the roster tables owned by the school-management
// system. The matching engine never writes through it.
type RosterRepository struct {
	DB *gorm.DB
}

// Ensure RosterRepository implements RosterRepositoryInterface
var _ RosterRepositoryInterface = (*RosterRepository)(nil)

// NewRosterRepository creates a new instance of RosterRepository
func NewRosterRepository(db *gorm.DB) *RosterRepository {
	return &RosterRepository{DB: db}
}

// GetClass retrieves a class by its ID
func (r *RosterRepository) GetClass(id uint) (*models.Class, error) {
	var class models.Class
	err := r.DB.First(&class, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get class %d: %w", id, err)
	}
	return &class, nil
}

// GetStudent retrieves a student by its ID
func (r *RosterRepository) GetStudent(id uint) (*models.Student, error) {
	var student models.Student
	err := r.DB.First(&student, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get student %d: %w", id, err)
	}
	return &student, nil
}

// ListStudentsByClass returns the active students currently assigned to a
// class, in natural name order ("Student 2" before "Student 10") for review
// payloads.
func (r *RosterRepository) ListStudentsByClass(classID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.DB.
		Joins("JOIN class_memberships ON class_memberships.student_id = students.id").
		Where("class_memberships.class_id = ?", classID).
		Where("students.is_active = ?", true).
		Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students for class %d: %w", classID, err)
	}

	sort.Slice(students, func(i, j int) bool {
		return natsort.Compare(students[i].FullName, students[j].FullName)
	})
	return students, nil
}
