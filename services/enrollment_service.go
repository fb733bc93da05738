package services

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/classkit/attendancebackend/database"
	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/repository"
)

// EnrollmentService owns the reference-photo intake flow: a job handle is
// created synchronously, the detect-and-embed work runs on the worker pool.
type EnrollmentService struct {
	jobRepo       repository.EnrollmentJobRepositoryInterface
	embeddingRepo repository.EmbeddingRepositoryInterface
	rosterRepo    repository.RosterRepositoryInterface
	sqlDB         *sql.DB
	dispatcher    Dispatcher
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(
	jobRepo repository.EnrollmentJobRepositoryInterface,
	embeddingRepo repository.EmbeddingRepositoryInterface,
	rosterRepo repository.RosterRepositoryInterface,
	sqlDB *sql.DB,
	dispatcher Dispatcher,
) *EnrollmentService {
	return &EnrollmentService{
		jobRepo:       jobRepo,
		embeddingRepo: embeddingRepo,
		rosterRepo:    rosterRepo,
		sqlDB:         sqlDB,
		dispatcher:    dispatcher,
	}
}

// EnrollInput is the public enroll request.
type EnrollInput struct {
	StudentID uint
	ImageRef  string
	CreatedBy string
}

// Enroll creates a PENDING enrollment job and dispatches it. The returned job
// handle is how the caller polls for the outcome.
func (s *EnrollmentService) Enroll(input EnrollInput) (*models.EnrollmentJob, error) {
	if input.ImageRef == "" {
		return nil, fmt.Errorf("image_ref is required")
	}
	student, err := s.rosterRepo.GetStudent(input.StudentID)
	if err != nil {
		return nil, fmt.Errorf("unknown student %d: %w", input.StudentID, err)
	}

	job := &models.EnrollmentJob{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		SchoolID:  student.SchoolID,
		Status:    models.EnrollmentJobPending,
		ImageRef:  input.ImageRef,
		CreatedBy: input.CreatedBy,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}
	if err := s.dispatcher.EnqueueEnrollment(job.ID); err != nil {
		return nil, fmt.Errorf("enrollment job %s created but dispatch failed: %w", job.ID, err)
	}
	log.Printf("enrollment: queued job %s for student %d", job.ID, student.ID)
	return job, nil
}

// GetJob returns an enrollment job handle by id
func (s *EnrollmentService) GetJob(id string) (*models.EnrollmentJob, error) {
	return s.jobRepo.GetByID(id)
}

// ListEnrollments runs the filterable listing of active reference embeddings
func (s *EnrollmentService) ListEnrollments(filters database.EnrollmentFilters) ([]database.EnrollmentSummary, error) {
	return database.ListEnrollmentSummaries(s.sqlDB, filters)
}

// Deactivate soft-removes a reference embedding. Sessions already processed
// against it keep their results; it just stops being a candidate.
func (s *EnrollmentService) Deactivate(embeddingID uint) error {
	if err := s.embeddingRepo.Deactivate(embeddingID); err != nil {
		return err
	}
	log.Printf("enrollment: deactivated embedding %d", embeddingID)
	return nil
}
