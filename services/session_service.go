package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/config"
	"github.com/classkit/attendancebackend/database"
	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/repository"
)

// Dispatcher hands pipeline jobs to the background worker pool. The request
// that created a session returns before its job starts running.
type Dispatcher interface {
	EnqueueSession(sessionID string) error
	EnqueueEnrollment(jobID string) error
}

// SessionService owns the session state machine's public operations.
type SessionService struct {
	cfg         config.Config
	sessionRepo repository.SessionRepositoryInterface
	rosterRepo  repository.RosterRepositoryInterface
	sqlDB       *sql.DB
	dispatcher  Dispatcher
}

// NewSessionService creates a new session service
func NewSessionService(
	cfg config.Config,
	sessionRepo repository.SessionRepositoryInterface,
	rosterRepo repository.RosterRepositoryInterface,
	sqlDB *sql.DB,
	dispatcher Dispatcher,
) *SessionService {
	return &SessionService{
		cfg:         cfg,
		sessionRepo: sessionRepo,
		rosterRepo:  rosterRepo,
		sqlDB:       sqlDB,
		dispatcher:  dispatcher,
	}
}

// CreateSessionInput is the public create_session request.
type CreateSessionInput struct {
	SchoolID  uint
	ClassID   uint
	Date      string // YYYY-MM-DD
	ImageRef  string
	CreatedBy string
}

// CreateSession persists a PROCESSING session, snapshots the live thresholds
// into it and dispatches the pipeline job. No detection work happens inline;
// the row exists and the id is returned before the worker touches the image.
func (s *SessionService) CreateSession(input CreateSessionInput) (*models.Session, error) {
	if input.ImageRef == "" {
		return nil, fmt.Errorf("image_ref is required")
	}
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		return nil, fmt.Errorf("invalid session date %q: %w", input.Date, err)
	}
	class, err := s.rosterRepo.GetClass(input.ClassID)
	if err != nil {
		return nil, fmt.Errorf("unknown class %d: %w", input.ClassID, err)
	}
	if class.SchoolID != input.SchoolID {
		return nil, fmt.Errorf("class %d does not belong to school %d", input.ClassID, input.SchoolID)
	}

	now := time.Now().Unix()
	session := &models.Session{
		ID:       uuid.NewString(),
		SchoolID: input.SchoolID,
		ClassID:  input.ClassID,
		Date:     input.Date,
		Status:   models.SessionProcessing,
		ImageRef: input.ImageRef,
		Thresholds: models.ThresholdSnapshot{
			HighThreshold:   s.cfg.HighThreshold,
			MediumThreshold: s.cfg.MediumThreshold,
			Version:         s.cfg.ThresholdVersion,
		},
		CreatedBy:           input.CreatedBy,
		ProcessingStartedAt: &now,
	}

	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	if err := s.dispatcher.EnqueueSession(session.ID); err != nil {
		// the session row stays; the staleness check will surface it
		return nil, fmt.Errorf("session %s created but job dispatch failed: %w", session.ID, err)
	}
	return session, nil
}

// SessionDetail is the get_session payload: the session with its detections
// plus the class roster the reviewer resolves against.
type SessionDetail struct {
	Session *models.Session  `json:"session"`
	Roster  []models.Student `json:"roster"`
}

// GetSession returns the full session detail
func (s *SessionService) GetSession(id string) (*SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	roster, err := s.rosterRepo.ListStudentsByClass(session.ClassID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, Roster: roster}, nil
}

// ListSessions runs the filterable, paged session listing
func (s *SessionService) ListSessions(filters database.SessionFilters) ([]database.SessionSummary, error) {
	return database.ListSessionSummaries(s.sqlDB, filters)
}

// ListPendingReview returns NEEDS_REVIEW sessions plus PROCESSING sessions
// stuck past the staleness window, surfaced as recoverable.
func (s *SessionService) ListPendingReview(schoolID *uint) ([]database.SessionSummary, error) {
	cutoff := time.Now().Add(-s.cfg.StalenessWindow).Unix()
	return database.ListPendingReview(s.sqlDB, schoolID, cutoff)
}

// Reprocess resets a non-terminal session to PROCESSING, clears its prior
// detections and dispatches a fresh pipeline job.
func (s *SessionService) Reprocess(id string) error {
	session, err := s.sessionRepo.GetByID(id)
	if err != nil {
		return err
	}
	if !session.CanTransition(models.SessionProcessing) {
		return fmt.Errorf("%w: cannot reprocess session in state %s", ErrInvalidStateTransition, session.Status)
	}

	if err := s.sessionRepo.BeginProcessing(id, time.Now().Unix()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// lost a race with a confirmation
			return fmt.Errorf("%w: session %s is no longer reprocessable", ErrInvalidStateTransition, id)
		}
		return err
	}
	return s.dispatcher.EnqueueSession(id)
}
