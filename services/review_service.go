package services

import (
	"fmt"
	"log"
	"time"

	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/repository"
)

// DetectionCorrection reassigns one detection to a different roster student
// during review.
type DetectionCorrection struct {
	DetectionID uint `json:"detection_id"`
	StudentID   uint `json:"student_id"`
}

// ConfirmInput is the reviewer's verdict on a session: which detections to
// keep, drop or reassign, plus students marked present without any face.
type ConfirmInput struct {
	AcceptedDetectionIDs []uint                `json:"accepted_detection_ids"`
	RemovedDetectionIDs  []uint                `json:"removed_detection_ids"`
	Corrections          []DetectionCorrection `json:"corrections"`
	ManualPresentIDs     []uint                `json:"manual_present_ids"`
	ConfirmedBy          string                `json:"confirmed_by"`
}

// ReviewService turns a reviewed session into attendance records.
type ReviewService struct {
	sessionRepo    repository.SessionRepositoryInterface
	detectionRepo  repository.DetectionRepositoryInterface
	rosterRepo     repository.RosterRepositoryInterface
	attendanceRepo repository.AttendanceRepositoryInterface
}

// NewReviewService creates a new review service
func NewReviewService(
	sessionRepo repository.SessionRepositoryInterface,
	detectionRepo repository.DetectionRepositoryInterface,
	rosterRepo repository.RosterRepositoryInterface,
	attendanceRepo repository.AttendanceRepositoryInterface,
) *ReviewService {
	return &ReviewService{
		sessionRepo:    sessionRepo,
		detectionRepo:  detectionRepo,
		rosterRepo:     rosterRepo,
		attendanceRepo: attendanceRepo,
	}
}

// Confirm applies the reviewer's verdict and writes attendance. Every
// referenced student is validated against the class roster before anything is
// written; one bad reference aborts the whole confirmation. On success the
// session is CONFIRMED and each roster student has exactly one attendance
// record for the session date, all in a single transaction.
func (s *ReviewService) Confirm(sessionID string, input ConfirmInput) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanTransition(models.SessionConfirmed) {
		return nil, fmt.Errorf("%w: cannot confirm session in state %s", ErrInvalidStateTransition, session.Status)
	}

	detections, err := s.detectionRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Detection, len(detections))
	for i := range detections {
		byID[detections[i].ID] = &detections[i]
	}

	roster, err := s.rosterRepo.ListStudentsByClass(session.ClassID)
	if err != nil {
		return nil, err
	}
	rosterIDs := make(map[uint]bool, len(roster))
	for _, st := range roster {
		rosterIDs[st.ID] = true
	}

	// Validate before mutating: every student the verdict references must be
	// on this class's roster right now.
	for _, c := range input.Corrections {
		if !rosterIDs[c.StudentID] {
			return nil, fmt.Errorf("%w: student %d is not in class %d", ErrCrossClassReference, c.StudentID, session.ClassID)
		}
		if _, ok := byID[c.DetectionID]; !ok {
			return nil, fmt.Errorf("detection %d does not belong to session %s", c.DetectionID, sessionID)
		}
	}
	for _, id := range input.ManualPresentIDs {
		if !rosterIDs[id] {
			return nil, fmt.Errorf("%w: student %d is not in class %d", ErrCrossClassReference, id, session.ClassID)
		}
	}
	for _, id := range append(append([]uint{}, input.AcceptedDetectionIDs...), input.RemovedDetectionIDs...) {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("detection %d does not belong to session %s", id, sessionID)
		}
	}

	for _, id := range input.RemovedDetectionIDs {
		d := byID[id]
		d.MatchStatus = models.MatchRemoved
		d.MatchedStudentID = nil
	}
	for _, c := range input.Corrections {
		d := byID[c.DetectionID]
		studentID := c.StudentID
		d.MatchStatus = models.MatchManuallyMatched
		d.MatchedStudentID = &studentID
	}
	for _, id := range input.AcceptedDetectionIDs {
		d := byID[id]
		if d.MatchStatus == models.MatchFlagged && d.MatchedStudentID != nil {
			d.MatchStatus = models.MatchManuallyMatched
		}
	}

	// No student may end up claimed by two faces.
	claimed := make(map[uint]uint, len(detections))
	for i := range detections {
		d := &detections[i]
		if !d.MatchStatus.IsMatched() || d.MatchedStudentID == nil {
			continue
		}
		if prev, ok := claimed[*d.MatchedStudentID]; ok {
			return nil, fmt.Errorf("student %d is matched by detections %d and %d; resolve one before confirming",
				*d.MatchedStudentID, prev, d.ID)
		}
		claimed[*d.MatchedStudentID] = d.ID
	}

	present := make(map[uint]bool, len(claimed))
	for studentID := range claimed {
		present[studentID] = true
	}
	for _, id := range input.ManualPresentIDs {
		present[id] = true
	}

	now := time.Now().Unix()
	records := make([]models.AttendanceRecord, 0, len(roster))
	for _, st := range roster {
		status := models.AttendanceAbsent
		if present[st.ID] {
			status = models.AttendancePresent
		}
		records = append(records, models.AttendanceRecord{
			StudentID: st.ID,
			ClassID:   session.ClassID,
			SchoolID:  session.SchoolID,
			Date:      session.Date,
			Status:    status,
			Source:    models.AttendanceSourceFaceRecognition,
			SessionID: session.ID,
		})
	}

	session.Status = models.SessionConfirmed
	session.ConfirmedBy = &input.ConfirmedBy
	session.ConfirmedAt = &now

	if err := s.sessionRepo.Confirm(session, detections, records); err != nil {
		return nil, err
	}
	log.Printf("review: session %s confirmed by %s, %d present of %d roster students",
		sessionID, input.ConfirmedBy, len(present), len(roster))
	return session, nil
}

// ListRecords returns the attendance records a confirmed session produced.
func (s *ReviewService) ListRecords(sessionID string) ([]models.AttendanceRecord, error) {
	if _, err := s.sessionRepo.GetByID(sessionID); err != nil {
		return nil, err
	}
	return s.attendanceRepo.ListBySession(sessionID)
}
