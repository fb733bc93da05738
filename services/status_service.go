package services

import (
	"github.com/classkit/attendancebackend/config"
	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/repository"
)

// EngineStatus is the operational snapshot returned by the status endpoint.
type EngineStatus struct {
	DetectorReady  bool `json:"detector_ready"`
	ExtractorReady bool `json:"extractor_ready"`

	ModelName        string  `json:"model_name"`
	HighThreshold    float64 `json:"high_threshold"`
	MediumThreshold  float64 `json:"medium_threshold"`
	ThresholdVersion string  `json:"threshold_version"`

	ActiveEnrollments  int64 `json:"active_enrollments"`
	ProcessingSessions int64 `json:"processing_sessions"`
	PendingReview      int64 `json:"pending_review"`
	FailedSessions     int64 `json:"failed_sessions"`
}

// StatusService reports engine readiness, live thresholds and queue pressure.
type StatusService struct {
	cfg           config.Config
	sessionRepo   repository.SessionRepositoryInterface
	embeddingRepo repository.EmbeddingRepositoryInterface
	detector      FaceDetector
	extractor     EmbeddingExtractor
}

// NewStatusService creates a new status service
func NewStatusService(
	cfg config.Config,
	sessionRepo repository.SessionRepositoryInterface,
	embeddingRepo repository.EmbeddingRepositoryInterface,
	detector FaceDetector,
	extractor EmbeddingExtractor,
) *StatusService {
	return &StatusService{
		cfg:           cfg,
		sessionRepo:   sessionRepo,
		embeddingRepo: embeddingRepo,
		detector:      detector,
		extractor:     extractor,
	}
}

// GetStatus assembles the current engine status. Count failures degrade to
// zero rather than failing the whole endpoint.
func (s *StatusService) GetStatus() EngineStatus {
	status := EngineStatus{
		DetectorReady:    s.detector.Ready(),
		ExtractorReady:   s.extractor.Ready(),
		ModelName:        s.cfg.RecognitionModelName,
		HighThreshold:    s.cfg.HighThreshold,
		MediumThreshold:  s.cfg.MediumThreshold,
		ThresholdVersion: s.cfg.ThresholdVersion,
	}
	if n, err := s.embeddingRepo.CountActive(nil); err == nil {
		status.ActiveEnrollments = n
	}
	if n, err := s.sessionRepo.CountByStatus(models.SessionProcessing); err == nil {
		status.ProcessingSessions = n
	}
	if n, err := s.sessionRepo.CountByStatus(models.SessionNeedsReview); err == nil {
		status.PendingReview = n
	}
	if n, err := s.sessionRepo.CountByStatus(models.SessionFailed); err == nil {
		status.FailedSessions = n
	}
	return status
}
