package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/matcher"
	"github.com/classkit/attendancebackend/media"
	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/repository"
)

// FaceDetector finds and quality-filters faces in an encoded image.
type FaceDetector interface {
	Detect(imageData []byte) (*media.DetectionOutput, error)
	Ready() bool
}

// EmbeddingExtractor converts an encoded face crop into a fixed-length vector.
type EmbeddingExtractor interface {
	Extract(cropJPEG []byte) ([]float32, error)
	Version() string
	Ready() bool
}

// ImageSource fetches a source image by reference. Implementations may talk
// to remote object storage; fetches are the pipeline's suspension points.
type ImageSource interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// StoreImageSource adapts a media.Store into an ImageSource.
type StoreImageSource struct {
	Store media.Store
}

func (s StoreImageSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GetBytes(ref)
}

// Notifier receives pipeline progress events, e.g. for websocket broadcast.
// Implementations must not block.
type Notifier interface {
	Publish(eventType, id, status, errMsg string, extra map[string]interface{})
}

// RetryPolicy bounds transient image-fetch retries.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// Pipeline runs the detection → embedding → matching stages for session and
// enrollment jobs. All stage failures are settled here, at the orchestration
// boundary: the caller that created the job already got its success response,
// so nothing propagates past a terminal FAILED write.
type Pipeline struct {
	sessionRepo   repository.SessionRepositoryInterface
	detectionRepo repository.DetectionRepositoryInterface
	embeddingRepo repository.EmbeddingRepositoryInterface
	jobRepo       repository.EnrollmentJobRepositoryInterface

	detector  FaceDetector
	extractor EmbeddingExtractor
	images    ImageSource
	store     media.Store
	retry     RetryPolicy
	notifier  Notifier
}

// SetNotifier attaches an optional progress event sink.
func (p *Pipeline) SetNotifier(n Notifier) {
	p.notifier = n
}

func (p *Pipeline) notify(eventType, id, status, errMsg string, extra map[string]interface{}) {
	if p.notifier != nil {
		p.notifier.Publish(eventType, id, status, errMsg, extra)
	}
}

// NewPipeline creates a new processing pipeline
func NewPipeline(
	sessionRepo repository.SessionRepositoryInterface,
	detectionRepo repository.DetectionRepositoryInterface,
	embeddingRepo repository.EmbeddingRepositoryInterface,
	jobRepo repository.EnrollmentJobRepositoryInterface,
	detector FaceDetector,
	extractor EmbeddingExtractor,
	images ImageSource,
	store media.Store,
	retry RetryPolicy,
) *Pipeline {
	return &Pipeline{
		sessionRepo:   sessionRepo,
		detectionRepo: detectionRepo,
		embeddingRepo: embeddingRepo,
		jobRepo:       jobRepo,
		detector:      detector,
		extractor:     extractor,
		images:        images,
		store:         store,
		retry:         retry,
	}
}

// fetchWithRetry pulls the source image, retrying transient failures a
// bounded number of times with backoff before giving up.
func (p *Pipeline) fetchWithRetry(ctx context.Context, ref string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retry.Backoff * time.Duration(attempt)):
			}
			log.Printf("pipeline: retrying image fetch for %s (attempt %d/%d)", ref, attempt, p.retry.MaxRetries)
		}
		data, err := p.images.Fetch(ctx, ref)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("image fetch failed after %d retries: %w", p.retry.MaxRetries, lastErr)
}

// ProcessSession runs the full attendance pipeline for one session. Ordering
// within the session is strict: detection completes before matching, matching
// before persistence, persistence before the NEEDS_REVIEW flip.
func (p *Pipeline) ProcessSession(ctx context.Context, sessionID string) {
	session, err := p.sessionRepo.GetByID(sessionID)
	if err != nil {
		log.Printf("pipeline: session %s not loadable, dropping job: %v", sessionID, err)
		return
	}
	if session.Status != models.SessionProcessing {
		// stray duplicate job; the session already settled
		log.Printf("pipeline: session %s is %s, skipping duplicate job", sessionID, session.Status)
		return
	}

	if err := p.runSession(ctx, session); err != nil {
		p.FailSession(sessionID, err)
	}
}

func (p *Pipeline) runSession(ctx context.Context, session *models.Session) error {
	raw, err := p.fetchWithRetry(ctx, session.ImageRef)
	if err != nil {
		return fmt.Errorf("could not fetch session image %s: %w", session.ImageRef, err)
	}

	normalized, err := media.NormalizeForDetection(raw)
	if err != nil {
		return fmt.Errorf("could not decode session image: %w", err)
	}

	output, err := p.detector.Detect(normalized)
	if err != nil {
		return err
	}

	// crop persistence is the pipeline's second suspension point
	type pendingFace struct {
		crop      media.FaceCrop
		cropRef   string
		embedding []float32
	}
	pending := make([]pendingFace, 0, len(output.Faces))
	for _, face := range output.Faces {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("session processing timed out: %w", err)
		}
		cropName := fmt.Sprintf("%s_%02d_%s.jpg", session.ID, face.Index, uuid.NewString()[:8])
		cropRef, err := p.store.Save(media.AssetTypeFaceCrop, cropName, bytes.NewReader(face.JPEG))
		if err != nil {
			return fmt.Errorf("failed to persist crop for face %d: %w", face.Index, err)
		}

		// per-face embedding failure is isolated: the face is kept, routed
		// to IGNORED, and the session continues
		embedding, embErr := p.extractor.Extract(face.JPEG)
		if embErr != nil {
			log.Printf("pipeline: embedding failed for session %s face %d: %v", session.ID, face.Index, embErr)
			embedding = nil
		}
		pending = append(pending, pendingFace{crop: face, cropRef: cropRef, embedding: embedding})
	}

	references, err := p.embeddingRepo.ListActiveByClass(session.ClassID)
	if err != nil {
		return fmt.Errorf("failed to load class reference embeddings: %w", err)
	}
	refs := make([]matcher.Reference, 0, len(references))
	for i := range references {
		refs = append(refs, matcher.Reference{
			StudentID: references[i].StudentID,
			Vector:    references[i].Vector(),
		})
	}

	faces := make([]matcher.FaceInput, len(pending))
	for i, pf := range pending {
		faces[i] = matcher.FaceInput{FaceIndex: i, Embedding: pf.embedding}
	}
	thresholds := matcher.Thresholds{
		High:    session.Thresholds.HighThreshold,
		Medium:  session.Thresholds.MediumThreshold,
		Version: session.Thresholds.Version,
	}
	results := matcher.Match(faces, refs, thresholds)

	detections := make([]models.Detection, len(pending))
	counts := repository.SessionCounts{Detected: len(pending)}
	for i, pf := range pending {
		result := results[i]
		d := models.Detection{
			SessionID:    session.ID,
			FaceIndex:    i,
			X1:           pf.crop.X1,
			Y1:           pf.crop.Y1,
			X2:           pf.crop.X2,
			Y2:           pf.crop.Y2,
			CropRef:      pf.cropRef,
			QualityScore: pf.crop.QualityScore,
			Confidence:   result.Confidence,
		}
		if pf.embedding != nil {
			d.SetEmbedding(pf.embedding)
			d.ModelVersion = p.extractor.Version()
		}

		for _, alt := range result.Alternatives {
			d.Alternatives = append(d.Alternatives, models.AlternativeMatch{
				StudentID: alt.StudentID,
				Distance:  alt.Distance,
			})
		}

		switch {
		case result.StudentID != nil && result.Level == matcher.ConfidenceHigh:
			d.MatchStatus = models.MatchAutoMatched
			d.MatchedStudentID = result.StudentID
			dist := result.Distance
			d.MatchDistance = &dist
			counts.Matched++
		case result.StudentID != nil && result.Level == matcher.ConfidenceMedium:
			d.MatchStatus = models.MatchFlagged
			d.MatchedStudentID = result.StudentID
			dist := result.Distance
			d.MatchDistance = &dist
			counts.Flagged++
		default:
			d.MatchStatus = models.MatchIgnored
			if len(refs) > 0 && pf.embedding != nil {
				dist := result.Distance
				d.MatchDistance = &dist
			}
			counts.Ignored++
		}
		detections[i] = d
	}

	if err := p.detectionRepo.CreateBatch(detections); err != nil {
		return fmt.Errorf("failed to persist detections: %w", err)
	}

	settled, err := p.sessionRepo.FinishProcessing(session.ID, models.SessionNeedsReview, nil, counts)
	if err != nil {
		return err
	}
	if !settled {
		log.Printf("pipeline: session %s settled by another job, result discarded", session.ID)
		return nil
	}

	log.Printf("pipeline: session %s -> NEEDS_REVIEW (%d detected, %d matched, %d flagged, %d ignored)",
		session.ID, counts.Detected, counts.Matched, counts.Flagged, counts.Ignored)
	p.notify("session", session.ID, string(models.SessionNeedsReview), "", map[string]interface{}{
		"detected_count": counts.Detected,
		"matched_count":  counts.Matched,
		"flagged_count":  counts.Flagged,
		"ignored_count":  counts.Ignored,
	})
	return nil
}

// FailSession converts any pipeline error into a terminal FAILED session with
// a stored, user-visible message. The write is guarded, so a session already
// settled by another job is left alone.
func (p *Pipeline) FailSession(sessionID string, cause error) {
	msg := cause.Error()
	settled, err := p.sessionRepo.FinishProcessing(sessionID, models.SessionFailed, &msg, repository.SessionCounts{})
	if err != nil {
		log.Printf("pipeline: ERROR writing FAILED for session %s: %v", sessionID, err)
		return
	}
	if settled {
		log.Printf("pipeline: session %s -> FAILED: %s", sessionID, msg)
		p.notify("session", sessionID, string(models.SessionFailed), msg, nil)
	}
}

// ProcessEnrollment runs the enrollment pipeline for one job: exactly one
// detected face, embedded and stored as an active reference.
func (p *Pipeline) ProcessEnrollment(ctx context.Context, jobID string) {
	job, err := p.jobRepo.GetByID(jobID)
	if err != nil {
		log.Printf("pipeline: enrollment job %s not loadable, dropping: %v", jobID, err)
		return
	}
	if job.Status == models.EnrollmentJobPending {
		if err := p.jobRepo.SetProcessing(jobID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("pipeline: enrollment job %s already claimed, skipping", jobID)
				return
			}
			log.Printf("pipeline: ERROR claiming enrollment job %s: %v", jobID, err)
			return
		}
	} else if job.Status != models.EnrollmentJobProcessing {
		log.Printf("pipeline: enrollment job %s is %s, skipping duplicate job", jobID, job.Status)
		return
	}

	embeddingID, err := p.runEnrollment(ctx, job)
	if err != nil {
		p.FailEnrollment(jobID, err)
		return
	}
	if _, err := p.jobRepo.SetResult(jobID, models.EnrollmentJobCompleted, nil, &embeddingID); err != nil {
		log.Printf("pipeline: ERROR completing enrollment job %s: %v", jobID, err)
		return
	}
	p.notify("enrollment", jobID, string(models.EnrollmentJobCompleted), "", map[string]interface{}{
		"embedding_id": embeddingID,
	})
}

// FailEnrollment writes a terminal FAILED outcome for an enrollment job.
func (p *Pipeline) FailEnrollment(jobID string, cause error) {
	msg := cause.Error()
	settled, err := p.jobRepo.SetResult(jobID, models.EnrollmentJobFailed, &msg, nil)
	if err != nil {
		log.Printf("pipeline: ERROR writing FAILED for enrollment job %s: %v", jobID, err)
		return
	}
	if settled {
		p.notify("enrollment", jobID, string(models.EnrollmentJobFailed), msg, nil)
	}
}

func (p *Pipeline) runEnrollment(ctx context.Context, job *models.EnrollmentJob) (uint, error) {
	raw, err := p.fetchWithRetry(ctx, job.ImageRef)
	if err != nil {
		return 0, fmt.Errorf("could not fetch enrollment image %s: %w", job.ImageRef, err)
	}

	normalized, err := media.NormalizeForDetection(raw)
	if err != nil {
		return 0, fmt.Errorf("could not decode enrollment image: %w", err)
	}

	output, err := p.detector.Detect(normalized)
	if err != nil {
		if errors.Is(err, media.ErrNoFaceDetected) || errors.Is(err, media.ErrTooManyFaces) {
			return 0, fmt.Errorf("%w: %v", ErrEnrollmentAmbiguous, err)
		}
		return 0, err
	}

	total := len(output.Faces) + len(output.Rejected)
	if total != 1 {
		return 0, fmt.Errorf("%w: found %d faces", ErrEnrollmentAmbiguous, total)
	}
	if len(output.Faces) == 0 {
		return 0, fmt.Errorf("enrollment face rejected as %s", output.Rejected[0].Reason)
	}

	face := output.Faces[0]
	vector, err := p.extractor.Extract(face.JPEG)
	if err != nil {
		return 0, fmt.Errorf("failed to extract enrollment embedding: %w", err)
	}

	embedding := &models.ReferenceEmbedding{
		StudentID:      job.StudentID,
		SchoolID:       job.SchoolID,
		ModelVersion:   p.extractor.Version(),
		SourceImageRef: job.ImageRef,
		QualityScore:   face.QualityScore,
		IsActive:       true,
	}
	embedding.SetVector(vector)

	if err := p.embeddingRepo.Create(embedding); err != nil {
		return 0, err
	}
	log.Printf("pipeline: enrolled student %d (embedding %d, quality %.2f)", job.StudentID, embedding.ID, face.QualityScore)
	return embedding.ID, nil
}
