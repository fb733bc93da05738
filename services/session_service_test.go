package services

import (
	"errors"
	"testing"
	"time"

	"github.com/classkit/attendancebackend/config"
	"github.com/classkit/attendancebackend/models"
)

func sessionServiceFixture() (*fakeSessionRepo, *fakeDispatcher, *SessionService) {
	cfg := config.Config{
		HighThreshold:    0.40,
		MediumThreshold:  0.55,
		ThresholdVersion: "v1",
		StalenessWindow:  5 * time.Minute,
	}
	sessionRepo := newFakeSessionRepo()
	rosterRepo := &fakeRosterRepo{
		classes: map[uint]*models.Class{10: {ID: 10, SchoolID: 1, Name: "3B"}},
	}
	dispatcher := &fakeDispatcher{}
	svc := NewSessionService(cfg, sessionRepo, rosterRepo, nil, dispatcher)
	return sessionRepo, dispatcher, svc
}

func TestCreateSessionSnapshotsThresholds(t *testing.T) {
	sessionRepo, dispatcher, svc := sessionServiceFixture()

	session, err := svc.CreateSession(CreateSessionInput{
		SchoolID:  1,
		ClassID:   10,
		Date:      "2026-03-02",
		ImageRef:  "session_image/classroom.jpg",
		CreatedBy: "teacher-9",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.Status != models.SessionProcessing {
		t.Errorf("status = %s, want PROCESSING", session.Status)
	}
	if session.ID == "" {
		t.Error("session id must be assigned before return")
	}
	if session.ProcessingStartedAt == nil {
		t.Error("processing_started_at must be set at dispatch")
	}

	snap := session.Thresholds
	if snap.HighThreshold != 0.40 || snap.MediumThreshold != 0.55 || snap.Version != "v1" {
		t.Errorf("snapshot = %+v, want live config values", snap)
	}

	if _, ok := sessionRepo.sessions[session.ID]; !ok {
		t.Error("session row must exist before the job is dispatched")
	}
	if len(dispatcher.sessionIDs) != 1 || dispatcher.sessionIDs[0] != session.ID {
		t.Errorf("dispatched = %v, want [%s]", dispatcher.sessionIDs, session.ID)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateSessionInput
	}{
		{"bad date", CreateSessionInput{SchoolID: 1, ClassID: 10, Date: "02-03-2026", ImageRef: "x"}},
		{"missing image", CreateSessionInput{SchoolID: 1, ClassID: 10, Date: "2026-03-02"}},
		{"unknown class", CreateSessionInput{SchoolID: 1, ClassID: 99, Date: "2026-03-02", ImageRef: "x"}},
		{"wrong school", CreateSessionInput{SchoolID: 2, ClassID: 10, Date: "2026-03-02", ImageRef: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dispatcher, svc := sessionServiceFixture()
			if _, err := svc.CreateSession(tt.input); err == nil {
				t.Error("expected validation error")
			}
			if len(dispatcher.sessionIDs) != 0 {
				t.Error("nothing may be dispatched on validation failure")
			}
		})
	}
}

func TestReprocessResetsAndRedispatches(t *testing.T) {
	sessionRepo, dispatcher, svc := sessionServiceFixture()
	failed := testSession(models.SessionFailed)
	sessionRepo.sessions[failed.ID] = failed

	if err := svc.Reprocess(failed.ID); err != nil {
		t.Fatalf("Reprocess failed: %v", err)
	}
	if failed.Status != models.SessionProcessing {
		t.Errorf("status = %s, want PROCESSING", failed.Status)
	}
	if len(dispatcher.sessionIDs) != 1 || dispatcher.sessionIDs[0] != failed.ID {
		t.Errorf("dispatched = %v, want the reprocessed session", dispatcher.sessionIDs)
	}
}

func TestReprocessReclaimsStaleProcessingSession(t *testing.T) {
	sessionRepo, dispatcher, svc := sessionServiceFixture()
	stale := testSession(models.SessionProcessing)
	sessionRepo.sessions[stale.ID] = stale

	// a crashed worker or dropped queue leaves the session in PROCESSING
	// forever; reprocess must be able to redispatch it
	if err := svc.Reprocess(stale.ID); err != nil {
		t.Fatalf("Reprocess of stale PROCESSING session failed: %v", err)
	}
	if stale.Status != models.SessionProcessing {
		t.Errorf("status = %s, want PROCESSING", stale.Status)
	}
	if len(dispatcher.sessionIDs) != 1 || dispatcher.sessionIDs[0] != stale.ID {
		t.Errorf("dispatched = %v, want the reclaimed session", dispatcher.sessionIDs)
	}
}

func TestReprocessRejectsConfirmedSession(t *testing.T) {
	sessionRepo, dispatcher, svc := sessionServiceFixture()
	confirmed := testSession(models.SessionConfirmed)
	sessionRepo.sessions[confirmed.ID] = confirmed

	err := svc.Reprocess(confirmed.ID)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("got %v, want ErrInvalidStateTransition", err)
	}
	if len(dispatcher.sessionIDs) != 0 {
		t.Error("confirmed sessions must never be redispatched")
	}
}

func TestEnrollCreatesPendingJob(t *testing.T) {
	rosterRepo := &fakeRosterRepo{
		students: map[uint]*models.Student{7: {ID: 7, SchoolID: 1, FullName: "Dana"}},
	}
	jobRepo := newFakeJobRepo()
	dispatcher := &fakeDispatcher{}
	svc := NewEnrollmentService(jobRepo, &fakeEmbeddingRepo{}, rosterRepo, nil, dispatcher)

	job, err := svc.Enroll(EnrollInput{StudentID: 7, ImageRef: "portrait.jpg", CreatedBy: "admin"})
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if job.Status != models.EnrollmentJobPending {
		t.Errorf("job status = %s, want PENDING", job.Status)
	}
	if job.SchoolID != 1 {
		t.Errorf("job school = %d, want denormalized from student", job.SchoolID)
	}
	if len(dispatcher.enrollmentIDs) != 1 || dispatcher.enrollmentIDs[0] != job.ID {
		t.Errorf("dispatched = %v, want [%s]", dispatcher.enrollmentIDs, job.ID)
	}
}

func TestEnrollRejectsUnknownStudent(t *testing.T) {
	svc := NewEnrollmentService(newFakeJobRepo(), &fakeEmbeddingRepo{}, &fakeRosterRepo{}, nil, &fakeDispatcher{})
	if _, err := svc.Enroll(EnrollInput{StudentID: 5, ImageRef: "x"}); err == nil {
		t.Error("expected error for unknown student")
	}
}

func TestDeactivateUnknownEmbedding(t *testing.T) {
	svc := NewEnrollmentService(newFakeJobRepo(), &fakeEmbeddingRepo{}, &fakeRosterRepo{}, nil, &fakeDispatcher{})
	if err := svc.Deactivate(42); err == nil {
		t.Error("expected error for unknown embedding")
	}
}
