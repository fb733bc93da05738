package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/classkit/attendancebackend/media"
	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/repository"
)

type finishCall struct {
	status models.SessionStatus
	errMsg *string
	counts repository.SessionCounts
}

type fakeSessionRepo struct {
	sessions    map[string]*models.Session
	finishCalls []finishCall
	// finishSettled controls what FinishProcessing reports; defaults to true
	finishUnsettled bool

	confirmCalled     bool
	confirmSession    *models.Session
	confirmDetections []models.Detection
	confirmRecords    []models.AttendanceRecord
}

func newFakeSessionRepo(sessions ...*models.Session) *fakeSessionRepo {
	repo := &fakeSessionRepo{sessions: map[string]*models.Session{}}
	for _, s := range sessions {
		repo.sessions[s.ID] = s
	}
	return repo
}

func (f *fakeSessionRepo) Create(session *models.Session) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) GetByID(id string) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errNotFound)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) BeginProcessing(id string, startedAt int64) error {
	s, ok := f.sessions[id]
	if !ok {
		return errNotFound
	}
	s.Status = models.SessionProcessing
	s.ProcessingStartedAt = &startedAt
	return nil
}

func (f *fakeSessionRepo) FinishProcessing(id string, status models.SessionStatus, errMsg *string, counts repository.SessionCounts) (bool, error) {
	f.finishCalls = append(f.finishCalls, finishCall{status: status, errMsg: errMsg, counts: counts})
	if f.finishUnsettled {
		return false, nil
	}
	if s, ok := f.sessions[id]; ok {
		s.Status = status
		s.ErrorMessage = errMsg
	}
	return true, nil
}

func (f *fakeSessionRepo) Confirm(session *models.Session, detections []models.Detection, records []models.AttendanceRecord) error {
	f.confirmCalled = true
	f.confirmSession = session
	f.confirmDetections = detections
	f.confirmRecords = records
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) CountByStatus(status models.SessionStatus) (int64, error) {
	var n int64
	for _, s := range f.sessions {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeDetectionRepo struct {
	detections []models.Detection
}

func (f *fakeDetectionRepo) CreateBatch(detections []models.Detection) error {
	f.detections = append(f.detections, detections...)
	return nil
}

func (f *fakeDetectionRepo) ListBySession(sessionID string) ([]models.Detection, error) {
	out := []models.Detection{}
	for _, d := range f.detections {
		if d.SessionID == sessionID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDetectionRepo) GetByID(id uint) (*models.Detection, error) {
	for i := range f.detections {
		if f.detections[i].ID == id {
			return &f.detections[i], nil
		}
	}
	return nil, errNotFound
}

type fakeEmbeddingRepo struct {
	embeddings []models.ReferenceEmbedding
	nextID     uint
}

func (f *fakeEmbeddingRepo) Create(embedding *models.ReferenceEmbedding) error {
	f.nextID++
	embedding.ID = f.nextID
	f.embeddings = append(f.embeddings, *embedding)
	return nil
}

func (f *fakeEmbeddingRepo) GetByID(id uint) (*models.ReferenceEmbedding, error) {
	for i := range f.embeddings {
		if f.embeddings[i].ID == id {
			return &f.embeddings[i], nil
		}
	}
	return nil, errNotFound
}

func (f *fakeEmbeddingRepo) ListActiveByClass(classID uint) ([]models.ReferenceEmbedding, error) {
	out := []models.ReferenceEmbedding{}
	for _, e := range f.embeddings {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEmbeddingRepo) Deactivate(id uint) error {
	for i := range f.embeddings {
		if f.embeddings[i].ID == id && f.embeddings[i].IsActive {
			f.embeddings[i].IsActive = false
			return nil
		}
	}
	return errNotFound
}

func (f *fakeEmbeddingRepo) CountActive(schoolID *uint) (int64, error) {
	var n int64
	for _, e := range f.embeddings {
		if e.IsActive {
			n++
		}
	}
	return n, nil
}

type fakeRosterRepo struct {
	classes  map[uint]*models.Class
	students map[uint]*models.Student
	// members maps class id to its roster, in listing order
	members map[uint][]uint
}

func (f *fakeRosterRepo) GetClass(id uint) (*models.Class, error) {
	c, ok := f.classes[id]
	if !ok {
		return nil, errNotFound
	}
	return c, nil
}

func (f *fakeRosterRepo) GetStudent(id uint) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, errNotFound
	}
	return s, nil
}

func (f *fakeRosterRepo) ListStudentsByClass(classID uint) ([]models.Student, error) {
	out := []models.Student{}
	for _, id := range f.members[classID] {
		if s, ok := f.students[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeAttendanceRepo struct {
	records []models.AttendanceRecord
}

func (f *fakeAttendanceRepo) Upsert(record *models.AttendanceRecord) error {
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeAttendanceRepo) ListBySession(sessionID string) ([]models.AttendanceRecord, error) {
	out := []models.AttendanceRecord{}
	for _, r := range f.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeJobRepo struct {
	jobs map[string]*models.EnrollmentJob
}

func newFakeJobRepo(jobs ...*models.EnrollmentJob) *fakeJobRepo {
	repo := &fakeJobRepo{jobs: map[string]*models.EnrollmentJob{}}
	for _, j := range jobs {
		repo.jobs[j.ID] = j
	}
	return repo
}

func (f *fakeJobRepo) Create(job *models.EnrollmentJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobRepo) GetByID(id string) (*models.EnrollmentJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *j
	return &copied, nil
}

func (f *fakeJobRepo) SetProcessing(id string) error {
	j, ok := f.jobs[id]
	if !ok || j.Status != models.EnrollmentJobPending {
		return errNotFound
	}
	j.Status = models.EnrollmentJobProcessing
	return nil
}

func (f *fakeJobRepo) SetResult(id string, status models.EnrollmentJobStatus, errMsg *string, embeddingID *uint) (bool, error) {
	j, ok := f.jobs[id]
	if !ok {
		return false, errNotFound
	}
	if j.Status != models.EnrollmentJobProcessing {
		return false, nil
	}
	j.Status = status
	j.ErrorMessage = errMsg
	j.EmbeddingID = embeddingID
	return true, nil
}

var errNotFound = fmt.Errorf("record not found")

type fakeDetector struct {
	output *media.DetectionOutput
	err    error
}

func (f *fakeDetector) Detect(imageData []byte) (*media.DetectionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeDetector) Ready() bool { return true }

type fakeExtractor struct {
	// vectors are returned per call, keyed by crop content
	vectors map[string][]float32
	err     error
}

func (f *fakeExtractor) Extract(cropJPEG []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[string(cropJPEG)]
	if !ok {
		return nil, fmt.Errorf("no vector for crop %q", cropJPEG)
	}
	return v, nil
}

func (f *fakeExtractor) Version() string { return "arcface" }
func (f *fakeExtractor) Ready() bool     { return true }

type fakeImageSource struct {
	images map[string][]byte
	// failures counts down; while positive every Fetch fails
	failures int
	fetches  int
}

func (f *fakeImageSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.fetches++
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("transient fetch error")
	}
	data, ok := f.images[ref]
	if !ok {
		return nil, fmt.Errorf("image %s not found", ref)
	}
	return data, nil
}

type fakeStore struct {
	saved map[string][]byte
}

func (f *fakeStore) Save(assetType media.AssetType, filenameHint string, data io.Reader) (string, error) {
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	ref := string(assetType) + "/" + filenameHint
	f.saved[ref] = b
	return ref, nil
}

func (f *fakeStore) Get(ref string) (io.ReadCloser, os.FileInfo, error) {
	return nil, nil, fmt.Errorf("not implemented")
}

func (f *fakeStore) GetBytes(ref string) ([]byte, error) {
	b, ok := f.saved[ref]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", ref)
	}
	return b, nil
}

func (f *fakeStore) Delete(ref string) error { return nil }

func (f *fakeStore) GetFullPath(ref string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

type fakeDispatcher struct {
	sessionIDs    []string
	enrollmentIDs []string
	err           error
}

func (f *fakeDispatcher) EnqueueSession(sessionID string) error {
	if f.err != nil {
		return f.err
	}
	f.sessionIDs = append(f.sessionIDs, sessionID)
	return nil
}

func (f *fakeDispatcher) EnqueueEnrollment(jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.enrollmentIDs = append(f.enrollmentIDs, jobID)
	return nil
}
