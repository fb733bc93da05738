package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/database"
	"github.com/classkit/attendancebackend/models"
)

// newTestDB opens a private in-memory sqlite database migrated to the real
// schema, so these tests execute the actual SQL instead of a fake.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.InitGormDB(dsn)
	if err != nil {
		t.Fatalf("InitGormDB failed: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("AutoMigrateModels failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedStudent(t *testing.T, db *gorm.DB, id uint, active bool) {
	t.Helper()
	s := models.Student{
		ID:        id,
		SchoolID:  1,
		FullName:  fmt.Sprintf("Student %d", id),
		IsActive:  active,
		CreatedAt: 1,
		UpdatedAt: 1,
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed student %d: %v", id, err)
	}
}

func seedMembership(t *testing.T, db *gorm.DB, classID, studentID uint) {
	t.Helper()
	m := models.ClassMembership{ClassID: classID, StudentID: studentID, CreatedAt: 1}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed membership class %d student %d: %v", classID, studentID, err)
	}
}

func seedEmbedding(t *testing.T, db *gorm.DB, studentID uint, active bool) uint {
	t.Helper()
	e := models.ReferenceEmbedding{
		StudentID:      studentID,
		SchoolID:       1,
		ModelVersion:   "arcface",
		SourceImageRef: fmt.Sprintf("enroll_%d.jpg", studentID),
		QualityScore:   0.9,
		IsActive:       active,
	}
	e.SetVector(make([]float32, models.EmbeddingDim))
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("seed embedding for student %d: %v", studentID, err)
	}
	return e.ID
}

func TestListActiveByClassScopesToRoster(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmbeddingRepository(db)

	// class 10: student 1 matchable, student 2 deactivated embedding,
	// student 3 inactive. class 20: student 4, matchable but elsewhere.
	seedStudent(t, db, 1, true)
	seedStudent(t, db, 2, true)
	seedStudent(t, db, 3, false)
	seedStudent(t, db, 4, true)
	seedMembership(t, db, 10, 1)
	seedMembership(t, db, 10, 2)
	seedMembership(t, db, 10, 3)
	seedMembership(t, db, 20, 4)
	seedEmbedding(t, db, 1, true)
	seedEmbedding(t, db, 2, false)
	seedEmbedding(t, db, 3, true)
	seedEmbedding(t, db, 4, true)

	embeddings, err := repo.ListActiveByClass(10)
	if err != nil {
		t.Fatalf("ListActiveByClass failed: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("got %d candidate embeddings, want 1: %+v", len(embeddings), embeddings)
	}
	if embeddings[0].StudentID != 1 {
		t.Errorf("candidate student = %d, want 1", embeddings[0].StudentID)
	}
}

func TestListActiveByClassEmptyRoster(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmbeddingRepository(db)

	seedStudent(t, db, 1, true)
	seedEmbedding(t, db, 1, true)

	embeddings, err := repo.ListActiveByClass(99)
	if err != nil {
		t.Fatalf("ListActiveByClass failed: %v", err)
	}
	if len(embeddings) != 0 {
		t.Errorf("got %d embeddings for class with no memberships, want 0", len(embeddings))
	}
}

func TestDeactivateTakesEffectOnNextRead(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmbeddingRepository(db)

	seedStudent(t, db, 1, true)
	seedMembership(t, db, 10, 1)
	id := seedEmbedding(t, db, 1, true)

	embeddings, err := repo.ListActiveByClass(10)
	if err != nil {
		t.Fatalf("ListActiveByClass failed: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("got %d embeddings before deactivation, want 1", len(embeddings))
	}

	if err := repo.Deactivate(id); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	embeddings, err = repo.ListActiveByClass(10)
	if err != nil {
		t.Fatalf("ListActiveByClass after deactivation failed: %v", err)
	}
	if len(embeddings) != 0 {
		t.Errorf("got %d embeddings after deactivation, want 0", len(embeddings))
	}

	if err := repo.Deactivate(id); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second Deactivate = %v, want gorm.ErrRecordNotFound", err)
	}
}

func seedSession(t *testing.T, db *gorm.DB, id string, status models.SessionStatus) *models.Session {
	t.Helper()
	s := models.Session{
		ID:       id,
		SchoolID: 1,
		ClassID:  10,
		Date:     "2026-03-02",
		Status:   status,
		ImageRef: "sessions/" + id + ".jpg",
		Thresholds: models.ThresholdSnapshot{
			HighThreshold:   0.40,
			MediumThreshold: 0.55,
			Version:         "v1",
		},
		CreatedBy: "teacher@example.com",
		CreatedAt: 1,
		UpdatedAt: 1,
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed session %s: %v", id, err)
	}
	return &s
}

func TestConfirmUpsertsOneRecordPerStudentDate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	seedStudent(t, db, 1, true)

	confirmedBy := "teacher@example.com"
	confirmedAt := time.Now().Unix()

	// first run settles the student as absent
	first := seedSession(t, db, "sess-first", models.SessionNeedsReview)
	first.ConfirmedBy = &confirmedBy
	first.ConfirmedAt = &confirmedAt
	err := repo.Confirm(first, nil, []models.AttendanceRecord{{
		StudentID: 1,
		Date:      "2026-03-02",
		ClassID:   10,
		SchoolID:  1,
		Status:    models.AttendanceAbsent,
		Source:    models.AttendanceSourceFaceRecognition,
		SessionID: first.ID,
	}})
	if err != nil {
		t.Fatalf("first Confirm failed: %v", err)
	}

	// a retake the same day corrects the record in place
	second := seedSession(t, db, "sess-second", models.SessionNeedsReview)
	second.ConfirmedBy = &confirmedBy
	second.ConfirmedAt = &confirmedAt
	err = repo.Confirm(second, nil, []models.AttendanceRecord{{
		StudentID: 1,
		Date:      "2026-03-02",
		ClassID:   10,
		SchoolID:  1,
		Status:    models.AttendancePresent,
		Source:    models.AttendanceSourceFaceRecognition,
		SessionID: second.ID,
	}})
	if err != nil {
		t.Fatalf("second Confirm failed: %v", err)
	}

	var records []models.AttendanceRecord
	if err := db.Where("student_id = ? AND date = ?", 1, "2026-03-02").Find(&records).Error; err != nil {
		t.Fatalf("reading attendance records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d attendance records for the (student, date), want 1", len(records))
	}
	if records[0].Status != models.AttendancePresent {
		t.Errorf("record status = %s, want PRESENT", records[0].Status)
	}
	if records[0].SessionID != second.ID {
		t.Errorf("record session = %s, want %s", records[0].SessionID, second.ID)
	}
}

func TestConfirmRejectsAlreadyConfirmedSession(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	confirmedBy := "teacher@example.com"
	confirmedAt := time.Now().Unix()
	session := seedSession(t, db, "sess-done", models.SessionConfirmed)
	session.ConfirmedBy = &confirmedBy
	session.ConfirmedAt = &confirmedAt

	err := repo.Confirm(session, nil, nil)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Confirm of CONFIRMED session = %v, want gorm.ErrRecordNotFound", err)
	}
}
