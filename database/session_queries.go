package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SessionFilters narrows the session listing. Nil/zero fields are skipped.
type SessionFilters struct {
	SchoolID *uint
	ClassID  *uint
	Status   string
	DateFrom string // YYYY-MM-DD inclusive
	DateTo   string // YYYY-MM-DD inclusive
	Limit    uint64
	Offset   uint64
}

// SessionSummary is the paged listing row for a session.
type SessionSummary struct {
	ID            string `json:"id"`
	SchoolID      uint   `json:"school_id"`
	ClassID       uint   `json:"class_id"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	DetectedCount int    `json:"detected_count"`
	MatchedCount  int    `json:"matched_count"`
	FlaggedCount  int    `json:"flagged_count"`
	IgnoredCount  int    `json:"ignored_count"`
	CreatedBy     string `json:"created_by"`
	CreatedAt     int64  `json:"created_at"`
	// Stale marks a PROCESSING session that exceeded the staleness window
	// and is surfaced as recoverable in pending-review listings.
	Stale bool `json:"stale,omitempty"`
}

const defaultSessionPageSize = 50

// ListSessionSummaries runs the filterable session listing.
func ListSessionSummaries(db *sql.DB, filters SessionFilters) ([]SessionSummary, error) {
	qb := psql.Select(
		"id", "school_id", "class_id", "date", "status",
		"detected_count", "matched_count", "flagged_count", "ignored_count",
		"created_by", "created_at",
	).From("attendance_sessions").OrderBy("created_at DESC")

	if filters.SchoolID != nil {
		qb = qb.Where(sq.Eq{"school_id": *filters.SchoolID})
	}
	if filters.ClassID != nil {
		qb = qb.Where(sq.Eq{"class_id": *filters.ClassID})
	}
	if filters.Status != "" {
		qb = qb.Where(sq.Eq{"status": filters.Status})
	}
	if filters.DateFrom != "" {
		qb = qb.Where(sq.GtOrEq{"date": filters.DateFrom})
	}
	if filters.DateTo != "" {
		qb = qb.Where(sq.LtOrEq{"date": filters.DateTo})
	}

	limit := filters.Limit
	if limit == 0 {
		limit = defaultSessionPageSize
	}
	qb = qb.Limit(limit).Offset(filters.Offset)

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build session listing query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	return scanSessionSummaries(rows, 0)
}

// ListPendingReview returns sessions awaiting a human decision. Besides
// NEEDS_REVIEW rows it surfaces PROCESSING sessions whose job started before
// staleCutoff as recoverable, so a crashed worker never orphans a session.
// This is a read-time check: no sweeper, no prior write.
func ListPendingReview(db *sql.DB, schoolID *uint, staleCutoff int64) ([]SessionSummary, error) {
	qb := psql.Select(
		"id", "school_id", "class_id", "date", "status",
		"detected_count", "matched_count", "flagged_count", "ignored_count",
		"created_by", "created_at",
	).From("attendance_sessions").
		Where(sq.Or{
			sq.Eq{"status": "NEEDS_REVIEW"},
			sq.And{
				sq.Eq{"status": "PROCESSING"},
				sq.NotEq{"processing_started_at": nil},
				sq.LtOrEq{"processing_started_at": staleCutoff},
			},
		}).
		OrderBy("created_at ASC")

	if schoolID != nil {
		qb = qb.Where(sq.Eq{"school_id": *schoolID})
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending review query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending review sessions: %w", err)
	}
	defer rows.Close()

	return scanSessionSummaries(rows, staleCutoff)
}

func scanSessionSummaries(rows *sql.Rows, staleCutoff int64) ([]SessionSummary, error) {
	summaries := []SessionSummary{}
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(
			&s.ID, &s.SchoolID, &s.ClassID, &s.Date, &s.Status,
			&s.DetectedCount, &s.MatchedCount, &s.FlaggedCount, &s.IgnoredCount,
			&s.CreatedBy, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		if staleCutoff > 0 && s.Status == "PROCESSING" {
			s.Stale = true
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// EnrollmentFilters narrows the reference-embedding listing.
type EnrollmentFilters struct {
	SchoolID   *uint
	StudentID  *uint
	ActiveOnly bool
	Limit      uint64
	Offset     uint64
}

// EnrollmentSummary is one listed reference embedding (vector omitted).
type EnrollmentSummary struct {
	ID             uint    `json:"id"`
	StudentID      uint    `json:"student_id"`
	SchoolID       uint    `json:"school_id"`
	ModelVersion   string  `json:"model_version"`
	SourceImageRef string  `json:"source_image_ref"`
	QualityScore   float64 `json:"quality_score"`
	IsActive       bool    `json:"is_active"`
	CreatedAt      int64   `json:"created_at"`
}

// ListEnrollmentSummaries runs the filterable enrollment listing.
func ListEnrollmentSummaries(db *sql.DB, filters EnrollmentFilters) ([]EnrollmentSummary, error) {
	qb := psql.Select(
		"id", "student_id", "school_id", "model_version",
		"source_image_ref", "quality_score", "is_active", "created_at",
	).From("reference_embeddings").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("created_at DESC")

	if filters.SchoolID != nil {
		qb = qb.Where(sq.Eq{"school_id": *filters.SchoolID})
	}
	if filters.StudentID != nil {
		qb = qb.Where(sq.Eq{"student_id": *filters.StudentID})
	}
	if filters.ActiveOnly {
		qb = qb.Where(sq.Eq{"is_active": true})
	}

	limit := filters.Limit
	if limit == 0 {
		limit = defaultSessionPageSize
	}
	qb = qb.Limit(limit).Offset(filters.Offset)

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build enrollment listing query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollment summaries: %w", err)
	}
	defer rows.Close()

	summaries := []EnrollmentSummary{}
	for rows.Next() {
		var e EnrollmentSummary
		if err := rows.Scan(
			&e.ID, &e.StudentID, &e.SchoolID, &e.ModelVersion,
			&e.SourceImageRef, &e.QualityScore, &e.IsActive, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment summary: %w", err)
		}
		summaries = append(summaries, e)
	}
	return summaries, rows.Err()
}
