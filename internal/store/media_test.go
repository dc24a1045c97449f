package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"gigsnap/internal/models"
)

var mediaRowColumns = []string{
	"id", "owner_id", "kind", "storage_ref", "captured_at", "latitude", "longitude",
	"analysis_status", "analysis_run_id", "analysis_result", "analysis_error",
	"match_suggestions", "analysis_started_at", "analysis_finished_at",
	"concert_id", "reviewed_at", "created_at", "updated_at",
}

type mediaRow struct {
	status      string
	runID       any
	result      any
	failure     any
	suggestions any
	concertID   any
}

func (r mediaRow) rows() *sqlmock.Rows {
	now := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(mediaRowColumns).AddRow(
		int64(7), int64(42), "image", "s3://bucket/7.jpg", now, nil, nil,
		r.status, r.runID, r.result, r.failure,
		r.suggestions, nil, nil,
		r.concertID, nil, now, now,
	)
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestBeginAnalysisWinsCAS(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND owner_id = $2 AND analysis_status IN ('pending', 'failed')`)).
		WithArgs(int64(7), int64(42), "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	started, err := s.BeginAnalysis(context.Background(), 42, 7, "run-1")
	if err != nil {
		t.Fatalf("BeginAnalysis returned error: %v", err)
	}
	if !started {
		t.Fatalf("expected CAS to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBeginAnalysisLosesCAS(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE media_items`)).
		WithArgs(int64(7), int64(42), "run-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	started, err := s.BeginAnalysis(context.Background(), 42, 7, "run-2")
	if err != nil {
		t.Fatalf("BeginAnalysis returned error: %v", err)
	}
	if started {
		t.Fatalf("expected CAS to be rejected")
	}
}

func TestCompleteAnalysisWritesEmptySuggestionArray(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET analysis_status = 'completed'`)).
		WithArgs(int64(7), "run-1", sqlmock.AnyArg(), "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CompleteAnalysis(context.Background(), 7, "run-1", models.AnalysisResult{OverallConfidence: 0.5}, nil)
	if err != nil {
		t.Fatalf("CompleteAnalysis returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompleteAnalysisStaleRun(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND analysis_run_id = $2 AND analysis_status = 'processing'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.CompleteAnalysis(context.Background(), 7, "old-run", models.AnalysisResult{}, nil)
	if !errors.Is(err, ErrStaleRun) {
		t.Fatalf("expected ErrStaleRun, got %v", err)
	}
}

func TestFailAnalysis(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET analysis_status = 'failed'`)).
		WithArgs(int64(7), "run-1", `{"reason":"timeout","retryable":true}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	retryable := true
	err := s.FailAnalysis(context.Background(), 7, "run-1", models.AnalysisError{Reason: "timeout", Retryable: &retryable})
	if err != nil {
		t.Fatalf("FailAnalysis returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetMediaItemDecodesCompletedState(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM media_items`)).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(mediaRow{
			status:      "completed",
			runID:       "run-1",
			result:      []byte(`{"artist":{"name":"Boygenius","confidence":0.92},"venue":{"name":"The Orpheum","confidence":0.8},"estimatedDate":"2024-06-01","overallConfidence":0.93}`),
			suggestions: []byte(`[]`),
		}.rows())

	item, err := s.GetMediaItem(context.Background(), 42, 7)
	if err != nil {
		t.Fatalf("GetMediaItem returned error: %v", err)
	}

	completed, ok := item.Analysis.(models.Completed)
	if !ok {
		t.Fatalf("expected Completed state, got %T", item.Analysis)
	}
	if completed.Result.Artist.Name != "Boygenius" {
		t.Fatalf("unexpected artist %q", completed.Result.Artist.Name)
	}
	if completed.Result.EstimatedDate == nil || completed.Result.EstimatedDate.String() != "2024-06-01" {
		t.Fatalf("unexpected estimated date %v", completed.Result.EstimatedDate)
	}
	if item.MatchSuggestions == nil || len(item.MatchSuggestions) != 0 {
		t.Fatalf("expected defined empty suggestions, got %#v", item.MatchSuggestions)
	}
}

func TestGetMediaItemNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM media_items`)).
		WithArgs(int64(7), int64(99)).
		WillReturnRows(sqlmock.NewRows(mediaRowColumns))

	_, err := s.GetMediaItem(context.Background(), 99, 7)
	if !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound, got %v", err)
	}
}

func TestAssignConcertSecondCallIsNoop(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SET concert_id = $3`)).
		WithArgs(int64(7), int64(42), int64(11)).
		WillReturnRows(sqlmock.NewRows(mediaRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM media_items`)).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(mediaRow{status: "pending", concertID: int64(11)}.rows())

	item, err := s.AssignConcert(context.Background(), 42, 7, 11)
	if err != nil {
		t.Fatalf("AssignConcert returned error: %v", err)
	}
	if item.ConcertID == nil || *item.ConcertID != 11 {
		t.Fatalf("expected concert 11, got %v", item.ConcertID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignConcertConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SET concert_id = $3`)).
		WillReturnRows(sqlmock.NewRows(mediaRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM media_items`)).
		WillReturnRows(mediaRow{status: "completed", result: []byte(`{}`), suggestions: []byte(`[]`), concertID: int64(12)}.rows())

	_, err := s.AssignConcert(context.Background(), 42, 7, 11)
	if !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
}

func TestAssignConcertForeignConcert(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SET concert_id = $3`)).
		WillReturnRows(sqlmock.NewRows(mediaRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM media_items`)).
		WillReturnRows(mediaRow{status: "pending"}.rows())

	_, err := s.AssignConcert(context.Background(), 42, 7, 11)
	if !errors.Is(err, ErrConcertNotFound) {
		t.Fatalf("expected ErrConcertNotFound, got %v", err)
	}
}
