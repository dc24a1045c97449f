package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gigsnap/internal/models"
)

const mediaColumns = `
	id, owner_id, kind, storage_ref, captured_at, latitude, longitude,
	analysis_status, analysis_run_id, analysis_result, analysis_error,
	match_suggestions, analysis_started_at, analysis_finished_at,
	concert_id, reviewed_at, created_at, updated_at`

// CreateMediaItem registers an uploaded asset in the pending state.
func (s *Store) CreateMediaItem(ctx context.Context, ownerID int64, item *models.MediaItem) (*models.MediaItem, error) {
	var lat, lng sql.NullFloat64
	if item.Location != nil {
		lat = sql.NullFloat64{Float64: item.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: item.Location.Longitude, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO media_items (owner_id, kind, storage_ref, captured_at, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING`+mediaColumns,
		ownerID, string(item.Kind), item.StorageRef, item.CapturedAt, lat, lng,
	)

	created, err := scanMediaItem(row)
	if err != nil {
		return nil, fmt.Errorf("insert media item: %w", err)
	}
	return created, nil
}

// GetMediaItem loads a media item owned by ownerID.
func (s *Store) GetMediaItem(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+mediaColumns+`
		FROM media_items
		WHERE id = $1 AND owner_id = $2
	`, mediaID, ownerID)

	item, err := scanMediaItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select media item: %w", err)
	}
	return item, nil
}

// BeginAnalysis atomically moves a pending or failed item to processing under
// runID. It reports false when the item was in any other state, which includes
// losing a race against a concurrent submission.
func (s *Store) BeginAnalysis(ctx context.Context, ownerID, mediaID int64, runID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE media_items
		SET analysis_status = 'processing',
		    analysis_run_id = $3,
		    analysis_error = NULL,
		    analysis_started_at = NOW(),
		    analysis_finished_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND analysis_status IN ('pending', 'failed')
	`, mediaID, ownerID, runID)
	if err != nil {
		return false, fmt.Errorf("begin analysis: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin analysis: %w", err)
	}
	return rows == 1, nil
}

// CompleteAnalysis stores the result and the ranked suggestions in one write so
// readers never see suggestions without the completed status.
func (s *Store) CompleteAnalysis(ctx context.Context, mediaID int64, runID string, result models.AnalysisResult, suggestions []models.MatchSuggestion) error {
	if suggestions == nil {
		suggestions = []models.MatchSuggestion{}
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis result: %w", err)
	}
	suggestionsJSON, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("encode match suggestions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE media_items
		SET analysis_status = 'completed',
		    analysis_result = $3::jsonb,
		    match_suggestions = $4::jsonb,
		    analysis_error = NULL,
		    analysis_finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND analysis_run_id = $2 AND analysis_status = 'processing'
	`, mediaID, runID, string(resultJSON), string(suggestionsJSON))
	if err != nil {
		return fmt.Errorf("complete analysis: %w", err)
	}
	return expectOneRow(res, ErrStaleRun)
}

// FailAnalysis records a failed run.
func (s *Store) FailAnalysis(ctx context.Context, mediaID int64, runID string, failure models.AnalysisError) error {
	failureJSON, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("encode analysis error: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE media_items
		SET analysis_status = 'failed',
		    analysis_error = $3::jsonb,
		    analysis_result = NULL,
		    match_suggestions = NULL,
		    analysis_finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND analysis_run_id = $2 AND analysis_status = 'processing'
	`, mediaID, runID, string(failureJSON))
	if err != nil {
		return fmt.Errorf("fail analysis: %w", err)
	}
	return expectOneRow(res, ErrStaleRun)
}

// AssignConcert commits the media item to one of the owner's concerts. Assigning
// the concert the item already points at is a no-op.
func (s *Store) AssignConcert(ctx context.Context, ownerID, mediaID, concertID int64) (*models.MediaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE media_items
		SET concert_id = $3,
		    reviewed_at = COALESCE(reviewed_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND concert_id IS NULL
		  AND EXISTS (SELECT 1 FROM concerts WHERE id = $3 AND owner_id = $2)
		RETURNING`+mediaColumns,
		mediaID, ownerID, concertID,
	)

	item, err := scanMediaItem(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assign concert: %w", err)
	}

	// Nothing updated: find out which precondition failed.
	current, err := s.GetMediaItem(ctx, ownerID, mediaID)
	if err != nil {
		return nil, err
	}
	switch {
	case current.ConcertID == nil:
		return nil, ErrConcertNotFound
	case *current.ConcertID == concertID:
		return current, nil
	default:
		return nil, ErrAlreadyAssigned
	}
}

// MarkReviewed records that the owner looked at the suggestions without choosing one.
func (s *Store) MarkReviewed(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE media_items
		SET reviewed_at = COALESCE(reviewed_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING`+mediaColumns,
		mediaID, ownerID,
	)

	item, err := scanMediaItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark reviewed: %w", err)
	}
	return item, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func scanMediaItem(row rowScanner) (*models.MediaItem, error) {
	var (
		item            models.MediaItem
		kind, status    string
		capturedAt      sql.NullTime
		lat, lng        sql.NullFloat64
		runID           sql.NullString
		resultJSON      []byte
		errorJSON       []byte
		suggestionsJSON []byte
		startedAt       sql.NullTime
		finishedAt      sql.NullTime
		concertID       sql.NullInt64
		reviewedAt      sql.NullTime
	)

	if err := row.Scan(
		&item.ID, &item.OwnerID, &kind, &item.StorageRef, &capturedAt, &lat, &lng,
		&status, &runID, &resultJSON, &errorJSON,
		&suggestionsJSON, &startedAt, &finishedAt,
		&concertID, &reviewedAt, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	item.Kind = models.MediaKind(kind)
	if capturedAt.Valid {
		t := capturedAt.Time
		item.CapturedAt = &t
	}
	if lat.Valid && lng.Valid {
		item.Location = &models.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if concertID.Valid {
		id := concertID.Int64
		item.ConcertID = &id
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		item.ReviewedAt = &t
	}

	switch models.AnalysisStatus(status) {
	case models.StatusPending:
		item.Analysis = models.Pending{}
	case models.StatusProcessing:
		item.Analysis = models.Processing{RunID: runID.String, StartedAt: startedAt.Time}
	case models.StatusCompleted:
		var result models.AnalysisResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode analysis result: %w", err)
		}
		item.Analysis = models.Completed{Result: result, CompletedAt: finishedAt.Time}
	case models.StatusFailed:
		var failure models.AnalysisError
		if err := json.Unmarshal(errorJSON, &failure); err != nil {
			return nil, fmt.Errorf("decode analysis error: %w", err)
		}
		item.Analysis = models.Failed{Error: failure, FailedAt: finishedAt.Time}
	default:
		return nil, fmt.Errorf("unknown analysis status %q", status)
	}

	if suggestionsJSON != nil {
		if err := json.Unmarshal(suggestionsJSON, &item.MatchSuggestions); err != nil {
			return nil, fmt.Errorf("decode match suggestions: %w", err)
		}
	}

	return &item, nil
}
