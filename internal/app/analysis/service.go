package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"gigsnap/internal/classifier"
	"gigsnap/internal/models"
	"gigsnap/internal/store"
)

// ErrAlreadyAnalyzed is returned when analysis is requested for a completed item.
var ErrAlreadyAnalyzed = errors.New("media item already analyzed")

// Failure reasons recorded alongside classifier reasons.
const (
	ReasonRankingFailed = "ranking_failed"
	ReasonInternal      = "internal"
)

// Store defines the persistence the coordinator drives.
type Store interface {
	GetMediaItem(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
	BeginAnalysis(ctx context.Context, ownerID, mediaID int64, runID string) (bool, error)
	CompleteAnalysis(ctx context.Context, mediaID int64, runID string, result models.AnalysisResult, suggestions []models.MatchSuggestion) error
	FailAnalysis(ctx context.Context, mediaID int64, runID string, failure models.AnalysisError) error
}

// Classifier extracts artist, venue and date clues from media.
type Classifier interface {
	Analyze(ctx context.Context, item models.MediaItem) (models.AnalysisResult, error)
}

// Ranker proposes concerts for a completed analysis.
type Ranker interface {
	Rank(ctx context.Context, result models.AnalysisResult, ownerID int64) ([]models.MatchSuggestion, error)
	AutoLinkTarget(result models.AnalysisResult, suggestions []models.MatchSuggestion) (int64, bool)
}

// AutoLinker assigns media to a concert without user review.
type AutoLinker interface {
	AutoLink(ctx context.Context, ownerID, mediaID, concertID int64) error
}

// Config bounds the background work.
type Config struct {
	Workers           int
	ClassifierTimeout time.Duration
}

// Service coordinates asynchronous media analysis.
type Service interface {
	Submit(ctx context.Context, ownerID, mediaID int64) error
	Status(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
	// Wait blocks until every dispatched run has finished.
	Wait()
}

type service struct {
	store      Store
	classifier Classifier
	ranker     Ranker
	linker     AutoLinker
	cfg        Config
	log        zerolog.Logger

	sem *semaphore.Weighted
	wg  conc.WaitGroup
	now func() time.Time
}

// New constructs the analysis coordinator. linker may be nil to disable auto-linking.
func New(st Store, cl Classifier, ranker Ranker, linker AutoLinker, cfg Config, log zerolog.Logger) Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = 90 * time.Second
	}
	return &service{
		store:      st,
		classifier: cl,
		ranker:     ranker,
		linker:     linker,
		cfg:        cfg,
		log:        log,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		now:        time.Now,
	}
}

// Submit starts an analysis run unless one is already in flight. Only one of
// any number of concurrent callers wins the transition into processing.
func (s *service) Submit(ctx context.Context, ownerID, mediaID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runID := uuid.NewString()
	started, err := s.store.BeginAnalysis(ctx, ownerID, mediaID, runID)
	if err != nil {
		return fmt.Errorf("begin analysis: %w", err)
	}
	if !started {
		item, err := s.store.GetMediaItem(ctx, ownerID, mediaID)
		if err != nil {
			return err
		}
		if item.Status() == models.StatusCompleted {
			return ErrAlreadyAnalyzed
		}
		// another caller owns the run
		return nil
	}

	// The run outlives the request that started it.
	jobCtx := context.WithoutCancel(ctx)
	s.wg.Go(func() {
		s.run(jobCtx, ownerID, mediaID, runID)
	})
	return nil
}

func (s *service) Status(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GetMediaItem(ctx, ownerID, mediaID)
}

func (s *service) Wait() {
	s.wg.Wait()
}

func (s *service) run(ctx context.Context, ownerID, mediaID int64, runID string) {
	log := s.log.With().
		Int64("media_id", mediaID).
		Int64("owner_id", ownerID).
		Str("run_id", runID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("analysis run panicked")
			s.fail(ctx, log, mediaID, runID, failure(ReasonInternal, fmt.Sprint(r), true))
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.fail(ctx, log, mediaID, runID, failure(ReasonInternal, err.Error(), true))
		return
	}
	defer s.sem.Release(1)

	started := s.now()
	item, err := s.store.GetMediaItem(ctx, ownerID, mediaID)
	if err != nil {
		s.fail(ctx, log, mediaID, runID, failure(ReasonInternal, err.Error(), true))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ClassifierTimeout)
	result, err := s.classifier.Analyze(callCtx, *item)
	cancel()
	if err != nil {
		s.fail(ctx, log, mediaID, runID, classifierFailure(err))
		return
	}

	suggestions, err := s.ranker.Rank(ctx, result, ownerID)
	if err != nil {
		s.fail(ctx, log, mediaID, runID, failure(ReasonRankingFailed, err.Error(), true))
		return
	}
	if suggestions == nil {
		suggestions = []models.MatchSuggestion{}
	}

	if err := s.store.CompleteAnalysis(ctx, mediaID, runID, result, suggestions); err != nil {
		if errors.Is(err, store.ErrStaleRun) {
			log.Warn().Msg("analysis run superseded, dropping result")
			return
		}
		log.Error().Err(err).Msg("failed to store analysis result")
		s.fail(ctx, log, mediaID, runID, failure(ReasonInternal, err.Error(), true))
		return
	}

	log.Info().
		Int("suggestions", len(suggestions)).
		Float64("overall_confidence", result.OverallConfidence).
		Dur("duration", s.now().Sub(started)).
		Msg("analysis completed")

	if s.linker == nil {
		return
	}
	if concertID, ok := s.ranker.AutoLinkTarget(result, suggestions); ok {
		if err := s.linker.AutoLink(ctx, ownerID, mediaID, concertID); err != nil {
			log.Warn().Err(err).Int64("concert_id", concertID).Msg("auto-link failed")
			return
		}
		log.Info().Int64("concert_id", concertID).Msg("media auto-linked")
	}
}

func (s *service) fail(ctx context.Context, log zerolog.Logger, mediaID int64, runID string, f models.AnalysisError) {
	log.Warn().Str("reason", f.Reason).Str("message", f.Message).Msg("analysis failed")
	if err := s.store.FailAnalysis(ctx, mediaID, runID, f); err != nil {
		if errors.Is(err, store.ErrStaleRun) {
			return
		}
		log.Error().Err(err).Msg("failed to record analysis failure")
	}
}

func classifierFailure(err error) models.AnalysisError {
	var clsErr *classifier.Error
	switch {
	case errors.As(err, &clsErr):
		return failure(clsErr.Reason, err.Error(), clsErr.Retryable)
	case errors.Is(err, context.DeadlineExceeded):
		return failure(classifier.ReasonTimeout, err.Error(), true)
	default:
		return failure(classifier.ReasonUnavailable, err.Error(), true)
	}
}

func failure(reason, message string, retryable bool) models.AnalysisError {
	return models.AnalysisError{Reason: reason, Message: message, Retryable: &retryable}
}
