package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"

	"gigsnap/internal/app/analysis"
	"gigsnap/internal/app/assignment"
	"gigsnap/internal/app/concerts"
	"gigsnap/internal/app/lineup"
	"gigsnap/internal/app/matching"
	"gigsnap/internal/app/venues"
	"gigsnap/internal/classifier"
	"gigsnap/internal/config"
	"gigsnap/internal/http/middleware"
	"gigsnap/internal/httpapi"
	"gigsnap/internal/lineupcache"
	"gigsnap/internal/logging"
	"gigsnap/internal/setlistfm"
	"gigsnap/internal/store"
)

type application struct {
	handler  http.Handler
	analysis analysis.Service
	redis    *redis.Client
}

func newApplication(ctx context.Context, cfg *config.Config, dataStore *store.Store, logger *logging.Logger) (*application, error) {
	app := &application{}

	matchingCfg := matching.DefaultConfig()
	matchingCfg.ArtistWeight = cfg.Matching.ArtistWeight
	matchingCfg.VenueWeight = cfg.Matching.VenueWeight
	matchingCfg.DateWeight = cfg.Matching.DateWeight
	matchingCfg.SuggestThreshold = cfg.Matching.SuggestThreshold
	matchingCfg.AutoLinkThreshold = cfg.Matching.AutoLinkThreshold
	matchingCfg.AutoLinkOverall = cfg.Matching.AutoLinkOverall
	matchingCfg.DateToleranceDays = cfg.Matching.DateToleranceDays
	matchingSvc := matching.New(dataStore, matchingCfg)

	var source lineup.Source = setlistfm.NewClient(setlistfm.Config{
		APIKey:  cfg.Setlist.APIKey,
		BaseURL: cfg.Setlist.BaseURL,
	})
	if cfg.Redis.Addr != "" {
		rdb, err := lineupcache.Connect(ctx, lineupcache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.redis = rdb
		source = lineupcache.New(rdb, source, cfg.Redis.LineupTTL, logger.Component("lineupcache"))
	} else {
		logger.Info("REDIS_ADDR not set, lineup caching disabled")
	}

	lineupSvc := lineup.New(source, dataStore, lineup.Config{
		WindowDays: cfg.Setlist.WindowDays,
		Timeout:    cfg.Setlist.Timeout,
	}, logger.Component("lineup"))

	assignmentSvc := assignment.New(dataStore)
	venueSvc := venues.New(dataStore)
	concertSvc := concerts.New(dataStore, venueSvc)

	app.analysis = analysis.New(
		dataStore,
		classifier.NewClient(classifier.Config{URL: cfg.Classifier.URL, APIKey: cfg.Classifier.APIKey}),
		matchingSvc,
		assignmentSvc,
		analysis.Config{Workers: cfg.Classifier.Workers, ClassifierTimeout: cfg.Classifier.Timeout},
		logger.Component("analysis"),
	)

	api := httpapi.New(dataStore, app.analysis, assignmentSvc, lineupSvc, concertSvc, venueSvc, middleware.Auth([]byte(cfg.Security.JWTSecret)))

	httpLog := logger.Component("http")
	var handler http.Handler = api.Routes()
	handler = middleware.CORS(cfg.CORS.AllowedOrigins)(handler)
	handler = middleware.RequestLogging(httpLog)(handler)
	handler = middleware.Recovery(httpLog)(handler)
	app.handler = handler

	return app, nil
}

// close waits for in-flight analysis runs and releases external clients.
func (a *application) close() {
	a.analysis.Wait()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
