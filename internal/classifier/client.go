// Package classifier talks to the content classification service that
// recognises artists and venues in uploaded media.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"gigsnap/internal/models"
)

const defaultHTTPTimeout = 90 * time.Second

// Failure reasons reported through Error.
const (
	ReasonTimeout         = "timeout"
	ReasonUnavailable     = "classifier_unavailable"
	ReasonRejected        = "classifier_rejected"
	ReasonInvalidResponse = "invalid_response"
)

// Error is a classified failure from the analysis service.
type Error struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "classifier: " + e.Reason
	}
	return fmt.Sprintf("classifier: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config captures the settings needed to reach the classifier.
type Config struct {
	URL    string
	APIKey string
}

// Client submits media references for analysis.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a classifier client.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			URL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
			APIKey: strings.TrimSpace(cfg.APIKey),
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type analyzeRequest struct {
	MediaID    int64            `json:"mediaId"`
	Kind       models.MediaKind `json:"kind"`
	StorageRef string           `json:"storageRef"`
	CapturedAt *time.Time       `json:"capturedAt,omitempty"`
	Location   *models.Location `json:"location,omitempty"`
}

// Analyze asks the service what the media shows. The caller bounds the call
// with ctx.
func (c *Client) Analyze(ctx context.Context, item models.MediaItem) (models.AnalysisResult, error) {
	var empty models.AnalysisResult
	if c.cfg.URL == "" {
		return empty, &Error{Reason: ReasonUnavailable, Err: errors.New("classifier url not configured")}
	}

	encoded, err := json.Marshal(analyzeRequest{
		MediaID:    item.ID,
		Kind:       item.Kind,
		StorageRef: item.StorageRef,
		CapturedAt: item.CapturedAt,
		Location:   item.Location,
	})
	if err != nil {
		return empty, fmt.Errorf("classifier request: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/analyze", bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("classifier request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, transportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return empty, &Error{Reason: ReasonUnavailable, Retryable: true, Err: statusErr(resp.StatusCode, body)}
	case resp.StatusCode >= http.StatusBadRequest:
		return empty, &Error{Reason: ReasonRejected, Err: statusErr(resp.StatusCode, body)}
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return empty, &Error{Reason: ReasonInvalidResponse, Retryable: true, Err: err}
	}
	normalize(&result)
	return result, nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Reason: ReasonTimeout, Retryable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Reason: ReasonUnavailable, Retryable: true, Err: err}
}

func statusErr(code int, body []byte) error {
	return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
}

// normalize clamps confidences into [0, 1]. A result with no recognised
// artist or venue is still a valid answer.
func normalize(result *models.AnalysisResult) {
	result.Artist.Name = strings.TrimSpace(result.Artist.Name)
	result.Venue.Name = strings.TrimSpace(result.Venue.Name)
	result.Artist.Confidence = clamp(result.Artist.Confidence)
	result.Venue.Confidence = clamp(result.Venue.Confidence)
	result.OverallConfidence = clamp(result.OverallConfidence)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
