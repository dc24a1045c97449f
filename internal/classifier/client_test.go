package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gigsnap/internal/models"
)

func TestAnalyzeDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MediaID != 7 || req.StorageRef != "s3://bucket/7.jpg" {
			t.Errorf("unexpected request body %+v", req)
		}
		_, _ = w.Write([]byte(`{
			"artist": {"name": " Boygenius ", "confidence": 1.4, "clues": ["banner"]},
			"venue": {"name": "The Orpheum", "city": "Los Angeles", "confidence": 0.8},
			"estimatedDate": "2024-06-01",
			"overallConfidence": 0.93,
			"reasoning": "stage banner"
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL + "/", APIKey: "key"})
	result, err := client.Analyze(context.Background(), models.MediaItem{ID: 7, Kind: models.MediaImage, StorageRef: "s3://bucket/7.jpg"})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.Artist.Name != "Boygenius" {
		t.Fatalf("expected trimmed artist name, got %q", result.Artist.Name)
	}
	if result.Artist.Confidence != 1 {
		t.Fatalf("expected clamped confidence, got %v", result.Artist.Confidence)
	}
	if result.EstimatedDate == nil || result.EstimatedDate.String() != "2024-06-01" {
		t.Fatalf("unexpected date %v", result.EstimatedDate)
	}
}

func TestAnalyzeFailureReasons(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		reason    string
		retryable bool
	}{
		{"server error", http.StatusBadGateway, "upstream", ReasonUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, "slow down", ReasonUnavailable, true},
		{"rejected", http.StatusUnprocessableEntity, "unsupported media", ReasonRejected, false},
		{"garbage", http.StatusOK, "<html>", ReasonInvalidResponse, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(Config{URL: server.URL})
			_, err := client.Analyze(context.Background(), models.MediaItem{ID: 1})

			var classifierErr *Error
			if !errors.As(err, &classifierErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if classifierErr.Reason != tc.reason || classifierErr.Retryable != tc.retryable {
				t.Fatalf("unexpected failure %+v", classifierErr)
			}
		})
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(Config{URL: server.URL})
	_, err := client.Analyze(ctx, models.MediaItem{ID: 1})

	var classifierErr *Error
	if !errors.As(err, &classifierErr) || classifierErr.Reason != ReasonTimeout {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}

func TestAnalyzeWithoutURL(t *testing.T) {
	_, err := NewClient(Config{}).Analyze(context.Background(), models.MediaItem{ID: 1})

	var classifierErr *Error
	if !errors.As(err, &classifierErr) || classifierErr.Reason != ReasonUnavailable {
		t.Fatalf("expected unavailable failure, got %v", err)
	}
}
