package api

import (
	"time"

	"github.com/toonfeed/toonfeed/app/config"
	"github.com/toonfeed/toonfeed/app/database"
	"github.com/toonfeed/toonfeed/app/generation"
	"github.com/toonfeed/toonfeed/app/ingest"
	"github.com/toonfeed/toonfeed/app/limiter"
)

// Handler holds the dependencies shared by all HTTP handlers
type Handler struct {
	feedsFile    *config.FeedsFile
	db           *database.DB
	itemRepo     database.ItemRepository
	feedRepo     database.FeedRepository
	limiter      *limiter.Limiter
	generator    *generation.Client
	orchestrator *ingest.Orchestrator
	location     *time.Location

	allowStaticFallback bool
}

// NewsItem is one headline in the /news response. The field names are the
// frontend contract and must stay stable.
type NewsItem struct {
	ID                  string `json:"id"`
	FeedID              string `json:"feedId"`
	Headline            string `json:"headline"`
	Summary             string `json:"summary"`
	SourceName          string `json:"sourceName"`
	SourceURL           string `json:"sourceUrl"`
	PregeneratedCaption string `json:"pregeneratedCaption"`
	BasePrompt          string `json:"basePrompt"`
	InitialImageURL     string `json:"initialImageUrl"`
	Category            string `json:"category"`
}

// GenerateImageRequest accepts either a direct prompt or a headline reference
type GenerateImageRequest struct {
	Prompt     string `json:"prompt"`
	HeadlineID string `json:"headlineId"`
	Style      string `json:"style"`
}

// GenerateImageResponse is the success envelope for /generate-image
type GenerateImageResponse struct {
	OK          bool   `json:"ok"`
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
	Model       string `json:"model"`
	RequestID   string `json:"requestId"`
}

// GenerateImageError is the failure envelope for /generate-image
type GenerateImageError struct {
	OK    bool         `json:"ok"`
	Error ErrorDetails `json:"error"`
}

// ErrorDetails describes a generation failure to the client
type ErrorDetails struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    *int   `json:"status"`
	Model     string `json:"model"`
	RequestID string `json:"requestId,omitempty"`
}

// IngestResponse summarizes one triggered ingestion run
type IngestResponse struct {
	OK             bool              `json:"ok"`
	RunID          string            `json:"runId"`
	Status         string            `json:"status"`
	TotalFeeds     int               `json:"totalFeeds"`
	FeedsSucceeded int               `json:"feedsSucceeded"`
	FeedsFailed    int               `json:"feedsFailed"`
	NotModified    int               `json:"notModified"`
	ItemsInserted  int               `json:"itemsInserted"`
	ItemsUpdated   int               `json:"itemsUpdated"`
	FeedsPruned    int64             `json:"feedsPruned"`
	Errors         []IngestFeedError `json:"errors"`
	DurationMs     int64             `json:"durationMs"`
	CompletedAt    string            `json:"completedAt"`
}

// IngestFeedError is one failed feed in the cron response
type IngestFeedError struct {
	FeedID    string `json:"feedId"`
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}
