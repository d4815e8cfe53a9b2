package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toonfeed/toonfeed/app/config"
	"github.com/toonfeed/toonfeed/app/database"
	"github.com/toonfeed/toonfeed/app/generation"
	"github.com/toonfeed/toonfeed/app/ingest"
	"github.com/toonfeed/toonfeed/app/limiter"
)

// maxNewsItems caps the /news response size
const maxNewsItems = 100

// captionLength is where headline captions are truncated
const captionLength = 80

func NewHandler(feedsFile *config.FeedsFile, db *database.DB, itemRepo database.ItemRepository,
	feedRepo database.FeedRepository, lim *limiter.Limiter, generator *generation.Client,
	orchestrator *ingest.Orchestrator, location *time.Location, allowStaticFallback bool) *Handler {
	return &Handler{
		feedsFile:           feedsFile,
		db:                  db,
		itemRepo:            itemRepo,
		feedRepo:            feedRepo,
		limiter:             lim,
		generator:           generator,
		orchestrator:        orchestrator,
		location:            location,
		allowStaticFallback: allowStaticFallback,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"hasGenerationKey": h.generator.Configured(),
		"model":            h.generator.Model(),
	})
}

func (h *Handler) GetNews(c *gin.Context) {
	items, err := h.itemRepo.QueryToday(c.Request.Context(), h.location, maxNewsItems)
	if err != nil {
		slog.Error("Database error", "operation", "query_today", "error", err)
		items = nil
	}

	if len(items) == 0 {
		c.JSON(http.StatusOK, h.fallbackNews())
		return
	}

	news := make([]NewsItem, 0, len(items))
	for _, item := range items {
		news = append(news, NewsItem{
			ID:                  item.ID,
			FeedID:              item.FeedID,
			Headline:            item.Title,
			Summary:             item.Summary,
			SourceName:          item.FeedName,
			SourceURL:           item.URL,
			PregeneratedCaption: caption(item.Title),
			BasePrompt:          basePrompt(item.Title, item.Summary),
			InitialImageURL:     "",
			Category:            item.Category,
		})
	}

	c.JSON(http.StatusOK, news)
}

// fallbackNews serves the configured static headlines when no live items are
// available and the fallback flag is enabled. Otherwise an empty list.
func (h *Handler) fallbackNews() []NewsItem {
	if !h.allowStaticFallback {
		return []NewsItem{}
	}

	news := make([]NewsItem, 0, len(h.feedsFile.Fallback))
	for i, item := range h.feedsFile.Fallback {
		news = append(news, NewsItem{
			ID:                  strconv.Itoa(i + 1),
			Headline:            item.Headline,
			Summary:             item.Summary,
			SourceName:          item.SourceName,
			SourceURL:           item.SourceURL,
			PregeneratedCaption: caption(item.Headline),
			BasePrompt:          basePrompt(item.Headline, item.Summary),
			InitialImageURL:     "",
			Category:            item.Category,
		})
	}
	return news
}

func (h *Handler) GenerateImage(c *gin.Context) {
	clientIP := limiter.ClientIP(c.Request)

	err := h.limiter.Allow(c.Request.Context(), clientIP, "generate-image")
	if err != nil {
		var exceeded *limiter.ExceededError
		if errors.As(err, &exceeded) {
			retryAfter := exceeded.RetryAfterSeconds()
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, GenerateImageError{
				Error: ErrorDetails{
					Code: "RATE_LIMITED",
					Message: fmt.Sprintf(
						"Rate limit exceeded. You can generate up to %d cartoons every %s. Please wait %d seconds and try again.",
						exceeded.Limit, exceeded.Window, retryAfter),
					Status: intPtr(http.StatusTooManyRequests),
					Model:  h.generator.Model(),
				},
			})
			return
		}

		slog.Error("Rate limit check failed", "error", err)
		c.JSON(http.StatusInternalServerError, h.generationError("UNKNOWN", "Rate limit check failed.", http.StatusInternalServerError))
		return
	}

	if !h.generator.Configured() {
		c.JSON(http.StatusOK, h.generationError("MISSING_API_KEY",
			"Image generation API key is not configured.", http.StatusInternalServerError))
		return
	}

	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, h.generationError("MISSING_INPUT",
			"Provide either 'prompt' or 'headlineId'.", http.StatusBadRequest))
		return
	}

	prompt, errResp := h.resolvePrompt(c, req)
	if errResp != nil {
		c.JSON(http.StatusOK, *errResp)
		return
	}

	start := time.Now()
	result, err := h.generator.Generate(c.Request.Context(), prompt)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		var genErr *generation.Error
		if !errors.As(err, &genErr) {
			genErr = &generation.Error{Kind: generation.KindUnknown, Message: "Image generation failed."}
		}

		slog.Warn("Image generation failed",
			"model", h.generator.Model(),
			"kind", genErr.Kind,
			"elapsed_ms", elapsed,
			"request_id", genErr.RequestID)

		var status *int
		if genErr.HTTPStatus > 0 {
			status = intPtr(genErr.HTTPStatus)
		}
		c.JSON(http.StatusOK, GenerateImageError{
			Error: ErrorDetails{
				Code:      string(genErr.Kind),
				Message:   clientMessage(genErr),
				Status:    status,
				Model:     h.generator.Model(),
				RequestID: genErr.RequestID,
			},
		})
		return
	}

	slog.Info("Image generated",
		"model", result.Model,
		"elapsed_ms", elapsed,
		"attempts", result.Attempts,
		"request_id", result.RequestID)

	c.JSON(http.StatusOK, GenerateImageResponse{
		OK:          true,
		ImageBase64: result.ImageBase64,
		MimeType:    result.MimeType,
		Model:       result.Model,
		RequestID:   result.RequestID,
	})
}

// resolvePrompt builds the final generation prompt from either the direct
// prompt text or a stored headline plus style
func (h *Handler) resolvePrompt(c *gin.Context, req GenerateImageRequest) (string, *GenerateImageError) {
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		if len(prompt) > generation.MaxPromptLength {
			resp := h.generationError("PROMPT_TOO_LONG",
				fmt.Sprintf("Prompt must be at most %d characters.", generation.MaxPromptLength),
				http.StatusBadRequest)
			return "", &resp
		}
		return generation.BuildPrompt(prompt, "", generation.StyleDefault), nil
	}

	headlineID := strings.TrimSpace(req.HeadlineID)
	if headlineID == "" {
		resp := h.generationError("MISSING_INPUT", "Provide either 'prompt' or 'headlineId'.", http.StatusBadRequest)
		return "", &resp
	}

	style := req.Style
	if style == "" {
		style = generation.StyleDefault
	}
	if !generation.AllowedStyle(style) {
		resp := h.generationError("INVALID_STYLE",
			fmt.Sprintf("Invalid style. Allowed: %s", strings.Join(generation.AllowedStyles(), ", ")),
			http.StatusBadRequest)
		return "", &resp
	}

	item, err := h.itemRepo.GetItem(c.Request.Context(), headlineID)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "item", headlineID, "error", err)
		resp := h.generationError("UNKNOWN", "Headline lookup failed.", http.StatusInternalServerError)
		return "", &resp
	}
	if item == nil {
		resp := h.generationError("HEADLINE_NOT_FOUND",
			fmt.Sprintf("Headline with id %s not found.", headlineID), http.StatusNotFound)
		return "", &resp
	}

	return generation.BuildPrompt(item.Title, item.Summary, style), nil
}

func (h *Handler) PullFeeds(c *gin.Context) {
	start := time.Now().UTC()

	summary, err := h.orchestrator.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, database.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "An ingestion run is already in progress"})
			return
		}
		slog.Error("Ingestion run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ingestion error"})
		return
	}

	feedErrors := make([]IngestFeedError, 0, len(summary.Errors))
	for _, failure := range summary.Errors {
		feedErrors = append(feedErrors, IngestFeedError{
			FeedID:    failure.FeedID,
			ErrorType: failure.ErrorType,
			Message:   failure.Message,
		})
	}

	c.JSON(http.StatusOK, IngestResponse{
		OK:             true,
		RunID:          summary.RunID,
		Status:         summary.Status,
		TotalFeeds:     summary.TotalFeeds,
		FeedsSucceeded: summary.FeedsSucceeded,
		FeedsFailed:    summary.FeedsFailed,
		NotModified:    summary.NotModified,
		ItemsInserted:  summary.ItemsInserted,
		ItemsUpdated:   summary.ItemsUpdated,
		FeedsPruned:    summary.FeedsPruned,
		Errors:         feedErrors,
		DurationMs:     summary.Duration.Milliseconds(),
		CompletedAt:    start.Add(summary.Duration).Format(time.RFC3339),
	})
}

func (h *Handler) GetDebugDB(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "Database connection error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) generationError(code, message string, status int) GenerateImageError {
	return GenerateImageError{
		Error: ErrorDetails{
			Code:    code,
			Message: message,
			Status:  intPtr(status),
			Model:   h.generator.Model(),
		},
	}
}

// clientMessage keeps upstream failure messages friendly and free of detail
// that only matters in logs
func clientMessage(err *generation.Error) string {
	switch err.Kind {
	case generation.KindRateLimited:
		return "Rate limit exceeded. Please try again in a moment."
	case generation.KindUnavailable:
		return "Service temporarily unavailable. Please try again."
	case generation.KindUnauthorized:
		return "Image generation failed."
	default:
		if err.Message != "" {
			return err.Message
		}
		return "Image generation failed."
	}
}

// caption and basePrompt truncate by runes so a cut never lands inside a
// multi-byte character

func caption(title string) string {
	runes := []rune(title)
	if len(runes) > captionLength {
		return string(runes[:captionLength]) + "..."
	}
	return title
}

func basePrompt(title, summary string) string {
	if summary == "" {
		return title
	}
	if runes := []rune(summary); len(runes) > 100 {
		summary = string(runes[:100])
	}
	return fmt.Sprintf("%s. %s", title, summary)
}

func intPtr(v int) *int {
	return &v
}
