package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/toonfeed/toonfeed/app/config"
	"github.com/toonfeed/toonfeed/app/database"
	"github.com/toonfeed/toonfeed/app/feed"
	"github.com/toonfeed/toonfeed/app/generation"
	"github.com/toonfeed/toonfeed/app/ingest"
	"github.com/toonfeed/toonfeed/app/limiter"
)

const testCronSecret = "test-secret"

type apiEnv struct {
	db        *database.DB
	itemRepo  database.ItemRepository
	feedRepo  database.FeedRepository
	feedsFile *config.FeedsFile
	router    *gin.Engine
}

// newAPIEnv wires a full server against a temp database and a fake upstream
// that always returns one image
func newAPIEnv(t *testing.T, apiKey string, allowFallback bool) *apiEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aW1hZ2U="}}]}}]}`))
	}))
	t.Cleanup(upstream.Close)

	feedsFile := &config.FeedsFile{
		Defaults: config.Defaults{TimeoutSeconds: 5, MaxItemsPerFeed: 3, Enabled: true},
		Fallback: []config.FallbackItem{
			{Headline: "Seed Headline", Summary: "Seed summary", SourceName: "Seeds",
				SourceURL: "https://example.com/seed", Category: "Culture"},
		},
	}

	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)
	runRepo := database.NewRunRepository(db)
	rateRepo := database.NewRateLimitRepository(db)

	generator := generation.NewClient(upstream.Client(), apiKey, "test-model", upstream.URL, 0)

	orchestrator := ingest.NewOrchestrator(feedsFile,
		feed.NewFetcher(&http.Client{}, "test-agent"),
		feed.NewParser(),
		feed.NewClassifier(nil),
		feedRepo, itemRepo, runRepo,
		ingest.NewSweeper(itemRepo, runRepo, rateRepo),
		ingest.Options{Concurrency: 1, FetchTimeout: time.Second, MaxItemsPerFeed: 3})

	rateLimiter := limiter.NewLimiter(rateRepo, 10, 5*time.Minute)

	handler := NewHandler(feedsFile, db, itemRepo, feedRepo, rateLimiter,
		generator, orchestrator, time.UTC, allowFallback)

	return &apiEnv{
		db:        db,
		itemRepo:  itemRepo,
		feedRepo:  feedRepo,
		feedsFile: feedsFile,
		router:    NewServer(handler, testCronSecret, false),
	}
}

func (env *apiEnv) request(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthReportsKeyPresence(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "GET", "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["ok"] != true {
		t.Error("Expected ok true")
	}
	if body["hasGenerationKey"] != true {
		t.Error("Expected hasGenerationKey true")
	}
	if body["model"] != "test-model" {
		t.Errorf("Expected model 'test-model', got '%v'", body["model"])
	}
}

func TestNewsServesFallbackWhenEmpty(t *testing.T) {
	env := newAPIEnv(t, "test-key", true)

	resp := env.request(t, "GET", "/news", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var items []NewsItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 fallback item, got %d", len(items))
	}
	if items[0].Headline != "Seed Headline" {
		t.Errorf("Expected fallback headline, got '%s'", items[0].Headline)
	}
}

func TestNewsReturnsEmptyListWithoutFallback(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "GET", "/news", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	if body := strings.TrimSpace(resp.Body.String()); body != "[]" {
		t.Errorf("Expected empty JSON array, got '%s'", body)
	}
}

func TestNewsServesStoredItems(t *testing.T) {
	env := newAPIEnv(t, "test-key", true)
	ctx := context.Background()

	err := env.feedRepo.UpsertFeed(ctx, database.Feed{
		ID: "test_feed", Name: "Test Feed", URL: "https://example.com/f.xml",
		Category: "World", Enabled: true,
	})
	if err != nil {
		t.Fatalf("Failed to seed feed: %v", err)
	}
	_, err = env.itemRepo.UpsertItem(ctx, database.Item{
		FeedID: "test_feed", Title: "Stored Headline", Summary: "Stored summary",
		URL: "https://example.com/story", Category: "World",
	})
	if err != nil {
		t.Fatalf("Failed to seed item: %v", err)
	}

	resp := env.request(t, "GET", "/news", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var items []NewsItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Headline != "Stored Headline" {
		t.Errorf("Expected stored headline, got '%s'", items[0].Headline)
	}
	if items[0].SourceName != "Test Feed" {
		t.Errorf("Expected source name 'Test Feed', got '%s'", items[0].SourceName)
	}
	if items[0].BasePrompt != "Stored Headline. Stored summary" {
		t.Errorf("Unexpected base prompt: '%s'", items[0].BasePrompt)
	}
}

func TestGenerateImageWithPrompt(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "POST", "/generate-image", `{"prompt":"draw a cat"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body GenerateImageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !body.OK {
		t.Fatalf("Expected ok true, got body %s", resp.Body.String())
	}
	if body.ImageBase64 != "aW1hZ2U=" {
		t.Errorf("Expected image data, got '%s'", body.ImageBase64)
	}
	if body.MimeType != "image/png" {
		t.Errorf("Expected mime type 'image/png', got '%s'", body.MimeType)
	}
}

func TestGenerateImageRejectsMissingInput(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "POST", "/generate-image", `{}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body GenerateImageError
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.OK {
		t.Error("Expected ok false")
	}
	if body.Error.Code != "MISSING_INPUT" {
		t.Errorf("Expected code 'MISSING_INPUT', got '%s'", body.Error.Code)
	}
}

func TestGenerateImageRejectsLongPrompt(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	long := strings.Repeat("x", generation.MaxPromptLength+1)
	resp := env.request(t, "POST", "/generate-image", `{"prompt":"`+long+`"}`, nil)

	var body GenerateImageError
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error.Code != "PROMPT_TOO_LONG" {
		t.Errorf("Expected code 'PROMPT_TOO_LONG', got '%s'", body.Error.Code)
	}
}

func TestGenerateImageRejectsUnknownStyle(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "POST", "/generate-image", `{"headlineId":"some-id","style":"Grimdark"}`, nil)

	var body GenerateImageError
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error.Code != "INVALID_STYLE" {
		t.Errorf("Expected code 'INVALID_STYLE', got '%s'", body.Error.Code)
	}
}

func TestGenerateImageRejectsUnknownHeadline(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "POST", "/generate-image", `{"headlineId":"missing-id"}`, nil)

	var body GenerateImageError
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error.Code != "HEADLINE_NOT_FOUND" {
		t.Errorf("Expected code 'HEADLINE_NOT_FOUND', got '%s'", body.Error.Code)
	}
}

func TestGenerateImageReportsMissingKey(t *testing.T) {
	env := newAPIEnv(t, "", false)

	resp := env.request(t, "POST", "/generate-image", `{"prompt":"draw a cat"}`, nil)

	var body GenerateImageError
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error.Code != "MISSING_API_KEY" {
		t.Errorf("Expected code 'MISSING_API_KEY', got '%s'", body.Error.Code)
	}
}

func TestGenerateImageRateLimitsClients(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	headers := map[string]string{"X-Forwarded-For": "203.0.113.5"}
	for i := 0; i < 10; i++ {
		resp := env.request(t, "POST", "/generate-image", `{"prompt":"draw a cat"}`, headers)
		if resp.Code != http.StatusOK {
			t.Fatalf("Expected request %d to pass the limiter, got %d", i+1, resp.Code)
		}
	}

	resp := env.request(t, "POST", "/generate-image", `{"prompt":"draw a cat"}`, headers)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 on the 11th request, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}

	var body GenerateImageError
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error.Code != "RATE_LIMITED" {
		t.Errorf("Expected code 'RATE_LIMITED', got '%s'", body.Error.Code)
	}

	// A different client is unaffected
	other := env.request(t, "POST", "/generate-image", `{"prompt":"draw a cat"}`,
		map[string]string{"X-Forwarded-For": "203.0.113.6"})
	if other.Code != http.StatusOK {
		t.Errorf("Expected a different client to be allowed, got %d", other.Code)
	}
}

func TestCronRequiresSecret(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "POST", "/cron/pull-feeds", "", nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without a secret, got %d", resp.Code)
	}

	resp = env.request(t, "POST", "/cron/pull-feeds", "",
		map[string]string{"Authorization": "Bearer wrong-secret"})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a wrong secret, got %d", resp.Code)
	}
}

func TestCronAcceptsBothAuthHeaders(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	for _, headers := range []map[string]string{
		{"Authorization": "Bearer " + testCronSecret},
		{"X-Cron-Secret": testCronSecret},
	} {
		resp := env.request(t, "GET", "/cron/pull-feeds", "", headers)
		if resp.Code != http.StatusOK {
			t.Errorf("Expected 200 with valid secret via %v, got %d: %s", headers, resp.Code, resp.Body.String())
			continue
		}

		var body IngestResponse
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !body.OK {
			t.Errorf("Expected ok true, got %s", resp.Body.String())
		}
		if body.Errors == nil {
			t.Error("Expected an errors list, empty when every feed succeeds")
		}
	}
}

func TestCronReportsFeedFailures(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	env.feedsFile.Feeds = append(env.feedsFile.Feeds, config.Source{
		ID: "broken_feed", Name: "Broken Feed", URL: broken.URL, Category: "World",
	})

	resp := env.request(t, "POST", "/cron/pull-feeds", "",
		map[string]string{"X-Cron-Secret": testCronSecret})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body IngestResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !body.OK {
		t.Errorf("Expected ok true, got %s", resp.Body.String())
	}
	if body.Status != database.RunStatusFailed {
		t.Errorf("Expected status '%s', got '%s'", database.RunStatusFailed, body.Status)
	}
	if len(body.Errors) != 1 {
		t.Fatalf("Expected 1 feed error, got %d: %s", len(body.Errors), resp.Body.String())
	}
	if body.Errors[0].FeedID != "broken_feed" {
		t.Errorf("Expected feedId 'broken_feed', got '%s'", body.Errors[0].FeedID)
	}
	if body.Errors[0].ErrorType != feed.ErrorTypeHTTP {
		t.Errorf("Expected errorType '%s', got '%s'", feed.ErrorTypeHTTP, body.Errors[0].ErrorType)
	}
	if body.Errors[0].Message == "" {
		t.Error("Expected a failure message")
	}
}

func TestCaptionTruncatesOnRuneBoundary(t *testing.T) {
	title := strings.Repeat("ñ", captionLength+20)
	got := caption(title)

	if !utf8.ValidString(got) {
		t.Error("Expected caption to remain valid UTF-8")
	}
	if want := strings.Repeat("ñ", captionLength) + "..."; got != want {
		t.Errorf("Expected %d-character caption with ellipsis, got '%s'", captionLength, got)
	}
}

func TestBasePromptTruncatesSummaryOnRuneBoundary(t *testing.T) {
	got := basePrompt("Headline", strings.Repeat("ü", 150))

	if !utf8.ValidString(got) {
		t.Error("Expected base prompt to remain valid UTF-8")
	}
	if want := "Headline. " + strings.Repeat("ü", 100); got != want {
		t.Errorf("Expected summary capped at 100 characters, got '%s'", got)
	}
}

func TestDebugDBReportsHealthyConnection(t *testing.T) {
	env := newAPIEnv(t, "test-key", false)

	resp := env.request(t, "GET", "/debug/db", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("Expected ok true, got %v", body)
	}
}
