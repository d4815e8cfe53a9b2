package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Result is a successful generation outcome
type Result struct {
	ImageBase64 string
	MimeType    string
	Model       string
	RequestID   string
	Attempts    int
}

// Client proxies image generation requests to the upstream model API,
// retrying transient failures with exponential backoff
type Client struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	maxAttempts int

	// newBackOff is swapped out in tests to avoid real sleeps
	newBackOff func() backoff.BackOff
}

// NewClient creates a new generation client. maxAttempts is the total number
// of upstream calls per Generate, counting the first one; values below 1 are
// treated as 1.
func NewClient(httpClient *http.Client, apiKey, model, baseURL string, maxAttempts int) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		httpClient:  httpClient,
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 1 * time.Second
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// Model returns the configured upstream model name
func (c *Client) Model() string {
	return c.model
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type upstreamErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate submits the prompt upstream and returns the first inline image
// from the response. Rate limit and availability failures are retried with
// backoff; the rest fail immediately with their classified kind.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	requestID := uuid.NewString()[:8]

	if c.apiKey == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "generation API key is not configured", RequestID: requestID}
	}

	attempts := 0
	operation := func() (*Result, error) {
		attempts++
		result, err := c.generateOnce(ctx, prompt, requestID)
		if err != nil {
			var genErr *Error
			if errors.As(err, &genErr) && !genErr.Retryable() {
				return nil, backoff.Permanent(err)
			}
			slog.Warn("Generation attempt failed",
				"request_id", requestID, "attempt", attempts, "error", err)
			return nil, err
		}
		return result, nil
	}

	result, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx))
	if err != nil {
		var genErr *Error
		if !errors.As(err, &genErr) {
			genErr = &Error{Kind: KindUnknown, Message: err.Error(), RequestID: requestID}
		}
		return nil, genErr
	}

	result.Attempts = attempts
	return result, nil
}

func (c *Client) generateOnce(ctx context.Context, prompt, requestID string) (*Result, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("failed to encode request: %v", err), RequestID: requestID}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("failed to create request: %v", err), RequestID: requestID}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: fmt.Sprintf("upstream request failed: %v", err), RequestID: requestID}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: fmt.Sprintf("failed to read upstream response: %v", err), RequestID: requestID}
	}

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode)
		var upstreamErr upstreamErrorResponse
		if json.Unmarshal(respBody, &upstreamErr) == nil && upstreamErr.Error.Message != "" {
			message = upstreamErr.Error.Message
		}
		return nil, &Error{
			Kind:       KindFromStatus(resp.StatusCode),
			Message:    message,
			HTTPStatus: resp.StatusCode,
			RequestID:  requestID,
		}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("failed to decode upstream response: %v", err), RequestID: requestID}
	}

	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				mimeType := part.InlineData.MimeType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return &Result{
					ImageBase64: part.InlineData.Data,
					MimeType:    mimeType,
					Model:       c.model,
					RequestID:   requestID,
				}, nil
			}
		}
	}

	return nil, &Error{Kind: KindUnknown, Message: "upstream response contained no image data", RequestID: requestID}
}
