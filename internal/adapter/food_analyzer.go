// Package adapter holds clients for the external services the bot depends on.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nutrition-bot/internal/circuitbreaker"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/types"
	"golang.org/x/time/rate"
)

const providerName = "food-analyzer"

// maxResponseBytes caps how much of an analyzer response is read.
const maxResponseBytes = 1 << 20

// FoodAnalyzerConfig configures the analyzer client
type FoodAnalyzerConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64
	Breaker           *circuitbreaker.CircuitBreaker
	HTTPClient        *http.Client
}

// FoodAnalyzerClient calls the AI analysis endpoint. It is stateless apart
// from the shared breaker and limiter.
type FoodAnalyzerClient struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// NewFoodAnalyzerClient creates a new analyzer client
func NewFoodAnalyzerClient(cfg FoodAnalyzerConfig) *FoodAnalyzerClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Minute
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(providerName))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &FoodAnalyzerClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		timeout:  timeout,
		client:   client,
		breaker:  breaker,
		limiter:  limiter,
	}
}

type analyzeRequest struct {
	ImageRef string             `json:"image_ref,omitempty"`
	Text     string             `json:"text,omitempty"`
	Locale   string             `json:"locale,omitempty"`
	Profile  *types.UserProfile `json:"profile,omitempty"`
}

type analyzeResponse struct {
	Error  string                `json:"error,omitempty"`
	Result *types.AnalysisResult `json:"result,omitempty"`
}

// Analyze sends one request to the analyzer. Any non-200 status, malformed
// body or error field is returned as a provider error.
func (c *FoodAnalyzerClient) Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error) {
	if req == nil || (req.ImageRef == "" && strings.TrimSpace(req.Text) == "") {
		return nil, apperrors.NewValidationError("request", "image or text is required")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewProviderError(providerName, err)
		}
	}

	var result *types.AnalysisResult
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		result, err = c.do(callCtx, req)
		return err
	})
	if err != nil {
		return nil, apperrors.NewProviderError(providerName, err)
	}
	return result, nil
}

func (c *FoodAnalyzerClient) do(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error) {
	payload, err := json.Marshal(analyzeRequest{
		ImageRef: req.ImageRef,
		Text:     req.Text,
		Locale:   req.Locale,
		Profile:  req.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("analyzer error: %s", parsed.Error)
	}
	if parsed.Result == nil {
		return nil, fmt.Errorf("analyzer returned no result")
	}
	return parsed.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
