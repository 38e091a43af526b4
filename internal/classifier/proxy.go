package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
)

// Config holds configuration for the proxy client.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	RetryDelay time.Duration
	CacheTTL   time.Duration
	MaxRetries int
	RateLimit  int
}

// ProxyClient calls the classification proxy over HTTP.
type ProxyClient struct {
	httpClient  *http.Client
	cache       *responseCache
	rateLimiter *rateLimiter
	logger      *slog.Logger
	endpoint    string
	apiKey      string
	retryOpts   service.RetryOptions
}

// NewProxyClient creates a client for the classification proxy.
func NewProxyClient(cfg Config, logger *slog.Logger) (*ProxyClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: classifier endpoint is required", common.ErrMissingConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &ProxyClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:       newResponseCache(cfg.CacheTTL),
		rateLimiter: newRateLimiter(cfg.RateLimit),
		logger:      logger.With("component", "classifier"),
		retryOpts:   retryOpts,
	}, nil
}

// Close releases background resources.
func (c *ProxyClient) Close() {
	c.cache.Close()
}

// Classify sends text to the preprocess action.
func (c *ProxyClient) Classify(ctx context.Context, text, userID string) (*Response, error) {
	key := cacheKey(string(model.StepPreprocess), userID, text)
	if cached, ok := c.cache.get(key); ok {
		c.logger.Debug("cache hit for classification", "user_id", userID)
		return &cached, nil
	}

	raw, err := c.call(ctx, model.StepPreprocess, map[string]any{
		"product_description": text,
		"user_id":             userID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		return nil, err
	}
	// Only resolvable answers are cached so a clarification round never
	// replays a stale "no candidates" reply.
	if resp.HasCandidates() {
		c.cache.set(key, *resp)
	}
	return resp, nil
}

// Ruling asks the rulings action for an assistant reply.
func (c *ProxyClient) Ruling(ctx context.Context, req RulingRequest) (string, error) {
	history := req.History
	if history == nil {
		history = []ChatTurn{}
	}
	raw, err := c.call(ctx, model.StepRulings, map[string]any{
		"message":              req.Message,
		"conversation_history": history,
		"product_context":      req.Product,
	})
	if err != nil {
		return "", err
	}
	return decodeRuling(raw)
}

// call posts {action, ...payload} and returns the unwrapped JSON payload.
func (c *ProxyClient) call(ctx context.Context, action model.Step, payload map[string]any) (json.RawMessage, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["action"] = action

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var raw []byte
	err = common.WithRetry(ctx, func() error {
		if waitErr := c.rateLimiter.wait(ctx); waitErr != nil {
			return common.Permanent(waitErr)
		}
		var callErr error
		raw, callErr = c.post(ctx, encoded)
		return callErr
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	return unwrapPayload(raw)
}

func (c *ProxyClient) post(ctx context.Context, encoded []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, common.Permanent(err)
		}
		return nil, common.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &common.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, common.Transient(fmt.Errorf("classifier error (status %d): %s", resp.StatusCode, truncate(data)))
	case resp.StatusCode != http.StatusOK:
		return nil, common.Permanent(fmt.Errorf("classifier error (status %d): %s", resp.StatusCode, truncate(data)))
	}
	return data, nil
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates and
// garbage yield zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// unwrapPayload accepts either a JSON value or a JSON-encoded string holding one.
func unwrapPayload(data []byte) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrEmptyResponse
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		inner := bytes.TrimSpace([]byte(s))
		if json.Valid(inner) && len(inner) > 0 && inner[0] != '"' {
			return inner, nil
		}
	}
	return data, nil
}

type wireResponse struct {
	Attributes map[string]any  `json:"attributes"`
	Data       json.RawMessage `json:"data"`
	Normalized string          `json:"normalized"`
	Candidates []wireCandidate `json:"candidates"`
}

type wireCandidate struct {
	TariffRate  *float64 `json:"tariff_rate"`
	HTS         string   `json:"hts"`
	Description string   `json:"description"`
	Reasoning   string   `json:"reasoning"`
	Score       float64  `json:"score"`
}

func decodeResponse(raw json.RawMessage) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}
	if w.Candidates == nil && w.Normalized == "" && len(w.Data) > 0 {
		inner, err := unwrapPayload(w.Data)
		if err != nil {
			return nil, err
		}
		return decodeResponse(inner)
	}

	resp := &Response{
		Normalized: w.Normalized,
		Attributes: w.Attributes,
		Candidates: make(model.Candidates, 0, len(w.Candidates)),
	}
	if resp.Attributes == nil {
		resp.Attributes = map[string]any{}
	}
	for _, wc := range w.Candidates {
		resp.Candidates = append(resp.Candidates, model.Candidate{
			HTS:         wc.HTS,
			Score:       wc.Score,
			Description: wc.Description,
			Reasoning:   wc.Reasoning,
			TariffRate:  wc.TariffRate,
		}.Normalized())
	}
	return resp, nil
}

func decodeRuling(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return string(raw), nil
	}
	for _, field := range []string{"response", "text", "content"} {
		if v, ok := obj[field]; ok {
			if err := json.Unmarshal(v, &s); err == nil && s != "" {
				return s, nil
			}
		}
	}
	if v, ok := obj["data"]; ok {
		if err := json.Unmarshal(v, &s); err == nil {
			return s, nil
		}
		return string(v), nil
	}
	return string(raw), nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
