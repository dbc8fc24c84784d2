// Package backend is the JSON HTTP client for the ranking backend. Requests
// carry an X-Request-ID, pass through request and response interceptors, are
// retried with exponential backoff on network errors, 5xx and 429, and are
// guarded by a circuit breaker.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-Key"
	HeaderOrgID     = "X-Org-ID"

	recommendPath = "/v1/recommendations"
	decisionsPath = "/v1/audit/decisions"

	maxErrorBody = 64 << 10
)

// RequestInterceptor may modify an outgoing request. Returning an error
// aborts the call without retrying.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor sees every response before its body is decoded.
type ResponseInterceptor func(resp *http.Response) error

// Observer receives per-request and circuit breaker telemetry.
type Observer interface {
	ObserveRequest(method, path string, status int, duration time.Duration)
	ObserveCircuitState(state string)
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
	observer   Observer
	breaker    *CircuitBreaker

	retries    int
	retryDelay time.Duration
	backoff    bool
	jitter     bool

	mu                   sync.RWMutex
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor

	random func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg *config.BackendConfig, logger *logrus.Logger, observer Observer) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		observer:   observer,
		retries:    max(cfg.Retries, 0),
		retryDelay: cfg.RetryDelay,
		backoff:    cfg.RetryBackoff,
		jitter:     cfg.Jitter,
		random:     rand.Float64,
		sleep:      sleepContext,
	}

	if cfg.CircuitBreaker.Enabled {
		c.breaker = NewCircuitBreaker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.ResetTimeout, func(s CircuitState) {
			logger.WithField("state", s.String()).Warn("Backend circuit breaker state changed")
			if observer != nil {
				observer.ObserveCircuitState(s.String())
			}
		})
		if observer != nil {
			observer.ObserveCircuitState(CircuitClosed.String())
		}
	}

	if cfg.APIKey != "" {
		c.AddRequestInterceptor(headerInterceptor(HeaderAPIKey, cfg.APIKey))
	}
	if cfg.OrgID != "" {
		c.AddRequestInterceptor(headerInterceptor(HeaderOrgID, cfg.OrgID))
	}

	return c, nil
}

func headerInterceptor(name, value string) RequestInterceptor {
	return func(req *http.Request) error {
		req.Header.Set(name, value)
		return nil
	}
}

func (c *Client) AddRequestInterceptor(i RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestInterceptors = append(c.requestInterceptors, i)
}

func (c *Client) AddResponseInterceptor(i ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseInterceptors = append(c.responseInterceptors, i)
}

// CircuitState reports the breaker state, or closed when it is disabled.
func (c *Client) CircuitState() CircuitState {
	if c.breaker == nil {
		return CircuitClosed
	}
	return c.breaker.State()
}

type requestIDKey struct{}

// WithRequestID makes calls under ctx send id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Recommend asks the backend for recommendations. The request id used is
// echoed in the response so callers can locate the decision trace.
func (c *Client) Recommend(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = RequestIDFromContext(ctx)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var resp models.RecommendResponse
	if err := c.Do(WithRequestID(ctx, requestID), http.MethodPost, recommendPath, nil, req, &resp); err != nil {
		return nil, err
	}
	resp.RequestID = requestID
	return &resp, nil
}

// ListDecisions reads decision summaries from the backend's audit API.
func (c *Client) ListDecisions(ctx context.Context, namespace string, filter models.DecisionFilter) ([]models.DecisionSummary, error) {
	query := url.Values{}
	query.Set("namespace", namespace)
	if filter.From != nil {
		query.Set("from", filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		query.Set("to", filter.To.UTC().Format(time.RFC3339))
	}
	if filter.UserHash != "" {
		query.Set("user_hash", filter.UserHash)
	}
	if filter.RequestID != "" {
		query.Set("request_id", filter.RequestID)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var resp models.DecisionListResponse
	if err := c.Do(ctx, http.MethodGet, decisionsPath, query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Decisions == nil {
		resp.Decisions = []models.DecisionSummary{}
	}
	return resp.Decisions, nil
}

// GetDecision reads a full decision trace from the backend's audit API.
func (c *Client) GetDecision(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	var trace models.DecisionTrace
	if err := c.Do(ctx, http.MethodGet, decisionsPath+"/"+decisionID.String(), nil, nil, &trace); err != nil {
		return nil, err
	}
	return &trace, nil
}

// Do sends a JSON request and decodes a JSON response into out (which may
// be nil).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	logger := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				if lastErr != nil {
					return fmt.Errorf("%w (last error: %v)", err, lastErr)
				}
				return err
			}
		}

		retryable, err := c.attempt(ctx, method, target.String(), path, requestID, payload, out)
		if err == nil {
			if c.breaker != nil {
				c.breaker.OnSuccess()
			}
			return nil
		}
		lastErr = err

		if c.breaker != nil {
			if retryable {
				c.breaker.OnFailure()
			} else {
				// The backend answered; a client error says nothing about its health.
				c.breaker.OnSuccess()
			}
		}

		if !retryable || attempt == c.retries {
			break
		}

		delay := c.retryWait(attempt)
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warn("Retrying backend request")

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// attempt performs one round trip and reports whether a failure is
// retryable.
func (c *Client) attempt(ctx context.Context, method, target, path, requestID string, payload []byte, out any) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	requestInterceptors := c.requestInterceptors
	responseInterceptors := c.responseInterceptors
	c.mu.RUnlock()

	for _, intercept := range requestInterceptors {
		if err := intercept(req); err != nil {
			return false, fmt.Errorf("request interceptor: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, path, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return true, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(method, path, resp.StatusCode, time.Since(start))

	for _, intercept := range responseInterceptors {
		if err := intercept(resp); err != nil {
			return false, fmt.Errorf("response interceptor: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeAPIError(resp, requestID)
		return apiErr.Retryable(), apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to decode backend response: %w", err)
	}
	return false, nil
}

func decodeAPIError(resp *http.Response, requestID string) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		RequestID:  requestID,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != nil:
			apiErr.Code = body.Error.Code
			if body.Error.Message != "" {
				apiErr.Message = body.Error.Message
			}
			return apiErr
		case body.Code != "" || body.Message != "":
			apiErr.Code = body.Code
			if body.Message != "" {
				apiErr.Message = body.Message
			}
			return apiErr
		}
	}

	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

// retryWait returns the delay before retry number attempt+1: the base delay,
// doubled per attempt with backoff, scaled into [0.5, 1.5) with jitter.
func (c *Client) retryWait(attempt int) time.Duration {
	delay := c.retryDelay
	if c.backoff {
		delay *= time.Duration(1 << uint(attempt))
	}
	if c.jitter {
		delay = time.Duration(float64(delay) * (0.5 + c.random()))
	}
	return delay
}

func (c *Client) observe(method, path string, status int, d time.Duration) {
	if c.observer == nil {
		return
	}
	if strings.HasPrefix(path, decisionsPath+"/") {
		path = decisionsPath + "/:id"
	}
	c.observer.ObserveRequest(method, path, status, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
