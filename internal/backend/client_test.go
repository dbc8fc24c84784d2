package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
	states   []string
}

func (o *recordingObserver) ObserveRequest(method, path string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) ObserveCircuitState(state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func newTestClient(t *testing.T, baseURL string, mutate func(*config.BackendConfig)) (*Client, *recordingObserver, *[]time.Duration) {
	t.Helper()

	cfg := &config.BackendConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		OrgID:        "org-1",
		Timeout:      5 * time.Second,
		Retries:      3,
		RetryDelay:   100 * time.Millisecond,
		RetryBackoff: true,
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	observer := &recordingObserver{}

	client, err := NewClient(cfg, logger, observer)
	require.NoError(t, err)

	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return client, observer, &waits
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(&config.BackendConfig{BaseURL: "not a url"}, logrus.New(), nil)
	assert.Error(t, err)
}

func TestClient_Recommend(t *testing.T) {
	var gotHeaders http.Header
	var gotBody models.RecommendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/recommendations", r.URL.Path)
		gotHeaders = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.RecommendResponse{
			ModelVersion: "pop_2025-09-07_01",
			Items: []models.ScoredItem{
				{ItemID: "i_101", Score: 0.87, Reasons: []string{"pop:0.62", "recent_popularity"}},
			},
		})
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)

	resp, err := client.Recommend(context.Background(), &models.RecommendRequest{
		Namespace: "default",
		UserID:    "u_123",
		K:         10,
		Explain:   true,
		RequestID: "req-42",
	})
	require.NoError(t, err)

	assert.Equal(t, "req-42", resp.RequestID)
	assert.Equal(t, "pop_2025-09-07_01", resp.ModelVersion)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "i_101", resp.Items[0].ItemID)

	assert.Equal(t, "req-42", gotHeaders.Get(HeaderRequestID))
	assert.Equal(t, "test-key", gotHeaders.Get(HeaderAPIKey))
	assert.Equal(t, "org-1", gotHeaders.Get(HeaderOrgID))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "u_123", gotBody.UserID)
	assert.True(t, gotBody.Explain)
}

func TestClient_GeneratesRequestID(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(HeaderRequestID)
		_ = json.NewEncoder(w).Encode(models.RecommendResponse{})
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)

	resp, err := client.Recommend(context.Background(), &models.RecommendRequest{Namespace: "default", UserID: "u", K: 1})
	require.NoError(t, err)

	_, parseErr := uuid.Parse(seen)
	assert.NoError(t, parseErr)
	assert.Equal(t, seen, resp.RequestID)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(models.DecisionListResponse{
			Decisions: []models.DecisionSummary{{DecisionID: uuid.New(), Namespace: "default"}},
		})
	}))
	defer server.Close()

	client, observer, waits := newTestClient(t, server.URL, nil)

	decisions, err := client.ListDecisions(context.Background(), "default", models.DecisionFilter{RequestID: "req-1", Limit: 1})
	require.NoError(t, err)

	assert.Len(t, decisions, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *waits)
	assert.Equal(t, []int{503, 503, 200}, observer.statuses)
}

func TestClient_RetriesTooManyRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)

	err := client.Do(context.Background(), http.MethodGet, "/v1/ping", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_K","message":"k must be positive"}}`))
	}))
	defer server.Close()

	client, _, waits := newTestClient(t, server.URL, nil)

	_, err := client.Recommend(context.Background(), &models.RecommendRequest{Namespace: "default", UserID: "u", K: 0})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_K", apiErr.Code)
	assert.Equal(t, "k must be positive", apiErr.Message)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *waits)
	assert.Equal(t, CircuitClosed, client.CircuitState())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, func(cfg *config.BackendConfig) {
		cfg.Retries = 2
		cfg.CircuitBreaker.Enabled = false
	})

	err := client.Do(context.Background(), http.MethodGet, "/v1/ping", nil, nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, observer, _ := newTestClient(t, server.URL, func(cfg *config.BackendConfig) {
		cfg.Retries = 0
		cfg.CircuitBreaker.FailureThreshold = 2
	})

	for i := 0; i < 2; i++ {
		err := client.Do(context.Background(), http.MethodGet, "/v1/ping", nil, nil, nil)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, client.CircuitState())

	err := client.Do(context.Background(), http.MethodGet, "/v1/ping", nil, nil, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"closed", "open"}, observer.states)
}

func TestClient_Interceptors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.Header().Set("X-Model-Version", "v7")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)

	var modelVersion string
	client.AddRequestInterceptor(func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer abc")
		return nil
	})
	client.AddResponseInterceptor(func(resp *http.Response) error {
		modelVersion = resp.Header.Get("X-Model-Version")
		return nil
	})

	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/v1/ping", nil, nil, nil))
	assert.Equal(t, "v7", modelVersion)
}

func TestClient_RequestInterceptorErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)
	client.AddRequestInterceptor(func(req *http.Request) error {
		return errors.New("no credentials")
	})

	err := client.Do(context.Background(), http.MethodGet, "/v1/ping", nil, nil, nil)
	assert.ErrorContains(t, err, "no credentials")
}

func TestClient_ListDecisionsQuery(t *testing.T) {
	from := time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/audit/decisions", r.URL.Path)
		assert.Equal(t, "default", q.Get("namespace"))
		assert.Equal(t, "2025-09-07T10:00:00Z", q.Get("from"))
		assert.Equal(t, "abc", q.Get("user_hash"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Empty(t, q.Get("to"))
		_, _ = w.Write([]byte(`{"decisions":null}`))
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)

	decisions, err := client.ListDecisions(context.Background(), "default", models.DecisionFilter{
		From:     &from,
		UserHash: "abc",
		Limit:    25,
	})
	require.NoError(t, err)
	assert.NotNil(t, decisions)
	assert.Empty(t, decisions)
}

func TestClient_RetryWait(t *testing.T) {
	client := &Client{retryDelay: time.Second, backoff: true, jitter: true, random: func() float64 { return 0.25 }}

	assert.Equal(t, 750*time.Millisecond, client.retryWait(0))
	assert.Equal(t, 1500*time.Millisecond, client.retryWait(1))
	assert.Equal(t, 3*time.Second, client.retryWait(2))

	client.backoff = false
	client.jitter = false
	assert.Equal(t, time.Second, client.retryWait(3))
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := client.Do(ctx, http.MethodGet, "/v1/ping", nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
