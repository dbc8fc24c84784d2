package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheConfig represents cache configuration
type CacheConfig struct {
	TTL       time.Duration
	MaxSize   int
	KeyPrefix string
}

// cachedResponse represents a cached HTTP response
type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ResponseCache caches successful GET responses in Redis, keyed by org and
// path. It is meant for immutable resources such as a stored decision trace.
func ResponseCache(client *redis.Client, cfg CacheConfig, logger *logrus.Logger) gin.HandlerFunc {
	if client == nil {
		logger.Warn("Redis client not available, response caching disabled")
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "response"
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		_, _, orgID := GetOperatorFromContext(c)
		cacheKey := fmt.Sprintf("%s:%s:%s", cfg.KeyPrefix, orgID, c.Request.URL.Path)

		if raw, err := client.Get(c.Request.Context(), cacheKey).Bytes(); err == nil {
			var response cachedResponse
			if err := json.Unmarshal(raw, &response); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(response.StatusCode, response.ContentType, response.Body)
				c.Abort()
				return
			}
		} else if err != redis.Nil {
			logger.WithError(err).Warn("Failed to read cached response")
		}

		writer := &cacheWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Header("X-Cache", "MISS")

		c.Next()

		status := writer.Status()
		if status != http.StatusOK || writer.body.Len() == 0 {
			return
		}
		if cfg.MaxSize > 0 && writer.body.Len() > cfg.MaxSize {
			logger.WithField("size", writer.body.Len()).Debug("Response too large to cache")
			return
		}

		data, err := json.Marshal(cachedResponse{
			StatusCode:  status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		})
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := client.Set(ctx, cacheKey, data, cfg.TTL).Err(); err != nil {
			logger.WithError(err).WithField("cache_key", cacheKey).Warn("Failed to cache response")
		}
	}
}

// cacheWriter wraps gin.ResponseWriter to capture the body
type cacheWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *cacheWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
