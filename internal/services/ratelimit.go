package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

// RateLimitService is a Redis sliding-window limiter keyed by operator.
type RateLimitService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	now         func() time.Time
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		now:         time.Now,
	}
}

func (s *RateLimitService) CheckLimit(operatorID, role string) (*models.RateLimitInfo, error) {
	limit := s.LimitForRole(role)
	window := s.config.Auth.RateLimit.Window
	if window <= 0 {
		window = time.Minute
	}

	key := fmt.Sprintf("rate_limit:operator:%s", operatorID)

	now := s.now()
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.redisClient.Pipeline()

	// Remove expired entries
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// Count current requests in window
	countCmd := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})

	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		// Return permissive result if Redis is down
		return &models.RateLimitInfo{
			Limit:     limit,
			Remaining: limit - 1,
			ResetTime: now.Add(window).Unix(),
		}, nil
	}

	remaining := limit - int(countCmd.Val()) - 1
	if remaining < 0 {
		remaining = -1
	}

	return &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}

// IsAllowed counts the request and reports whether it fits in the window.
// The returned info never reports a negative remaining count.
func (s *RateLimitService) IsAllowed(operatorID, role string) (bool, *models.RateLimitInfo, error) {
	info, err := s.CheckLimit(operatorID, role)
	if err != nil {
		return false, nil, err
	}

	allowed := info.Remaining >= 0
	if !allowed {
		info.Remaining = 0
	}
	return allowed, info, nil
}

// Reset clears the window for an operator.
func (s *RateLimitService) Reset(operatorID string) error {
	key := fmt.Sprintf("rate_limit:operator:%s", operatorID)
	return s.redisClient.Del(context.Background(), key).Err()
}

func (s *RateLimitService) LimitForRole(role string) int {
	if role == RoleAdmin {
		return s.config.Auth.RateLimit.Admin
	}
	return s.config.Auth.RateLimit.Default
}
