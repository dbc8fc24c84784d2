package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

// Operator roles, lowest privilege first.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var roleRank = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// RoleAllows reports whether role has at least the privileges of required.
func RoleAllows(role, required string) bool {
	return roleRank[role] >= roleRank[required] && roleRank[required] > 0
}

var ErrInvalidAPIKey = errors.New("invalid API key")

type AuthService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client // nil disables session tracking
	jwtSecret   []byte
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *AuthService {
	return &AuthService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
	}
}

func sessionKey(operatorID uuid.UUID) string {
	return fmt.Sprintf("session:%s", operatorID.String())
}

func (s *AuthService) GenerateToken(operatorID uuid.UUID, orgID, role string) (string, error) {
	if _, ok := roleRank[role]; !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := time.Now()
	claims := &models.JWTClaims{
		OperatorID: operatorID,
		OrgID:      orgID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Auth.TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "github.com/temcen/pirex-admin",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if s.redisClient != nil {
		err = s.redisClient.Set(context.Background(), sessionKey(operatorID), tokenString, s.config.Auth.TokenTTL).Err()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to store session in Redis")
			// Don't fail token generation if Redis is down
		}
	}

	return tokenString, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if s.redisClient != nil {
		exists, err := s.redisClient.Exists(context.Background(), sessionKey(claims.OperatorID)).Result()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to check session in Redis")
			// Continue validation even if Redis is down
		} else if exists == 0 {
			return nil, fmt.Errorf("session not found or expired")
		}
	}

	return claims, nil
}

func (s *AuthService) RevokeToken(operatorID uuid.UUID) error {
	if s.redisClient == nil {
		return nil
	}
	if err := s.redisClient.Del(context.Background(), sessionKey(operatorID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ValidateAPIKey returns the role configured for apiKey.
func (s *AuthService) ValidateAPIKey(apiKey string) (string, error) {
	role, ok := s.config.Auth.APIKeys[apiKey]
	if !ok || apiKey == "" {
		return "", ErrInvalidAPIKey
	}
	if _, known := roleRank[role]; !known {
		s.logger.WithField("role", role).Warn("API key configured with unknown role, treating as viewer")
		return RoleViewer, nil
	}
	return role, nil
}

// APIKeyOperatorID derives a stable operator id for an API key so that
// sessions and rate limits are tracked per key.
func APIKeyOperatorID(apiKey string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("pirex-admin/api-key/"+apiKey))
}
