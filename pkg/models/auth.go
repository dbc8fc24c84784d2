package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type JWTClaims struct {
	OperatorID uuid.UUID `json:"operator_id"`
	OrgID      string    `json:"org_id,omitempty"`
	Role       string    `json:"role"` // viewer, operator, admin
	jwt.RegisteredClaims
}

type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}
