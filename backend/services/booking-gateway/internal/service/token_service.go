package service

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"chargebook/backend/services/booking-gateway/internal/policy"
	"chargebook/backend/services/booking-gateway/internal/session"
)

const tokenIssuer = "booking-gateway"

// Claims is the gateway token payload. It points at a stored session.
type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService handles gateway JWT creation and validation.
type TokenService struct {
	secret []byte
	clock  policy.Clock
}

// NewTokenService returns configured token service.
func NewTokenService(secret []byte, clock policy.Clock) *TokenService {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	return &TokenService{secret: secret, clock: clock}
}

// GenerateToken issues a JWT that expires together with sess.
func (t *TokenService) GenerateToken(sess session.Session) (string, error) {
	if sess.ID == "" || sess.SubjectID == "" {
		return "", errors.New("token: session id and subject are required")
	}
	if sess.ExpiresAt.IsZero() {
		return "", errors.New("token: session has no expiry")
	}

	now := t.clock.Now().UTC()
	claims := Claims{
		SessionID: sess.ID,
		Role:      string(sess.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sess.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken verifies and decodes a gateway JWT.
func (t *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("token: unexpected signing method")
		}
		return t.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}

	return nil, errors.New("token: invalid claims")
}
