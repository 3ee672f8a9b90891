package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the custom JWT claims for partner tokens. The subject is the
// partner id.
type Claims struct {
	jwt.RegisteredClaims
	Realm string `json:"realm"`
}

const realmPartner = "partner"

// JWTManager handles partner token generation and validation.
type JWTManager struct {
	secret        []byte
	partnerExpiry time.Duration
}

// NewJWTManager creates a JWT manager.
func NewJWTManager(secret string, partnerExpiry time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), partnerExpiry: partnerExpiry}
}

// GeneratePartnerToken creates a signed JWT for the given partner.
func (m *JWTManager) GeneratePartnerToken(partnerID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   partnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.partnerExpiry)),
			ID:        uuid.New().String(),
		},
		Realm: realmPartner,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidatePartnerToken parses and validates a JWT, returning claims if valid.
func (m *JWTManager) ValidatePartnerToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Realm != realmPartner {
		return nil, fmt.Errorf("expected realm %s, got %s", realmPartner, claims.Realm)
	}

	return claims, nil
}
