package services

import (
	"fmt"
	"time"

	"chatterbox/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "chatterbox"

// TokenService validates the bearer credential presented at the handshake.
// Issuing credentials belongs to the auth service; GenerateToken exists for
// local development and tests.
type TokenService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    tokenIssuer,
		ttl:       24 * time.Hour,
	}
}

func (s *TokenService) GenerateToken(identityID string) (string, error) {
	if identityID == "" {
		return "", domain.ErrInvalidIdentityID
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identityID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// ValidateToken returns the identity id carried in the token's subject.
func (s *TokenService) ValidateToken(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", domain.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: subject not found", domain.ErrInvalidToken)
	}
	return claims.Subject, nil
}
