// Package auth issues and verifies the bearer credentials used by the
// dashboard: short-lived access tokens and long-lived refresh tokens, both
// HS256 JWTs.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cache "github.com/patrickmn/go-cache"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	// tokenCache remembers verified access tokens until they expire so hot
	// dashboard endpoints skip signature checks on every request.
	tokenCache *cache.Cache
}

func NewService(secret, issuer string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Service{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		tokenCache: cache.New(accessTTL, time.Hour),
	}
}

// TokenPair is what login, signup and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

func (s *Service) IssuePair(userID string) (*TokenPair, error) {
	access, err := s.issue(userID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issue(userID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *Service) issue(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Verify checks signature, expiry, issuer and token type and returns the
// subject user id. Verified access tokens are cached until expiry.
func (s *Service) Verify(tokenStr, wantType string) (string, error) {
	if wantType == TokenTypeAccess {
		if cached, found := s.tokenCache.Get(tokenStr); found {
			if userID, ok := cached.(string); ok {
				return userID, nil
			}
		}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Type != wantType {
		return "", fmt.Errorf("wrong token type: got %q, want %q", claims.Type, wantType)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	if wantType == TokenTypeAccess && claims.ExpiresAt != nil {
		if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
			s.tokenCache.Set(tokenStr, claims.Subject, ttl)
		}
	}
	return claims.Subject, nil
}
