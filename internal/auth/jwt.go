package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/locolive/socialgraph/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenVerifier turns a bearer token into the caller's identity claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Claims, error)
}

// Claims represents the session token claims issued by the identity provider
type Claims struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager validates HS256 session tokens. It can also issue them, which
// local development and tests use in place of the identity provider.
type JWTManager struct {
	secret   []byte
	expiry   time.Duration
	issuer   string
	audience string
}

// NewJWTManager creates a new JWT manager. Empty issuer or audience are not checked.
func NewJWTManager(secret string, expiry time.Duration, issuer, audience string) *JWTManager {
	return &JWTManager{
		secret:   []byte(secret),
		expiry:   expiry,
		issuer:   issuer,
		audience: audience,
	}
}

// GenerateToken creates a session token for subject carrying claims
func (m *JWTManager) GenerateToken(claims domain.Claims) (string, error) {
	now := time.Now()
	tc := &Claims{
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		FullName:  claims.FullName,
		Username:  claims.Username,
		ImageURL:  claims.ImageURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   claims.Subject,
		},
	}
	if m.audience != "" {
		tc.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	return token.SignedString(m.secret)
}

// ValidateToken validates a JWT and returns the claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Verify implements TokenVerifier
func (m *JWTManager) Verify(_ context.Context, token string) (*domain.Claims, error) {
	claims, err := m.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return &domain.Claims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		FullName:  claims.FullName,
		Username:  claims.Username,
		ImageURL:  claims.ImageURL,
	}, nil
}
