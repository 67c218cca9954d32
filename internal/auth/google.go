package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"

	"github.com/locolive/socialgraph/internal/domain"
)

var ErrInvalidGoogleToken = errors.New("invalid Google ID token")

// payloadValidator matches idtoken.Validate
type payloadValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleAuthVerifier accepts Google ID tokens as session tokens
type GoogleAuthVerifier struct {
	clientIDs []string
	validate  payloadValidator
}

// NewGoogleAuthVerifier creates a new Google auth verifier
func NewGoogleAuthVerifier(clientIDs []string) *GoogleAuthVerifier {
	return &GoogleAuthVerifier{
		clientIDs: clientIDs,
		validate:  idtoken.Validate,
	}
}

// Verify implements TokenVerifier
func (v *GoogleAuthVerifier) Verify(ctx context.Context, idToken string) (*domain.Claims, error) {
	// Try to validate with each client ID
	var payload *idtoken.Payload
	for _, clientID := range v.clientIDs {
		p, err := v.validate(ctx, idToken, clientID)
		if err == nil {
			payload = p
			break
		}
	}
	if payload == nil {
		return nil, ErrInvalidGoogleToken
	}

	claims := &domain.Claims{Subject: payload.Subject}
	if claims.Subject == "" {
		if sub, ok := payload.Claims["sub"].(string); ok {
			claims.Subject = sub
		}
	}
	if claims.Subject == "" {
		return nil, ErrInvalidGoogleToken
	}

	claims.Email = stringClaim(payload, "email")
	claims.FirstName = stringClaim(payload, "given_name")
	claims.LastName = stringClaim(payload, "family_name")
	claims.FullName = stringClaim(payload, "name")
	claims.ImageURL = stringClaim(payload, "picture")

	return claims, nil
}

// IsConfigured returns true if Google sign-in is configured
func (v *GoogleAuthVerifier) IsConfigured() bool {
	return len(v.clientIDs) > 0 && v.clientIDs[0] != ""
}

func stringClaim(p *idtoken.Payload, key string) string {
	s, _ := p.Claims[key].(string)
	return s
}
