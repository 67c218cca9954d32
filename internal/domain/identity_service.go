package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/metrics"
)

const (
	maxUsernameSuffix    = 1000
	maxHydrationAttempts = 3
)

// Claims is the profile data an identity provider asserts about a subject.
// The same shape carries both session token claims and claims fetched from
// the provider's user API.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Username  string `json:"username,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// DisplayName joins first and last name, falling back to FullName
func (c *Claims) DisplayName() string {
	joined := strings.TrimSpace(strings.Join([]string{c.FirstName, c.LastName}, " "))
	if joined != "" {
		return joined
	}
	return strings.TrimSpace(c.FullName)
}

// mergeClaims prefers provider values and fills gaps from the session
func mergeClaims(provider *Claims, session Claims) Claims {
	if provider == nil {
		return session
	}
	merged := *provider
	merged.Subject = session.Subject
	if merged.Email == "" {
		merged.Email = session.Email
	}
	if merged.FirstName == "" && merged.LastName == "" {
		merged.FirstName = session.FirstName
		merged.LastName = session.LastName
	}
	if merged.FullName == "" {
		merged.FullName = session.FullName
	}
	if merged.Username == "" {
		merged.Username = session.Username
	}
	if merged.ImageURL == "" {
		merged.ImageURL = session.ImageURL
	}
	return merged
}

// ClaimsProvider fetches fresh claims for a subject from the identity provider
type ClaimsProvider interface {
	FetchClaims(ctx context.Context, subject string) (*Claims, error)
}

// IdentityService reconciles provider identities with local user records
type IdentityService struct {
	repo     UserRepository
	provider ClaimsProvider
	logger   *zap.Logger
}

// NewIdentityService creates a new identity service. provider may be nil,
// in which case session claims are the only source.
func NewIdentityService(repo UserRepository, provider ClaimsProvider, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		repo:     repo,
		provider: provider,
		logger:   logger,
	}
}

// Hydrate returns the local user for the authenticated session, creating or
// refreshing it from the identity provider when the record is missing or
// still provisional.
func (s *IdentityService) Hydrate(ctx context.Context, session Claims) (*User, error) {
	if session.Subject == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := s.repo.GetUserByID(ctx, session.Subject)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, upstream("load identity", err)
	}
	if user != nil && !user.Provisional {
		metrics.RecordHydration("cached")
		return user, nil
	}

	provided, err := s.fetchClaims(ctx, session.Subject)
	if err != nil {
		if user != nil {
			s.logger.Warn("identity provider unavailable, using stored identity",
				zap.String("user_id", session.Subject), zap.Error(err))
			metrics.RecordHydration("degraded")
			return user, nil
		}
		if session.Email == "" {
			s.logger.Warn("identity provider unavailable and session lacks profile claims",
				zap.String("user_id", session.Subject), zap.Error(err))
			metrics.RecordHydration("failed")
			return nil, ErrNotAuthenticated
		}
	}
	claims := mergeClaims(provided, session)

	for attempt := 0; attempt < maxHydrationAttempts; attempt++ {
		var hydrated *User
		hydrated, err = s.apply(ctx, user, claims)
		switch {
		case err == nil:
			metrics.RecordHydration("hydrated")
			return hydrated, nil
		case errors.Is(err, ErrUsernameTaken):
			continue
		case errors.Is(err, ErrUserAlreadyExists):
			// a concurrent request created the record first
			user, err = s.repo.GetUserByID(ctx, session.Subject)
			if err != nil {
				return nil, upstream("reload identity", err)
			}
			continue
		default:
			if user != nil {
				s.logger.Warn("identity refresh failed, using stored identity",
					zap.String("user_id", session.Subject), zap.Error(err))
				metrics.RecordHydration("degraded")
				return user, nil
			}
			metrics.RecordHydration("failed")
			return nil, err
		}
	}

	metrics.RecordHydration("failed")
	return nil, fmt.Errorf("hydrate %s: %w", session.Subject, err)
}

func (s *IdentityService) fetchClaims(ctx context.Context, subject string) (*Claims, error) {
	if s.provider == nil {
		return nil, errors.New("identity provider not configured")
	}
	claims, err := s.provider.FetchClaims(ctx, subject)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// apply creates or updates the record for claims. user is nil for new identities.
func (s *IdentityService) apply(ctx context.Context, user *User, claims Claims) (*User, error) {
	email := strings.TrimSpace(claims.Email)
	fullName := claims.DisplayName()

	if user == nil {
		username, err := s.ResolveUsername(ctx, claims.Subject, usernameCandidate(claims))
		if err != nil {
			return nil, err
		}
		params := CreateUserParams{
			ID:             claims.Subject,
			Email:          email,
			FullName:       fullName,
			Username:       username,
			ProfilePicture: claims.ImageURL,
		}
		if params.Email == "" {
			params.Email = username + PlaceholderEmailDomain
		}
		if params.FullName == "" {
			params.FullName = DefaultFullName
		}
		params.Provisional = isProvisional(params.Email, params.FullName)

		created, err := s.repo.CreateUser(ctx, params)
		if err != nil {
			if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrUserAlreadyExists) {
				return nil, err
			}
			return nil, upstream("create identity", err)
		}
		s.logger.Info("identity created",
			zap.String("user_id", created.ID),
			zap.String("username", created.Username),
			zap.Bool("provisional", created.Provisional),
		)
		return created, nil
	}

	var update UserUpdate
	resultEmail, resultName := user.Email, user.FullName
	if email != "" && email != user.Email {
		update.Email = &email
		resultEmail = email
	}
	if fullName != "" && fullName != user.FullName {
		update.FullName = &fullName
		resultName = fullName
	}
	if user.Username == "" || IsGeneratedUsername(user.Username) {
		username, err := s.ResolveUsername(ctx, claims.Subject, usernameCandidate(claims))
		if err != nil {
			return nil, err
		}
		if username != user.Username {
			update.Username = &username
		}
	}
	if strings.TrimSpace(user.ProfilePicture) == "" && claims.ImageURL != "" {
		update.ProfilePicture = &claims.ImageURL
	}
	if provisional := isProvisional(resultEmail, resultName); provisional != user.Provisional {
		update.Provisional = &provisional
	}

	if update.IsEmpty() {
		return user, nil
	}

	updated, err := s.repo.UpdateUser(ctx, user.ID, update)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, upstream("update identity", err)
	}
	return updated, nil
}

// ResolveUsername normalizes raw and appends 1, 2, ... until the name is
// not held by any identity other than subject.
func (s *IdentityService) ResolveUsername(ctx context.Context, subject, raw string) (string, error) {
	base := NormalizeUsername(raw)
	if base == "" {
		base = FallbackUsername(subject)
	}

	candidate := base
	for i := 1; i <= maxUsernameSuffix; i++ {
		taken, err := s.repo.UsernameExists(ctx, candidate, subject)
		if err != nil {
			return "", upstream("check username", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", fmt.Errorf("resolve username %q: %w", base, ErrUsernameTaken)
}

func usernameCandidate(claims Claims) string {
	if claims.Username != "" {
		return claims.Username
	}
	if local := emailLocalPart(claims.Email); local != "" {
		return local
	}
	return FallbackUsername(claims.Subject)
}

func isProvisional(email, fullName string) bool {
	return IsPlaceholderEmail(email) || fullName == "" || fullName == DefaultFullName
}
