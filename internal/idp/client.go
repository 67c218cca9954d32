package idp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/resilience"
)

// Config configures the identity provider's user API. ClientID and
// ClientSecret select the client-credentials flow; otherwise APIKey is sent
// as a static bearer token.
type Config struct {
	BaseURL      string
	APIKey       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// Client fetches profile claims from the identity provider's user API
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  *zap.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) *Client {
	var httpClient *http.Client
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = cc.Client(ctx)
	} else {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   "Bearer",
		}))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient.Timeout = timeout

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		breaker: resilience.NewBreaker("identity-provider", logger, resilience.BreakerSettings{
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrUserNotFound)
			},
		}),
		logger: logger,
	}
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type userResponse struct {
	ID                    string         `json:"id"`
	Username              *string        `json:"username"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID *string        `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

func (u *userResponse) primaryEmail() string {
	if u.PrimaryEmailAddressID != nil {
		for _, e := range u.EmailAddresses {
			if e.ID == *u.PrimaryEmailAddressID {
				return e.EmailAddress
			}
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// FetchClaims implements domain.ClaimsProvider
func (c *Client) FetchClaims(ctx context.Context, subject string) (*domain.Claims, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getUser(ctx, subject)
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return nil, fmt.Errorf("identity provider: %w", err)
		}
		return nil, err
	}

	u := result.(*userResponse)
	return &domain.Claims{
		Subject:   subject,
		Email:     u.primaryEmail(),
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
		Username:  deref(u.Username),
		ImageURL:  u.ImageURL,
	}, nil
}

func (c *Client) getUser(ctx context.Context, subject string) (*userResponse, error) {
	endpoint := c.baseURL + "/v1/users/" + url.PathEscape(subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", subject, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrUserNotFound
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch user %s: status %d: %s", subject, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var u userResponse
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", subject, err)
	}
	return &u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
