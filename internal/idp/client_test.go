package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), Config{
		BaseURL: srv.URL,
		APIKey:  "sk_test",
		Timeout: time.Second,
	}, zap.NewNop())
}

func TestClient_FetchClaims(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/user_123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "user_123",
			"username": "jdoe",
			"first_name": "Jane",
			"last_name": null,
			"image_url": "https://img.example.com/jane.png",
			"primary_email_address_id": "idn_2",
			"email_addresses": [
				{"id": "idn_1", "email_address": "old@example.com"},
				{"id": "idn_2", "email_address": "jane@example.com"}
			]
		}`))
	})

	claims, err := client.FetchClaims(context.Background(), "user_123")
	require.NoError(t, err)
	assert.Equal(t, "user_123", claims.Subject)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "Jane", claims.DisplayName())
	assert.Equal(t, "jdoe", claims.Username)
	assert.Equal(t, "https://img.example.com/jane.png", claims.ImageURL)
}

func TestClient_FetchClaims_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[]}`, http.StatusNotFound)
	})

	_, err := client.FetchClaims(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestClient_FetchClaims_ServerErrorOpensBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	for i := 0; i < 10; i++ {
		_, err := client.FetchClaims(context.Background(), "user_1")
		require.Error(t, err)
	}
	assert.Less(t, calls, 10, "open breaker short-circuits calls")
}

func TestUserResponse_PrimaryEmailFallsBackToFirst(t *testing.T) {
	u := userResponse{EmailAddresses: []emailAddress{{ID: "a", EmailAddress: "first@example.com"}}}
	assert.Equal(t, "first@example.com", u.primaryEmail())
	assert.Empty(t, (&userResponse{}).primaryEmail())
}
