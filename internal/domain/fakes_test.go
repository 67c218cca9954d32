package domain_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/repository"
)

var errUnavailable = errors.New("connection refused")

type fakeProvider struct {
	mu     sync.Mutex
	claims map[string]*domain.Claims
	err    error
	calls  int
}

func (p *fakeProvider) FetchClaims(_ context.Context, subject string) (*domain.Claims, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	c, ok := p.claims[subject]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *c
	return &cp, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.ConnectionRequestedEvent
	err    error
}

func (p *fakePublisher) PublishConnectionRequested(_ context.Context, event domain.ConnectionRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []domain.ConnectionRequestedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ConnectionRequestedEvent(nil), p.events...)
}

func (p *fakePublisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type pushed struct {
	topic, title, body string
	data               map[string]string
}

type fakePush struct {
	sent []pushed
	err  error
}

func (p *fakePush) SendToTopic(_ context.Context, topic, title, body string, data map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, pushed{topic: topic, title: title, body: body, data: data})
	return nil
}

type fakeUploader struct {
	err       error
	uploads   []domain.MediaUpload
	discarded []string
}

func (u *fakeUploader) Upload(_ context.Context, upload domain.MediaUpload) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	if _, err := io.Copy(io.Discard, upload.Body); err != nil {
		return "", err
	}
	u.uploads = append(u.uploads, upload)
	return "https://cdn.example.com/" + string(upload.Kind) + "/" + upload.Filename, nil
}

func (u *fakeUploader) Discard(_ context.Context, url string) error {
	u.discarded = append(u.discarded, url)
	return nil
}

func seedUser(t *testing.T, repo *repository.MemoryRepository, id, username string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), domain.CreateUserParams{
		ID:       id,
		Email:    id + "@example.com",
		FullName: "User " + id,
		Username: username,
	})
	require.NoError(t, err)
	return u
}
