package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	json "github.com/goccy/go-json"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/metrics"
)

// RouterConfig tunes handler retries
type RouterConfig struct {
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	CloseTimeout         time.Duration
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RetryMaxRetries:      3,
		RetryInitialInterval: 200 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		CloseTimeout:         10 * time.Second,
	}
}

// Router consumes domain events and dispatches them to handlers
type Router struct {
	router *message.Router
}

// NewRouter builds a router with panic recovery and exponential retry, and
// registers handler for connection request events read from sub
func NewRouter(cfg RouterConfig, sub message.Subscriber, handler domain.ConnectionRequestHandler, logger watermill.LoggerAdapter) (*Router, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      2,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	wmRouter.AddNoPublisherHandler(
		"connection-request-notifier",
		domain.TopicConnectionRequested,
		sub,
		connectionRequestedHandler(handler),
	)

	return &Router{router: wmRouter}, nil
}

func connectionRequestedHandler(handler domain.ConnectionRequestHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var event domain.ConnectionRequestedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// a malformed payload will never succeed; drop it
			metrics.RecordEventConsume(domain.TopicConnectionRequested, err)
			return nil
		}
		err := handler.HandleConnectionRequested(msg.Context(), event)
		metrics.RecordEventConsume(domain.TopicConnectionRequested, err)
		return err
	}
}

// Run blocks until ctx is cancelled or Close is called
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	return r.router.Close()
}
