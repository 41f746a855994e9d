// Package taskdesk is the client SDK for the taskdesk ticket management
// backend. It owns the authenticated session lifecycle, the authenticated
// HTTP transport, the realtime push channel, and the Kanban board view model.
//
// The package defines interfaces for the session, task, notification, and
// realtime services. Concrete implementations live in subpackages and are
// injected via Option functions:
//
//	client, err := taskdesk.NewClient(
//	    taskdesk.Config{APIBaseURL: "https://desk.example.com/api"},
//	    taskdesk.WithSessionService(gw),
//	    taskdesk.WithTaskService(tasks),
//	)
package taskdesk

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultPageSize bounds work item list pulls when the caller does not set
// an explicit page size.
const DefaultPageSize = 100

// Config holds connection and behavior configuration.
type Config struct {
	// APIBaseURL is the base URL of the REST backend, without a trailing
	// slash. Example: "https://desk.example.com/api".
	APIBaseURL string

	// WSBaseURL is the base URL of the push channel. Example:
	// "wss://desk.example.com/ws". If empty, realtime is unavailable.
	WSBaseURL string

	// HTTPClient is the client used for REST calls. It should carry a
	// cookie jar so the refresh cookie survives between calls. If nil,
	// a client with a 10 second timeout is used.
	HTTPClient *http.Client

	// PageSize bounds board loads. Default: DefaultPageSize.
	PageSize int
}

// Client is the main entry point. Service implementations are injected via
// Option functions, keeping the root package free of transport decisions.
type Client struct {
	config        Config
	logger        *slog.Logger
	session       SessionService
	tasks         TaskService
	notifications NotificationService
	realtime      RealtimeService
	notifier      Notifier
	navigator     Navigator
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionService sets the session lifecycle implementation.
func WithSessionService(s SessionService) Option {
	return func(c *Client) { c.session = s }
}

// WithTaskService sets the work item resource implementation.
func WithTaskService(t TaskService) Option {
	return func(c *Client) { c.tasks = t }
}

// WithNotificationService sets the notification feed implementation.
func WithNotificationService(n NotificationService) Option {
	return func(c *Client) { c.notifications = n }
}

// WithRealtime sets the push channel implementation.
func WithRealtime(r RealtimeService) Option {
	return func(c *Client) { c.realtime = r }
}

// WithNotifier sets the sink for user-facing error messages.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithNavigator sets the redirect sink used by logout and the guards.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// NewClient creates a new taskdesk client with the given configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("taskdesk: APIBaseURL is required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{config: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Session returns the session service, or nil if not configured.
func (c *Client) Session() SessionService { return c.session }

// Tasks returns the task service, or nil if not configured.
func (c *Client) Tasks() TaskService { return c.tasks }

// Notifications returns the notification service, or nil if not configured.
func (c *Client) Notifications() NotificationService { return c.notifications }

// Realtime returns the push channel, or nil if not configured.
func (c *Client) Realtime() RealtimeService { return c.realtime }

// Notifier returns the user message sink, or nil if not configured.
func (c *Client) Notifier() Notifier { return c.notifier }

// Navigator returns the redirect sink, or nil if not configured.
func (c *Client) Navigator() Navigator { return c.navigator }

// Close releases all resources held by the client. The realtime channel is
// disconnected and any injected service implementing io.Closer is closed.
func (c *Client) Close() error {
	if c.realtime != nil {
		c.realtime.Disconnect()
	}
	closers := []interface{}{
		c.session, c.tasks, c.notifications, c.realtime,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
