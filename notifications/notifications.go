// Package notifications is the HTTP client for the notification feed plus
// the locally maintained unread counter.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// Service talks to the notification endpoints and keeps a local unread
// counter. The counter is advisory: it is decremented optimistically on
// MarkRead and re-synced on RefreshUnread.
type Service struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	unread  int
	subs    map[int]chan int
	nextSub int
}

// compile-time check
var _ taskdesk.NotificationService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "notifications") }
}

// New creates a notification client rooted at baseURL.
func New(baseURL string, opts ...Option) *Service {
	s := &Service{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		subs:       make(map[int]chan int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns one page of notifications. isRead narrows by read state when
// non-nil.
func (s *Service) List(ctx context.Context, isRead *bool, page int) (*taskdesk.Page[taskdesk.Notification], error) {
	path := "/notifications/"
	sep := "?"
	if isRead != nil {
		path += sep + "is_read=" + strconv.FormatBool(*isRead)
		sep = "&"
	}
	if page > 1 {
		path += sep + "page=" + strconv.Itoa(page)
	}

	var out taskdesk.Page[taskdesk.Notification]
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks one notification read and decrements the unread counter,
// never below zero.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	if err := s.do(ctx, http.MethodPatch, fmt.Sprintf("/notifications/%d/read/", id), struct{}{}, nil); err != nil {
		return err
	}
	s.mu.Lock()
	if s.unread > 0 {
		s.unread--
		s.emitLocked()
	}
	s.mu.Unlock()
	return nil
}

// markAllResponse is the body returned by the bulk read endpoint.
type markAllResponse struct {
	UpdatedCount int `json:"updated_count"`
}

// MarkAllRead marks every notification read and zeroes the unread counter.
// It returns how many notifications the server marked.
func (s *Service) MarkAllRead(ctx context.Context) (int, error) {
	var out markAllResponse
	if err := s.do(ctx, http.MethodPost, "/notifications/read-all/", struct{}{}, &out); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.unread = 0
	s.emitLocked()
	s.mu.Unlock()
	return out.UpdatedCount, nil
}

// Unread returns the current unread count.
func (s *Service) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// RefreshUnread re-pulls the unread count from the backend, replacing
// whatever the local counter drifted to.
func (s *Service) RefreshUnread(ctx context.Context) error {
	unread := false
	page, err := s.List(ctx, &unread, 1)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unread = page.Count
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// SubscribeUnread returns a stream of unread-count updates and a cancel
// func. New subscribers immediately receive the current count; slow
// consumers only ever see the newest value.
func (s *Service) SubscribeUnread() (<-chan int, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan int, 1)
	ch <- s.unread
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// emitLocked conflates the latest count into every subscriber channel.
// Callers hold s.mu, so a concurrent cancel cannot close a channel mid-send.
func (s *Service) emitLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.unread
	}
}

// do sends one JSON request and decodes the response into out when out is
// non-nil. Non-2xx responses map to *taskdesk.APIError.
func (s *Service) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("taskdesk/notifications: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	reqURL := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("taskdesk/notifications: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("taskdesk/notifications: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("taskdesk/notifications: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return taskdesk.ParseAPIError(resp.StatusCode, reqURL, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("taskdesk/notifications: decode response: %w", err)
	}
	return nil
}
