// Package tasks is the HTTP client for the work item resource.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// Service talks to the work item endpoints. It is transport-agnostic: wire
// the HTTP client through the transport chain to get credential attachment
// and error surfacing for free.
type Service struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	pageSize   int
}

// compile-time check
var _ taskdesk.TaskService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client for resource calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "tasks") }
}

// WithPageSize sets the page size used when a list request does not carry
// its own.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// New creates a work item client rooted at baseURL.
func New(baseURL string, opts ...Option) *Service {
	s := &Service{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		pageSize:   taskdesk.DefaultPageSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns one page of work items matching the filters.
func (s *Service) List(ctx context.Context, filters taskdesk.ListFilters) (*taskdesk.Page[taskdesk.WorkItem], error) {
	if filters.PageSize == 0 {
		filters.PageSize = s.pageSize
	}
	var page taskdesk.Page[taskdesk.WorkItem]
	if err := s.do(ctx, http.MethodGet, "/tasks/"+encodeFilters(filters), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns a single work item.
func (s *Service) Get(ctx context.Context, id int64) (*taskdesk.WorkItem, error) {
	var item taskdesk.WorkItem
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d/", id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create creates a work item.
func (s *Service) Create(ctx context.Context, draft taskdesk.WorkItemDraft) (*taskdesk.WorkItem, error) {
	var item taskdesk.WorkItem
	if err := s.do(ctx, http.MethodPost, "/tasks/", draft, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update patches a work item.
func (s *Service) Update(ctx context.Context, id int64, draft taskdesk.WorkItemDraft) (*taskdesk.WorkItem, error) {
	var item taskdesk.WorkItem
	if err := s.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%d/", id), draft, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// statusRequest is the body of a workflow transition command.
type statusRequest struct {
	Status  taskdesk.Status `json:"status"`
	Comment string          `json:"comment,omitempty"`
}

// ChangeStatus requests a workflow transition. The server is the sole judge
// of validity; a rejection comes back as *taskdesk.APIError.
func (s *Service) ChangeStatus(ctx context.Context, id int64, status taskdesk.Status, comment string) error {
	return s.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d/status/", id), statusRequest{Status: status, Comment: comment}, nil)
}

// assignRequest is the body of an assignment command.
type assignRequest struct {
	AssigneeIDs []int64 `json:"assignee_ids"`
}

// Assign replaces the assignee set of a work item.
func (s *Service) Assign(ctx context.Context, id int64, assigneeIDs []int64) error {
	return s.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d/assign/", id), assignRequest{AssigneeIDs: assigneeIDs}, nil)
}

// HistoryEntry is one recorded change of a work item.
type HistoryEntry struct {
	ID        int64  `json:"id"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	Comment   string `json:"comment"`
	UserID    int64  `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

// History returns the change log of a work item, newest first.
func (s *Service) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d/history/", id), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// do sends one JSON request and decodes the response into out when out is
// non-nil. Non-2xx responses map to *taskdesk.APIError.
func (s *Service) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("taskdesk/tasks: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	reqURL := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("taskdesk/tasks: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("taskdesk/tasks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("taskdesk/tasks: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return taskdesk.ParseAPIError(resp.StatusCode, reqURL, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("taskdesk/tasks: decode response: %w", err)
	}
	return nil
}

// encodeFilters renders the non-zero filters as a query string, leading "?"
// included, or "" when every filter is zero.
func encodeFilters(f taskdesk.ListFilters) string {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(f.PageSize))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	if f.DeadlineFrom != "" {
		q.Set("deadline_from", f.DeadlineFrom)
	}
	if f.DeadlineTo != "" {
		q.Set("deadline_to", f.DeadlineTo)
	}
	if f.Assignee > 0 {
		q.Set("assignee", strconv.FormatInt(f.Assignee, 10))
	}
	if f.Client > 0 {
		q.Set("client", strconv.FormatInt(f.Client, 10))
	}
	if f.Tags != "" {
		q.Set("tags", f.Tags)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
