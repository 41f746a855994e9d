// Package fake provides in-memory implementations of the taskdesk service
// interfaces for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and external
// dependencies.
package fake

import (
	"context"
	"fmt"
	"sync"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// Option configures the fake client.
type Option func(*state)

type state struct {
	mu            sync.RWMutex
	identity      *taskdesk.Identity
	password      string
	authenticated bool
	restorable    bool
	items         map[int64]*taskdesk.WorkItem
	notifications map[int64]*taskdesk.Notification
	unread        int
	nextID        int64
}

// WithUser sets the account the fake accepts at login.
func WithUser(id taskdesk.Identity, password string) Option {
	return func(s *state) {
		s.identity = &id
		s.password = password
	}
}

// WithAuthenticated starts the fake session already authenticated. Requires
// WithUser.
func WithAuthenticated() Option {
	return func(s *state) { s.authenticated = true }
}

// WithRestorableSession makes TryRestoreSession succeed once a user exists,
// simulating a valid refresh cookie surviving a restart.
func WithRestorableSession() Option {
	return func(s *state) { s.restorable = true }
}

// WithWorkItem seeds a work item.
func WithWorkItem(item taskdesk.WorkItem) Option {
	return func(s *state) {
		s.items[item.ID] = &item
		if item.ID >= s.nextID {
			s.nextID = item.ID + 1
		}
	}
}

// WithNotification seeds a notification; unread ones count toward the
// unread counter.
func WithNotification(n taskdesk.Notification) Option {
	return func(s *state) {
		s.notifications[n.ID] = &n
		if !n.IsRead {
			s.unread++
		}
	}
}

// NewClient creates a *taskdesk.Client with every service wired to
// in-memory fakes. The returned services share one state, so a status
// change through Tasks() is visible to subsequent lists.
func NewClient(opts ...Option) *taskdesk.Client {
	s := &state{
		items:         make(map[int64]*taskdesk.WorkItem),
		notifications: make(map[int64]*taskdesk.Notification),
		nextID:        1,
	}
	for _, o := range opts {
		o(s)
	}

	c, _ := taskdesk.NewClient(
		taskdesk.Config{APIBaseURL: "fake://localhost"},
		taskdesk.WithSessionService(&fakeSession{s: s}),
		taskdesk.WithTaskService(&fakeTasks{s: s}),
		taskdesk.WithNotificationService(&fakeNotifications{s: s}),
		taskdesk.WithRealtime(NewRealtime()),
		taskdesk.WithNotifier(&Notifier{}),
		taskdesk.WithNavigator(&Navigator{}),
	)
	return c
}

// --- SessionService ---

type fakeSession struct{ s *state }

func (f *fakeSession) Current() *taskdesk.Identity {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	if !f.s.authenticated {
		return nil
	}
	return f.s.identity
}

func (f *fakeSession) AccessToken() string {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	if !f.s.authenticated {
		return ""
	}
	return "fake-access"
}

func (f *fakeSession) IsAuthenticated() bool {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return f.s.authenticated
}

func (f *fakeSession) HasRole(role taskdesk.Role) bool {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return f.s.authenticated && f.s.identity != nil && f.s.identity.Role == role
}

func (f *fakeSession) Login(_ context.Context, email, password string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.identity == nil || f.s.identity.Email != email || f.s.password != password {
		return &taskdesk.APIError{StatusCode: 401, Detail: "Invalid credentials"}
	}
	f.s.authenticated = true
	return nil
}

func (f *fakeSession) Refresh(_ context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if !f.s.restorable && !f.s.authenticated {
		return &taskdesk.APIError{StatusCode: 401, Detail: "No refresh credential"}
	}
	if f.s.identity == nil {
		return &taskdesk.APIError{StatusCode: 401, Detail: "No refresh credential"}
	}
	f.s.authenticated = true
	return nil
}

func (f *fakeSession) TryRestoreSession(ctx context.Context) bool {
	return f.Refresh(ctx) == nil
}

func (f *fakeSession) Logout(_ context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.authenticated = false
	f.s.restorable = false
	return nil
}

// --- TaskService ---

type fakeTasks struct{ s *state }

func (f *fakeTasks) List(_ context.Context, filters taskdesk.ListFilters) (*taskdesk.Page[taskdesk.WorkItem], error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	var results []taskdesk.WorkItem
	for _, item := range f.s.items {
		if filters.Status != "" && item.Status != filters.Status {
			continue
		}
		if filters.Client != 0 && (item.Client == nil || item.Client.ID != filters.Client) {
			continue
		}
		results = append(results, *item)
	}
	return &taskdesk.Page[taskdesk.WorkItem]{Count: len(results), Results: results}, nil
}

func (f *fakeTasks) Get(_ context.Context, id int64) (*taskdesk.WorkItem, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	item, ok := f.s.items[id]
	if !ok {
		return nil, &taskdesk.APIError{StatusCode: 404, Detail: fmt.Sprintf("Task %d not found", id)}
	}
	out := *item
	return &out, nil
}

func (f *fakeTasks) Create(_ context.Context, draft taskdesk.WorkItemDraft) (*taskdesk.WorkItem, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	item := &taskdesk.WorkItem{
		ID:       f.s.nextID,
		Title:    draft.Title,
		Status:   taskdesk.StatusCreated,
		Priority: draft.Priority,
		Deadline: draft.Deadline,
	}
	f.s.nextID++
	f.s.items[item.ID] = item
	out := *item
	return &out, nil
}

func (f *fakeTasks) Update(_ context.Context, id int64, draft taskdesk.WorkItemDraft) (*taskdesk.WorkItem, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	item, ok := f.s.items[id]
	if !ok {
		return nil, &taskdesk.APIError{StatusCode: 404, Detail: fmt.Sprintf("Task %d not found", id)}
	}
	if draft.Title != "" {
		item.Title = draft.Title
	}
	if draft.Priority != "" {
		item.Priority = draft.Priority
	}
	if draft.Deadline != "" {
		item.Deadline = draft.Deadline
	}
	out := *item
	return &out, nil
}

// ChangeStatus enforces the workflow table the way the backend does, so
// tests exercising rejections do not need a real server.
func (f *fakeTasks) ChangeStatus(_ context.Context, id int64, status taskdesk.Status, _ string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	item, ok := f.s.items[id]
	if !ok {
		return &taskdesk.APIError{StatusCode: 404, Detail: fmt.Sprintf("Task %d not found", id)}
	}
	for _, next := range validTransitions[item.Status] {
		if next == status {
			item.Status = status
			return nil
		}
	}
	return &taskdesk.APIError{
		StatusCode: 400,
		Detail:     fmt.Sprintf("Cannot transition from %s to %s", item.Status, status),
	}
}

func (f *fakeTasks) Assign(_ context.Context, id int64, assigneeIDs []int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	item, ok := f.s.items[id]
	if !ok {
		return &taskdesk.APIError{StatusCode: 404, Detail: fmt.Sprintf("Task %d not found", id)}
	}
	assignees := make([]taskdesk.Assignee, len(assigneeIDs))
	for i, aid := range assigneeIDs {
		assignees[i] = taskdesk.Assignee{ID: aid}
	}
	item.Assignees = assignees
	return nil
}

var validTransitions = map[taskdesk.Status][]taskdesk.Status{
	taskdesk.StatusCreated:    {taskdesk.StatusInProgress},
	taskdesk.StatusInProgress: {taskdesk.StatusWaiting, taskdesk.StatusDone},
	taskdesk.StatusWaiting:    {taskdesk.StatusInProgress},
	taskdesk.StatusDone:       {taskdesk.StatusInProgress, taskdesk.StatusArchived},
}

// --- NotificationService ---

type fakeNotifications struct{ s *state }

func (f *fakeNotifications) List(_ context.Context, isRead *bool, _ int) (*taskdesk.Page[taskdesk.Notification], error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	var results []taskdesk.Notification
	for _, n := range f.s.notifications {
		if isRead != nil && n.IsRead != *isRead {
			continue
		}
		results = append(results, *n)
	}
	return &taskdesk.Page[taskdesk.Notification]{Count: len(results), Results: results}, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	n, ok := f.s.notifications[id]
	if !ok {
		return &taskdesk.APIError{StatusCode: 404, Detail: "Notification not found"}
	}
	if !n.IsRead {
		n.IsRead = true
		if f.s.unread > 0 {
			f.s.unread--
		}
	}
	return nil
}

func (f *fakeNotifications) MarkAllRead(_ context.Context) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	marked := 0
	for _, n := range f.s.notifications {
		if !n.IsRead {
			n.IsRead = true
			marked++
		}
	}
	f.s.unread = 0
	return marked, nil
}

func (f *fakeNotifications) Unread() int {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return f.s.unread
}

func (f *fakeNotifications) RefreshUnread(_ context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	count := 0
	for _, n := range f.s.notifications {
		if !n.IsRead {
			count++
		}
	}
	f.s.unread = count
	return nil
}
