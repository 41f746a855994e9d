package taskdesk

import "context"

// SessionReader exposes synchronous, I/O-free reads of the current session
// state. All subsystems that need the credential or identity read through
// this interface and never hold their own copy.
type SessionReader interface {
	// Current returns the latest identity, or nil when anonymous.
	Current() *Identity

	// AccessToken returns the current access credential, or "" when absent.
	AccessToken() string

	// IsAuthenticated reports whether an access credential is current.
	IsAuthenticated() bool

	// HasRole reports whether the current identity has the given role.
	HasRole(role Role) bool
}

// SessionService manages the authenticated session lifecycle.
// Implementations: session/ (HTTP token endpoints), fake/ (testing).
type SessionService interface {
	SessionReader

	// Login exchanges credentials for an access credential. The refresh
	// cookie is set by the server out of band. Errors propagate unmodified.
	Login(ctx context.Context, email, password string) error

	// Refresh mints a new access credential from the ambient refresh cookie.
	Refresh(ctx context.Context) error

	// TryRestoreSession attempts one refresh when no credential is in
	// memory, e.g. after a process restart. Returns true iff it succeeded.
	TryRestoreSession(ctx context.Context) bool

	// Logout fires the logout endpoint best-effort and unconditionally
	// clears local session state, even when the network call fails.
	Logout(ctx context.Context) error
}

// TaskService is the work item resource endpoint, consumed opaquely.
type TaskService interface {
	// List returns one page of work items matching the filters.
	List(ctx context.Context, filters ListFilters) (*Page[WorkItem], error)

	// Get returns a single work item.
	Get(ctx context.Context, id int64) (*WorkItem, error)

	// Create creates a work item.
	Create(ctx context.Context, draft WorkItemDraft) (*WorkItem, error)

	// Update patches a work item.
	Update(ctx context.Context, id int64, draft WorkItemDraft) (*WorkItem, error)

	// ChangeStatus requests a workflow transition. The comment is optional.
	ChangeStatus(ctx context.Context, id int64, status Status, comment string) error

	// Assign replaces the assignee set of a work item.
	Assign(ctx context.Context, id int64, assigneeIDs []int64) error
}

// NotificationService is the notification feed endpoint plus the local
// unread counter.
type NotificationService interface {
	// List returns one page of notifications. isRead narrows by read state
	// when non-nil.
	List(ctx context.Context, isRead *bool, page int) (*Page[Notification], error)

	// MarkRead marks one notification read and decrements the unread count,
	// never below zero.
	MarkRead(ctx context.Context, id int64) error

	// MarkAllRead marks every notification read and zeroes the unread count.
	MarkAllRead(ctx context.Context) (int, error)

	// Unread returns the current unread count.
	Unread() int

	// RefreshUnread re-pulls the unread count from the backend.
	RefreshUnread(ctx context.Context) error
}

// RealtimeService is the push channel delivering server-originated events.
// Implementations: realtime/ (websocket), fake/ (testing).
type RealtimeService interface {
	// Connect opens the push connection keyed by the current credential.
	// No-op when no credential is current.
	Connect(ctx context.Context)

	// Subscribe returns a stream of inbound messages and a cancel func that
	// severs the subscription. Keepalive pings are answered internally and
	// never appear on the stream.
	Subscribe() (<-chan RealtimeMessage, func())

	// Send transmits a message if the connection is open, and silently
	// drops it otherwise.
	Send(msg RealtimeMessage)

	// SubscribeToClient asks the server to push only updates scoped to the
	// given client.
	SubscribeToClient(clientID int64)

	// RemoveFilter clears a previously requested client scope.
	RemoveFilter()

	// Disconnect closes the connection and disables auto-reconnect.
	Disconnect()
}

// Notifier is the sink for user-facing error messages. Implementations
// surface them however the embedding application sees fit.
type Notifier interface {
	Notify(message string)
}

// Navigator receives redirect directives from the session layer and guards.
type Navigator interface {
	NavigateTo(path string)
}

// SnapshotStore persists the last known identity so the UI can paint
// optimistically before the session is restored. The snapshot is never proof
// of authentication.
type SnapshotStore interface {
	Save(id Identity) error
	Load() (*Identity, error)
	Clear() error
}
