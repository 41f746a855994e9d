package taskdesk

import "encoding/json"

// Role is the access role carried in the access credential payload.
type Role string

// Known roles.
const (
	RoleSuperadmin Role = "superadmin"
	RoleManager    Role = "manager"
	RoleEngineer   Role = "engineer"
	RoleClient     Role = "client"
)

// Identity is the authenticated user as decoded from the access credential.
// It is never fetched from the backend; the credential payload is the only
// source. Owned by the session store and replaced atomically with the
// credential it was decoded from.
type Identity struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           Role   `json:"role"`
	OrganizationID *int64 `json:"organization_id"`
}

// Status is a work item's position in the board workflow.
type Status string

// Work item statuses. The four non-archived statuses each own one board column.
const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// ClientRef identifies the client (customer) a work item belongs to.
type ClientRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Assignee identifies a user assigned to a work item.
type Assignee struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Tag is a label attached to a work item.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

// WorkItem is a task as shown on the board. The authoritative copy lives
// server-side; the board holds a working copy mutated only through confirmed
// transitions.
type WorkItem struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Status           Status     `json:"status"`
	Priority         string     `json:"priority"`
	Deadline         string     `json:"deadline"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`
	Client           *ClientRef `json:"client"`
	Assignees        []Assignee `json:"assignees"`
	Tags             []Tag      `json:"tags"`
	CommentsCount    int        `json:"comments_count"`
	AttachmentsCount int        `json:"attachments_count"`
}

// WorkItemDraft is the payload for creating or updating a work item.
type WorkItemDraft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Deadline    string  `json:"deadline"`
	ClientID    *int64  `json:"client_id,omitempty"`
	AssigneeIDs []int64 `json:"assignee_ids,omitempty"`
	TagIDs      []int64 `json:"tag_ids,omitempty"`
}

// Page is one page of a paginated list response.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ListFilters narrows a work item list request. Zero values are omitted from
// the query string.
type ListFilters struct {
	Page         int
	PageSize     int
	Status       Status
	Priority     string
	DeadlineFrom string
	DeadlineTo   string
	Assignee     int64
	Client       int64
	Tags         string
	Search       string
	Ordering     string
}

// Notification is an entry in the user's notification feed.
type Notification struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	TaskID    *int64 `json:"task_id"`
	SummaryID *int64 `json:"summary_id"`
	CreatedAt string `json:"created_at"`
}

// Realtime message types understood by the push channel. Frames with any
// other type are forwarded to subscribers untouched; frames that fail to
// parse are dropped.
const (
	MsgPing              = "ping"
	MsgPong              = "pong"
	MsgTaskStatusChanged = "task_status_changed"
	MsgTaskCreated       = "task_created"
	MsgSubscribeFilter   = "subscribe_filter"
	MsgRemoveFilter      = "remove_filter"
)

// RealtimeMessage is one frame on the push channel: a tagged union of a type
// string and an optional payload.
type RealtimeMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatusChangedPayload is the payload of a task_status_changed message.
type StatusChangedPayload struct {
	TaskID    int64  `json:"task_id"`
	NewStatus Status `json:"new_status"`
}

// SubscribeFilterPayload is the payload of a subscribe_filter message.
type SubscribeFilterPayload struct {
	ClientID int64 `json:"client_id"`
}
