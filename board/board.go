// Package board is the Kanban view model: four ordered work item columns
// fed by pull (the task resource) and push (the realtime channel), with
// deferred-confirm local mutation for user-initiated moves.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
	"github.com/sirnukesalot/taskdesk-go/audit"
	"github.com/sirnukesalot/taskdesk-go/metrics"
)

// RejectionFallback is shown when a rejected transition carries no server
// detail.
const RejectionFallback = "Invalid transition"

// Column is one ordered board column keyed by a status.
type Column struct {
	Status taskdesk.Status
	Label  string
	Items  []taskdesk.WorkItem
}

// boardStatuses are the columns in display order. Archived items never
// appear on the board.
var boardStatuses = []taskdesk.Status{
	taskdesk.StatusCreated,
	taskdesk.StatusInProgress,
	taskdesk.StatusWaiting,
	taskdesk.StatusDone,
}

// Board keeps the columns consistent between pulls, pushed events, and
// user-initiated moves. Local state is mutated only after the server
// confirms a command; a rejected command is therefore a no-op on the
// columns, which is the whole rollback mechanism.
type Board struct {
	tasks    taskdesk.TaskService
	session  taskdesk.SessionReader
	notifier taskdesk.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    *audit.Logger
	pageSize int

	mu      sync.Mutex
	columns []Column
	search  string
	filters taskdesk.ListFilters
}

// Option configures the Board.
type Option func(*Board)

// WithNotifier sets the sink for rejection messages.
func WithNotifier(n taskdesk.Notifier) Option {
	return func(b *Board) { b.notifier = n }
}

// WithLogger sets a structured logger for the board.
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.logger = l.With("component", "board") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// WithAudit sets the audit logger for transition commands.
func WithAudit(a *audit.Logger) Option {
	return func(b *Board) { b.audit = a }
}

// WithPageSize bounds how many items one load pulls.
func WithPageSize(n int) Option {
	return func(b *Board) { b.pageSize = n }
}

// New creates an empty board over the given task service and session.
func New(tasks taskdesk.TaskService, session taskdesk.SessionReader, opts ...Option) *Board {
	b := &Board{
		tasks:    tasks,
		session:  session,
		logger:   slog.Default(),
		metrics:  metrics.New(false),
		pageSize: taskdesk.DefaultPageSize,
	}
	for _, o := range opts {
		o(b)
	}
	b.columns = emptyColumns()
	return b
}

func emptyColumns() []Column {
	cols := make([]Column, len(boardStatuses))
	for i, status := range boardStatuses {
		cols[i] = Column{Status: status, Label: Label(status)}
	}
	return cols
}

// Load pulls one page of work items matching the active search and filters
// and distributes them into the columns. Items whose status is not one of
// the four tracked values are dropped from the view.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	filters := b.filters
	filters.PageSize = b.pageSize
	filters.Search = b.search
	b.mu.Unlock()

	page, err := b.tasks.List(ctx, filters)
	if err != nil {
		return fmt.Errorf("taskdesk/board: load: %w", err)
	}

	cols := emptyColumns()
	for _, item := range page.Results {
		for i := range cols {
			if cols[i].Status == item.Status {
				cols[i].Items = append(cols[i].Items, item)
				break
			}
		}
	}

	b.mu.Lock()
	b.columns = cols
	b.mu.Unlock()
	return nil
}

// SetSearch updates the search term and reloads.
func (b *Board) SetSearch(ctx context.Context, term string) error {
	b.mu.Lock()
	b.search = term
	b.mu.Unlock()
	return b.Load(ctx)
}

// SetFilters replaces the active filters and reloads.
func (b *Board) SetFilters(ctx context.Context, filters taskdesk.ListFilters) error {
	b.mu.Lock()
	b.filters = filters
	b.mu.Unlock()
	return b.Load(ctx)
}

// Columns returns a copy of the current columns safe to read while the
// board keeps updating.
func (b *Board) Columns() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Column, len(b.columns))
	for i, col := range b.columns {
		out[i] = Column{
			Status: col.Status,
			Label:  col.Label,
			Items:  append([]taskdesk.WorkItem(nil), col.Items...),
		}
	}
	return out
}

// Column returns a copy of the items in the column for the given status.
func (b *Board) Column(status taskdesk.Status) []taskdesk.WorkItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, col := range b.columns {
		if col.Status == status {
			return append([]taskdesk.WorkItem(nil), col.Items...)
		}
	}
	return nil
}

// NextStatuses returns the legal transitions out of the given status for
// the current user. Archiving is a manager-only move: the backend table
// allows done→archived generically, but the view withholds it from other
// roles.
func (b *Board) NextStatuses(current taskdesk.Status) []taskdesk.Status {
	next := ValidTransitions[current]
	out := make([]taskdesk.Status, 0, len(next))
	for _, status := range next {
		if status == taskdesk.StatusArchived && !b.session.HasRole(taskdesk.RoleManager) {
			continue
		}
		out = append(out, status)
	}
	return out
}

// ChangeStatus issues a status-change command and applies it locally only
// after the server confirms. On rejection the columns are untouched and the
// server's reason, or a generic fallback, is surfaced.
func (b *Board) ChangeStatus(ctx context.Context, id int64, newStatus taskdesk.Status, comment string) error {
	if newStatus == taskdesk.StatusArchived && !b.session.HasRole(taskdesk.RoleManager) {
		b.metrics.RecordTransition("rejected")
		return fmt.Errorf("taskdesk/board: archiving requires the manager role")
	}

	if err := b.tasks.ChangeStatus(ctx, id, newStatus, comment); err != nil {
		b.metrics.RecordTransition("rejected")
		b.logTransition(ctx, id, newStatus, err)
		b.notifyRejection(err)
		return err
	}

	b.mu.Lock()
	b.moveLocked(id, newStatus)
	b.mu.Unlock()
	b.metrics.RecordTransition("confirmed")
	b.logTransition(ctx, id, newStatus, nil)
	return nil
}

func (b *Board) logTransition(ctx context.Context, id int64, newStatus taskdesk.Status, err error) {
	ev := audit.Event{
		Action:    audit.ActionStatusChange,
		Result:    audit.ResultSuccess,
		Details:   fmt.Sprintf("task %d to %s", id, newStatus),
		RequestID: taskdesk.RequestIDFromContext(ctx),
	}
	if err != nil {
		ev.Result = audit.ResultFailure
		ev.Error = err.Error()
	}
	if identity := b.session.Current(); identity != nil {
		ev.UserID = identity.ID
		ev.Role = string(identity.Role)
	}
	b.audit.Log(ev)
}

// HandleRealtime applies one pushed message to the board. A status change
// is applied in place; a creation triggers a full reload, since the active
// filters may or may not include the new item. Everything else is ignored.
func (b *Board) HandleRealtime(ctx context.Context, msg taskdesk.RealtimeMessage) {
	switch msg.Type {
	case taskdesk.MsgTaskStatusChanged:
		var p taskdesk.StatusChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			b.logger.Debug("bad status change payload", "err", err)
			return
		}
		b.mu.Lock()
		b.moveLocked(p.TaskID, p.NewStatus)
		b.mu.Unlock()
	case taskdesk.MsgTaskCreated:
		if err := b.Load(ctx); err != nil {
			b.logger.Warn("reload after pushed creation failed", "err", err)
		}
	}
}

// Run feeds the board from a realtime subscription until the context is
// canceled or the stream closes. Cancel the context on view teardown so a
// stale push cannot mutate a destroyed view.
func (b *Board) Run(ctx context.Context, msgs <-chan taskdesk.RealtimeMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.HandleRealtime(ctx, msg)
		}
	}
}

// moveLocked relocates the item with the given id to the column owning
// newStatus: search-then-splice before inserting, so an item can never sit
// in two columns at once. An id not on the board is ignored; it is outside
// the current view or filter. A status without a column (archived) removes
// the item from the board. Callers hold b.mu.
func (b *Board) moveLocked(id int64, newStatus taskdesk.Status) {
	for i := range b.columns {
		for j, item := range b.columns[i].Items {
			if item.ID != id {
				continue
			}
			b.columns[i].Items = append(b.columns[i].Items[:j], b.columns[i].Items[j+1:]...)
			item.Status = newStatus
			for k := range b.columns {
				if b.columns[k].Status == newStatus {
					b.columns[k].Items = append(b.columns[k].Items, item)
					break
				}
			}
			return
		}
	}
}

// notifyRejection surfaces a rejected transition's reason.
func (b *Board) notifyRejection(err error) {
	if b.notifier == nil {
		return
	}
	if apiErr, ok := taskdesk.AsAPIError(err); ok && apiErr.Detail != "" {
		b.notifier.Notify(apiErr.Detail)
		return
	}
	b.notifier.Notify(RejectionFallback)
}
