package board

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

type stubTasks struct {
	items     []taskdesk.WorkItem
	listCalls int
	listErr   error

	statusErr   error
	statusCalls []statusCall
}

type statusCall struct {
	id     int64
	status taskdesk.Status
}

func (s *stubTasks) List(ctx context.Context, filters taskdesk.ListFilters) (*taskdesk.Page[taskdesk.WorkItem], error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &taskdesk.Page[taskdesk.WorkItem]{
		Count:   len(s.items),
		Results: append([]taskdesk.WorkItem(nil), s.items...),
	}, nil
}

func (s *stubTasks) Get(ctx context.Context, id int64) (*taskdesk.WorkItem, error) {
	for _, item := range s.items {
		if item.ID == id {
			out := item
			return &out, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubTasks) Create(ctx context.Context, draft taskdesk.WorkItemDraft) (*taskdesk.WorkItem, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTasks) Update(ctx context.Context, id int64, draft taskdesk.WorkItemDraft) (*taskdesk.WorkItem, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTasks) ChangeStatus(ctx context.Context, id int64, status taskdesk.Status, comment string) error {
	s.statusCalls = append(s.statusCalls, statusCall{id: id, status: status})
	return s.statusErr
}

func (s *stubTasks) Assign(ctx context.Context, id int64, assigneeIDs []int64) error {
	return errors.New("not implemented")
}

type stubSession struct {
	role taskdesk.Role
}

func (s *stubSession) Current() *taskdesk.Identity {
	return &taskdesk.Identity{ID: 1, Role: s.role}
}
func (s *stubSession) AccessToken() string             { return "tok" }
func (s *stubSession) IsAuthenticated() bool           { return true }
func (s *stubSession) HasRole(role taskdesk.Role) bool { return s.role == role }

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.messages = append(n.messages, message)
}

func item(id int64, status taskdesk.Status) taskdesk.WorkItem {
	return taskdesk.WorkItem{ID: id, Title: "task", Status: status}
}

func loadedBoard(t *testing.T, tasks *stubTasks, session taskdesk.SessionReader, opts ...Option) *Board {
	t.Helper()
	b := New(tasks, session, opts...)
	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func TestLoad_DistributesByStatus(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{
		item(1, taskdesk.StatusCreated),
		item(2, taskdesk.StatusInProgress),
		item(3, taskdesk.StatusDone),
		item(4, taskdesk.StatusCreated),
	}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	cols := b.Columns()
	if len(cols) != 4 {
		t.Fatalf("got %d columns, want 4", len(cols))
	}
	want := []taskdesk.Status{
		taskdesk.StatusCreated,
		taskdesk.StatusInProgress,
		taskdesk.StatusWaiting,
		taskdesk.StatusDone,
	}
	for i, status := range want {
		if cols[i].Status != status {
			t.Fatalf("column %d is %q, want %q", i, cols[i].Status, status)
		}
	}
	if got := len(cols[0].Items); got != 2 {
		t.Fatalf("created column has %d items, want 2", got)
	}
	if got := len(cols[2].Items); got != 0 {
		t.Fatalf("waiting column has %d items, want 0", got)
	}
}

func TestLoad_DropsArchivedAndUnknownStatuses(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{
		item(1, taskdesk.StatusCreated),
		item(2, taskdesk.StatusArchived),
		item(3, taskdesk.Status("mystery")),
	}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	total := 0
	for _, col := range b.Columns() {
		total += len(col.Items)
	}
	if total != 1 {
		t.Fatalf("board holds %d items, want 1", total)
	}
}

func TestChangeStatus_AppliesOnlyAfterConfirmation(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(7, taskdesk.StatusCreated)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	if err := b.ChangeStatus(context.Background(), 7, taskdesk.StatusInProgress, "picking it up"); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if len(tasks.statusCalls) != 1 || tasks.statusCalls[0].status != taskdesk.StatusInProgress {
		t.Fatalf("status calls = %+v", tasks.statusCalls)
	}
	if got := b.Column(taskdesk.StatusCreated); len(got) != 0 {
		t.Fatalf("created column still holds %d items", len(got))
	}
	moved := b.Column(taskdesk.StatusInProgress)
	if len(moved) != 1 || moved[0].ID != 7 || moved[0].Status != taskdesk.StatusInProgress {
		t.Fatalf("in_progress column = %+v", moved)
	}
}

func TestChangeStatus_RejectionLeavesColumnsUntouched(t *testing.T) {
	tasks := &stubTasks{
		items: []taskdesk.WorkItem{item(7, taskdesk.StatusCreated), item(8, taskdesk.StatusDone)},
		statusErr: &taskdesk.APIError{
			StatusCode: 400,
			Detail:     "Transition not allowed from current state",
		},
	}
	notifier := &recordingNotifier{}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer}, WithNotifier(notifier))

	before := b.Columns()
	if err := b.ChangeStatus(context.Background(), 7, taskdesk.StatusDone, ""); err == nil {
		t.Fatal("expected an error for the rejected transition")
	}
	after := b.Columns()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("columns changed on rejection:\nbefore %+v\nafter  %+v", before, after)
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != "Transition not allowed from current state" {
		t.Fatalf("notifications = %v", notifier.messages)
	}
}

func TestChangeStatus_RejectionWithoutDetailUsesFallback(t *testing.T) {
	tasks := &stubTasks{
		items:     []taskdesk.WorkItem{item(7, taskdesk.StatusCreated)},
		statusErr: errors.New("boom"),
	}
	notifier := &recordingNotifier{}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer}, WithNotifier(notifier))

	if err := b.ChangeStatus(context.Background(), 7, taskdesk.StatusInProgress, ""); err == nil {
		t.Fatal("expected an error")
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != RejectionFallback {
		t.Fatalf("notifications = %v", notifier.messages)
	}
}

func TestChangeStatus_ArchiveRequiresManager(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(7, taskdesk.StatusDone)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	if err := b.ChangeStatus(context.Background(), 7, taskdesk.StatusArchived, ""); err == nil {
		t.Fatal("expected archive by engineer to fail")
	}
	if len(tasks.statusCalls) != 0 {
		t.Fatalf("server was called %d times, want 0", len(tasks.statusCalls))
	}
	if got := b.Column(taskdesk.StatusDone); len(got) != 1 {
		t.Fatalf("done column = %+v", got)
	}
}

func TestChangeStatus_ManagerArchiveRemovesFromBoard(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(7, taskdesk.StatusDone)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleManager})

	if err := b.ChangeStatus(context.Background(), 7, taskdesk.StatusArchived, "done for the quarter"); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	total := 0
	for _, col := range b.Columns() {
		total += len(col.Items)
	}
	if total != 0 {
		t.Fatalf("board still holds %d items after archive", total)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func statusChange(t *testing.T, id int64, status taskdesk.Status) taskdesk.RealtimeMessage {
	t.Helper()
	payload, err := json.Marshal(taskdesk.StatusChangedPayload{TaskID: id, NewStatus: status})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return taskdesk.RealtimeMessage{Type: taskdesk.MsgTaskStatusChanged, Payload: payload}
}

func TestHandleRealtime_StatusChangeMovesItemExactlyOnce(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{
		item(7, taskdesk.StatusCreated),
		item(9, taskdesk.StatusCreated),
	}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	b.HandleRealtime(context.Background(), statusChange(t, 7, taskdesk.StatusDone))

	created := b.Column(taskdesk.StatusCreated)
	if len(created) != 1 || created[0].ID != 9 {
		t.Fatalf("created column = %+v", created)
	}
	done := b.Column(taskdesk.StatusDone)
	if len(done) != 1 || done[0].ID != 7 || done[0].Status != taskdesk.StatusDone {
		t.Fatalf("done column = %+v", done)
	}
	occurrences := 0
	for _, col := range b.Columns() {
		for _, it := range col.Items {
			if it.ID == 7 {
				occurrences++
			}
		}
	}
	if occurrences != 1 {
		t.Fatalf("item 7 appears %d times, want exactly 1", occurrences)
	}
}

func TestHandleRealtime_UnknownIDIsIgnored(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(7, taskdesk.StatusCreated)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	before := b.Columns()
	b.HandleRealtime(context.Background(), statusChange(t, 404, taskdesk.StatusDone))
	if !reflect.DeepEqual(before, b.Columns()) {
		t.Fatal("columns changed for an id not on the board")
	}
}

func TestHandleRealtime_ArchivePushRemovesItem(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(7, taskdesk.StatusDone)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	b.HandleRealtime(context.Background(), statusChange(t, 7, taskdesk.StatusArchived))
	total := 0
	for _, col := range b.Columns() {
		total += len(col.Items)
	}
	if total != 0 {
		t.Fatalf("board holds %d items after pushed archive, want 0", total)
	}
}

func TestHandleRealtime_TaskCreatedTriggersReload(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(1, taskdesk.StatusCreated)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	tasks.items = append(tasks.items, item(2, taskdesk.StatusCreated))
	b.HandleRealtime(context.Background(), taskdesk.RealtimeMessage{Type: taskdesk.MsgTaskCreated})

	if tasks.listCalls != 2 {
		t.Fatalf("list calls = %d, want 2", tasks.listCalls)
	}
	if got := b.Column(taskdesk.StatusCreated); len(got) != 2 {
		t.Fatalf("created column = %+v", got)
	}
}

func TestNextStatuses_RoleOverlay(t *testing.T) {
	tasks := &stubTasks{}
	engineer := New(tasks, &stubSession{role: taskdesk.RoleEngineer})
	manager := New(tasks, &stubSession{role: taskdesk.RoleManager})

	got := engineer.NextStatuses(taskdesk.StatusDone)
	if !reflect.DeepEqual(got, []taskdesk.Status{taskdesk.StatusInProgress}) {
		t.Fatalf("engineer next from done = %v", got)
	}
	got = manager.NextStatuses(taskdesk.StatusDone)
	want := []taskdesk.Status{taskdesk.StatusInProgress, taskdesk.StatusArchived}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("manager next from done = %v, want %v", got, want)
	}
	if got := manager.NextStatuses(taskdesk.StatusCreated); !reflect.DeepEqual(got, []taskdesk.Status{taskdesk.StatusInProgress}) {
		t.Fatalf("next from created = %v", got)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	tasks := &stubTasks{items: []taskdesk.WorkItem{item(7, taskdesk.StatusCreated)}}
	b := loadedBoard(t, tasks, &stubSession{role: taskdesk.RoleEngineer})

	msgs := make(chan taskdesk.RealtimeMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, msgs)
		close(done)
	}()

	msgs <- statusChange(t, 7, taskdesk.StatusDone)
	waitFor(t, func() bool { return len(b.Column(taskdesk.StatusDone)) == 1 })
	cancel()
	<-done
}
