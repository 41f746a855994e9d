package fake

import (
	"context"
	"encoding/json"
	"sync"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// Realtime is an in-memory push channel. Tests drive it with Push; client
// code sees it through the taskdesk.RealtimeService interface.
type Realtime struct {
	mu        sync.Mutex
	connected bool
	subs      map[int]chan taskdesk.RealtimeMessage
	nextSub   int
	sent      []taskdesk.RealtimeMessage
}

// compile-time check
var _ taskdesk.RealtimeService = (*Realtime)(nil)

// NewRealtime creates a disconnected fake push channel.
func NewRealtime() *Realtime {
	return &Realtime{subs: make(map[int]chan taskdesk.RealtimeMessage)}
}

// Connect marks the channel open.
func (r *Realtime) Connect(_ context.Context) {
	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
}

// Subscribe returns a buffered message stream and a cancel func.
func (r *Realtime) Subscribe() (<-chan taskdesk.RealtimeMessage, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan taskdesk.RealtimeMessage, 16)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Send records the outbound message when connected and drops it otherwise.
func (r *Realtime) Send(msg taskdesk.RealtimeMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return
	}
	r.sent = append(r.sent, msg)
}

// SubscribeToClient records a client scope request.
func (r *Realtime) SubscribeToClient(clientID int64) {
	payload, _ := json.Marshal(taskdesk.SubscribeFilterPayload{ClientID: clientID})
	r.Send(taskdesk.RealtimeMessage{Type: taskdesk.MsgSubscribeFilter, Payload: payload})
}

// RemoveFilter records a scope clear request.
func (r *Realtime) RemoveFilter() {
	r.Send(taskdesk.RealtimeMessage{Type: taskdesk.MsgRemoveFilter})
}

// Disconnect closes the channel and severs all subscriptions.
func (r *Realtime) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// Push delivers a server-originated message to every subscriber. Tests use
// it to simulate pushed events.
func (r *Realtime) Push(msg taskdesk.RealtimeMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// PushStatusChange delivers a task_status_changed event.
func (r *Realtime) PushStatusChange(taskID int64, status taskdesk.Status) {
	payload, _ := json.Marshal(taskdesk.StatusChangedPayload{TaskID: taskID, NewStatus: status})
	r.Push(taskdesk.RealtimeMessage{Type: taskdesk.MsgTaskStatusChanged, Payload: payload})
}

// Sent returns a copy of the messages sent through the channel so far.
func (r *Realtime) Sent() []taskdesk.RealtimeMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]taskdesk.RealtimeMessage(nil), r.sent...)
}

// Notifier records user-facing messages.
type Notifier struct {
	mu       sync.Mutex
	messages []string
}

var _ taskdesk.Notifier = (*Notifier)(nil)

// Notify records one message.
func (n *Notifier) Notify(message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (n *Notifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// Navigator records redirect directives.
type Navigator struct {
	mu    sync.Mutex
	paths []string
}

var _ taskdesk.Navigator = (*Navigator)(nil)

// NavigateTo records one redirect.
func (n *Navigator) NavigateTo(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

// Paths returns a copy of the recorded redirects.
func (n *Navigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// Snapshots is an in-memory identity snapshot store.
type Snapshots struct {
	mu sync.Mutex
	id *taskdesk.Identity
}

var _ taskdesk.SnapshotStore = (*Snapshots)(nil)

// Save stores the identity.
func (s *Snapshots) Save(id taskdesk.Identity) error {
	s.mu.Lock()
	s.id = &id
	s.mu.Unlock()
	return nil
}

// Load returns the stored identity, or nil when none was saved.
func (s *Snapshots) Load() (*taskdesk.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == nil {
		return nil, nil
	}
	out := *s.id
	return &out, nil
}

// Clear drops the stored identity.
func (s *Snapshots) Clear() error {
	s.mu.Lock()
	s.id = nil
	s.mu.Unlock()
	return nil
}
