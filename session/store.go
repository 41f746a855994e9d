// Package session owns the authenticated session: the in-memory access
// credential, the identity decoded from it, and the network calls that mint,
// refresh, and revoke it.
package session

import (
	"log/slog"
	"sync"
	"time"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
	"github.com/sirnukesalot/taskdesk-go/token"
)

// Store holds the current access credential and decoded identity. It is the
// single owner of this state: the transport, the guards, and the realtime
// channel all read through it and never keep their own copy. Credential and
// identity are replaced together under one lock, never mutated in place.
//
// The credential lives only in process memory. After a process restart the
// session must be restored through the refresh cookie; only the
// non-authoritative identity snapshot survives, to paint UI optimistically.
type Store struct {
	logger    *slog.Logger
	snapshots taskdesk.SnapshotStore

	mu       sync.RWMutex
	access   string
	identity *taskdesk.Identity
	expiry   time.Time
	subs     map[int]chan *taskdesk.Identity
	nextSub  int
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithStoreLogger sets a structured logger for the store.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l.With("component", "session") }
}

// WithSnapshots sets the persisted identity snapshot backend. When set, the
// store seeds its identity from the last snapshot on startup and keeps the
// snapshot in sync with the credential lifecycle.
func WithSnapshots(ss taskdesk.SnapshotStore) StoreOption {
	return func(s *Store) { s.snapshots = ss }
}

// NewStore creates an empty session store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger: slog.Default(),
		subs:   make(map[int]chan *taskdesk.Identity),
	}
	for _, o := range opts {
		o(s)
	}
	if s.snapshots != nil {
		if id, err := s.snapshots.Load(); err == nil && id != nil {
			// Snapshot identity paints the UI before restore; it is never
			// proof of authentication, so access stays empty.
			s.identity = id
		}
	}
	return s
}

// SetCredential decodes the credential payload and installs credential and
// identity atomically. On decode failure the previous state is left
// untouched and nothing is emitted.
func (s *Store) SetCredential(access string) error {
	id, expiry, err := token.Decode(access)
	if err != nil {
		s.logger.Debug("credential decode failed, keeping previous session state", "err", err)
		return err
	}

	s.mu.Lock()
	s.access = access
	s.identity = id
	s.expiry = expiry
	for _, ch := range s.subs {
		emit(ch, id)
	}
	s.mu.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.Save(*id); err != nil {
			s.logger.Warn("persist identity snapshot", "err", err)
		}
	}
	return nil
}

// Clear drops the credential, the identity, and the persisted snapshot, and
// emits an absent identity to all subscribers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.access = ""
	s.identity = nil
	s.expiry = time.Time{}
	for _, ch := range s.subs {
		emit(ch, nil)
	}
	s.mu.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.Clear(); err != nil {
			s.logger.Warn("clear identity snapshot", "err", err)
		}
	}
}

// Current returns the latest identity, or nil when anonymous. Never
// performs I/O.
func (s *Store) Current() *taskdesk.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// AccessToken returns the current access credential, or "" when absent.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// IsAuthenticated reports whether an access credential is current.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != ""
}

// HasRole reports whether the current identity carries the given role.
func (s *Store) HasRole(role taskdesk.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.identity.Role == role
}

// ExpiresAt returns the expiry embedded in the current credential, or the
// zero time when absent.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiry
}

// Subscribe returns a stream of identity values and a cancel func. The
// latest value is replayed immediately, so late subscribers do not miss the
// current state. The stream conflates: a slow subscriber sees the newest
// value, not every intermediate one.
func (s *Store) Subscribe() (<-chan *taskdesk.Identity, func()) {
	ch := make(chan *taskdesk.Identity, 1)

	s.mu.Lock()
	idx := s.nextSub
	s.nextSub++
	s.subs[idx] = ch
	emit(ch, s.identity)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[idx]; ok {
			delete(s.subs, idx)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// emit delivers the newest value, displacing an unconsumed older one.
// Callers hold s.mu, so a concurrent cancel cannot close ch mid-send.
func emit(ch chan *taskdesk.Identity, id *taskdesk.Identity) {
	for {
		select {
		case ch <- id:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
