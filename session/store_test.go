package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

func makeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = float64(time.Now().Add(time.Hour).Unix())
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// memSnapshots is an in-memory SnapshotStore for store tests.
type memSnapshots struct {
	id      *taskdesk.Identity
	cleared bool
}

func (m *memSnapshots) Save(id taskdesk.Identity) error {
	cp := id
	m.id = &cp
	m.cleared = false
	return nil
}

func (m *memSnapshots) Load() (*taskdesk.Identity, error) { return m.id, nil }

func (m *memSnapshots) Clear() error {
	m.id = nil
	m.cleared = true
	return nil
}

func TestSetCredential_DecodesIdentity(t *testing.T) {
	store := NewStore()
	access := makeToken(t, jwt.MapClaims{
		"user_id": float64(7),
		"email":   "eng@example.com",
		"role":    "engineer",
	})

	if err := store.SetCredential(access); err != nil {
		t.Fatalf("SetCredential returned error: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Error("store should be authenticated")
	}
	if store.AccessToken() != access {
		t.Error("access token mismatch")
	}
	id := store.Current()
	if id == nil || id.ID != 7 || id.Email != "eng@example.com" {
		t.Errorf("unexpected identity: %+v", id)
	}
	if !store.HasRole(taskdesk.RoleEngineer) {
		t.Error("expected engineer role")
	}
	if store.HasRole(taskdesk.RoleManager) {
		t.Error("unexpected manager role")
	}
}

func TestSetCredential_DecodeFailureKeepsPriorState(t *testing.T) {
	store := NewStore()
	access := makeToken(t, jwt.MapClaims{"user_id": float64(1), "role": "manager"})
	if err := store.SetCredential(access); err != nil {
		t.Fatalf("SetCredential returned error: %v", err)
	}

	if err := store.SetCredential("not-a-token"); err == nil {
		t.Fatal("expected decode error")
	}

	if !store.IsAuthenticated() {
		t.Error("previous credential should survive a failed decode")
	}
	if store.AccessToken() != access {
		t.Error("previous access token should be untouched")
	}
	if id := store.Current(); id == nil || id.ID != 1 {
		t.Errorf("previous identity should be untouched, got %+v", id)
	}
}

func TestClear_DropsEverything(t *testing.T) {
	snaps := &memSnapshots{}
	store := NewStore(WithSnapshots(snaps))
	access := makeToken(t, jwt.MapClaims{"user_id": float64(3)})
	if err := store.SetCredential(access); err != nil {
		t.Fatalf("SetCredential returned error: %v", err)
	}
	if snaps.id == nil {
		t.Fatal("snapshot should be persisted on SetCredential")
	}

	store.Clear()

	if store.IsAuthenticated() {
		t.Error("store should be anonymous after Clear")
	}
	if store.Current() != nil {
		t.Error("identity should be absent after Clear")
	}
	if store.AccessToken() != "" {
		t.Error("access token should be dropped")
	}
	if !snaps.cleared {
		t.Error("snapshot should be cleared")
	}
}

func TestCurrent_ReflectsLastCall(t *testing.T) {
	store := NewStore()
	a := makeToken(t, jwt.MapClaims{"user_id": float64(1)})
	b := makeToken(t, jwt.MapClaims{"user_id": float64(2)})

	_ = store.SetCredential(a)
	_ = store.SetCredential(b)
	if id := store.Current(); id == nil || id.ID != 2 {
		t.Errorf("expected identity 2, got %+v", id)
	}

	store.Clear()
	if store.Current() != nil {
		t.Error("expected nil identity after Clear")
	}

	_ = store.SetCredential(a)
	if id := store.Current(); id == nil || id.ID != 1 {
		t.Errorf("expected identity 1, got %+v", id)
	}
}

func TestSubscribe_ReplaysLatestValue(t *testing.T) {
	store := NewStore()
	access := makeToken(t, jwt.MapClaims{"user_id": float64(9)})
	_ = store.SetCredential(access)

	ch, cancel := store.Subscribe()
	defer cancel()

	select {
	case id := <-ch:
		if id == nil || id.ID != 9 {
			t.Errorf("expected replayed identity 9, got %+v", id)
		}
	case <-time.After(time.Second):
		t.Fatal("no replayed value")
	}
}

func TestSubscribe_ConflatesToNewest(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	defer cancel()

	// Do not consume the replayed nil; pile up updates.
	_ = store.SetCredential(makeToken(t, jwt.MapClaims{"user_id": float64(1)}))
	_ = store.SetCredential(makeToken(t, jwt.MapClaims{"user_id": float64(2)}))

	select {
	case id := <-ch:
		if id == nil || id.ID != 2 {
			t.Errorf("expected newest identity 2, got %+v", id)
		}
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
}

func TestSubscribe_CancelSevers(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	<-ch
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Emissions after cancel must not panic.
	_ = store.SetCredential(makeToken(t, jwt.MapClaims{"user_id": float64(5)}))
}

func TestNewStore_SeedsIdentityFromSnapshot(t *testing.T) {
	orgID := int64(4)
	snaps := &memSnapshots{id: &taskdesk.Identity{
		ID: 11, Role: taskdesk.RoleClient, OrganizationID: &orgID,
	}}
	store := NewStore(WithSnapshots(snaps))

	id := store.Current()
	if id == nil || id.ID != 11 {
		t.Fatalf("expected snapshot identity, got %+v", id)
	}
	// The snapshot paints UI only; it never authenticates.
	if store.IsAuthenticated() {
		t.Error("snapshot identity must not count as authenticated")
	}
}
