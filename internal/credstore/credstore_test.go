package credstore

import (
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "credential_store.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	url := "https://host/lfs"
	want := Credential{User: "alice", Password: "secret", DeviceID: "D"}

	if err := store.Set(url, want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatalf("Get returned nil")
	}
	if got.User != want.User || got.Password != want.Password || got.DeviceID != want.DeviceID {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSetGetWithoutDeviceID(t *testing.T) {
	store := newTestStore(t)
	url := "https://host/lfs"
	want := Credential{User: "alice", Password: "secret"}

	if err := store.Set(url, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DeviceID != "" {
		t.Fatalf("DeviceID = %q, want empty", got.DeviceID)
	}
}

func TestSetThenRemoveImpliesNotHas(t *testing.T) {
	store := newTestStore(t)
	url := "https://host/lfs"

	if err := store.Set(url, Credential{User: "alice", Password: "secret"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Remove(url); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	has, err := store.Has(url)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Fatalf("Has = true after Remove")
	}
}

func TestRemoveOnAbsentURLIsNoop(t *testing.T) {
	store := newTestStore(t)
	if err := store.Remove("https://nowhere/lfs"); err != nil {
		t.Fatalf("Remove on absent url: %v", err)
	}
}

func TestTrailingSlashCanonicalization(t *testing.T) {
	store := newTestStore(t)
	want := Credential{User: "alice", Password: "secret"}

	if err := store.Set("https://host/lfs/", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get("https://host/lfs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.User != want.User {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get("https://host/lfs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestSetIsIdempotentUpsert(t *testing.T) {
	store := newTestStore(t)
	url := "https://host/lfs"

	if err := store.Set(url, Credential{User: "alice", Password: "first", DeviceID: "D1"}); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := store.Set(url, Credential{User: "alice", Password: "second", DeviceID: "D2"}); err != nil {
		t.Fatalf("second Set: %v", err)
	}

	got, err := store.Get(url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Password != "second" || got.DeviceID != "D2" {
		t.Fatalf("got %+v, want password=second deviceID=D2", got)
	}
}
