package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestStore creates a new Store backed by a temporary database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestSessionRepository_Create(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess := &Session{CameraAvailable: true}
	if err := repo.Create(sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	if _, err := uuid.Parse(sess.ID); err != nil {
		t.Errorf("ID %q should be a UUID: %v", sess.ID, err)
	}
	if sess.StartedAt.IsZero() {
		t.Error("StartedAt should be set after create")
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if !got.CameraAvailable {
		t.Error("CameraAvailable should be true")
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}
}

func TestSessionRepository_Create_KeepsID(t *testing.T) {
	s := newTestStore(t)

	sess := &Session{ID: "fixed-id"}
	if err := s.Sessions().Create(sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if sess.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", sess.ID)
	}
	if err := s.Sessions().Create(&Session{ID: "fixed-id"}); err == nil {
		t.Error("duplicate ID should fail")
	}
}

func TestSessionRepository_UpdateAndEnd(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess := &Session{}
	if err := repo.Create(sess); err != nil {
		t.Fatal(err)
	}

	if err := repo.SetCameraAvailable(sess.ID, true); err != nil {
		t.Fatalf("SetCameraAvailable() error = %v", err)
	}
	end := sess.StartedAt.Add(time.Minute)
	if err := repo.End(sess.ID, end); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CameraAvailable {
		t.Error("CameraAvailable should be true")
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want %v", err, ErrNotFound)
	}
	if err := repo.End("missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("End() error = %v, want %v", err, ErrNotFound)
	}
	if err := repo.SetCameraAvailable("missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetCameraAvailable() error = %v, want %v", err, ErrNotFound)
	}
}

func TestSessionRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := repo.Create(&Session{StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(all))
	}
	if !all[0].StartedAt.After(all[1].StartedAt) {
		t.Error("sessions should be ordered most recent first")
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d sessions", len(limited))
	}
}
