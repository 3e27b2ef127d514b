package hrsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"madcrm/api/internal/store"
)

type fakeSource struct {
	healthErr error
	users     []RemoteUser
	fetchErr  error
	since     []*time.Time
}

func (f *fakeSource) Health(context.Context) (Health, error) {
	return Health{ResponseTime: time.Millisecond, UserCount: len(f.users)}, f.healthErr
}

func (f *fakeSource) FetchUsers(_ context.Context, since *time.Time) ([]RemoteUser, error) {
	f.since = append(f.since, since)
	return f.users, f.fetchErr
}

type memUsers struct {
	users    map[int64]store.User
	managers map[[2]int64]bool
	insertFn func(u store.User) error
	replaced []int64
}

func newMemUsers(users ...store.User) *memUsers {
	m := &memUsers{users: map[int64]store.User{}, managers: map[[2]int64]bool{}}
	for _, u := range users {
		m.users[u.UserID] = u
	}
	return m
}

func (m *memUsers) FindUser(_ context.Context, id int64) (*store.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memUsers) FindUserByEmail(_ context.Context, email string) (*store.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) InsertUser(_ context.Context, u store.User) error {
	if m.insertFn != nil {
		if err := m.insertFn(u); err != nil {
			return err
		}
	}
	m.users[u.UserID] = u
	return nil
}

func (m *memUsers) ReplaceUser(_ context.Context, existingID int64, u store.User) error {
	delete(m.users, existingID)
	m.users[u.UserID] = u
	m.replaced = append(m.replaced, existingID)
	return nil
}

func (m *memUsers) AssignManagerCo(_ context.Context, managerID, coID int64) error {
	m.managers[[2]int64{managerID, coID}] = true
	return nil
}

type countingRecorder map[string]int

func (c countingRecorder) UserSynced(action string, n int) { c[action] += n }

func remote(id, email, role string) RemoteUser {
	return RemoteUser{UserID: flexString(id), Email: flexString(email), UserRole: flexString(role)}
}

func TestRunCreatesUpdatesSkipsAndMerges(t *testing.T) {
	users := newMemUsers(
		store.User{UserID: 1, Email: "same@example.org", Role: "CXO"},
		store.User{UserID: 2, Email: "changed@example.org", Role: "CO Part Time"},
		store.User{UserID: 900, Email: "legacy@example.org", Role: "CO Full Time"},
	)
	src := &fakeSource{users: []RemoteUser{
		remote("1.000000000", "same@example.org", "CXO"),
		remote("2", "changed@example.org", "CO Full Time"),
		remote("3", "LEGACY@example.org", "CO Full Time"),
		remote("4", "new@example.org", "Project Lead"),
		remote("5", "broken", "CXO"),
	}}
	rec := countingRecorder{}
	s := NewSyncer(src, users, rec, zap.NewNop())

	stats, err := s.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Total != 5 || stats.Created != 1 || stats.Updated != 2 || stats.Skipped != 1 || stats.Errors != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRate() != 80 {
		t.Fatalf("success rate = %d", stats.SuccessRate())
	}
	if _, ok := users.users[900]; ok {
		t.Fatal("merged user should have moved to the HR id")
	}
	if users.users[3].Email != "legacy@example.org" {
		t.Fatalf("merged user = %+v", users.users[3])
	}
	if users.users[2].Role != "CO Full Time" {
		t.Fatalf("role not updated: %+v", users.users[2])
	}
	if rec[ActionCreated] != 1 || rec[ActionUpdated] != 2 || rec[ActionSkipped] != 1 || rec[ActionError] != 1 {
		t.Fatalf("recorder = %v", rec)
	}
}

func TestRunLinksCoToManager(t *testing.T) {
	co := remote("10", "co@example.org", "CO Part Time")
	co.ReportingManagerUserID = "20.000000000"
	lead := remote("11", "lead@example.org", "Project Lead")
	lead.ReportingManagerUserID = "20"
	users := newMemUsers()

	_, err := NewSyncer(&fakeSource{users: []RemoteUser{co, lead}}, users, nil, nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !users.managers[[2]int64{20, 10}] {
		t.Fatal("co should be linked to its manager")
	}
	if users.managers[[2]int64{20, 11}] {
		t.Fatal("non-co roles must not be linked")
	}
}

func TestRunStopOnError(t *testing.T) {
	insertErr := errors.New("db down")
	users := newMemUsers()
	users.insertFn = func(store.User) error { return insertErr }
	src := &fakeSource{users: []RemoteUser{
		remote("1", "a@example.org", "CXO"),
		remote("2", "b@example.org", "CXO"),
	}}

	stats, err := NewSyncer(src, users, nil, nil).Run(context.Background(), Options{StopOnError: true})
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if stats.Errors != 1 || stats.Total != 2 {
		t.Fatalf("run should stop after first error: %+v", stats)
	}
}

func TestRunHealthAndFetchFailures(t *testing.T) {
	healthErr := errors.New("timeout")
	_, err := NewSyncer(&fakeSource{healthErr: healthErr}, newMemUsers(), nil, nil).Run(context.Background(), Options{})
	if !errors.Is(err, healthErr) || !strings.Contains(err.Error(), "not healthy") {
		t.Fatalf("expected health error, got %v", err)
	}

	fetchErr := errors.New("500")
	_, err = NewSyncer(&fakeSource{fetchErr: fetchErr}, newMemUsers(), nil, nil).Run(context.Background(), Options{})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestRunPassesSinceAndRejectsOverlap(t *testing.T) {
	src := &fakeSource{}
	s := NewSyncer(src, newMemUsers(), nil, nil)
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.Run(context.Background(), Options{Since: &since}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(src.since) != 1 || src.since[0] == nil || !src.since[0].Equal(since) {
		t.Fatalf("since not forwarded: %v", src.since)
	}

	s.running = true
	if _, err := s.Run(context.Background(), Options{}); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
}

func TestRunRecordsLastSuccess(t *testing.T) {
	s := NewSyncer(&fakeSource{}, newMemUsers(), nil, nil)
	fixed := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if _, err := s.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.lastSuccess == nil || !s.lastSuccess.Equal(fixed) {
		t.Fatalf("last success = %v", s.lastSuccess)
	}
}
