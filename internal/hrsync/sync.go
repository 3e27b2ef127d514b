package hrsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"madcrm/api/internal/rbac"
	"madcrm/api/internal/store"
)

// Sync outcomes for a single user.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionError   = "error"
)

// ErrRunning is returned when a sync is requested while one is in flight.
var ErrRunning = errors.New("user sync already running")

type Source interface {
	Health(ctx context.Context) (Health, error)
	FetchUsers(ctx context.Context, since *time.Time) ([]RemoteUser, error)
}

type UserStore interface {
	FindUser(ctx context.Context, userID int64) (*store.User, error)
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
	InsertUser(ctx context.Context, u store.User) error
	ReplaceUser(ctx context.Context, existingID int64, u store.User) error
	AssignManagerCo(ctx context.Context, managerID, coID int64) error
}

type Recorder interface {
	UserSynced(action string, n int)
}

type nopRecorder struct{}

func (nopRecorder) UserSynced(string, int) {}

type Options struct {
	// Since limits the run to users updated after it. Nil syncs everyone.
	Since       *time.Time
	StopOnError bool
}

type Stats struct {
	Total      int       `json:"total"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	// DurationSeconds is rounded to the nearest second.
	DurationSeconds int64 `json:"durationSeconds"`
}

// SuccessRate is the share of users processed without error, in percent.
func (s Stats) SuccessRate() int {
	if s.Total == 0 {
		return 100
	}
	return (s.Total - s.Errors) * 100 / s.Total
}

type Syncer struct {
	source   Source
	store    UserStore
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	running     bool
	lastSuccess *time.Time
}

func NewSyncer(source Source, users UserStore, recorder Recorder, log *zap.Logger) *Syncer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{source: source, store: users, recorder: recorder, log: log, now: time.Now}
}

// Run mirrors HR users into the store. Per-user failures are counted and
// logged; with StopOnError the first one aborts the run.
func (s *Syncer) Run(ctx context.Context, opts Options) (Stats, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Stats{}, ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	stats := Stats{StartedAt: s.now()}
	finish := func() {
		stats.FinishedAt = s.now()
		stats.DurationSeconds = int64(stats.FinishedAt.Sub(stats.StartedAt).Round(time.Second) / time.Second)
	}

	health, err := s.source.Health(ctx)
	if err != nil {
		finish()
		return stats, fmt.Errorf("hr api is not healthy: %w", err)
	}
	s.log.Info("user sync started",
		zap.Duration("hr_response_time", health.ResponseTime),
		zap.Timep("since", opts.Since),
	)

	users, err := s.source.FetchUsers(ctx, opts.Since)
	if err != nil {
		finish()
		return stats, err
	}
	stats.Total = len(users)

	for i, remote := range users {
		action, err := s.syncOne(ctx, remote)
		if err != nil {
			stats.Errors++
			s.recorder.UserSynced(ActionError, 1)
			s.log.Error("user sync failed",
				zap.String("user_id", string(remote.UserID)),
				zap.String("email", string(remote.Email)),
				zap.Error(err),
			)
			if opts.StopOnError {
				finish()
				return stats, err
			}
			continue
		}
		switch action {
		case ActionCreated:
			stats.Created++
		case ActionUpdated:
			stats.Updated++
		case ActionSkipped:
			stats.Skipped++
		}
		s.recorder.UserSynced(action, 1)
		if (i+1)%100 == 0 {
			s.log.Info("user sync progress", zap.Int("processed", i+1), zap.Int("total", stats.Total))
		}
	}

	finish()
	s.mu.Lock()
	started := stats.StartedAt
	s.lastSuccess = &started
	s.mu.Unlock()

	s.log.Info("user sync finished",
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Int("success_rate", stats.SuccessRate()),
		zap.Int64("duration_seconds", stats.DurationSeconds),
	)
	return stats, nil
}

func (s *Syncer) syncOne(ctx context.Context, remote RemoteUser) (string, error) {
	u, err := Transform(remote)
	if err != nil {
		return "", err
	}
	if err := Validate(u); err != nil {
		return "", err
	}

	action, err := s.upsert(ctx, u)
	if err != nil {
		return "", err
	}
	if action != ActionSkipped {
		if err := s.linkManager(ctx, u); err != nil {
			return "", err
		}
	}
	return action, nil
}

// upsert matches on user_id first, then on email, and otherwise creates.
func (s *Syncer) upsert(ctx context.Context, u store.User) (string, error) {
	existing, err := s.store.FindUser(ctx, u.UserID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if !needsUpdate(*existing, u) {
			return ActionSkipped, nil
		}
		if err := s.store.ReplaceUser(ctx, existing.UserID, u); err != nil {
			return "", err
		}
		return ActionUpdated, nil
	}

	byEmail, err := s.store.FindUserByEmail(ctx, u.Email)
	if err != nil {
		return "", err
	}
	if byEmail != nil {
		if err := s.store.ReplaceUser(ctx, byEmail.UserID, u); err != nil {
			return "", err
		}
		s.log.Info("user merged by email", zap.Int64("old_user_id", byEmail.UserID), zap.Int64("user_id", u.UserID))
		return ActionUpdated, nil
	}

	if err := s.store.InsertUser(ctx, u); err != nil {
		return "", err
	}
	return ActionCreated, nil
}

// linkManager records a CO under its reporting manager so manager scopes
// include the CO's partners.
func (s *Syncer) linkManager(ctx context.Context, u store.User) error {
	if u.ReportingManagerUserID == nil || rbac.Normalize(u.Role).Kind() != rbac.KindCaseOfficer {
		return nil
	}
	return s.store.AssignManagerCo(ctx, *u.ReportingManagerUserID, u.UserID)
}

// Start runs a sync every interval until ctx is cancelled. After the first
// successful run only users updated since the previous success are fetched.
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info("user sync worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("user sync worker stopped")
			return
		case <-ticker.C:
			s.mu.Lock()
			since := s.lastSuccess
			s.mu.Unlock()
			if _, err := s.Run(ctx, Options{Since: since}); err != nil && !errors.Is(err, ErrRunning) {
				s.log.Error("scheduled user sync failed", zap.Error(err))
			}
		}
	}
}
