// Package scheduler runs the periodic due-review reminder job.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/example/studyflow/pkg/models"
)

// Default notification window, in UTC hours
const (
	DefaultNotificationStartHour = 4
	DefaultNotificationEndHour   = 18
)

// Notifier delivers a reminder to one user
type Notifier interface {
	SendReminder(ctx context.Context, user models.User, due int) error
}

// UserSource lists users who accept reminders
type UserSource interface {
	GetUsersForNotification(ctx context.Context) ([]models.User, error)
}

// DueSource reports due items per user and the clock they are counted by
type DueSource interface {
	DueCounts(ctx context.Context) (map[string]int, error)
	Now() time.Time
}

// Config holds the reminder window and cadence
type Config struct {
	StartHour int           // first hour reminders may be sent
	EndHour   int           // last hour reminders may be sent
	Interval  time.Duration // defaults to one hour
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	cron     *gocron.Scheduler
	cfg      Config
	users    UserSource
	due      DueSource
	notifier Notifier
	logger   *slog.Logger
}

// New creates a new scheduler instance
func New(cfg Config, users UserSource, due DueSource, notifier Notifier, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		cfg:      cfg,
		users:    users,
		due:      due,
		notifier: notifier,
		logger:   logger,
	}
}

// Start schedules the reminder job and runs it in the background. The first
// check runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Every(s.cfg.Interval).Do(func() {
		if _, err := s.CheckAndSendReminders(ctx); err != nil {
			s.logger.Error("reminder check failed", "error", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "failed to schedule reminders")
	}
	s.cron.StartAsync()
	s.logger.Info("reminder scheduler started",
		"interval", s.cfg.Interval,
		"start_hour", s.cfg.StartHour,
		"end_hour", s.cfg.EndHour)
	return nil
}

// Stop terminates all scheduled tasks and waits for a running job
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// CheckAndSendReminders notifies every opted-in user with due items and
// returns how many reminders were delivered. Outside the notification
// window it does nothing. A failed delivery is logged and does not stop the
// others.
func (s *Scheduler) CheckAndSendReminders(ctx context.Context) (int, error) {
	hour := s.due.Now().UTC().Hour()
	if !InWindow(hour, s.cfg.StartHour, s.cfg.EndHour) {
		s.logger.Debug("outside notification hours, skipping reminders",
			"hour", hour, "start_hour", s.cfg.StartHour, "end_hour", s.cfg.EndHour)
		return 0, nil
	}

	users, err := s.users.GetUsersForNotification(ctx)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}
	counts, err := s.due.DueCounts(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, user := range users {
		n := counts[user.ID]
		if n == 0 {
			continue
		}
		if err := s.notifier.SendReminder(ctx, user, n); err != nil {
			s.logger.Warn("failed to send reminder", "user_id", user.ID, "error", err)
			continue
		}
		sent++
	}
	s.logger.Info("reminders sent", "users", len(users), "sent", sent)
	return sent, nil
}

// RemindUser forces a check for one user regardless of the window. It
// reports whether a reminder was sent.
func (s *Scheduler) RemindUser(ctx context.Context, user models.User) (bool, error) {
	counts, err := s.due.DueCounts(ctx)
	if err != nil {
		return false, err
	}
	n := counts[user.ID]
	if n == 0 {
		return false, nil
	}
	if err := s.notifier.SendReminder(ctx, user, n); err != nil {
		return false, err
	}
	return true, nil
}

// InWindow reports whether hour lies in [start, end]. A window with start
// after end wraps past midnight.
func InWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}
