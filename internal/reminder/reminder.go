// Package reminder runs the periodic deadline scan: open tasks due inside
// the configured window get a reminder email to the owner and every grantee.
// The scan never touches request handling; it runs on its own goroutine and
// stops with the shutdown context.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskhub/internal/email"
	"taskhub/internal/models"
	"taskhub/internal/storage/sqlite"
)

// Stats summarizes one scan pass.
type Stats struct {
	TasksSeen    int
	EmailsSent   int
	TokensPurged int64
}

// Worker owns the scan schedule.
type Worker struct {
	store    *sqlite.Store
	sender   email.Sender
	logger   *slog.Logger
	interval time.Duration
	window   time.Duration
}

// New creates a Worker. interval is how often the scan runs, window how far
// ahead of a deadline a reminder fires.
func New(store *sqlite.Store, sender email.Sender, logger *slog.Logger, interval, window time.Duration) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, sender: sender, logger: logger, interval: interval, window: window}
}

// Run ticks until ctx is cancelled. Each tick runs one scan; scan errors are
// logged and the loop keeps going.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reminder worker started",
		slog.Duration("interval", w.interval),
		slog.Duration("window", w.window))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case now := <-ticker.C:
			stats, err := w.Scan(ctx, now)
			if err != nil {
				w.logger.Error("reminder scan failed", slog.String("error", err.Error()))
				continue
			}
			if stats.TasksSeen > 0 || stats.TokensPurged > 0 {
				w.logger.Info("reminder scan done",
					slog.Int("tasks", stats.TasksSeen),
					slog.Int("emails", stats.EmailsSent),
					slog.Int64("tokens_purged", stats.TokensPurged))
			}
		}
	}
}

// Scan performs one pass at the given instant: remind about tasks due inside
// (now, now+window] and purge expired refresh tokens while at it.
func (w *Worker) Scan(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	tasks, err := w.store.TasksDueBetween(ctx, now, now.Add(w.window))
	if err != nil {
		return stats, err
	}
	stats.TasksSeen = len(tasks)

	for _, task := range tasks {
		subject := fmt.Sprintf("Task deadline reminder: %s", task.Title)
		body := buildReminderBody(task, now)

		if err := w.sender.Send(task.OwnerEmail, subject, body); err == nil {
			stats.EmailsSent++
		} else {
			w.logger.Warn("reminder email failed",
				slog.String("to", task.OwnerEmail),
				slog.String("error", err.Error()))
		}

		shares, err := w.store.ListShares(ctx, task.ID)
		if err != nil {
			return stats, err
		}
		recipients := make([]string, 0, len(shares))
		for _, sh := range shares {
			recipients = append(recipients, sh.UserEmail)
		}
		stats.EmailsSent += w.sender.SendBulk(recipients, subject, body)
	}

	purged, err := w.store.PurgeExpiredRefreshTokens(ctx, now)
	if err != nil {
		return stats, err
	}
	stats.TokensPurged = purged

	return stats, nil
}

func buildReminderBody(task models.Task, now time.Time) string {
	hoursLeft := int(task.Deadline.Sub(now).Hours())

	var b strings.Builder
	fmt.Fprintf(&b, "Hello!\n\nThis is a reminder that a task is due soon:\n\n")
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	fmt.Fprintf(&b, "Deadline: %s\n", task.Deadline.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Time remaining: ~%d hours\n", hoursLeft)
	if task.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s\n", task.Description)
	}
	b.WriteString("\nPlease make sure to complete this task before the deadline.\n")
	return b.String()
}
