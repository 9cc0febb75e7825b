package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clickreplay/internal/core"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers to every notifier and joins their errors.
func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpNotifier does nothing.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}

// JobNotifier forwards job results to a Notifier. It implements
// core.SchedulerListener and sends in the background.
type JobNotifier struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewJobNotifier(notifier Notifier, logger *slog.Logger) *JobNotifier {
	return &JobNotifier{notifier: notifier, logger: logger, timeout: 15 * time.Second}
}

func (j *JobNotifier) SchedulerLog(string) {}

func (j *JobNotifier) JobFinished(ev core.JobEvent) {
	title, body := JobMessage(ev)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		if err := j.notifier.Send(ctx, title, body); err != nil {
			j.logger.Warn("send job notification", "job_id", ev.Job.ID, "err", err)
		}
	}()
}

// Wait blocks until pending notifications are sent.
func (j *JobNotifier) Wait() {
	j.wg.Wait()
}

// JobMessage renders the title and body for a finished job.
func JobMessage(ev core.JobEvent) (string, string) {
	status := "OK"
	switch {
	case ev.Session == nil:
		status = "ERROR"
	case ev.Session.FailureCount() > 0:
		status = "FAILED"
	case ev.Session.WasCancelled:
		status = "CANCELLED"
	}
	title := fmt.Sprintf("[%s] %s", status, ev.Job.Name)
	body := fmt.Sprintf("Job %s (run #%d): %s", ev.Job.ID, ev.Job.RunCount, ev.Message)
	if ev.Job.NextRunAt != nil {
		body += "\nNext run: " + ev.Job.NextRunAt.Format(time.RFC3339)
	}
	return title, body
}
