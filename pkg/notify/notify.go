package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/elonfeng/fingest/pkg/ingest"
)

// Notification is the run summary sent to every destination.
type Notification struct {
	Title   string           `json:"title"`
	Body    string           `json:"body"`
	OK      bool             `json:"ok"`
	Reports []*ingest.Report `json:"reports"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts run summaries to all registered notifiers.
type Manager struct {
	notifiers     []Notifier
	onFailureOnly bool
}

// NewManager creates a manager. With onFailureOnly set, passes where every
// run succeeded are not announced.
func NewManager(onFailureOnly bool, notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers, onFailureOnly: onFailureOnly}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Notify summarizes reports and broadcasts the result. It returns false when
// nothing was sent.
func (m *Manager) Notify(ctx context.Context, reports []*ingest.Report) (bool, error) {
	if !m.HasNotifiers() || len(reports) == 0 {
		return false, nil
	}
	n := Summarize(reports)
	if m.onFailureOnly && n.OK {
		return false, nil
	}
	return true, m.Broadcast(ctx, n)
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Summarize builds one notification covering a set of runs.
func Summarize(reports []*ingest.Report) *Notification {
	n := &Notification{OK: true, Reports: reports}
	failed := 0
	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		if !r.OK() {
			n.OK = false
			failed++
		}
		lines = append(lines, SummaryLine(r))
	}

	if n.OK {
		n.Title = fmt.Sprintf("fingest: %d run(s) succeeded", len(reports))
	} else {
		n.Title = fmt.Sprintf("fingest: %d of %d run(s) need attention", failed, len(reports))
	}
	n.Body = strings.Join(lines, "\n")
	return n
}

// SummaryLine renders one run as a single line.
func SummaryLine(r *ingest.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s received, %s written",
		r.Source, humanize.Comma(int64(r.Received)), humanize.Comma(int64(r.Written)))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(r.Skipped))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(r.Failed))
	}
	fmt.Fprintf(&b, " in %s", r.Duration().Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(&b, " (error: %s)", r.Error)
	}
	return b.String()
}
