package scan

import (
	"log/slog"

	"github.com/erazemk/stockscan/internal/model"
)

// FeedbackKind classifies a feedback signal.
type FeedbackKind string

const (
	FeedbackFound     FeedbackKind = "found"
	FeedbackMerged    FeedbackKind = "merged"
	FeedbackNotFound  FeedbackKind = "not_found"
	FeedbackCommitted FeedbackKind = "committed"
)

// Feedback is a cosmetic signal for the operator (tone, vibration, toast).
type Feedback struct {
	Kind    FeedbackKind
	Barcode string
	Item    *model.ScanQueueItem
	Result  *model.BatchResult
}

// Notifier delivers feedback. Implementations may block or panic; the
// Controller calls them on their own goroutine and ignores the outcome.
type Notifier interface {
	Notify(Feedback)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Feedback)

func (f NotifierFunc) Notify(fb Feedback) { f(fb) }

// NopNotifier discards all feedback.
type NopNotifier struct{}

func (NopNotifier) Notify(Feedback) {}

// goSafe runs fn on a new goroutine, logging instead of crashing on panic.
func goSafe(what string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("recovered panic", "in", what, "panic", r)
			}
		}()
		fn()
	}()
}
