// Package terminal implements the scan station that runs in a terminal.
package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	infoColor  = color.New(color.FgCyan)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	dimColor   = color.New(color.Faint)
)

// Console is a colored writer shared by the station and its feedback.
// It implements scan.Notifier.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	bell bool
}

// NewConsole writes to w. With bell set, failed lookups ring the terminal bell.
func NewConsole(w io.Writer, bell bool) *Console {
	return &Console{w: w, bell: bell}
}

func (c *Console) printf(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col == nil {
		fmt.Fprintf(c.w, format, args...)
		return
	}
	col.Fprintf(c.w, format, args...)
}

// Notify prints one line of scan feedback.
func (c *Console) Notify(fb scan.Feedback) {
	switch fb.Kind {
	case scan.FeedbackFound:
		c.printf(okColor, "+ %s\n", itemLabel(fb.Item, fb.Barcode))
	case scan.FeedbackMerged:
		c.printf(infoColor, "+ %s (x%d)\n", itemLabel(fb.Item, fb.Barcode), quantity(fb.Item))
	case scan.FeedbackNotFound:
		if c.bell {
			c.printf(nil, "\a")
		}
		c.printf(errorColor, "? unknown barcode %s\n", fb.Barcode)
	case scan.FeedbackCommitted:
		if fb.Result != nil && fb.Result.ErrorCount > 0 && c.bell {
			c.printf(nil, "\a")
		}
	}
}

// PrintSession lists the queue, newest first, numbered for :rm and :qty.
func (c *Console) PrintSession(s *model.ScanSession) {
	c.printf(infoColor, "session %s  mode=%s target=%s", short(s.ID), s.Mode, s.ScanTarget)
	if s.Mode == model.ModeTransfer {
		c.printf(infoColor, "  from=%s to=%s step=%s\n",
			deref(s.FromShelfName, "-"), deref(s.ToShelfName, "-"), s.TransferStep)
	} else {
		c.printf(infoColor, "  shelf=%s\n", deref(s.ActiveShelfName, "-"))
	}

	if len(s.Queue) == 0 {
		c.printf(dimColor, "  (queue is empty)\n")
		return
	}
	for i := range s.Queue {
		it := &s.Queue[i]
		col := statusColor(it.Status)
		c.printf(col, "%3d  %-9s", i+1, it.Status)
		c.printf(nil, " %-16s %-24s %4d u %4d s  %s\n",
			it.Barcode, deref(it.ProductName, "-"), it.Units, it.Sets, deref(it.ShelfName, ""))
		if it.ErrorMessage != "" {
			c.printf(errorColor, "       %s\n", it.ErrorMessage)
		}
	}
	counts := scan.Count(s.Queue)
	c.printf(dimColor, "  pending %d, not found %d, processed %d, error %d\n",
		counts.Pending, counts.NotFound, counts.Processed, counts.Error)
}

// PrintBatch prints a commit summary.
func (c *Console) PrintBatch(r *model.BatchResult) {
	if r.TotalLines == 0 {
		c.printf(warnColor, "nothing to process\n")
		return
	}
	for _, line := range r.Lines {
		if line.Status == model.ItemProcessed {
			c.printf(okColor, "  ok    ")
		} else {
			c.printf(errorColor, "  error ")
		}
		c.printf(nil, "%s %s (%d u, %d s)", line.Barcode, line.ProductName, line.Units, line.Sets)
		if line.Error != "" {
			c.printf(errorColor, ": %s", line.Error)
		}
		c.printf(nil, "\n")
	}
	c.printf(okColor, "%d committed", r.SuccessCount)
	c.printf(nil, ", ")
	if r.ErrorCount > 0 {
		c.printf(errorColor, "%d failed", r.ErrorCount)
	} else {
		c.printf(nil, "0 failed")
	}
	c.printf(nil, " (%d units, %d sets)\n", r.TotalUnits, r.TotalSets)
}

// Errorf prints an error line.
func (c *Console) Errorf(format string, args ...any) {
	c.printf(errorColor, format+"\n", args...)
}

// Infof prints an informational line.
func (c *Console) Infof(format string, args ...any) {
	c.printf(infoColor, format+"\n", args...)
}

func statusColor(status string) *color.Color {
	switch status {
	case model.ItemProcessed:
		return okColor
	case model.ItemError, model.ItemNotFound:
		return errorColor
	default:
		return nil
	}
}

func itemLabel(it *model.ScanQueueItem, barcode string) string {
	if it != nil && it.ProductName != nil {
		return *it.ProductName
	}
	return barcode
}

func quantity(it *model.ScanQueueItem) int {
	if it == nil {
		return 0
	}
	return max(it.Units, it.Sets)
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
