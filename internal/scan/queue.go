package scan

import (
	"github.com/erazemk/stockscan/internal/model"
)

// ItemPatch is a partial update of a queue item from the review screen.
// Nil fields are left unchanged.
type ItemPatch struct {
	Units      *int    `json:"units,omitempty"`
	Sets       *int    `json:"sets,omitempty"`
	ShelfID    *int64  `json:"shelf_id,omitempty"`
	ShelfName  *string `json:"shelf_name,omitempty"`
	ClearShelf bool    `json:"clear_shelf,omitempty"`
}

// QueueCounts tallies queue items by status.
type QueueCounts struct {
	Pending   int `json:"pending"`
	NotFound  int `json:"not_found"`
	Processed int `json:"processed"`
	Error     int `json:"error"`
}

// Count tallies the items of a queue by status.
func Count(queue []model.ScanQueueItem) QueueCounts {
	var c QueueCounts
	for _, it := range queue {
		switch it.Status {
		case model.ItemPending:
			c.Pending++
		case model.ItemNotFound:
			c.NotFound++
		case model.ItemProcessed:
			c.Processed++
		case model.ItemError:
			c.Error++
		}
	}
	return c
}

// seedQuantities returns the quantities of a freshly scanned item.
func seedQuantities(target string) (units, sets int) {
	switch target {
	case model.TargetSets:
		return 0, 1
	case model.TargetBoth:
		return 1, 1
	default:
		return 1, 0
	}
}

// increment bumps the quantity a repeat scan counts towards.
func increment(it *model.ScanQueueItem, target string) {
	if target == model.TargetSets {
		it.Sets++
		return
	}
	it.Units++
}

func indexOf(queue []model.ScanQueueItem, id string) int {
	for i := range queue {
		if queue[i].ID == id {
			return i
		}
	}
	return -1
}

// mergeTarget finds a pending item with the same barcode that is not part of
// a running commit.
func mergeTarget(queue []model.ScanQueueItem, barcode string, busy map[string]bool) int {
	for i := range queue {
		it := &queue[i]
		if it.Status == model.ItemPending && it.Barcode == barcode && !busy[it.ID] {
			return i
		}
	}
	return -1
}

// eligible reports whether an item can be committed.
func eligible(it *model.ScanQueueItem) bool {
	return it.Status == model.ItemPending && it.ProductID != nil && (it.Units > 0 || it.Sets > 0)
}

// prepend inserts it at the head of the queue.
func prepend(queue []model.ScanQueueItem, it model.ScanQueueItem) []model.ScanQueueItem {
	out := make([]model.ScanQueueItem, 0, len(queue)+1)
	out = append(out, it)
	return append(out, queue...)
}

// remove deletes the item at index i.
func remove(queue []model.ScanQueueItem, i int) []model.ScanQueueItem {
	out := make([]model.ScanQueueItem, 0, len(queue)-1)
	out = append(out, queue[:i]...)
	return append(out, queue[i+1:]...)
}
