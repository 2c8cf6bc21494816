package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/erazemk/stockscan/internal/model"
)

// MovementService creates stock movements. A returned error fails the whole
// movement; there is no partial result.
type MovementService interface {
	CreateMovement(ctx context.Context, req model.MovementRequest) error
}

// ProcessQueue commits every pending, resolved line with a non-zero quantity,
// oldest scan first, one at a time. Per-line failures are recorded on the line
// and in the result; only invalid invocations return an error. When nothing
// is eligible the result has no lines and no movement is created.
func (c *Controller) ProcessQueue(ctx context.Context) (*model.BatchResult, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	if c.committing {
		c.mu.Unlock()
		return nil, ErrCommitInProgress
	}

	s := c.session.Clone()
	result := &model.BatchResult{SessionID: s.ID, Mode: s.Mode, Lines: []model.BatchLine{}}

	var work []model.ScanQueueItem
	for i := len(s.Queue) - 1; i >= 0; i-- {
		if eligible(&s.Queue[i]) {
			work = append(work, s.Queue[i])
		}
	}
	if len(work) == 0 {
		c.mu.Unlock()
		result.CompletedAt = c.now()
		return result, nil
	}

	if s.Mode == model.ModeTransfer &&
		(s.FromShelfID == nil || s.ToShelfID == nil || *s.FromShelfID == *s.ToShelfID) {
		c.mu.Unlock()
		return nil, ErrTransferShelves
	}

	c.committing = true
	for _, it := range work {
		c.inFlight[it.ID] = true
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.committing = false
		clear(c.inFlight)
		c.mu.Unlock()
	}()

	for _, it := range work {
		err := c.commitItem(ctx, s, &it)

		line := model.BatchLine{
			ItemID:  it.ID,
			Barcode: it.Barcode,
			Units:   it.Units,
			Sets:    it.Sets,
			Status:  model.ItemProcessed,
		}
		if it.ProductName != nil {
			line.ProductName = *it.ProductName
		}
		if err != nil {
			line.Status = model.ItemError
			line.Error = err.Error()
			result.ErrorCount++
		} else {
			result.SuccessCount++
		}
		result.TotalLines++
		result.TotalUnits += it.Units
		result.TotalSets += it.Sets
		result.Lines = append(result.Lines, line)

		c.writeBack(ctx, s.ID, it.ID, line.Status, line.Error)
	}

	result.CompletedAt = c.now()
	slog.Info("scan batch committed", "session", s.ID, "mode", s.Mode,
		"lines", result.TotalLines, "ok", result.SuccessCount, "failed", result.ErrorCount)

	final := *result
	c.notify(Feedback{Kind: FeedbackCommitted, Result: &final})
	if result.SuccessCount > 0 && c.onComplete != nil {
		cb := c.onComplete
		goSafe("batch completion callback", func() { cb(final) })
	}
	return result, nil
}

// commitItem creates the movements for one line.
func (c *Controller) commitItem(ctx context.Context, s *model.ScanSession, it *model.ScanQueueItem) error {
	now := c.now()
	base := model.MovementRequest{
		ProductID: *it.ProductID,
		Quantity:  it.Units,
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04:05"),
		Note:      "scan session " + s.ID,
	}
	if it.Sets > 0 {
		sets := it.Sets
		base.SetQuantity = &sets
	}

	if s.Mode != model.ModeTransfer {
		req := base
		req.Direction = model.DirectionIn
		if s.Mode == model.ModeOut {
			req.Direction = model.DirectionOut
		}
		req.ShelfID = it.ShelfID
		if req.ShelfID == nil {
			req.ShelfID = s.ActiveShelfID
		}
		return c.movements.CreateMovement(ctx, req)
	}

	from, to := shelfLabel(s.FromShelfID, s.FromShelfName), shelfLabel(s.ToShelfID, s.ToShelfName)

	out := base
	out.Direction = model.DirectionOut
	out.ShelfID = s.FromShelfID
	if err := c.movements.CreateMovement(ctx, out); err != nil {
		return fmt.Errorf("transfer failed taking stock from %s, nothing was moved: %w", from, err)
	}

	in := base
	in.Direction = model.DirectionIn
	in.ShelfID = s.ToShelfID
	if err := c.movements.CreateMovement(ctx, in); err != nil {
		return fmt.Errorf("partial transfer: stock left %s but was not added to %s, reconcile manually: %w", from, to, err)
	}
	return nil
}

// writeBack records the outcome of one line on the live session.
func (c *Controller) writeBack(ctx context.Context, sessionID, itemID, status, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, itemID)
	if c.session == nil || c.session.ID != sessionID {
		return
	}
	next := c.session.Clone()
	i := indexOf(next.Queue, itemID)
	if i < 0 {
		return
	}
	next.Queue[i].Status = status
	next.Queue[i].ErrorMessage = msg
	c.replace(ctx, next)
}

func shelfLabel(id *int64, name *string) string {
	if name != nil && *name != "" {
		return *name
	}
	if id != nil {
		return fmt.Sprintf("shelf %d", *id)
	}
	return "no shelf"
}
