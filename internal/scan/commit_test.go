package scan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockscan/internal/model"
)

func TestProcessQueueInMode(t *testing.T) {
	done := make(chan model.BatchResult, 1)
	c, mv := newTestController(t, Options{OnBatchComplete: func(r model.BatchResult) { done <- r }})
	ctx := context.Background()
	s := startSession(t, c, model.ModeOut)
	_, err := c.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)

	first := scan(t, c, bolt.Barcode).Item
	second := scan(t, c, nut.Barcode).Item
	_, err = c.UpdateQueueItem(ctx, second.ID, ItemPatch{ShelfID: &shelfB.ID})
	require.NoError(t, err)

	result, err := c.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalLines)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Equal(t, 2, result.TotalUnits)
	assert.Equal(t, s.ID, result.SessionID)

	calls := mv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, bolt.ID, calls[0].ProductID, "oldest scan first")
	assert.Equal(t, model.DirectionOut, calls[0].Direction)
	assert.Equal(t, shelfA.ID, *calls[0].ShelfID)
	assert.Equal(t, shelfB.ID, *calls[1].ShelfID)
	assert.Equal(t, "scan session "+s.ID, calls[0].Note)
	assert.Nil(t, calls[0].SetQuantity)
	_, err = time.Parse("2006-01-02", calls[0].Date)
	assert.NoError(t, err)

	for _, it := range c.Session().Queue {
		assert.Equal(t, model.ItemProcessed, it.Status, it.ID)
	}
	assert.Equal(t, first.ID, result.Lines[0].ItemID)

	select {
	case r := <-done:
		assert.Equal(t, 2, r.SuccessCount)
	case <-time.After(time.Second):
		t.Fatal("completion callback not called")
	}
}

func TestProcessQueueCountModeIsInbound(t *testing.T) {
	c, mv := newTestController(t, Options{DefaultTarget: model.TargetSets})
	startSession(t, c, model.ModeCount)
	scan(t, c, bolt.Barcode)

	_, err := c.ProcessQueue(context.Background())
	require.NoError(t, err)

	calls := mv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.DirectionIn, calls[0].Direction)
	assert.Equal(t, 0, calls[0].Quantity)
	require.NotNil(t, calls[0].SetQuantity)
	assert.Equal(t, 1, *calls[0].SetQuantity)
	assert.Nil(t, calls[0].ShelfID)
}

func TestProcessQueueIsolatesFailures(t *testing.T) {
	done := make(chan model.BatchResult, 1)
	c, mv := newTestController(t, Options{OnBatchComplete: func(r model.BatchResult) { done <- r }})
	mv.fail = func(req model.MovementRequest) error {
		if req.ProductID == nut.ID {
			return errors.New("insufficient stock")
		}
		return nil
	}
	startSession(t, c, model.ModeIn)
	scan(t, c, nut.Barcode)
	scan(t, c, bolt.Barcode)

	result, err := c.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Len(t, mv.Calls(), 2)

	for _, it := range c.Session().Queue {
		if it.Barcode == nut.Barcode {
			assert.Equal(t, model.ItemError, it.Status)
			assert.Equal(t, "insufficient stock", it.ErrorMessage)
		} else {
			assert.Equal(t, model.ItemProcessed, it.Status)
			assert.Empty(t, it.ErrorMessage)
		}
	}

	// Errored lines are never retried by a later commit.
	again, err := c.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.TotalLines)
	assert.Len(t, mv.Calls(), 2)
}

func TestEmptyCommitMakesNoCalls(t *testing.T) {
	called := make(chan model.BatchResult, 1)
	c, mv := newTestController(t, Options{OnBatchComplete: func(r model.BatchResult) { called <- r }})
	ctx := context.Background()
	startSession(t, c, model.ModeIn)

	scan(t, c, "unknown-1")
	scan(t, c, bolt.Barcode)
	_, err := c.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Len(t, mv.Calls(), 1)
	<-called

	// Only not_found and processed lines remain.
	result, err := c.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLines)
	assert.Empty(t, result.Lines)
	assert.Len(t, mv.Calls(), 1)

	select {
	case <-called:
		t.Fatal("callback fired for an empty commit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestZeroQuantityLinesAreSkipped(t *testing.T) {
	c, mv := newTestController(t, Options{})
	ctx := context.Background()
	startSession(t, c, model.ModeIn)
	it := scan(t, c, bolt.Barcode).Item

	zero := 0
	_, err := c.UpdateQueueItem(ctx, it.ID, ItemPatch{Units: &zero})
	require.NoError(t, err)

	result, err := c.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLines)
	assert.Empty(t, mv.Calls())
	assert.Equal(t, model.ItemPending, c.Session().Queue[0].Status)
}

func setupTransfer(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	startSession(t, c, model.ModeTransfer)
	_, err := c.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)
	_, err = c.SetTransferStep(ctx, model.StepTo)
	require.NoError(t, err)
	_, err = c.SetActiveShelf(ctx, shelfB.ID, "B2")
	require.NoError(t, err)
}

func TestTransferBothLegs(t *testing.T) {
	c, mv := newTestController(t, Options{})
	setupTransfer(t, c)
	scan(t, c, bolt.Barcode)

	result, err := c.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	calls := mv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, model.DirectionOut, calls[0].Direction)
	assert.Equal(t, shelfA.ID, *calls[0].ShelfID)
	assert.Equal(t, model.DirectionIn, calls[1].Direction)
	assert.Equal(t, shelfB.ID, *calls[1].ShelfID)
	assert.Equal(t, calls[0].Note, calls[1].Note)
	assert.Equal(t, calls[0].Quantity, calls[1].Quantity)
}

func TestTransferInboundFailureIsError(t *testing.T) {
	c, mv := newTestController(t, Options{})
	mv.fail = func(req model.MovementRequest) error {
		if req.Direction == model.DirectionIn {
			return errors.New("service unavailable")
		}
		return nil
	}
	setupTransfer(t, c)
	scan(t, c, bolt.Barcode)

	result, err := c.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Len(t, mv.Calls(), 2)

	it := c.Session().Queue[0]
	assert.Equal(t, model.ItemError, it.Status)
	assert.True(t, strings.HasPrefix(it.ErrorMessage, "partial transfer"), it.ErrorMessage)
	assert.Contains(t, it.ErrorMessage, "A1")
	assert.Contains(t, it.ErrorMessage, "B2")
}

func TestTransferOutboundFailureSkipsInbound(t *testing.T) {
	c, mv := newTestController(t, Options{})
	mv.fail = func(model.MovementRequest) error { return errors.New("insufficient stock on shelf") }
	setupTransfer(t, c)
	scan(t, c, bolt.Barcode)

	result, err := c.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ErrorCount)

	calls := mv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.DirectionOut, calls[0].Direction)
	assert.Contains(t, c.Session().Queue[0].ErrorMessage, "nothing was moved")
}

func TestTransferNeedsTwoShelves(t *testing.T) {
	c, mv := newTestController(t, Options{})
	ctx := context.Background()
	startSession(t, c, model.ModeTransfer)
	_, err := c.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)
	scan(t, c, bolt.Barcode)

	_, err = c.ProcessQueue(ctx)
	assert.ErrorIs(t, err, ErrTransferShelves)

	_, err = c.SetTransferStep(ctx, model.StepTo)
	require.NoError(t, err)
	_, err = c.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)

	_, err = c.ProcessQueue(ctx)
	assert.ErrorIs(t, err, ErrTransferShelves)
	assert.Empty(t, mv.Calls())
	assert.Equal(t, model.ItemPending, c.Session().Queue[0].Status)
}

func TestCommitInProgress(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c, mv := newTestController(t, Options{})
	mv.fail = func(model.MovementRequest) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	ctx := context.Background()
	startSession(t, c, model.ModeIn)
	first := scan(t, c, bolt.Barcode).Item

	type commitResult struct {
		result *model.BatchResult
		err    error
	}
	finished := make(chan commitResult, 1)
	go func() {
		r, err := c.ProcessQueue(ctx)
		finished <- commitResult{r, err}
	}()
	<-started

	assert.True(t, c.Committing())
	_, err := c.ProcessQueue(ctx)
	assert.ErrorIs(t, err, ErrCommitInProgress)
	assert.ErrorIs(t, c.End(ctx), ErrCommitInProgress)

	// Scanning continues during the commit; the line being committed is not merged into.
	during := scan(t, c, bolt.Barcode)
	assert.False(t, during.Merged)
	assert.ErrorIs(t, c.RemoveQueueItem(ctx, first.ID), ErrCommitInProgress)

	close(release)
	res := <-finished
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.result.TotalLines)
	assert.False(t, c.Committing())

	s := c.Session()
	require.Len(t, s.Queue, 2)
	assert.Equal(t, model.ItemPending, s.Queue[0].Status)
	assert.Equal(t, model.ItemProcessed, s.Queue[1].Status)
}

func TestProcessQueueWithoutSession(t *testing.T) {
	c, _ := newTestController(t, Options{})
	_, err := c.ProcessQueue(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}
