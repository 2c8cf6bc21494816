package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockscan/internal/model"
)

func TestStartRejectsSecondSession(t *testing.T) {
	c, _ := newTestController(t, Options{})
	first := startSession(t, c, model.ModeIn)

	_, err := c.Start(context.Background(), model.ModeOut, nil)
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, first.ID, c.Session().ID)

	_, err = c.Start(context.Background(), "sideways", nil)
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestStartWithPrefill(t *testing.T) {
	c, _ := newTestController(t, Options{DefaultTarget: model.TargetBoth})
	s, err := c.Start(context.Background(), model.ModeIn, &washer)
	require.NoError(t, err)

	require.Len(t, s.Queue, 1)
	it := s.Queue[0]
	assert.Equal(t, "W-1", it.Barcode, "products without a barcode use their code")
	assert.Equal(t, model.ItemPending, it.Status)
	assert.Equal(t, int64(3), *it.ProductID)
	assert.Equal(t, 1, it.Units)
	assert.Equal(t, 1, it.Sets)
}

func TestEndDiscardsSession(t *testing.T) {
	kv := NewMemoryKV()
	c, _ := newTestController(t, Options{Store: kv})
	startSession(t, c, model.ModeIn)
	scan(t, c, bolt.Barcode)

	require.NoError(t, c.End(context.Background()))
	assert.Nil(t, c.Session())

	_, ok, _ := kv.Get(context.Background(), DefaultKey)
	assert.False(t, ok)

	assert.ErrorIs(t, c.End(context.Background()), ErrNoSession)
	_, err := c.HandleScan(context.Background(), bolt.Barcode)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestDebounce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c, _ := newTestController(t, Options{
		Cooldown: 1500 * time.Millisecond,
		Now:      func() time.Time { return now },
	})
	startSession(t, c, model.ModeIn)

	first := scan(t, c, bolt.Barcode)
	assert.False(t, first.Dropped)

	now = now.Add(time.Second)
	second := scan(t, c, bolt.Barcode)
	assert.True(t, second.Dropped)

	s := c.Session()
	require.Len(t, s.Queue, 1)
	assert.Equal(t, 1, s.Queue[0].Units)

	now = now.Add(600 * time.Millisecond)
	third := scan(t, c, bolt.Barcode)
	assert.True(t, third.Merged)

	s = c.Session()
	require.Len(t, s.Queue, 1)
	assert.Equal(t, 2, s.Queue[0].Units)
}

func TestDebounceIsPerBarcode(t *testing.T) {
	c, _ := newTestController(t, Options{Cooldown: time.Minute})
	startSession(t, c, model.ModeIn)

	scan(t, c, bolt.Barcode)
	scan(t, c, nut.Barcode)
	assert.Len(t, c.Session().Queue, 2)
}

func TestScanResolvesByBarcodeOrCode(t *testing.T) {
	c, _ := newTestController(t, Options{})
	startSession(t, c, model.ModeIn)

	byBarcode := scan(t, c, "3830002")
	require.NotNil(t, byBarcode.Item.ProductID)
	assert.Equal(t, nut.ID, *byBarcode.Item.ProductID)

	byCode := scan(t, c, "W-1")
	require.NotNil(t, byCode.Item.ProductName)
	assert.Equal(t, "Washer", *byCode.Item.ProductName)

	unknown := scan(t, c, "0000000")
	assert.Equal(t, model.ItemNotFound, unknown.Item.Status)
	assert.Nil(t, unknown.Item.ProductID)

	s := c.Session()
	require.Len(t, s.Queue, 3)
	assert.Equal(t, "0000000", s.Queue[0].Barcode, "newest first")
	assert.NotNil(t, s.LastScanAt)
}

func TestScanTargetSeedsAndIncrements(t *testing.T) {
	tests := []struct {
		target             string
		seedUnits, seedSet int
		nextUnits, nextSet int
	}{
		{model.TargetUnits, 1, 0, 2, 0},
		{model.TargetSets, 0, 1, 0, 2},
		{model.TargetBoth, 1, 1, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			c, _ := newTestController(t, Options{})
			startSession(t, c, model.ModeIn)
			_, err := c.SetScanTarget(context.Background(), tt.target)
			require.NoError(t, err)

			it := scan(t, c, bolt.Barcode).Item
			assert.Equal(t, tt.seedUnits, it.Units)
			assert.Equal(t, tt.seedSet, it.Sets)

			it = scan(t, c, bolt.Barcode).Item
			assert.Equal(t, tt.nextUnits, it.Units)
			assert.Equal(t, tt.nextSet, it.Sets)
		})
	}
}

func TestNotFoundIsNotMergeTarget(t *testing.T) {
	c, _ := newTestController(t, Options{})
	startSession(t, c, model.ModeIn)

	scan(t, c, "999")
	again := scan(t, c, "999")
	assert.False(t, again.Merged)
	assert.Len(t, c.Session().Queue, 2)
}

func TestResolvedLinesAreNotMergeTargets(t *testing.T) {
	tests := []struct {
		name   string
		fail   bool
		status string
	}{
		{"after failed commit", true, model.ItemError},
		{"after successful commit", false, model.ItemProcessed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mv := newTestController(t, Options{})
			if tt.fail {
				mv.fail = func(model.MovementRequest) error { return errors.New("service down") }
			}
			startSession(t, c, model.ModeIn)
			first := scan(t, c, bolt.Barcode).Item

			_, err := c.ProcessQueue(context.Background())
			require.NoError(t, err)

			again := scan(t, c, bolt.Barcode)
			assert.False(t, again.Merged)
			assert.NotEqual(t, first.ID, again.Item.ID)
			assert.Equal(t, model.ItemPending, again.Item.Status)
			assert.Equal(t, 1, again.Item.Units)

			s := c.Session()
			require.Len(t, s.Queue, 2)
			assert.Equal(t, tt.status, s.Queue[1].Status)
			assert.Equal(t, 1, s.Queue[1].Units)
		})
	}
}

func TestInvalidFieldUpdates(t *testing.T) {
	c, _ := newTestController(t, Options{})
	ctx := context.Background()

	_, err := c.SetScanTarget(ctx, model.TargetSets)
	assert.ErrorIs(t, err, ErrNoSession)

	startSession(t, c, model.ModeIn)
	_, err = c.SetScanTarget(ctx, "crates")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = c.SetInputMethod(ctx, "telepathy")
	assert.ErrorIs(t, err, ErrInvalidInputMethod)
	_, err = c.SetTransferStep(ctx, model.StepTo)
	assert.ErrorIs(t, err, ErrNotTransfer)
}

func TestShelfBackfill(t *testing.T) {
	c, _ := newTestController(t, Options{})
	ctx := context.Background()
	startSession(t, c, model.ModeIn)

	unassigned := scan(t, c, bolt.Barcode).Item
	assigned := scan(t, c, nut.Barcode).Item
	_, err := c.UpdateQueueItem(ctx, assigned.ID, ItemPatch{ShelfID: &shelfB.ID})
	require.NoError(t, err)

	_, err = c.SetActiveShelf(ctx, shelfA.ID, "")
	require.NoError(t, err)

	s := c.Session()
	byID := map[string]model.ScanQueueItem{}
	for _, it := range s.Queue {
		byID[it.ID] = it
	}
	require.NotNil(t, byID[unassigned.ID].ShelfName)
	assert.Equal(t, "A1", *byID[unassigned.ID].ShelfName)
	assert.Equal(t, "B2", *byID[assigned.ID].ShelfName)
	assert.Equal(t, "A1", *s.ActiveShelfName)

	later := scan(t, c, washer.Code).Item
	require.NotNil(t, later.ShelfID)
	assert.Equal(t, shelfA.ID, *later.ShelfID)
}

func TestTransferShelfSelection(t *testing.T) {
	c, _ := newTestController(t, Options{})
	ctx := context.Background()
	s := startSession(t, c, model.ModeTransfer)
	assert.Equal(t, model.StepFrom, s.TransferStep)

	s, err := c.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)
	assert.Equal(t, model.StepScan, s.TransferStep)
	assert.Equal(t, shelfA.ID, *s.FromShelfID)
	assert.Nil(t, s.ActiveShelfID)

	_, err = c.SetTransferStep(ctx, model.StepTo)
	require.NoError(t, err)
	s, err = c.SetActiveShelf(ctx, shelfB.ID, "")
	require.NoError(t, err)
	assert.Equal(t, shelfB.ID, *s.ToShelfID)
	assert.Equal(t, "B2", *s.ToShelfName)
	assert.Equal(t, model.StepTo, s.TransferStep)

	_, err = c.SetTransferStep(ctx, "sideways")
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestShelfLabelDuringTransferScan(t *testing.T) {
	c, _ := newTestController(t, Options{})
	ctx := context.Background()
	startSession(t, c, model.ModeTransfer)

	s, err := c.ScanShelfLabel(ctx, shelfA.ID, "")
	require.NoError(t, err)
	assert.Equal(t, shelfA.ID, *s.FromShelfID)
	assert.Equal(t, model.StepScan, s.TransferStep)

	// Nothing queued yet, so the source can still be corrected.
	s, err = c.ScanShelfLabel(ctx, shelfB.ID, "")
	require.NoError(t, err)
	assert.Equal(t, shelfB.ID, *s.FromShelfID)
	assert.Nil(t, s.ToShelfID)

	scan(t, c, bolt.Barcode)
	s, err = c.ScanShelfLabel(ctx, shelfA.ID, "")
	require.NoError(t, err)
	assert.Equal(t, shelfB.ID, *s.FromShelfID, "queued lines keep their source")
	require.NotNil(t, s.ToShelfID)
	assert.Equal(t, shelfA.ID, *s.ToShelfID)
	assert.Equal(t, model.StepTo, s.TransferStep)
}

func TestUndoRemovesMostRecent(t *testing.T) {
	c, _ := newTestController(t, Options{})
	startSession(t, c, model.ModeIn)

	first := scan(t, c, bolt.Barcode).Item
	second := scan(t, c, nut.Barcode).Item
	third := scan(t, c, washer.Code).Item

	undone, err := c.UndoLastScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, third.ID, undone.ID)

	s := c.Session()
	require.Len(t, s.Queue, 2)
	assert.Equal(t, second.ID, s.Queue[0].ID)
	assert.Equal(t, first.ID, s.Queue[1].ID)
}

func TestUndoOnEmptyQueue(t *testing.T) {
	c, _ := newTestController(t, Options{})
	startSession(t, c, model.ModeIn)

	_, err := c.UndoLastScan(context.Background())
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestUpdateAndRemoveQueueItem(t *testing.T) {
	c, _ := newTestController(t, Options{})
	ctx := context.Background()
	startSession(t, c, model.ModeIn)
	it := scan(t, c, bolt.Barcode).Item
	scan(t, c, nut.Barcode)

	units, sets := 5, 2
	updated, err := c.UpdateQueueItem(ctx, it.ID, ItemPatch{Units: &units, Sets: &sets})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Units)
	assert.Equal(t, 2, updated.Sets)

	negative := -1
	_, err = c.UpdateQueueItem(ctx, it.ID, ItemPatch{Units: &negative})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = c.UpdateQueueItem(ctx, "missing", ItemPatch{Units: &units})
	assert.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, c.RemoveQueueItem(ctx, it.ID))
	assert.ErrorIs(t, c.RemoveQueueItem(ctx, it.ID), ErrItemNotFound)
	assert.Len(t, c.Session().Queue, 1)

	require.NoError(t, c.ClearQueue(ctx))
	assert.Empty(t, c.Session().Queue)
}

func TestOnProductCreated(t *testing.T) {
	c, _ := newTestController(t, Options{})
	ctx := context.Background()
	startSession(t, c, model.ModeIn)
	_, err := c.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)

	missing := scan(t, c, "5550001").Item
	require.Equal(t, model.ItemNotFound, missing.Status)

	gear := model.Product{ID: 9, Name: "Gear", Code: "G-9", Barcode: "5550001"}
	resolved, err := c.OnProductCreated(ctx, missing.ID, gear)
	require.NoError(t, err)
	assert.Equal(t, model.ItemPending, resolved.Status)
	assert.Equal(t, int64(9), *resolved.ProductID)
	assert.Equal(t, "A1", *resolved.ShelfName)

	_, err = c.OnProductCreated(ctx, missing.ID, gear)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// The catalog now knows the product, so the next scan merges.
	next := scan(t, c, "5550001")
	assert.True(t, next.Merged)
}

func TestNotifierReceivesFeedback(t *testing.T) {
	got := make(chan Feedback, 4)
	c, _ := newTestController(t, Options{Notifier: NotifierFunc(func(fb Feedback) { got <- fb })})
	startSession(t, c, model.ModeIn)

	scan(t, c, "nope")
	select {
	case fb := <-got:
		assert.Equal(t, FeedbackNotFound, fb.Kind)
		assert.Equal(t, "nope", fb.Barcode)
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestPanickingNotifierDoesNotBreakScan(t *testing.T) {
	c, _ := newTestController(t, Options{Notifier: NotifierFunc(func(Feedback) { panic("speaker on fire") })})
	startSession(t, c, model.ModeIn)

	scan(t, c, bolt.Barcode)
	scan(t, c, nut.Barcode)
	assert.Len(t, c.Session().Queue, 2)
}

func TestKeyboardFollowsInputMethod(t *testing.T) {
	kb := NewKeyboard(DefaultKeyboardConfig())
	c, _ := newTestController(t, Options{Keyboard: kb, DefaultInputMethod: model.InputCamera})
	ctx := context.Background()
	startSession(t, c, model.ModeIn)
	assert.False(t, kb.Enabled())

	_, err := c.SetInputMethod(ctx, model.InputHardware)
	require.NoError(t, err)
	assert.True(t, kb.Enabled())

	var out *ScanOutcome
	at := time.Now()
	for _, key := range []string{"3", "8", "3", "0", "0", "0", "1", KeyEnter} {
		out, err = c.HandleKey(ctx, KeyEvent{Key: key, At: at})
		require.NoError(t, err)
		at = at.Add(2 * time.Millisecond)
	}
	require.NotNil(t, out)
	assert.Equal(t, bolt.ID, *out.Item.ProductID)

	require.NoError(t, c.End(ctx))
	assert.False(t, kb.Enabled())
}

func TestHandleCapture(t *testing.T) {
	c, _ := newTestController(t, Options{})
	startSession(t, c, model.ModeIn)

	out, err := c.HandleCapture(context.Background(), " N-1\n")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, nut.ID, *out.Item.ProductID)

	out, err = c.HandleCapture(context.Background(), "ab")
	require.NoError(t, err)
	assert.Nil(t, out)
}
