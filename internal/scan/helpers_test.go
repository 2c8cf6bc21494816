package scan

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockscan/internal/model"
)

var (
	bolt   = model.Product{ID: 1, Name: "Bolt", Code: "B-1", Barcode: "3830001"}
	nut    = model.Product{ID: 2, Name: "Nut", Code: "N-1", Barcode: "3830002"}
	washer = model.Product{ID: 3, Name: "Washer", Code: "W-1"}

	shelfA = model.Shelf{ID: 10, Name: "A1"}
	shelfB = model.Shelf{ID: 20, Name: "B2"}
)

type fakeMovements struct {
	mu    sync.Mutex
	calls []model.MovementRequest
	fail  func(model.MovementRequest) error
}

func (f *fakeMovements) CreateMovement(_ context.Context, req model.MovementRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return fail(req)
	}
	return nil
}

func (f *fakeMovements) Calls() []model.MovementRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MovementRequest(nil), f.calls...)
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage unavailable")
}
func (brokenKV) Put(context.Context, string, []byte) error { return errors.New("storage unavailable") }
func (brokenKV) Delete(context.Context, string) error      { return errors.New("storage unavailable") }

func newTestController(t *testing.T, opts Options) (*Controller, *fakeMovements) {
	t.Helper()
	mv := &fakeMovements{}
	if opts.Movements == nil {
		opts.Movements = mv
	}
	if opts.Catalog == nil {
		opts.Catalog = NewCatalog([]model.Product{bolt, nut, washer}, []model.Shelf{shelfA, shelfB})
	}
	return NewController(opts), mv
}

func startSession(t *testing.T, c *Controller, mode string) *model.ScanSession {
	t.Helper()
	s, err := c.Start(context.Background(), mode, nil)
	require.NoError(t, err)
	return s
}

func scan(t *testing.T, c *Controller, barcode string) *ScanOutcome {
	t.Helper()
	out, err := c.HandleScan(context.Background(), barcode)
	require.NoError(t, err)
	return out
}
