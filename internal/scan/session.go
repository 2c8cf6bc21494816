package scan

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/stockscan/internal/model"
)

var (
	ErrNoSession          = errors.New("no active scan session")
	ErrSessionActive      = errors.New("a scan session is already active")
	ErrItemNotFound       = errors.New("queue item not found")
	ErrInvalidMode        = errors.New("invalid scan mode")
	ErrInvalidTarget      = errors.New("invalid scan target")
	ErrInvalidInputMethod = errors.New("invalid input method")
	ErrInvalidStep        = errors.New("invalid transfer step")
	ErrNotTransfer        = errors.New("session is not a transfer")
	ErrInvalidQuantity    = errors.New("quantities must not be negative")
	ErrAlreadyResolved    = errors.New("queue item is already resolved")
	ErrCommitInProgress   = errors.New("a commit is already in progress")
	ErrTransferShelves    = errors.New("transfer needs two different shelves")
)

// Options configures a Controller.
type Options struct {
	Catalog   *Catalog
	Movements MovementService

	// Store mirrors the session after every change. Nil keeps it in memory only.
	Store KV
	Key   string

	Notifier Notifier

	// Keyboard, if set, is enabled while the session's input method includes hardware.
	Keyboard *Keyboard

	Cooldown           time.Duration
	DefaultTarget      string
	DefaultInputMethod string

	// OnBatchComplete is called on its own goroutine after a commit with at
	// least one successful line.
	OnBatchComplete func(model.BatchResult)

	Now func() time.Time
}

// ScanOutcome describes what a single scan did to the queue.
type ScanOutcome struct {
	Item    *model.ScanQueueItem `json:"item,omitempty"`
	Merged  bool                 `json:"merged"`
	Dropped bool                 `json:"dropped"`
}

// Controller owns the single active scan session. Every operation is
// serialized and replaces the whole session snapshot.
type Controller struct {
	mu         sync.Mutex
	session    *model.ScanSession
	committing bool
	inFlight   map[string]bool

	catalog    *Catalog
	movements  MovementService
	persist    *persister
	notifier   Notifier
	keyboard   *Keyboard
	debounce   *debouncer
	onComplete func(model.BatchResult)
	now        func() time.Time

	defaultTarget string
	defaultMethod string
}

// NewController creates a Controller with no active session.
func NewController(opts Options) *Controller {
	if opts.Catalog == nil {
		opts.Catalog = NewCatalog(nil, nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if !model.ValidTarget(opts.DefaultTarget) {
		opts.DefaultTarget = model.TargetUnits
	}
	if !model.ValidInputMethod(opts.DefaultInputMethod) {
		opts.DefaultInputMethod = model.InputCamera
	}

	return &Controller{
		inFlight:      make(map[string]bool),
		catalog:       opts.Catalog,
		movements:     opts.Movements,
		persist:       &persister{kv: opts.Store, key: opts.Key},
		notifier:      opts.Notifier,
		keyboard:      opts.Keyboard,
		debounce:      newDebouncer(opts.Cooldown),
		onComplete:    opts.OnBatchComplete,
		now:           opts.Now,
		defaultTarget: opts.DefaultTarget,
		defaultMethod: opts.DefaultInputMethod,
	}
}

// Catalog returns the catalog scans are resolved against.
func (c *Controller) Catalog() *Catalog {
	return c.catalog
}

// Session returns a copy of the active session, or nil.
func (c *Controller) Session() *model.ScanSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Committing reports whether a commit is running.
func (c *Controller) Committing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committing
}

// Start opens a new session. When prefill is given the queue starts with one
// pending line for that product.
func (c *Controller) Start(ctx context.Context, mode string, prefill *model.Product) (*model.ScanSession, error) {
	if !model.ValidMode(mode) {
		return nil, ErrInvalidMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, ErrSessionActive
	}

	now := c.now()
	s := &model.ScanSession{
		ID:          uuid.NewString(),
		Mode:        mode,
		ScanTarget:  c.defaultTarget,
		InputMethod: c.defaultMethod,
		Queue:       []model.ScanQueueItem{},
		StartedAt:   now,
	}
	if mode == model.ModeTransfer {
		s.TransferStep = model.StepFrom
	}

	if prefill != nil {
		barcode := prefill.Barcode
		if barcode == "" {
			barcode = prefill.Code
		}
		it := c.newItem(s, barcode, now)
		it.AttachProduct(prefill)
		it.Status = model.ItemPending
		s.Queue = append(s.Queue, it)
	}

	c.debounce.reset()
	c.replace(ctx, s)
	slog.Info("scan session started", "session", s.ID, "mode", mode)
	return s.Clone(), nil
}

// End discards the active session and its stored snapshot.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committing {
		return ErrCommitInProgress
	}
	if c.session == nil {
		return ErrNoSession
	}

	id := c.session.ID
	c.session = nil
	c.persist.clear(ctx)
	c.debounce.reset()
	c.syncKeyboard()
	slog.Info("scan session ended", "session", id)
	return nil
}

// Resume restores a stored session that still has queued lines. It returns
// nil when there is nothing to resume.
func (c *Controller) Resume(ctx context.Context) (*model.ScanSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, ErrSessionActive
	}

	s, err := c.persist.load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if len(s.Queue) == 0 {
		c.persist.clear(ctx)
		return nil, nil
	}

	c.session = s
	c.syncKeyboard()
	slog.Info("scan session resumed", "session", s.ID, "mode", s.Mode, "items", len(s.Queue))
	return s.Clone(), nil
}

// SetScanTarget changes which quantity new scans count towards.
func (c *Controller) SetScanTarget(ctx context.Context, target string) (*model.ScanSession, error) {
	if !model.ValidTarget(target) {
		return nil, ErrInvalidTarget
	}
	return c.mutate(ctx, func(s *model.ScanSession) error {
		s.ScanTarget = target
		return nil
	})
}

// SetInputMethod selects camera, hardware scanner or both.
func (c *Controller) SetInputMethod(ctx context.Context, method string) (*model.ScanSession, error) {
	if !model.ValidInputMethod(method) {
		return nil, ErrInvalidInputMethod
	}
	return c.mutate(ctx, func(s *model.ScanSession) error {
		s.InputMethod = method
		return nil
	})
}

// SetActiveShelf picks a shelf. In a transfer it fills the source or
// destination depending on the step; choosing the source moves on to scanning.
// Otherwise it becomes the active shelf and is given to every pending line
// that has no shelf yet. An empty name is looked up in the catalog.
func (c *Controller) SetActiveShelf(ctx context.Context, shelfID int64, shelfName string) (*model.ScanSession, error) {
	if shelfName == "" {
		if sh, ok := c.catalog.Shelf(shelfID); ok {
			shelfName = sh.Name
		}
	}

	return c.mutate(ctx, func(s *model.ScanSession) error {
		id, name := shelfID, shelfName

		if s.Mode == model.ModeTransfer {
			if s.TransferStep == model.StepTo {
				s.ToShelfID, s.ToShelfName = &id, &name
				return nil
			}
			s.FromShelfID, s.FromShelfName = &id, &name
			s.TransferStep = model.StepScan
			return nil
		}

		s.ActiveShelfID, s.ActiveShelfName = &id, &name
		for i := range s.Queue {
			it := &s.Queue[i]
			if it.Status == model.ItemPending && it.ShelfID == nil && !c.inFlight[it.ID] {
				it.AssignShelf(&id, &name)
			}
		}
		return nil
	})
}

// ScanShelfLabel applies a scanned shelf label. It behaves like
// SetActiveShelf, except that during the scan step of a transfer with lines
// already queued the label picks the destination, so the source of those
// lines is never replaced.
func (c *Controller) ScanShelfLabel(ctx context.Context, shelfID int64, shelfName string) (*model.ScanSession, error) {
	c.mu.Lock()
	toDestination := c.session != nil && c.session.Mode == model.ModeTransfer &&
		c.session.TransferStep == model.StepScan && len(c.session.Queue) > 0
	c.mu.Unlock()

	if toDestination {
		if _, err := c.SetTransferStep(ctx, model.StepTo); err != nil {
			return nil, err
		}
	}
	return c.SetActiveShelf(ctx, shelfID, shelfName)
}

// SetTransferStep moves between the steps of a transfer.
func (c *Controller) SetTransferStep(ctx context.Context, step string) (*model.ScanSession, error) {
	if !model.ValidStep(step) {
		return nil, ErrInvalidStep
	}
	return c.mutate(ctx, func(s *model.ScanSession) error {
		if s.Mode != model.ModeTransfer {
			return ErrNotTransfer
		}
		s.TransferStep = step
		return nil
	})
}

// HandleScan applies one decoded barcode to the queue.
func (c *Controller) HandleScan(ctx context.Context, barcode string) (*ScanOutcome, error) {
	barcode = strings.TrimSpace(barcode)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, ErrNoSession
	}
	now := c.now()
	if barcode == "" || !c.debounce.accept(barcode, now) {
		return &ScanOutcome{Dropped: true}, nil
	}

	next := c.session.Clone()
	next.LastScanAt = &now

	product, found := c.catalog.Lookup(barcode)

	var out ScanOutcome
	if i := mergeTarget(next.Queue, barcode, c.inFlight); i >= 0 {
		increment(&next.Queue[i], next.ScanTarget)
		it := next.Queue[i].Clone()
		out = ScanOutcome{Item: &it, Merged: true}
	} else {
		it := c.newItem(next, barcode, now)
		if found {
			it.AttachProduct(product)
			it.Status = model.ItemPending
		} else {
			it.Status = model.ItemNotFound
		}
		next.Queue = prepend(next.Queue, it)
		cp := it.Clone()
		out = ScanOutcome{Item: &cp}
	}

	c.replace(ctx, next)

	kind := FeedbackFound
	switch {
	case out.Merged:
		kind = FeedbackMerged
	case !found:
		kind = FeedbackNotFound
	}
	c.notify(Feedback{Kind: kind, Barcode: barcode, Item: out.Item})

	return &out, nil
}

// HandleKey feeds a key press through the keyboard heuristic and scans the
// barcode it completes, if any. It returns nil when no barcode was completed.
func (c *Controller) HandleKey(ctx context.Context, ev KeyEvent) (*ScanOutcome, error) {
	if c.keyboard == nil {
		return nil, nil
	}
	code, ok := c.keyboard.Feed(ev)
	if !ok {
		return nil, nil
	}
	return c.HandleScan(ctx, code)
}

// HandleCapture scans a value written into a scanner capture field.
func (c *Controller) HandleCapture(ctx context.Context, value string) (*ScanOutcome, error) {
	kb := c.keyboard
	if kb == nil {
		kb = NewKeyboard(KeyboardConfig{})
	}
	code, ok := kb.Capture(value)
	if !ok {
		return nil, nil
	}
	return c.HandleScan(ctx, code)
}

// UpdateQueueItem applies a review edit to one line.
func (c *Controller) UpdateQueueItem(ctx context.Context, id string, patch ItemPatch) (*model.ScanQueueItem, error) {
	if (patch.Units != nil && *patch.Units < 0) || (patch.Sets != nil && *patch.Sets < 0) {
		return nil, ErrInvalidQuantity
	}

	var updated model.ScanQueueItem
	_, err := c.mutate(ctx, func(s *model.ScanSession) error {
		i := indexOf(s.Queue, id)
		if i < 0 {
			return ErrItemNotFound
		}
		if c.inFlight[id] {
			return ErrCommitInProgress
		}
		it := &s.Queue[i]
		if it.Status == model.ItemProcessed || it.Status == model.ItemError {
			return ErrAlreadyResolved
		}

		if patch.Units != nil {
			it.Units = *patch.Units
		}
		if patch.Sets != nil {
			it.Sets = *patch.Sets
		}
		switch {
		case patch.ClearShelf:
			it.AssignShelf(nil, nil)
		case patch.ShelfID != nil:
			name := ""
			if patch.ShelfName != nil {
				name = *patch.ShelfName
			} else if sh, ok := c.catalog.Shelf(*patch.ShelfID); ok {
				name = sh.Name
			}
			it.AssignShelf(patch.ShelfID, &name)
		}
		updated = it.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemoveQueueItem deletes one line.
func (c *Controller) RemoveQueueItem(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, func(s *model.ScanSession) error {
		i := indexOf(s.Queue, id)
		if i < 0 {
			return ErrItemNotFound
		}
		if c.inFlight[id] {
			return ErrCommitInProgress
		}
		s.Queue = remove(s.Queue, i)
		return nil
	})
	return err
}

// ClearQueue deletes every line.
func (c *Controller) ClearQueue(ctx context.Context) error {
	_, err := c.mutate(ctx, func(s *model.ScanSession) error {
		if len(c.inFlight) > 0 {
			return ErrCommitInProgress
		}
		s.Queue = []model.ScanQueueItem{}
		return nil
	})
	return err
}

// UndoLastScan removes the most recent line, whatever its status.
func (c *Controller) UndoLastScan(ctx context.Context) (*model.ScanQueueItem, error) {
	var undone model.ScanQueueItem
	_, err := c.mutate(ctx, func(s *model.ScanSession) error {
		if len(s.Queue) == 0 {
			return ErrItemNotFound
		}
		if c.inFlight[s.Queue[0].ID] {
			return ErrCommitInProgress
		}
		undone = s.Queue[0].Clone()
		s.Queue = remove(s.Queue, 0)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &undone, nil
}

// OnProductCreated resolves a not-found line once its product exists, and
// adds the product to the catalog so later scans match it.
func (c *Controller) OnProductCreated(ctx context.Context, itemID string, p model.Product) (*model.ScanQueueItem, error) {
	var resolved model.ScanQueueItem
	_, err := c.mutate(ctx, func(s *model.ScanSession) error {
		i := indexOf(s.Queue, itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		it := &s.Queue[i]
		if it.Status != model.ItemNotFound {
			return ErrAlreadyResolved
		}
		it.AttachProduct(&p)
		it.Status = model.ItemPending
		if it.ShelfID == nil && s.Mode != model.ModeTransfer {
			it.AssignShelf(s.ActiveShelfID, s.ActiveShelfName)
		}
		resolved = it.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.catalog.Add(p)
	return &resolved, nil
}

func (c *Controller) newItem(s *model.ScanSession, barcode string, now time.Time) model.ScanQueueItem {
	units, sets := seedQuantities(s.ScanTarget)
	it := model.ScanQueueItem{
		ID:        uuid.NewString(),
		Barcode:   barcode,
		Units:     units,
		Sets:      sets,
		ScannedAt: now,
	}
	if s.Mode != model.ModeTransfer {
		it.AssignShelf(s.ActiveShelfID, s.ActiveShelfName)
	}
	return it
}

// mutate runs fn on a copy of the session and installs the copy if fn succeeds.
func (c *Controller) mutate(ctx context.Context, fn func(s *model.ScanSession) error) (*model.ScanSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, ErrNoSession
	}
	next := c.session.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	c.replace(ctx, next)
	return next.Clone(), nil
}

// replace installs s as the live session. Callers hold c.mu.
func (c *Controller) replace(ctx context.Context, s *model.ScanSession) {
	c.session = s
	c.persist.save(ctx, s)
	c.syncKeyboard()
}

func (c *Controller) syncKeyboard() {
	if c.keyboard == nil {
		return
	}
	on := c.session != nil &&
		(c.session.InputMethod == model.InputHardware || c.session.InputMethod == model.InputBoth)
	c.keyboard.SetEnabled(on)
}

func (c *Controller) notify(fb Feedback) {
	n := c.notifier
	goSafe("notifier", func() { n.Notify(fb) })
}
