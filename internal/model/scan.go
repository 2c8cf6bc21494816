package model

import "time"

// Scan session modes.
const (
	ModeIn       = "in"
	ModeOut      = "out"
	ModeTransfer = "transfer"
	ModeCount    = "count"
)

// Scan targets: which quantity a bare scan increments.
const (
	TargetUnits = "units"
	TargetSets  = "sets"
	TargetBoth  = "both"
)

// Input methods.
const (
	InputCamera   = "camera"
	InputHardware = "hardware"
	InputBoth     = "both"
)

// Transfer steps.
const (
	StepFrom = "from"
	StepScan = "scan"
	StepTo   = "to"
)

// Queue item statuses.
const (
	ItemPending   = "pending"
	ItemNotFound  = "not_found"
	ItemProcessed = "processed"
	ItemError     = "error"
)

// ValidMode reports whether m is a known session mode.
func ValidMode(m string) bool {
	return m == ModeIn || m == ModeOut || m == ModeTransfer || m == ModeCount
}

// ValidTarget reports whether t is a known scan target.
func ValidTarget(t string) bool {
	return t == TargetUnits || t == TargetSets || t == TargetBoth
}

// ValidInputMethod reports whether m is a known input method.
func ValidInputMethod(m string) bool {
	return m == InputCamera || m == InputHardware || m == InputBoth
}

// ValidStep reports whether s is a known transfer step.
func ValidStep(s string) bool {
	return s == StepFrom || s == StepScan || s == StepTo
}

// ScanQueueItem is one scanned line in a session queue.
type ScanQueueItem struct {
	ID           string    `json:"id"`
	Barcode      string    `json:"barcode"`
	ProductID    *int64    `json:"product_id"`
	ProductName  *string   `json:"product_name"`
	ProductCode  *string   `json:"product_code"`
	Units        int       `json:"units"`
	Sets         int       `json:"sets"`
	ShelfID      *int64    `json:"shelf_id"`
	ShelfName    *string   `json:"shelf_name"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// AttachProduct sets the product identity of the item.
func (it *ScanQueueItem) AttachProduct(p *Product) {
	id, name, code := p.ID, p.Name, p.Code
	it.ProductID = &id
	it.ProductName = &name
	it.ProductCode = &code
}

// AssignShelf sets or clears the shelf of the item.
func (it *ScanQueueItem) AssignShelf(id *int64, name *string) {
	it.ShelfID = cloneInt64(id)
	it.ShelfName = cloneString(name)
}

// Clone returns a deep copy of the item.
func (it ScanQueueItem) Clone() ScanQueueItem {
	it.ProductID = cloneInt64(it.ProductID)
	it.ProductName = cloneString(it.ProductName)
	it.ProductCode = cloneString(it.ProductCode)
	it.ShelfID = cloneInt64(it.ShelfID)
	it.ShelfName = cloneString(it.ShelfName)
	return it
}

// ScanSession is the state of the single active scan session.
type ScanSession struct {
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	ScanTarget      string          `json:"scan_target"`
	InputMethod     string          `json:"input_method"`
	ActiveShelfID   *int64          `json:"active_shelf_id"`
	ActiveShelfName *string         `json:"active_shelf_name"`
	FromShelfID     *int64          `json:"from_shelf_id"`
	FromShelfName   *string         `json:"from_shelf_name"`
	ToShelfID       *int64          `json:"to_shelf_id"`
	ToShelfName     *string         `json:"to_shelf_name"`
	TransferStep    string          `json:"transfer_step"`
	Queue           []ScanQueueItem `json:"queue"`
	StartedAt       time.Time       `json:"started_at"`
	LastScanAt      *time.Time      `json:"last_scan_at"`
}

// Clone returns a deep copy of the session.
func (s *ScanSession) Clone() *ScanSession {
	if s == nil {
		return nil
	}
	c := *s
	c.ActiveShelfID = cloneInt64(s.ActiveShelfID)
	c.ActiveShelfName = cloneString(s.ActiveShelfName)
	c.FromShelfID = cloneInt64(s.FromShelfID)
	c.FromShelfName = cloneString(s.FromShelfName)
	c.ToShelfID = cloneInt64(s.ToShelfID)
	c.ToShelfName = cloneString(s.ToShelfName)
	if s.LastScanAt != nil {
		t := *s.LastScanAt
		c.LastScanAt = &t
	}
	c.Queue = make([]ScanQueueItem, len(s.Queue))
	for i, it := range s.Queue {
		c.Queue[i] = it.Clone()
	}
	return &c
}

// BatchLine is the outcome of one queue item in a commit pass.
type BatchLine struct {
	ItemID      string `json:"item_id"`
	Barcode     string `json:"barcode"`
	ProductName string `json:"product_name"`
	Units       int    `json:"units"`
	Sets        int    `json:"sets"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// BatchResult summarizes one commit pass over a session queue.
type BatchResult struct {
	SessionID    string      `json:"session_id"`
	Mode         string      `json:"mode"`
	TotalLines   int         `json:"total_lines"`
	TotalUnits   int         `json:"total_units"`
	TotalSets    int         `json:"total_sets"`
	SuccessCount int         `json:"success_count"`
	ErrorCount   int         `json:"error_count"`
	CompletedAt  time.Time   `json:"completed_at"`
	Lines        []BatchLine `json:"lines"`
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
