package scan

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// KeyEnter is the end-of-line key a wedge scanner sends after each barcode.
const KeyEnter = "Enter"

// Target describes the UI element that had focus when a key was pressed.
type Target struct {
	Editable       bool `json:"editable"`
	ScannerCapture bool `json:"scanner_capture"`
}

// KeyEvent is a single key press.
type KeyEvent struct {
	Key    string    `json:"key"`
	Target Target    `json:"target"`
	At     time.Time `json:"at"`
}

// KeyboardConfig holds the timing thresholds of the keystroke heuristic.
type KeyboardConfig struct {
	IdleWindow       time.Duration
	MinLength        int
	CaptureMinLength int
}

// DefaultKeyboardConfig returns thresholds that suit common USB wedge scanners.
func DefaultKeyboardConfig() KeyboardConfig {
	return KeyboardConfig{
		IdleWindow:       100 * time.Millisecond,
		MinLength:        3,
		CaptureMinLength: 3,
	}
}

// Keyboard separates scanner bursts from human typing by keystroke timing.
// A scanner types faster than IdleWindow per character and always ends with
// Enter; anything slower is dropped.
type Keyboard struct {
	cfg KeyboardConfig

	mu      sync.Mutex
	enabled bool
	buf     strings.Builder
	last    time.Time
}

// NewKeyboard returns a disabled Keyboard. Zero thresholds fall back to defaults.
func NewKeyboard(cfg KeyboardConfig) *Keyboard {
	def := DefaultKeyboardConfig()
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = def.IdleWindow
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.CaptureMinLength <= 0 {
		cfg.CaptureMinLength = def.CaptureMinLength
	}
	return &Keyboard{cfg: cfg}
}

// SetEnabled turns key consumption on or off. Disabling drops any partial buffer.
func (k *Keyboard) SetEnabled(enabled bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = enabled
	if !enabled {
		k.buf.Reset()
	}
}

// Enabled reports whether key events are being consumed.
func (k *Keyboard) Enabled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.enabled
}

// Feed consumes one key event and returns a barcode when the event completes one.
func (k *Keyboard) Feed(ev KeyEvent) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.enabled {
		return "", false
	}
	if ev.Target.Editable && !ev.Target.ScannerCapture {
		return "", false
	}

	k.expireLocked(ev.At)

	if ev.Key == KeyEnter {
		code := k.buf.String()
		k.buf.Reset()
		if utf8.RuneCountInString(code) >= k.cfg.MinLength {
			return code, true
		}
		return "", false
	}

	r, size := utf8.DecodeRuneInString(ev.Key)
	if size == 0 || size != len(ev.Key) || !unicode.IsPrint(r) {
		// Modifier and navigation keys.
		return "", false
	}
	k.buf.WriteRune(r)
	k.last = ev.At
	return "", false
}

// Expire clears a stale buffer. Callers driving the keyboard from a timer use
// this instead of waiting for the next key. It reports whether anything was dropped.
func (k *Keyboard) Expire(now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.expireLocked(now)
}

func (k *Keyboard) expireLocked(now time.Time) bool {
	if k.buf.Len() == 0 || now.Sub(k.last) <= k.cfg.IdleWindow {
		return false
	}
	k.buf.Reset()
	return true
}

// Capture handles a value written straight into a scanner capture field by a
// touch or mobile scanner integration. The field is always cleared afterwards.
// Capture does not depend on SetEnabled.
func (k *Keyboard) Capture(value string) (string, bool) {
	code := strings.TrimSpace(value)
	if utf8.RuneCountInString(code) < k.cfg.CaptureMinLength {
		return "", false
	}
	return code, true
}
