package scan

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// debouncer drops a barcode that was already accepted within the cooldown.
// Each entry holds the deadline on the controller's clock; go-cache only
// sweeps stale entries.
type debouncer struct {
	cooldown time.Duration
	seen     *cache.Cache
}

func newDebouncer(cooldown time.Duration) *debouncer {
	d := &debouncer{cooldown: cooldown}
	if cooldown > 0 {
		d.seen = cache.New(cache.NoExpiration, 10*cooldown)
	}
	return d
}

// accept reports whether barcode may be processed at now and, if so, starts its cooldown.
func (d *debouncer) accept(barcode string, now time.Time) bool {
	if d.seen == nil {
		return true
	}
	if v, ok := d.seen.Get(barcode); ok {
		if until, ok := v.(time.Time); ok && now.Before(until) {
			return false
		}
	}
	d.seen.Set(barcode, now.Add(d.cooldown), 10*d.cooldown)
	return true
}

func (d *debouncer) reset() {
	if d.seen != nil {
		d.seen.Flush()
	}
}
