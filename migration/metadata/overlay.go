package metadata

import (
	"sync"
)

// Overlay holds metadata writes that were recorded but not executed, so that
// later reads in the same dry run observe them. A nil value marks a deletion.
type Overlay struct {
	mu     sync.Mutex
	values map[string]*string
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{values: map[string]*string{}}
}

func (o *Overlay) set(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[key] = &value
}

func (o *Overlay) delete(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[key] = nil
}

// lookup reports the overlaid value of key. known is false when the overlay
// has no opinion about key.
func (o *Overlay) lookup(key string) (value string, found, known bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, known := o.values[key]
	if !known {
		return "", false, false
	}
	if v == nil {
		return "", false, true
	}
	return *v, true, true
}

func (o *Overlay) merge(items map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, v := range o.values {
		if v == nil {
			delete(items, key)
			continue
		}
		items[key] = *v
	}
}

// Len returns the number of overlaid keys.
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.values)
}
