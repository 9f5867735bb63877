package observable

import "sync"

// Value holds a single observed value of type T with subscribe/notify
// semantics. The zero-value-vs-unknown distinction is explicit: Get reports
// whether the value has ever been set, and Clear returns the holder to the
// known-empty state (known, but absent) rather than unknown.
type Value[T any] struct {
	mu      sync.RWMutex
	val     T
	present bool
	known   bool
	subs    map[int]chan Update[T]
	nextID  int
}

// Update is the snapshot delivered to subscribers on every change.
type Update[T any] struct {
	Value   T
	Present bool
}

// NewValue creates an empty holder in the unknown state.
func NewValue[T any]() *Value[T] {
	return &Value[T]{subs: make(map[int]chan Update[T])}
}

// Get returns the current value and whether one is present. The second return
// is false both while the value is unknown and after Clear.
func (v *Value[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.present
}

// Known reports whether the holder has left the initial "still loading" state.
func (v *Value[T]) Known() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.known
}

// Set publishes a new value and notifies subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.val = val
	v.present = true
	v.known = true
	v.notify(Update[T]{Value: val, Present: true})
}

// Clear marks the value as known-absent and notifies subscribers.
func (v *Value[T]) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	v.val = zero
	v.present = false
	v.known = true
	v.notify(Update[T]{})
}

// Subscribe registers for updates. The returned cancel function releases the
// subscription and closes the channel; it is safe to call more than once.
func (v *Value[T]) Subscribe() (<-chan Update[T], func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	ch := make(chan Update[T], 8)
	v.subs[id] = ch
	v.mu.Unlock()

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// notify delivers without blocking; a full subscriber buffer drops the update.
// Callers must hold v.mu, which also serializes delivery against cancel.
func (v *Value[T]) notify(update Update[T]) {
	for _, ch := range v.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
