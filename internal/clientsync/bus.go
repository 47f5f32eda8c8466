package clientsync

import "sync"

// Listener receives the raw stored value written under key.
type Listener func(key string, value []byte)

// Bus is a synchronous in-process bus with at most one listener per key.
type Bus struct {
	mu        sync.Mutex
	listeners map[string]Listener
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string]Listener)}
}

// Subscribe registers fn for key, replacing any previous listener.
func (b *Bus) Subscribe(key string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[key] = fn
}

func (b *Bus) Unsubscribe(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, key)
}

func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.listeners)
}

// Publish invokes the listener for key, if any, outside the lock.
func (b *Bus) Publish(key string, value []byte) {
	b.mu.Lock()
	fn := b.listeners[key]
	b.mu.Unlock()

	if fn != nil {
		fn(key, value)
	}
}
