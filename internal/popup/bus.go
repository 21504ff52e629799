package popup

import (
	"sync"
)

// Message is what the redirect landing page posts back to the application.
type Message struct {
	// Origin is the origin of the page that posted the message, as reported
	// by the transport. Flows only trust the application origin.
	Origin string `json:"-"`

	Type        string `json:"type"`
	AccessToken string `json:"accessToken,omitempty"`
	Scope       string `json:"scope,omitempty"`
	// ExpiresIn is the token lifetime in seconds, 0 when not reported.
	ExpiresIn        int    `json:"expiresIn,omitempty"`
	State            string `json:"state,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
}

// Bus fans messages out to subscribers. Handlers run synchronously on the
// posting goroutine and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(Message)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func(Message))}
}

// Subscribe registers fn and returns a function removing it. The returned
// function is safe to call more than once.
func (b *Bus) Subscribe(fn func(Message)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Post delivers m to every current subscriber.
func (b *Bus) Post(m Message) {
	b.mu.RLock()
	handlers := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(m)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
