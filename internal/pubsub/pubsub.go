// Package pubsub provides a typed, synchronous subscription registry.
package pubsub

import "sync"

// Token identifies one subscription.
type Token uint64

// Registry delivers events of type E to its subscribers in registration order.
//
// Publish runs every handler on the calling goroutine before returning.
// Handlers are invoked without the registry lock held, so a handler may
// subscribe, unsubscribe or publish again. A handler removed during a publish
// still receives that event if it was registered when the publish began.
type Registry[E any] struct {
	mu       sync.Mutex
	next     Token
	handlers []subscription[E]
}

type subscription[E any] struct {
	token Token
	fn    func(E)
}

// Subscribe registers fn and returns the token that removes it.
func (r *Registry[E]) Subscribe(fn func(E)) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.handlers = append(r.handlers, subscription[E]{token: r.next, fn: fn})
	return r.next
}

// Unsubscribe removes the subscription. It reports false for an unknown or
// already removed token.
func (r *Registry[E]) Unsubscribe(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.handlers {
		if s.token == token {
			// Copy so that an in-progress Publish keeps its own view.
			handlers := make([]subscription[E], 0, len(r.handlers)-1)
			handlers = append(handlers, r.handlers[:i]...)
			r.handlers = append(handlers, r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish calls every current subscriber with ev, in order.
func (r *Registry[E]) Publish(ev E) {
	r.mu.Lock()
	handlers := r.handlers
	r.mu.Unlock()

	for _, s := range handlers {
		s.fn(ev)
	}
}

// Len returns the number of subscribers.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Clear removes every subscriber.
func (r *Registry[E]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}
