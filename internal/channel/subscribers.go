package channel

import (
	"encoding/json"
	"sync"
)

// Subscribers is the event subscription table shared by the real client and
// any fake transport: on/off/once registration plus dispatch of inbound
// frames. Safe for concurrent use.
type Subscribers struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

func NewSubscribers() *Subscribers {
	return &Subscribers{subs: make(map[string][]*Subscription)}
}

func (s *Subscribers) On(event string, fn HandlerFunc) *Subscription {
	return s.add(event, fn, false)
}

func (s *Subscribers) Once(event string, fn HandlerFunc) *Subscription {
	return s.add(event, fn, true)
}

func (s *Subscribers) add(event string, fn HandlerFunc, once bool) *Subscription {
	sub := &Subscription{event: event, fn: fn, once: once}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[event] = append(s.subs[event], sub)

	return sub
}

// Off removes a subscription. Removing one that already fired (or was never
// registered) is a no-op, so cancelling the losers of a race is always safe.
func (s *Subscribers) Off(sub *Subscription) {
	if sub == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sub)
}

func (s *Subscribers) removeLocked(sub *Subscription) {
	list := s.subs[sub.event]
	for i, candidate := range list {
		if candidate == sub {
			s.subs[sub.event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for event, in registration
// order. Handlers registered with Once are removed before they run, so a
// second frame arriving mid-dispatch cannot fire them twice. Returns whether
// any handler was invoked.
func (s *Subscribers) Dispatch(event string, payload json.RawMessage) bool {
	s.mu.Lock()
	list := s.subs[event]
	fns := make([]HandlerFunc, 0, len(list))
	for _, sub := range list {
		fns = append(fns, sub.fn)
	}
	for _, sub := range list {
		if sub.once {
			s.removeLocked(sub)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}

	return len(fns) > 0
}
