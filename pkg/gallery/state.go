// Package gallery coordinates the paginated cat gallery: the shared list state
// read by every view and the controller that keeps it in sync with TheCatAPI.
package gallery

import (
	"sync"

	"github.com/Sternrassler/cat-gallery/pkg/catapi"
)

// State holds the current page's cats and the selected cat.
// It is created by the owner of the view tree and handed to the controller
// and the views; setters are the only mutation path.
//
// Subscribers are notified after every change. Notifications coalesce:
// a slow subscriber sees one pending signal, never a backlog.
type State struct {
	mu          sync.RWMutex
	cats        []catapi.Cat
	current     *catapi.Cat
	version     uint64
	subscribers map[int64]chan struct{}
	nextSubID   int64
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		cats:        []catapi.Cat{},
		subscribers: make(map[int64]chan struct{}),
	}
}

// Cats returns a copy of the current page's cats.
func (s *State) Cats() []catapi.Cat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]catapi.Cat{}, s.cats...)
}

// Len returns the number of cats on the current page.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cats)
}

// SetCats replaces the current page's cats.
func (s *State) SetCats(cats []catapi.Cat) {
	s.mu.Lock()
	s.cats = append([]catapi.Cat{}, cats...)
	s.version++
	s.mu.Unlock()
	s.notify()
}

// Current returns the selected cat, if any.
func (s *State) Current() (catapi.Cat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return catapi.Cat{}, false
	}
	return *s.current, true
}

// SetCurrent sets the selection; nil clears it.
func (s *State) SetCurrent(cat *catapi.Cat) {
	s.mu.Lock()
	if cat == nil {
		s.current = nil
	} else {
		selected := *cat
		s.current = &selected
	}
	s.version++
	s.mu.Unlock()
	s.notify()
}

// Select sets the selection to cat.
func (s *State) Select(cat catapi.Cat) {
	s.SetCurrent(&cat)
}

// ClearSelection removes the selection.
func (s *State) ClearSelection() {
	s.SetCurrent(nil)
}

// Version increases with every change.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe returns a channel signalled after every change, and a cancel func.
// Cancel closes the channel.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// notify sends under the read lock so a cancel cannot close a channel mid-send.
func (s *State) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
