// Package container provides the small bounded data structures used by
// book reconstruction and trade de-duplication.
package container

import "container/list"

// CappedSet is a bounded set of string keys ordered by recency. Adding or
// touching a key moves it to the front; when capacity is exceeded the least
// recently seen key is evicted.
type CappedSet struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// NewCappedSet creates a set holding at most capacity keys. A capacity
// below 1 is treated as 1.
func NewCappedSet(capacity int) *CappedSet {
	if capacity < 1 {
		capacity = 1
	}
	return &CappedSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Has reports whether key is currently in the set.
func (s *CappedSet) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Add inserts key as the most recent entry, evicting the oldest entry when
// the set is full. Adding an existing key only refreshes its recency.
func (s *CappedSet) Add(key string) {
	if el, ok := s.index[key]; ok {
		s.order.MoveToFront(el)
		return
	}
	if s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.index, oldest.Value.(string))
		}
	}
	s.index[key] = s.order.PushFront(key)
}

// Remove deletes key from the set if present.
func (s *CappedSet) Remove(key string) {
	if el, ok := s.index[key]; ok {
		s.order.Remove(el)
		delete(s.index, key)
	}
}

// Len returns the number of keys currently held.
func (s *CappedSet) Len() int { return s.order.Len() }
