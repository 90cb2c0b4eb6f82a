package messenger

import (
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// listenerSet is the registry of event listeners shared by the targets in
// this package.
type listenerSet struct {
	listeners cmap.ConcurrentMap[string, EventListener]
	nextID    atomic.Uint64
}

func newListenerSet() *listenerSet {
	return &listenerSet{listeners: cmap.New[EventListener]()}
}

func (s *listenerSet) add(l EventListener) func() {
	id := strconv.FormatUint(s.nextID.Add(1), 10)
	s.listeners.Set(id, l)
	return func() {
		s.listeners.Remove(id)
	}
}

func (s *listenerSet) len() int {
	return s.listeners.Count()
}

// snapshot copies the current listeners so callbacks never run while the
// map is locked.
func (s *listenerSet) snapshot() []EventListener {
	items := s.listeners.Items()
	out := make([]EventListener, 0, len(items))
	for _, l := range items {
		out = append(out, l)
	}
	return out
}

// drain removes every listener and returns the removed set.
func (s *listenerSet) drain() []EventListener {
	var out []EventListener
	for _, key := range s.listeners.Keys() {
		if l, ok := s.listeners.Pop(key); ok {
			out = append(out, l)
		}
	}
	return out
}

func (s *listenerSet) dispatch(ev MessageEvent) {
	for _, l := range s.snapshot() {
		l.message(ev)
	}
}
