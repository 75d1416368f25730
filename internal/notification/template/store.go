// internal/notification/template/store.go
package template

import (
	"fmt"
	"sort"
	"sync"

	"booking-notifications/internal/common/errors"
)

type key struct {
	eventType string
	channel   string
}

// Store is the in-memory template registry. Reads vastly outnumber writes;
// writes happen at startup and on reload, and a reload swaps the whole map so
// renders in flight keep the snapshot they started with.
type Store struct {
	mu        sync.RWMutex
	templates map[key]*Template
}

func NewStore() *Store {
	return &Store{templates: map[key]*Template{}}
}

// Get returns the template for the event type and channel pair, or
// TEMPLATE_NOT_FOUND. There is no fallback between channels.
func (s *Store) Get(eventType, channel string) (*Template, error) {
	s.mu.RLock()
	t, ok := s.templates[key{eventType, channel}]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewTemplateNotFoundError(eventType, channel)
	}
	return t, nil
}

// Register adds a single template, replacing any previous registration for
// the same event type and channel.
func (s *Store) Register(t *Template) {
	s.mu.Lock()
	s.templates[key{t.EventType, t.Channel}] = t
	s.mu.Unlock()
}

// ReplaceAll atomically swaps the full template set. Duplicate event/channel
// pairs in the input are a configuration error and reject the whole batch,
// leaving the current set untouched.
func (s *Store) ReplaceAll(templates []*Template) error {
	next := make(map[key]*Template, len(templates))
	for _, t := range templates {
		k := key{t.EventType, t.Channel}
		if prev, ok := next[k]; ok {
			return errors.NewTemplateInvalidError(t.ID,
				fmt.Sprintf("duplicate registration for %s/%s (already registered as %s)", t.EventType, t.Channel, prev.ID))
		}
		next[k] = t
	}
	s.mu.Lock()
	s.templates = next
	s.mu.Unlock()
	return nil
}

// List returns all registered templates ordered by event type then channel.
func (s *Store) List() []*Template {
	s.mu.RLock()
	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}
