package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 24 * time.Hour

// Session is a key/value session backed by a Store. Changes are buffered in
// memory until Commit.
type Session struct {
	mu        sync.Mutex
	store     Store
	ttl       time.Duration
	id        string
	createdAt time.Time
	values    map[string]any
	dirty     bool
	persisted bool
}

// Open loads the session with id from store, or starts an empty one.
// A zero ttl uses DefaultTTL.
func Open(ctx context.Context, store Store, id string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Session{
		store:     store,
		ttl:       ttl,
		id:        id,
		createdAt: time.Now(),
		values:    make(map[string]any),
	}

	data, err := store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	if data == nil {
		return s, nil
	}

	ss, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	s.createdAt = ss.CreatedAt
	for k, raw := range ss.Values {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("session: decode %s value %q: %w", id, k, err)
		}
		s.values[k] = v
	}
	s.persisted = true
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Get returns the value stored under key, or nil. Values loaded from a store
// come back in their JSON form: numbers are float64.
func (s *Session) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Int returns the value under key as an int.
func (s *Session) Int(key string) int {
	switch v := s.Get(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Commit writes buffered changes to the store. An unchanged session only has
// its expiry extended. Committing twice without changes in between is safe.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	if !s.dirty {
		if !s.persisted {
			return nil
		}
		return s.store.Touch(ctx, s.id, expiresAt)
	}

	ss := &SerializableSession{
		ID:         s.id,
		CreatedAt:  s.createdAt,
		LastActive: now,
		Values:     make(map[string]json.RawMessage, len(s.values)),
	}
	for k, v := range s.values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("session: encode %s value %q: %w", s.id, k, err)
		}
		ss.Values[k] = raw
	}
	data, err := Serialize(ss)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.id, data, expiresAt); err != nil {
		return err
	}
	s.dirty = false
	s.persisted = true
	return nil
}
