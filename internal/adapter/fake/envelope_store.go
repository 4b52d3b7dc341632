package fake

import (
	"sync"

	"vulnlab/internal/cache"
)

var _ cache.EnvelopeStore = (*EnvelopeStore)(nil)

// EnvelopeStore is an in-memory cache.EnvelopeStore.
type EnvelopeStore struct {
	CallRecorder
	mu        sync.Mutex
	envelopes map[string]cache.Envelope

	LoadErr   func(root string) error
	StoreErr  func(env cache.Envelope) error
	DeleteErr func(root string) error
}

// NewEnvelopeStore creates an empty store.
func NewEnvelopeStore() *EnvelopeStore {
	return &EnvelopeStore{envelopes: make(map[string]cache.Envelope)}
}

func (s *EnvelopeStore) Load(root string) (cache.Envelope, bool, error) {
	s.record("Load", root)
	if s.LoadErr != nil {
		if err := s.LoadErr(root); err != nil {
			return cache.Envelope{}, false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[root]
	return env, ok, nil
}

func (s *EnvelopeStore) Store(env cache.Envelope) error {
	s.record("Store", env.Root)
	if s.StoreErr != nil {
		if err := s.StoreErr(env); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envelopes[env.Root] = env
	return nil
}

func (s *EnvelopeStore) Delete(root string) error {
	s.record("Delete", root)
	if s.DeleteErr != nil {
		if err := s.DeleteErr(root); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.envelopes, root)
	return nil
}
