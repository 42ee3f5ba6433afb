package middleware_test

import (
	"context"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// MockStore keeps the exact pointer it was given, so tests can inspect what a middleware wrote.
type MockStore struct {
	data map[string]*domain.CallState
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.CallState),
	}
}

func (s *MockStore) Save(ctx context.Context, sessionID string, state *domain.CallState) error {
	s.data[sessionID] = state
	return nil
}

func (s *MockStore) Load(ctx context.Context, sessionID string) (*domain.CallState, error) {
	state, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state, nil
}

func (s *MockStore) Delete(ctx context.Context, sessionID string) error {
	delete(s.data, sessionID)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ ports.StateStore = (*MockStore)(nil)
