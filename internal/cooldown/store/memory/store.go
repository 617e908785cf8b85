package memory

import (
	"context"
	"sync"
	"time"

	"enlist/internal/cooldown/models"
	"enlist/pkg/domain"
)

// InMemoryCooldownStore keeps cooldown records in process memory. Records do
// not survive a restart, so it is meant for tests and local development.
type InMemoryCooldownStore struct {
	mu      sync.Mutex
	records map[domain.IdentityID]time.Time
}

func New() *InMemoryCooldownStore {
	return &InMemoryCooldownStore{records: make(map[domain.IdentityID]time.Time)}
}

func (s *InMemoryCooldownStore) Get(ctx context.Context, id domain.IdentityID) (*models.CooldownRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &models.CooldownRecord{IdentityID: id, LastActionAt: at}, nil
}

func (s *InMemoryCooldownStore) Set(ctx context.Context, id domain.IdentityID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(id, models.Normalize(at))
	return nil
}

func (s *InMemoryCooldownStore) Execute(ctx context.Context, id domain.IdentityID, validate func(*models.CooldownRecord) error, at time.Time) (*models.CooldownRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := &models.CooldownRecord{IdentityID: id, LastActionAt: s.records[id]}
	if err := validate(current); err != nil {
		return nil, err
	}
	s.setLocked(id, models.Normalize(at))
	return &models.CooldownRecord{IdentityID: id, LastActionAt: s.records[id]}, nil
}

func (s *InMemoryCooldownStore) setLocked(id domain.IdentityID, at time.Time) {
	if prev, ok := s.records[id]; ok && prev.After(at) {
		return
	}
	s.records[id] = at
}
