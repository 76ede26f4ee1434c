package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fjacquet/statement-ingest/internal/models"
)

// MemoryRepository is a Repository held in memory, used by tests and by
// the HTTP server when no accounts file is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account

	// UpsertError, when set, is returned by Upsert.
	UpsertError error
}

// NewMemoryRepository returns a repository seeded with accounts.
func NewMemoryRepository(accounts ...models.Account) *MemoryRepository {
	m := &MemoryRepository{accounts: make(map[string]models.Account, len(accounts))}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("%s: %w", id, ErrAccountNotFound)
	}
	return a, nil
}

// List returns accounts sorted by ID.
func (m *MemoryRepository) List(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, account models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}
