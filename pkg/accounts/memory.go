package accounts

import (
	"context"
	"sync"
	"time"
)

type memoryAccountRepository struct {
	mu      sync.RWMutex
	byUUID  map[string]Account
	byEmail map[string]string
}

func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		byUUID:  make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (r *memoryAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[a.Email]; taken {
		return Account{}, ErrEmailTaken
	}
	a.CreatedAt = time.Now().UTC()
	r.byUUID[a.UUID] = a
	r.byEmail[a.Email] = a.UUID
	return a, nil
}

func (r *memoryAccountRepository) GetAccountByUUID(ctx context.Context, uuid string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byUUID[uuid]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.byUUID[id], nil
}
