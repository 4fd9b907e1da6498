package stars

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

type memoryStarRepository struct {
	mu       sync.RWMutex
	stars    map[int64]Star
	balances map[string]decimal.Decimal
	events   []Event
}

// NewMemoryStarRepository returns a repository that keeps the whole ledger in
// process memory.
func NewMemoryStarRepository() StarRepository {
	return &memoryStarRepository{
		stars:    make(map[int64]Star),
		balances: make(map[string]decimal.Decimal),
	}
}

func (r *memoryStarRepository) Atomically(ctx context.Context, fn func(ctx context.Context, tx StarTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{
		repo:     r,
		stars:    make(map[int64]Star),
		balances: make(map[string]decimal.Decimal),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, s := range tx.stars {
		r.stars[id] = s
	}
	for account, amount := range tx.balances {
		r.balances[account] = amount
	}
	r.events = append(r.events, tx.events...)
	return nil
}

func (r *memoryStarRepository) GetStar(ctx context.Context, id int64) (Star, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stars[id]
	if !ok {
		return Star{}, ErrUnknownID
	}
	return s, nil
}

func (r *memoryStarRepository) ListStars(ctx context.Context, filters StarFilters, limit, offset int) ([]Star, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Star, 0)
	for _, s := range r.stars {
		if filters.Owner != nil && s.Owner != *filters.Owner {
			continue
		}
		if filters.ForSale != nil && s.ForSale != *filters.ForSale {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) || limit <= 0 {
		return []Star{}, total, nil
	}
	end := len(matched)
	if limit < end-offset {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (r *memoryStarRepository) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.balances[account], nil
}

func (r *memoryStarRepository) History(ctx context.Context, starID int64) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := make([]Event, 0)
	for _, e := range r.events {
		if e.StarID == starID {
			history = append(history, e)
		}
	}
	return history, nil
}

// memoryTx buffers writes until Atomically merges them into the repository.
type memoryTx struct {
	repo     *memoryStarRepository
	stars    map[int64]Star
	balances map[string]decimal.Decimal
	events   []Event
}

func (tx *memoryTx) GetStar(ctx context.Context, id int64) (Star, error) {
	if s, ok := tx.stars[id]; ok {
		return s, nil
	}
	if s, ok := tx.repo.stars[id]; ok {
		return s, nil
	}
	return Star{}, ErrUnknownID
}

func (tx *memoryTx) InsertStar(ctx context.Context, s Star) error {
	if _, err := tx.GetStar(ctx, s.ID); err == nil {
		return ErrDuplicateID
	}
	tx.stars[s.ID] = s
	return nil
}

func (tx *memoryTx) UpdateStar(ctx context.Context, s Star) error {
	current, err := tx.GetStar(ctx, s.ID)
	if err != nil {
		return err
	}
	current.Owner = s.Owner
	current.ForSale = s.ForSale
	current.Price = s.Price
	tx.stars[s.ID] = current
	return nil
}

func (tx *memoryTx) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	if amount, ok := tx.balances[account]; ok {
		return amount, nil
	}
	return tx.repo.balances[account], nil
}

func (tx *memoryTx) SetBalance(ctx context.Context, account string, amount decimal.Decimal) error {
	tx.balances[account] = amount
	return nil
}

func (tx *memoryTx) AppendEvent(ctx context.Context, e Event) error {
	tx.events = append(tx.events, e)
	return nil
}
