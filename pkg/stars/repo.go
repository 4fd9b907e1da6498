package stars

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateID         = errors.New("star id already exists")
	ErrUnknownID           = errors.New("star not found")
	ErrNotOwner            = errors.New("caller does not own the star")
	ErrNotListed           = errors.New("star is not for sale")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInsufficientPayment = errors.New("payment is below the asking price")
	ErrInsufficientFunds   = errors.New("balance does not cover the amount")
	ErrInvalidName         = errors.New("star name is required")
	ErrInvalidAccount      = errors.New("account is required")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrPageOutOfRange      = errors.New("page is out of range")
)

// StarRepository stores stars, balances and star history.
//
// Atomically runs fn with exclusive write access to the ledger. Writes made
// through tx become visible to other callers only if fn returns nil; any
// error discards all of them.
type StarRepository interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx StarTx) error) error

	GetStar(ctx context.Context, id int64) (Star, error)
	ListStars(ctx context.Context, filters StarFilters, limit, offset int) ([]Star, int64, error)
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	History(ctx context.Context, starID int64) ([]Event, error)
}

// StarTx is the write view handed to Atomically callbacks.
type StarTx interface {
	GetStar(ctx context.Context, id int64) (Star, error)
	InsertStar(ctx context.Context, s Star) error
	// UpdateStar persists Owner, ForSale and Price. Name is immutable.
	UpdateStar(ctx context.Context, s Star) error
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, account string, amount decimal.Decimal) error
	AppendEvent(ctx context.Context, e Event) error
}
