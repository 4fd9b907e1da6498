package stars

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxPageSize caps the limit of a ListStars page.
const MaxPageSize = 100

type StarService interface {
	CreateStar(ctx context.Context, name string, id int64, creator string) (Star, error)
	PutUpForSale(ctx context.Context, id int64, price decimal.Decimal, caller string) (Star, error)
	BuyStar(ctx context.Context, id int64, caller string, payment decimal.Decimal) (Receipt, error)
	ExchangeStars(ctx context.Context, idA, idB int64, caller string) error
	TransferStar(ctx context.Context, to string, id int64, caller string) (Star, error)

	LookupName(ctx context.Context, id int64) (string, error)
	OwnerOf(ctx context.Context, id int64) (string, error)
	GetStar(ctx context.Context, id int64) (Star, error)
	ListStars(ctx context.Context, filters StarFilters, page, limit int) ([]Star, int64, error)
	History(ctx context.Context, id int64) ([]Event, error)

	Deposit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error)
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
}

// Notifier receives the events of every committed ledger mutation.
type Notifier interface {
	Publish(ctx context.Context, events []Event)
}

type starService struct {
	repo     StarRepository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewStarService wires the ledger rules on top of repo. notifier may be nil.
func NewStarService(repo StarRepository, notifier Notifier, logger *zap.Logger) StarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &starService{
		repo:     repo,
		notifier: notifier,
		logger:   logger.Named("stars"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *starService) CreateStar(ctx context.Context, name string, id int64, creator string) (Star, error) {
	if strings.TrimSpace(name) == "" {
		return Star{}, ErrInvalidName
	}
	if strings.TrimSpace(creator) == "" {
		return Star{}, ErrInvalidAccount
	}

	star := Star{ID: id, Name: name, Owner: creator, CreatedAt: s.now()}
	var events []Event

	err := s.repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
		if err := tx.InsertStar(ctx, star); err != nil {
			return err
		}
		events = append(events, s.event(id, EventCreated, "", creator, decimal.Zero))
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return Star{}, err
	}

	s.committed(ctx, events)
	return star, nil
}

func (s *starService) PutUpForSale(ctx context.Context, id int64, price decimal.Decimal, caller string) (Star, error) {
	var (
		listed Star
		events []Event
	)

	err := s.repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
		star, err := ownedBy(ctx, tx, id, caller)
		if err != nil {
			return err
		}
		if !price.IsPositive() {
			return ErrInvalidPrice
		}

		star.ForSale = true
		star.Price = price
		if err := tx.UpdateStar(ctx, star); err != nil {
			return err
		}
		listed = star
		events = append(events, s.event(id, EventListed, caller, "", price))
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return Star{}, err
	}

	s.committed(ctx, events)
	return listed, nil
}

func (s *starService) BuyStar(ctx context.Context, id int64, caller string, payment decimal.Decimal) (Receipt, error) {
	if strings.TrimSpace(caller) == "" {
		return Receipt{}, ErrInvalidAccount
	}

	var (
		receipt Receipt
		events  []Event
	)

	err := s.repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
		star, err := tx.GetStar(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUnknownID) {
				return ErrNotListed
			}
			return err
		}
		if !star.ForSale {
			return ErrNotListed
		}
		if payment.LessThan(star.Price) {
			return ErrInsufficientPayment
		}

		held, err := tx.Balance(ctx, caller)
		if err != nil {
			return err
		}
		if held.LessThan(payment) {
			return ErrInsufficientFunds
		}

		seller, price := star.Owner, star.Price
		if err := tx.SetBalance(ctx, caller, held.Sub(price)); err != nil {
			return err
		}
		sellerBalance, err := tx.Balance(ctx, seller)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, seller, sellerBalance.Add(price)); err != nil {
			return err
		}

		star.Owner = caller
		star.ForSale = false
		star.Price = decimal.Zero
		if err := tx.UpdateStar(ctx, star); err != nil {
			return err
		}

		receipt = Receipt{
			StarID:   id,
			Seller:   seller,
			Buyer:    caller,
			Price:    price,
			Tendered: payment,
			Refund:   payment.Sub(price),
		}
		events = append(events, s.event(id, EventSold, seller, caller, price))
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return Receipt{}, err
	}

	s.committed(ctx, events)
	return receipt, nil
}

func (s *starService) ExchangeStars(ctx context.Context, idA, idB int64, caller string) error {
	var events []Event

	err := s.repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
		starA, err := ownedBy(ctx, tx, idA, caller)
		if err != nil {
			return err
		}
		if idA == idB {
			return nil
		}
		starB, err := tx.GetStar(ctx, idB)
		if err != nil {
			return err
		}

		ownerA, ownerB := starA.Owner, starB.Owner
		starA.Owner, starB.Owner = ownerB, ownerA
		for _, star := range []Star{starA, starB} {
			star.ForSale = false
			star.Price = decimal.Zero
			if err := tx.UpdateStar(ctx, star); err != nil {
				return err
			}
		}

		a := s.event(idA, EventExchanged, ownerA, ownerB, decimal.Zero)
		a.RelatedStarID = idB
		b := s.event(idB, EventExchanged, ownerB, ownerA, decimal.Zero)
		b.RelatedStarID = idA
		events = append(events, a, b)
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}

	s.committed(ctx, events)
	return nil
}

func (s *starService) TransferStar(ctx context.Context, to string, id int64, caller string) (Star, error) {
	if strings.TrimSpace(to) == "" {
		return Star{}, ErrInvalidAccount
	}

	var (
		moved  Star
		events []Event
	)

	err := s.repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
		star, err := ownedBy(ctx, tx, id, caller)
		if err != nil {
			return err
		}

		star.Owner = to
		star.ForSale = false
		star.Price = decimal.Zero
		if err := tx.UpdateStar(ctx, star); err != nil {
			return err
		}
		moved = star
		events = append(events, s.event(id, EventTransferred, caller, to, decimal.Zero))
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return Star{}, err
	}

	s.committed(ctx, events)
	return moved, nil
}

func (s *starService) LookupName(ctx context.Context, id int64) (string, error) {
	star, err := s.repo.GetStar(ctx, id)
	if err != nil {
		return "", err
	}
	return star.Name, nil
}

func (s *starService) OwnerOf(ctx context.Context, id int64) (string, error) {
	star, err := s.repo.GetStar(ctx, id)
	if err != nil {
		return "", err
	}
	return star.Owner, nil
}

func (s *starService) GetStar(ctx context.Context, id int64) (Star, error) {
	return s.repo.GetStar(ctx, id)
}

func (s *starService) ListStars(ctx context.Context, filters StarFilters, page, limit int) ([]Star, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	// offset+limit must fit in an int
	if page-1 > (math.MaxInt-limit)/limit {
		return nil, 0, ErrPageOutOfRange
	}
	offset := (page - 1) * limit
	return s.repo.ListStars(ctx, filters, limit, offset)
}

func (s *starService) History(ctx context.Context, id int64) ([]Event, error) {
	if _, err := s.repo.GetStar(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func (s *starService) Deposit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.adjustBalance(ctx, account, amount)
}

func (s *starService) Withdraw(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.adjustBalance(ctx, account, amount.Neg())
}

func (s *starService) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.repo.Balance(ctx, account)
}

// adjustBalance adds delta (which may be negative) to account's balance.
func (s *starService) adjustBalance(ctx context.Context, account string, delta decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(account) == "" {
		return decimal.Zero, ErrInvalidAccount
	}

	var updated decimal.Decimal
	err := s.repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
		held, err := tx.Balance(ctx, account)
		if err != nil {
			return err
		}
		updated = held.Add(delta)
		if updated.IsNegative() {
			return ErrInsufficientFunds
		}
		return tx.SetBalance(ctx, account, updated)
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("balance adjusted",
		zap.String("account", account),
		zap.String("delta", delta.String()),
		zap.String("balance", updated.String()))
	return updated, nil
}

func (s *starService) event(starID int64, kind EventKind, from, to string, amount decimal.Decimal) Event {
	return Event{
		ID:        uuid.New(),
		StarID:    starID,
		Kind:      kind,
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: s.now(),
	}
}

// committed logs and publishes events once their transaction is durable.
func (s *starService) committed(ctx context.Context, events []Event) {
	for _, e := range events {
		s.logger.Info("star "+string(e.Kind),
			zap.Int64("star_id", e.StarID),
			zap.String("from", e.From),
			zap.String("to", e.To),
			zap.String("amount", e.Amount.String()))
	}
	if s.notifier != nil && len(events) > 0 {
		s.notifier.Publish(ctx, events)
	}
}

// ownedBy loads id and checks caller owns it. Unknown ids have no owner, so
// they fail the same way.
func ownedBy(ctx context.Context, tx StarTx, id int64, caller string) (Star, error) {
	star, err := tx.GetStar(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnknownID) {
			return Star{}, ErrNotOwner
		}
		return Star{}, err
	}
	if caller == "" || star.Owner != caller {
		return Star{}, ErrNotOwner
	}
	return star, nil
}

func appendEvents(ctx context.Context, tx StarTx, events []Event) error {
	for _, e := range events {
		if err := tx.AppendEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
