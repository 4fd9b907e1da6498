package stars

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type sqliteStarRepository struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStarRepository expects a database opened by db.OpenSQLite with the
// sqlite schema applied.
func NewSQLiteStarRepository(db *sql.DB) StarRepository {
	return &sqliteStarRepository{db: db}
}

func (r *sqliteStarRepository) Atomically(ctx context.Context, fn func(ctx context.Context, tx StarTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}

	if err := fn(ctx, &sqliteStarTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (r *sqliteStarRepository) GetStar(ctx context.Context, id int64) (Star, error) {
	return sqliteGetStar(ctx, r.db, id)
}

func (r *sqliteStarRepository) ListStars(ctx context.Context, filters StarFilters, limit, offset int) ([]Star, int64, error) {
	whereClauses := []string{"1 = 1"}
	args := []any{}

	if filters.Owner != nil {
		whereClauses = append(whereClauses, "owner = ?")
		args = append(args, *filters.Owner)
	}
	if filters.ForSale != nil {
		if *filters.ForSale {
			whereClauses = append(whereClauses, "price IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "price IS NULL")
		}
	}

	whereSQL := "WHERE " + strings.Join(whereClauses, " AND ")

	query := fmt.Sprintf(`SELECT id, name, owner, price, created_at FROM stars %s ORDER BY id LIMIT ? OFFSET ?`, whereSQL)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	starsList := make([]Star, 0)
	for rows.Next() {
		s, err := sqliteScanStar(rows)
		if err != nil {
			return nil, 0, err
		}
		starsList = append(starsList, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM stars %s", whereSQL), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return starsList, total, nil
}

func (r *sqliteStarRepository) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return sqliteBalance(ctx, r.db, account)
}

func (r *sqliteStarRepository) History(ctx context.Context, starID int64) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, star_id, related_star_id, kind, from_account, to_account, amount, created_at
		FROM star_events WHERE star_id = ? ORDER BY seq`, starID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]Event, 0)
	for rows.Next() {
		var (
			e                    Event
			id, kind, amount, at string
		)
		if err := rows.Scan(&id, &e.StarID, &e.RelatedStarID, &kind, &e.From, &e.To, &amount, &at); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse event amount: %w", err)
		}
		e.Kind = EventKind(kind)
		if e.CreatedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		history = append(history, e)
	}

	return history, rows.Err()
}

type sqliteStarTx struct {
	tx *sql.Tx
}

func (t *sqliteStarTx) GetStar(ctx context.Context, id int64) (Star, error) {
	return sqliteGetStar(ctx, t.tx, id)
}

func (t *sqliteStarTx) InsertStar(ctx context.Context, s Star) error {
	if _, err := t.GetStar(ctx, s.ID); err == nil {
		return ErrDuplicateID
	} else if !errors.Is(err, ErrUnknownID) {
		return err
	}

	_, err := t.tx.ExecContext(ctx, `INSERT INTO stars (id, name, owner, price, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Owner, sqlitePrice(s), formatTime(s.CreatedAt))
	return err
}

func (t *sqliteStarTx) UpdateStar(ctx context.Context, s Star) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE stars SET owner = ?, price = ? WHERE id = ?`, s.Owner, sqlitePrice(s), s.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownID
	}
	return nil
}

func (t *sqliteStarTx) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return sqliteBalance(ctx, t.tx, account)
}

func (t *sqliteStarTx) SetBalance(ctx context.Context, account string, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO balances (account, amount, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (account) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		account, amount.String(), formatTime(time.Now()))
	return err
}

func (t *sqliteStarTx) AppendEvent(ctx context.Context, e Event) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO star_events (id, star_id, related_star_id, kind, from_account, to_account, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.StarID, e.RelatedStarID, string(e.Kind), e.From, e.To, e.Amount.String(), formatTime(e.CreatedAt))
	return err
}

// sqliteQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGetStar(ctx context.Context, q sqliteQuerier, id int64) (Star, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, owner, price, created_at FROM stars WHERE id = ?`, id)
	s, err := sqliteScanStar(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Star{}, ErrUnknownID
		}
		return Star{}, err
	}
	return s, nil
}

func sqliteBalance(ctx context.Context, q sqliteQuerier, account string) (decimal.Decimal, error) {
	var amount string
	err := q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, account).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

func sqliteScanStar(scanner interface{ Scan(dest ...any) error }) (Star, error) {
	var (
		s         Star
		price     sql.NullString
		createdAt string
	)
	if err := scanner.Scan(&s.ID, &s.Name, &s.Owner, &price, &createdAt); err != nil {
		return Star{}, err
	}
	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return Star{}, fmt.Errorf("parse price of star %d: %w", s.ID, err)
		}
		s.ForSale = true
		s.Price = p
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return Star{}, fmt.Errorf("parse created_at of star %d: %w", s.ID, err)
	}
	s.CreatedAt = created
	return s, nil
}

func sqlitePrice(s Star) sql.NullString {
	if !s.ForSale {
		return sql.NullString{}
	}
	return sql.NullString{String: s.Price.String(), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
