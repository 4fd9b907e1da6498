package stars

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ledgerLockKey is the pg_advisory_xact_lock key that serializes ledger
// writers across every connection of every process.
const ledgerLockKey int64 = 0x5354_4152 // "STAR"

const pgUniqueViolation = "23505"

const starColumns = `id, name, owner, price::text, created_at`

type postgresStarRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresStarRepository(pool *pgxpool.Pool) StarRepository {
	return &postgresStarRepository{pool: pool}
}

func (r *postgresStarRepository) Atomically(ctx context.Context, fn func(ctx context.Context, tx StarTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	if err := fn(ctx, &postgresStarTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (r *postgresStarRepository) GetStar(ctx context.Context, id int64) (Star, error) {
	return pgGetStar(ctx, r.pool, id)
}

func (r *postgresStarRepository) ListStars(ctx context.Context, filters StarFilters, limit, offset int) ([]Star, int64, error) {
	whereClauses := []string{"TRUE"}
	args := []any{}
	argPos := 1

	if filters.Owner != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("owner = $%d", argPos))
		args = append(args, *filters.Owner)
		argPos++
	}

	if filters.ForSale != nil {
		if *filters.ForSale {
			whereClauses = append(whereClauses, "price IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "price IS NULL")
		}
	}

	whereSQL := "WHERE " + strings.Join(whereClauses, " AND ")

	query := fmt.Sprintf(`SELECT %s
              FROM stars
              %s
              ORDER BY id
              LIMIT $%d OFFSET $%d`, starColumns, whereSQL, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	starsList := make([]Star, 0)
	for rows.Next() {
		s, err := pgScanStar(rows)
		if err != nil {
			return nil, 0, err
		}
		starsList = append(starsList, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	countRow := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM stars %s", whereSQL), args...)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, err
	}

	return starsList, total, nil
}

func (r *postgresStarRepository) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return pgBalance(ctx, r.pool, account)
}

func (r *postgresStarRepository) History(ctx context.Context, starID int64) ([]Event, error) {
	query := `SELECT id, star_id, related_star_id, kind, from_account, to_account, amount::text, created_at
              FROM star_events
              WHERE star_id = $1
              ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, starID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]Event, 0)
	for rows.Next() {
		var (
			e      Event
			kind   string
			amount string
		)
		if err := rows.Scan(&e.ID, &e.StarID, &e.RelatedStarID, &kind, &e.From, &e.To, &amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse event amount: %w", err)
		}
		history = append(history, e)
	}

	return history, rows.Err()
}

type postgresStarTx struct {
	tx pgx.Tx
}

func (t *postgresStarTx) GetStar(ctx context.Context, id int64) (Star, error) {
	return pgGetStar(ctx, t.tx, id)
}

func (t *postgresStarTx) InsertStar(ctx context.Context, s Star) error {
	query := `INSERT INTO stars (id, name, owner, price, created_at)
              VALUES ($1, $2, $3, $4::numeric, $5)`

	_, err := t.tx.Exec(ctx, query, s.ID, s.Name, s.Owner, priceParam(s), s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (t *postgresStarTx) UpdateStar(ctx context.Context, s Star) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE stars SET owner = $1, price = $2::numeric WHERE id = $3`, s.Owner, priceParam(s), s.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownID
	}
	return nil
}

func (t *postgresStarTx) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return pgBalance(ctx, t.tx, account)
}

func (t *postgresStarTx) SetBalance(ctx context.Context, account string, amount decimal.Decimal) error {
	query := `INSERT INTO balances (account, amount, updated_at)
              VALUES ($1, $2::numeric, NOW())
              ON CONFLICT (account) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`
	_, err := t.tx.Exec(ctx, query, account, amount.String())
	return err
}

func (t *postgresStarTx) AppendEvent(ctx context.Context, e Event) error {
	query := `INSERT INTO star_events (id, star_id, related_star_id, kind, from_account, to_account, amount, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)`
	_, err := t.tx.Exec(ctx, query, e.ID, e.StarID, e.RelatedStarID, string(e.Kind), e.From, e.To, e.Amount.String(), e.CreatedAt)
	return err
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgGetStar(ctx context.Context, q pgQuerier, id int64) (Star, error) {
	row := q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM stars WHERE id = $1`, starColumns), id)
	s, err := pgScanStar(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Star{}, ErrUnknownID
		}
		return Star{}, err
	}
	return s, nil
}

func pgBalance(ctx context.Context, q pgQuerier, account string) (decimal.Decimal, error) {
	var amount string
	err := q.QueryRow(ctx, `SELECT amount::text FROM balances WHERE account = $1`, account).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

func pgScanStar(row pgx.Row) (Star, error) {
	var (
		s     Star
		price *string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Owner, &price, &s.CreatedAt); err != nil {
		return Star{}, err
	}
	if price != nil {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return Star{}, fmt.Errorf("parse price of star %d: %w", s.ID, err)
		}
		s.ForSale = true
		s.Price = p
	}
	return s, nil
}

// priceParam maps an unlisted star to a NULL price.
func priceParam(s Star) *string {
	if !s.ForSale {
		return nil
	}
	p := s.Price.String()
	return &p
}
