package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("account exists with that email")
	// ErrInvalidCredentials covers unknown accounts, wrong passwords and
	// passwords too short to register.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type AccountRepository interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	GetAccountByUUID(ctx context.Context, uuid string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
}

type postgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &postgresAccountRepository{pool: pool}
}

func (r *postgresAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	query := `INSERT INTO accounts (uuid, name, email, password_hash, created_at)
              VALUES ($1, $2, $3, $4, NOW())
              RETURNING uuid, name, email, password_hash, created_at`
	row := r.pool.QueryRow(ctx, query, a.UUID, a.Name, a.Email, a.PasswordHash)

	var out Account
	if err := row.Scan(&out.UUID, &out.Name, &out.Email, &out.PasswordHash, &out.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return out, nil
}

func (r *postgresAccountRepository) GetAccountByUUID(ctx context.Context, uuid string) (Account, error) {
	return r.getAccount(ctx, `WHERE uuid = $1`, uuid)
}

func (r *postgresAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return r.getAccount(ctx, `WHERE email = $1`, email)
}

func (r *postgresAccountRepository) getAccount(ctx context.Context, where string, arg string) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT uuid, name, email, password_hash, created_at FROM accounts `+where, arg)

	var a Account
	if err := row.Scan(&a.UUID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}
