package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type sqliteAccountRepository struct {
	db *sql.DB
}

func NewSQLiteAccountRepository(db *sql.DB) AccountRepository {
	return &sqliteAccountRepository{db: db}
}

func (r *sqliteAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	a.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (uuid, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.UUID, a.Name, a.Email, a.PasswordHash, a.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *sqliteAccountRepository) GetAccountByUUID(ctx context.Context, uuid string) (Account, error) {
	return r.getAccount(ctx, `WHERE uuid = ?`, uuid)
}

func (r *sqliteAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return r.getAccount(ctx, `WHERE email = ?`, email)
}

func (r *sqliteAccountRepository) getAccount(ctx context.Context, where string, arg string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT uuid, name, email, password_hash, created_at FROM accounts `+where, arg)

	var (
		a         Account
		createdAt string
	)
	if err := row.Scan(&a.UUID, &a.Name, &a.Email, &a.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Account{}, fmt.Errorf("parse created_at of account %s: %w", a.UUID, err)
	}
	a.CreatedAt = created
	return a, nil
}
