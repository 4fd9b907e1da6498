package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type AccountService interface {
	Register(ctx context.Context, name, email, password string) (Account, error)
	Authenticate(ctx context.Context, uuid, password string) (Account, error)
	GetAccount(ctx context.Context, uuid string) (Account, error)
}

type accountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) AccountService {
	return &accountService{repo: repo}
}

func (s *accountService) Register(ctx context.Context, name, email, password string) (Account, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || len(password) < minPasswordLength {
		return Account{}, ErrInvalidCredentials
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	return s.repo.CreateAccount(ctx, Account{
		UUID:         uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hashBytes),
	})
}

func (s *accountService) Authenticate(ctx context.Context, uuid, password string) (Account, error) {
	a, err := s.repo.GetAccountByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return a, nil
}

func (s *accountService) GetAccount(ctx context.Context, uuid string) (Account, error) {
	return s.repo.GetAccountByUUID(ctx, uuid)
}
