// Package service validates operation input and orchestrates repository
// calls. It keeps no persistence logic of its own; failures from below are
// propagated with their kind intact so the transport layer can map them.
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gfranzoni/accountledger/internal/domain"
	"github.com/gfranzoni/accountledger/internal/validate"
)

// Repository is the persistence surface the service depends on.
type Repository interface {
	Create(ctx context.Context, name, email string) (*domain.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]domain.Account, int, error)
	Update(ctx context.Context, id uuid.UUID, name, email string) (*domain.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string) (*domain.Account, error)
	Withdraw(ctx context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string) (*domain.Account, error)
	OperationHistory(ctx context.Context, id uuid.UUID, limit, offset int) ([]domain.Operation, int, error)
}

type AccountService struct {
	repo Repository
}

func NewAccountService(repo Repository) *AccountService {
	return &AccountService{repo: repo}
}

func (s *AccountService) Create(ctx context.Context, req validate.AccountRequest) (*domain.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, req.Name, req.Email)
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *AccountService) List(ctx context.Context, page validate.PageRequest) ([]domain.Account, int, error) {
	limit, offset := page.Normalize()
	return s.repo.List(ctx, limit, offset)
}

func (s *AccountService) Update(ctx context.Context, id uuid.UUID, req validate.AccountRequest) (*domain.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, req.Name, req.Email)
}

func (s *AccountService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Deposit credits the validated amount. Validation failures never reach the
// repository.
func (s *AccountService) Deposit(ctx context.Context, id uuid.UUID, req validate.OperationRequest, idemKey string) (*domain.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Deposit(ctx, id, req.Amount, idemKey)
}

// Withdraw debits the validated amount. ErrInsufficientFunds surfaces
// distinctly from ErrAccountNotFound and from generic failures.
func (s *AccountService) Withdraw(ctx context.Context, id uuid.UUID, req validate.OperationRequest, idemKey string) (*domain.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Withdraw(ctx, id, req.Amount, idemKey)
}

func (s *AccountService) History(ctx context.Context, id uuid.UUID, page validate.PageRequest) ([]domain.Operation, int, error) {
	limit, offset := page.Normalize()
	return s.repo.OperationHistory(ctx, id, limit, offset)
}
