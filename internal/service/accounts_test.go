package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gfranzoni/accountledger/internal/domain"
	"github.com/gfranzoni/accountledger/internal/validate"
)

// fakeRepo is an in-memory Repository that mirrors the real one's error
// contract. A single mutex stands in for the database row lock.
type fakeRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	ops      map[uuid.UUID][]domain.Operation
	keys     map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts: make(map[uuid.UUID]*domain.Account),
		ops:      make(map[uuid.UUID][]domain.Operation),
		keys:     make(map[string]bool),
	}
}

func (f *fakeRepo) Create(_ context.Context, name, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			return nil, domain.ErrEmailTaken
		}
	}
	a := &domain.Account{ID: uuid.New(), Name: name, Email: email, Balance: decimal.Zero}
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, limit, offset int) ([]domain.Account, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]domain.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeRepo) Update(_ context.Context, id uuid.UUID, name, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	a.Name, a.Email = name, email
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(f.accounts, id)
	delete(f.ops, id)
	return nil
}

func (f *fakeRepo) mutate(id uuid.UUID, amount decimal.Decimal, idemKey string, opType domain.OperationType) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idemKey != "" && f.keys[idemKey] {
		a, ok := f.accounts[id]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		cp := *a
		return &cp, nil
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	before := a.Balance
	switch opType {
	case domain.OperationDeposit:
		a.Balance = domain.AfterDeposit(a.Balance, amount)
	case domain.OperationWithdrawal:
		if !domain.SufficientFunds(a.Balance, amount) {
			return nil, domain.ErrInsufficientFunds
		}
		a.Balance = domain.AfterWithdrawal(a.Balance, amount)
	}
	f.ops[id] = append(f.ops[id], domain.Operation{
		ID: uuid.New(), AccountID: id, Type: opType, Amount: amount,
		BalanceBefore: before, BalanceAfter: a.Balance,
		IdempotencyKey: idemKey, Status: domain.OperationConcluded,
	})
	if idemKey != "" {
		f.keys[idemKey] = true
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) Deposit(_ context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string) (*domain.Account, error) {
	return f.mutate(id, amount, idemKey, domain.OperationDeposit)
}

func (f *fakeRepo) Withdraw(_ context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string) (*domain.Account, error) {
	return f.mutate(id, amount, idemKey, domain.OperationWithdrawal)
}

func (f *fakeRepo) OperationHistory(_ context.Context, id uuid.UUID, limit, offset int) ([]domain.Operation, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return nil, 0, domain.ErrAccountNotFound
	}
	ops := f.ops[id]
	// Newest first.
	rev := make([]domain.Operation, len(ops))
	for i, op := range ops {
		rev[len(ops)-1-i] = op
	}
	total := len(rev)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return rev[offset:end], total, nil
}

func opReq(t *testing.T, amount string) validate.OperationRequest {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatal(err)
	}
	return validate.OperationRequest{Amount: d}
}

func TestDepositValidationNeverReachesRepository(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAccountService(repo)
	a, _ := repo.Create(context.Background(), "Holder", "h@example.com")

	for _, bad := range []string{"0", "-10.00", "1.999"} {
		_, err := svc.Deposit(context.Background(), a.ID, opReq(t, bad), "")
		var v *domain.ValidationError
		if !errors.As(err, &v) {
			t.Fatalf("amount %s: want ValidationError, got %v", bad, err)
		}
	}
	if len(repo.ops[a.ID]) != 0 {
		t.Fatal("invalid amounts must not reach the repository")
	}
}

func TestWithdrawErrorKinds(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAccountService(repo)
	ctx := context.Background()
	a, _ := repo.Create(ctx, "Holder", "h@example.com")
	if _, err := svc.Deposit(ctx, a.ID, opReq(t, "50.00"), ""); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Withdraw(ctx, a.ID, opReq(t, "60.00"), "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	_, err = svc.Withdraw(ctx, uuid.New(), opReq(t, "10.00"), "")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestDepositThenWithdraw(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAccountService(repo)
	ctx := context.Background()
	a, _ := repo.Create(ctx, "Holder", "h@example.com")

	if _, err := svc.Deposit(ctx, a.ID, opReq(t, "1000.00"), ""); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Withdraw(ctx, a.ID, opReq(t, "400.00"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance.String() != "600" {
		t.Fatalf("balance = %s, want 600", got.Balance)
	}

	ops, total, err := svc.History(ctx, a.ID, validate.PageRequest{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || ops[0].Type != domain.OperationWithdrawal {
		t.Fatalf("history total=%d first=%v", total, ops[0].Type)
	}
}

func TestIdempotentDepositThroughService(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAccountService(repo)
	ctx := context.Background()
	a, _ := repo.Create(ctx, "Holder", "h@example.com")

	key := "retry-key-1"
	if _, err := svc.Deposit(ctx, a.ID, opReq(t, "100.00"), key); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Deposit(ctx, a.ID, opReq(t, "100.00"), key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance.String() != "100" {
		t.Fatalf("balance after replay = %s, want 100", got.Balance)
	}
	if len(repo.ops[a.ID]) != 1 {
		t.Fatalf("%d operations recorded, want 1", len(repo.ops[a.ID]))
	}
}

func TestCreateRejectsInvalidIdentity(t *testing.T) {
	svc := NewAccountService(newFakeRepo())
	_, err := svc.Create(context.Background(), validate.AccountRequest{Name: "X", Email: "bad"})
	var v *domain.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(v.Fields) != 2 {
		t.Fatalf("want 2 field violations, got %d", len(v.Fields))
	}
}
