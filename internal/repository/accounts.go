// Package repository is the only writer of account balances and operation
// rows. It owns the transaction boundary, the row-lock serialization of
// concurrent mutations, and the durable idempotency check.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gfranzoni/accountledger/internal/clock"
	"github.com/gfranzoni/accountledger/internal/domain"
)

const pgUniqueViolation = "23505"

type AccountRepository struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

func New(db *pgxpool.Pool, clk clock.Clock) *AccountRepository {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &AccountRepository{db: db, clock: clk}
}

const accountColumns = `id, name, email, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account scan failed: %w", err)
	}
	return &a, nil
}

// Create inserts a new account with a zero balance. The starting balance is
// never client-settable.
func (r *AccountRepository) Create(ctx context.Context, name, email string) (*domain.Account, error) {
	now := r.clock.Now()
	a := domain.Account{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (id, name, email, balance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Name, a.Email, a.Balance, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// List returns accounts ordered by creation time descending plus the total
// count for pagination.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]domain.Account, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("account count failed: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("account list failed: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("account scan failed: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, total, rows.Err()
}

// Update edits the identity fields only. The balance column is not touched.
func (r *AccountRepository) Update(ctx context.Context, id uuid.UUID, name, email string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE accounts SET name = $2, email = $3, updated_at = $4
		 WHERE id = $1
		 RETURNING `+accountColumns,
		id, name, email, r.clock.Now())
	a, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return a, nil
}

// Delete removes the account; its operations go with it via ON DELETE CASCADE.
func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("account delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Deposit credits amount to the account. When idemKey is non-empty and a
// concluded operation already carries it, the mutation is not re-applied and
// the current account state is returned.
func (r *AccountRepository) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string) (*domain.Account, error) {
	return r.mutate(ctx, id, amount, idemKey, domain.OperationDeposit)
}

// Withdraw debits amount from the account. The funds check runs after the
// row lock is held, so the locked balance is authoritative.
func (r *AccountRepository) Withdraw(ctx context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string) (*domain.Account, error) {
	return r.mutate(ctx, id, amount, idemKey, domain.OperationWithdrawal)
}

func (r *AccountRepository) mutate(ctx context.Context, id uuid.UUID, amount decimal.Decimal, idemKey string, opType domain.OperationType) (*domain.Account, error) {
	// Deposits and withdrawals must be positive and cent-granular
	// regardless of what the service validated upstream; sub-cent amounts
	// would be silently rounded by the DECIMAL(17,2) column.
	var v domain.ValidationError
	if !amount.IsPositive() {
		v.Add("amount", "must be positive")
	} else if amount.Exponent() < -2 {
		v.Add("amount", "must have at most 2 decimal places")
	}
	if err := v.Or(); err != nil {
		return nil, err
	}

	// Fast-accept replay: a concluded operation with this key means the
	// mutation already happened. No lock, no new row.
	if idemKey != "" {
		replayed, err := r.concludedKeyExists(ctx, idemKey)
		if err != nil {
			return nil, err
		}
		if replayed {
			return r.Get(ctx, id)
		}
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Exclusive row lock serializes concurrent mutators of this account.
	var a domain.Account
	a.ID = id
	err = tx.QueryRow(ctx,
		`SELECT name, email, balance, created_at FROM accounts WHERE id = $1 FOR UPDATE`,
		id).Scan(&a.Name, &a.Email, &a.Balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	var newBalance decimal.Decimal
	switch opType {
	case domain.OperationDeposit:
		newBalance = domain.AfterDeposit(a.Balance, amount)
	case domain.OperationWithdrawal:
		if !domain.SufficientFunds(a.Balance, amount) {
			return nil, domain.ErrInsufficientFunds
		}
		newBalance = domain.AfterWithdrawal(a.Balance, amount)
	default:
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}

	now := r.clock.Now()
	opID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO operations
		   (id, account_id, type, amount, balance_before, balance_after,
		    idempotency_key, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $9)`,
		opID, id, opType, amount, a.Balance, newBalance, idemKey, domain.OperationPending, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// A concurrent call with the same key won the insert race.
			return nil, domain.ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("operation insert failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`,
		id, newBalance, now)
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE operations SET status = $2, updated_at = $3 WHERE id = $1`,
		opID, domain.OperationConcluded, now)
	if err != nil {
		return nil, fmt.Errorf("operation conclude failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	a.Balance = newBalance
	a.UpdatedAt = now
	return &a, nil
}

func (r *AccountRepository) concludedKeyExists(ctx context.Context, idemKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM operations WHERE idempotency_key = $1 AND status = $2
		 )`, idemKey, domain.OperationConcluded).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return exists, nil
}

// OperationHistory returns the account's operations newest first, plus the
// total count for pagination. Fails with ErrAccountNotFound for unknown ids.
func (r *AccountRepository) OperationHistory(ctx context.Context, id uuid.UUID, limit, offset int) ([]domain.Operation, int, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return nil, 0, fmt.Errorf("account lookup failed: %w", err)
	}
	if !exists {
		return nil, 0, domain.ErrAccountNotFound
	}

	var total int
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM operations WHERE account_id = $1`, id).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("operation count failed: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, account_id, type, amount, balance_before, balance_after,
		        COALESCE(idempotency_key, ''), status, created_at, updated_at
		 FROM operations
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("operation query failed: %w", err)
	}
	defer rows.Close()

	ops := make([]domain.Operation, 0)
	for rows.Next() {
		var op domain.Operation
		err := rows.Scan(&op.ID, &op.AccountID, &op.Type, &op.Amount,
			&op.BalanceBefore, &op.BalanceAfter, &op.IdempotencyKey,
			&op.Status, &op.CreatedAt, &op.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("operation scan failed: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, total, rows.Err()
}
