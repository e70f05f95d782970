package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType discriminates deposits from withdrawals.
type OperationType string

const (
	OperationDeposit    OperationType = "deposit"
	OperationWithdrawal OperationType = "withdrawal"
)

// OperationStatus tracks an operation through its transaction. Rows are
// inserted as pending and flipped to concluded just before commit; a rejected
// attempt rolls back entirely, so "failed" exists in the schema but is never
// written by the current policy.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationConcluded OperationStatus = "concluded"
	OperationFailed    OperationStatus = "failed"
)

// Operation is the immutable audit record of one balance mutation that
// reached commit. BalanceAfter is always BalanceBefore plus the signed
// amount for the operation type.
type Operation struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Type           OperationType   `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Status         OperationStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
