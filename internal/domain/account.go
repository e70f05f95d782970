// Package domain holds the ledger entities and the pure balance rules.
// Nothing in here touches the database or HTTP.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds a customer's monetary balance. The balance is only ever
// changed through deposit/withdrawal operations; identity edits (name, email)
// must never touch it.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SufficientFunds reports whether balance covers a withdrawal of amount.
func SufficientFunds(balance, amount decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(amount)
}

// AfterDeposit returns the balance after crediting amount.
func AfterDeposit(balance, amount decimal.Decimal) decimal.Decimal {
	return balance.Add(amount)
}

// AfterWithdrawal returns the balance after debiting amount.
func AfterWithdrawal(balance, amount decimal.Decimal) decimal.Decimal {
	return balance.Sub(amount)
}
