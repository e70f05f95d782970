// Package validate defines the typed request payloads and their field
// constraints. Each request knows how to validate itself and reports every
// violation at once as a domain.ValidationError.
package validate

import (
	"net/mail"
	"regexp"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/gfranzoni/accountledger/internal/domain"
)

const (
	nameMinLen  = 2
	nameMaxLen  = 100
	emailMaxLen = 255
)

// Letters (including accented) and spaces only, matching the ledger's
// customer-name policy.
var namePattern = regexp.MustCompile(`^[a-zA-ZÀ-ÿ ]+$`)

// AccountRequest carries the identity fields for create and update calls.
// Balance is deliberately absent: it is never client-settable.
type AccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (r AccountRequest) Validate() error {
	var v domain.ValidationError
	n := utf8.RuneCountInString(r.Name)
	switch {
	case n == 0:
		v.Add("name", "is required")
	case n < nameMinLen:
		v.Add("name", "must have at least 2 characters")
	case n > nameMaxLen:
		v.Add("name", "must have at most 100 characters")
	case !namePattern.MatchString(r.Name):
		v.Add("name", "must contain only letters and spaces")
	}

	switch {
	case r.Email == "":
		v.Add("email", "is required")
	case len(r.Email) > emailMaxLen:
		v.Add("email", "must have at most 255 characters")
	default:
		if _, err := mail.ParseAddress(r.Email); err != nil {
			v.Add("email", "must be a valid address")
		}
	}
	return v.Or()
}

// OperationRequest carries the amount of a deposit or withdrawal.
// decimal.Decimal accepts JSON numbers and numeric strings, so "10.50" and
// 10.50 are both valid payloads.
type OperationRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (r OperationRequest) Validate() error {
	var v domain.ValidationError
	if !r.Amount.IsPositive() {
		v.Add("amount", "must be positive")
	} else if r.Amount.Exponent() < -2 {
		v.Add("amount", "must have at most 2 decimal places")
	}
	return v.Or()
}

// PageRequest normalizes pagination query parameters.
type PageRequest struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize clamps the request into valid bounds and returns limit/offset.
func (p PageRequest) Normalize() (limit, offset int) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	size := p.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size, (page - 1) * size
}
