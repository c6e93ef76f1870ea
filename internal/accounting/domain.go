// Package accounting keeps the chart of accounts read side and the yearly
// general ledger opening balances. Balances are a flat snapshot per year, not
// a journaled double-entry ledger.
package accounting

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("accounting: not found")
	ErrValidation   = errors.New("accounting: validation failed")
	ErrYearApproved = errors.New("accounting: year already approved")
)

// UnbalancedError reports an approval attempt where total debit and total
// credit disagree.
type UnbalancedError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("accounting: total debit %s does not equal total credit %s",
		e.TotalDebit.String(), e.TotalCredit.String())
}

// AsUnbalanced unwraps an UnbalancedError from an error chain.
func AsUnbalanced(err error) (*UnbalancedError, bool) {
	var ue *UnbalancedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// BalanceStatus is the approval state of a year's opening balances.
type BalanceStatus string

const (
	BalanceStatusDraft    BalanceStatus = "draft"
	BalanceStatusApproved BalanceStatus = "approved"
)

// Account is one chart of accounts entry. This module only reads accounts;
// master data maintenance lives elsewhere.
type Account struct {
	ID       int64
	Code     string
	Name     string
	Type     string
	Category string
	IsCash   bool
	IsActive bool
}

// InitialBalance is one account's opening debit/credit for a year. The pair
// (year, account) is unique.
type InitialBalance struct {
	ID         int64
	Year       int
	AccountID  int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Budget     decimal.Decimal
	Status     BalanceStatus
	CreatedBy  int64
	ApprovedBy int64
	ApprovedAt time.Time
}

// YearSummary is the show-year view: every balance row plus both totals.
type YearSummary struct {
	Year        int
	Status      BalanceStatus
	Balances    []InitialBalance
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// YearInfo is one entry of the year listing.
type YearInfo struct {
	Year   int
	Status BalanceStatus
}
