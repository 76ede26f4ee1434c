package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParsedTransaction is one statement row. Exactly one of DebitAmount and
// CreditAmount is set, and it is strictly positive.
type ParsedTransaction struct {
	Line         int              `json:"line"`
	RawDate      string           `json:"rawDate"`
	Date         time.Time        `json:"date"`
	ValueDate    string           `json:"valueDate,omitempty"`
	Description  string           `json:"description"`
	Reference    string           `json:"reference,omitempty"`
	DebitAmount  *decimal.Decimal `json:"debitAmount,omitempty"`
	CreditAmount *decimal.Decimal `json:"creditAmount,omitempty"`
	Balance      decimal.Decimal  `json:"balance"`
}

// IsDebit reports whether money left the account.
func (t ParsedTransaction) IsDebit() bool {
	return t.DebitAmount != nil
}

// SignedAmount returns the credit amount, or the negated debit amount.
func (t ParsedTransaction) SignedAmount() decimal.Decimal {
	if t.DebitAmount != nil {
		return t.DebitAmount.Neg()
	}
	if t.CreditAmount != nil {
		return *t.CreditAmount
	}
	return decimal.Zero
}

// Valid checks the debit/credit exclusivity invariant.
func (t ParsedTransaction) Valid() bool {
	switch {
	case t.DebitAmount != nil && t.CreditAmount != nil:
		return false
	case t.DebitAmount != nil:
		return t.DebitAmount.IsPositive()
	case t.CreditAmount != nil:
		return t.CreditAmount.IsPositive()
	default:
		return false
	}
}
