// Package formats holds the static registry of supported bank statement
// layouts and the detector that picks one for a document.
package formats

import (
	"regexp"

	"fjacquet/statement-ingest/internal/models"
)

// BankID identifies a registry entry. The set is closed: adding a bank
// means adding a constant here and an entry in registry.
type BankID int

const (
	HDFC BankID = iota
	ICICI
	SBI
	EmiratesNBD
	Barclays
	DeutscheBank
	Chase
	GenericCSV

	bankCount
)

// String returns the slug of the bank.
func (id BankID) String() string {
	if id < 0 || id >= bankCount {
		return "unknown"
	}
	return registry[id].Slug
}

// Role is the meaning of one column of a statement line.
type Role int

const (
	RoleSkip Role = iota
	RoleDate
	RoleValueDate
	RoleDescription
	RoleReference
	RoleDebit
	RoleCredit
	// RoleAmount is a signed amount; negative means debit unless a
	// RoleDirection column says otherwise.
	RoleAmount
	RoleDirection
	RoleBalance
)

var roleNames = map[Role]string{
	RoleSkip:        "skip",
	RoleDate:        "date",
	RoleValueDate:   "valueDate",
	RoleDescription: "description",
	RoleReference:   "reference",
	RoleDebit:       "debit",
	RoleCredit:      "credit",
	RoleAmount:      "amount",
	RoleDirection:   "direction",
	RoleBalance:     "balance",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// roleLabels are header captions seen on real statements, used to tell a
// header row from a malformed transaction.
var roleLabels = map[Role][]string{
	RoleDate:        {"date", "txn date", "transaction date", "posting date", "buchungstag"},
	RoleValueDate:   {"value date", "value dt", "wert", "valuta"},
	RoleDescription: {"description", "narration", "particulars", "details", "memo", "transaction remarks", "verwendungszweck"},
	RoleReference:   {"reference", "ref no", "chq./ref.no.", "cheque number", "check or slip #", "subcategory"},
	RoleDebit:       {"debit", "withdrawal", "withdrawal amt.", "soll", "paid out"},
	RoleCredit:      {"credit", "deposit", "deposit amt.", "haben", "paid in"},
	RoleAmount:      {"amount", "betrag"},
	RoleDirection:   {"details", "type", "dr/cr"},
	RoleBalance:     {"balance", "closing balance", "saldo", "kontostand"},
	RoleSkip:        {"s no.", "number", "account", "currency", "währung", "type"},
}

// Labels returns the header captions known for r.
func (r Role) Labels() []string {
	return roleLabels[r]
}

// Layout is how a statement line splits into fields.
type Layout int

const (
	// LayoutDelimited lines are CSV records with Format.Delimiter.
	LayoutDelimited Layout = iota
	// LayoutText lines come from a PDF text layer; columns are separated
	// by runs of two or more spaces.
	LayoutText
)

func (l Layout) String() string {
	if l == LayoutText {
		return "text"
	}
	return "delimited"
}

// Format describes one bank's statement layout. Formats live in the
// registry and are never mutated; callers get copies.
type Format struct {
	ID       BankID
	Slug     string
	BankName string
	// Currency is empty for formats that do not imply one.
	Currency models.Currency

	// Markers are literal, case-insensitive tokens identifying the bank.
	Markers []string
	// Patterns are regular expression markers evaluated on the raw content.
	Patterns []*regexp.Regexp

	Layout    Layout
	Delimiter rune
	Columns   []Role

	DateLayouts      []string
	DecimalSeparator rune

	// CandidatePattern selects transaction lines; other lines are statement
	// chrome and skipped. Nil accepts every line.
	CandidatePattern *regexp.Regexp
	// OpeningBalancePattern matches a line carrying the opening balance in
	// its first capture group.
	OpeningBalancePattern *regexp.Regexp
}

// HasColumn reports whether role appears in the layout.
func (f Format) HasColumn(role Role) bool {
	return f.ColumnIndex(role) >= 0
}

// ColumnIndex returns the position of role, or -1.
func (f Format) ColumnIndex(role Role) int {
	for i, r := range f.Columns {
		if r == role {
			return i
		}
	}
	return -1
}

// ThousandsSeparator is the grouping character implied by DecimalSeparator.
func (f Format) ThousandsSeparator() rune {
	if f.DecimalSeparator == ',' {
		return '.'
	}
	return ','
}

// WithCurrency returns a copy of f denominated in c.
func (f Format) WithCurrency(c models.Currency) Format {
	f.Currency = c
	return f
}
