package formats

import (
	"fmt"
	"regexp"
	"strings"

	"fjacquet/statement-ingest/internal/models"
)

// registry is ordered by detection priority: the first entry with a
// matching marker wins. GenericCSV must stay last because its marker
// matches any ISO-dated CSV.
var registry = [bankCount]Format{
	HDFC: {
		ID:       HDFC,
		Slug:     "hdfc",
		BankName: "HDFC Bank",
		Currency: models.INR,
		Markers:  []string{"hdfc bank", "hdfcbank.com"},
		Layout:   LayoutText,
		Columns: []Role{
			RoleDate, RoleDescription, RoleReference, RoleValueDate,
			RoleDebit, RoleCredit, RoleBalance,
		},
		DateLayouts:           []string{"02/01/06", "02/01/2006"},
		DecimalSeparator:      '.',
		CandidatePattern:      regexp.MustCompile(`^\s*\d{2}/\d{2}/\d{2,4}\s`),
		OpeningBalancePattern: regexp.MustCompile(`(?i)opening balance\s*:?\s+([\d,]+\.\d{2})`),
	},
	ICICI: {
		ID:        ICICI,
		Slug:      "icici",
		BankName:  "ICICI Bank",
		Currency:  models.INR,
		Markers:   []string{"icici bank", "icicibank.com"},
		Layout:    LayoutDelimited,
		Delimiter: ',',
		Columns: []Role{
			RoleSkip, RoleValueDate, RoleDate, RoleReference, RoleDescription,
			RoleDebit, RoleCredit, RoleBalance,
		},
		DateLayouts:      []string{"02/01/2006", "02-01-2006"},
		DecimalSeparator: '.',
		CandidatePattern: regexp.MustCompile(`^"?\d+"?,`),
	},
	SBI: {
		ID:       SBI,
		Slug:     "sbi",
		BankName: "State Bank of India",
		Currency: models.INR,
		Markers:  []string{"state bank of india", "sbin0"},
		Layout:   LayoutText,
		Columns: []Role{
			RoleDate, RoleValueDate, RoleDescription, RoleReference,
			RoleDebit, RoleCredit, RoleBalance,
		},
		DateLayouts:           []string{"2 Jan 2006", "02 Jan 2006"},
		DecimalSeparator:      '.',
		CandidatePattern:      regexp.MustCompile(`^\s*\d{1,2} [A-Za-z]{3} \d{4}\s`),
		OpeningBalancePattern: regexp.MustCompile(`(?i)balance as on .*?\s([\d,]+\.\d{2})\s*$`),
	},
	EmiratesNBD: {
		ID:        EmiratesNBD,
		Slug:      "emirates-nbd",
		BankName:  "Emirates NBD",
		Currency:  models.AED,
		Markers:   []string{"emirates nbd", "emiratesnbd.com"},
		Layout:    LayoutDelimited,
		Delimiter: ',',
		Columns: []Role{
			RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleBalance,
		},
		DateLayouts:           []string{"02/01/2006", "02-01-2006"},
		DecimalSeparator:      '.',
		CandidatePattern:      regexp.MustCompile(`^\d{2}[/-]\d{2}[/-]\d{4},`),
		OpeningBalancePattern: regexp.MustCompile(`(?i)^opening balance,+"?([\d,]+\.\d{2})`),
	},
	Barclays: {
		ID:        Barclays,
		Slug:      "barclays",
		BankName:  "Barclays",
		Currency:  models.GBP,
		Markers:   []string{"barclays", "number,date,account,amount,subcategory,memo"},
		Layout:    LayoutDelimited,
		Delimiter: ',',
		Columns: []Role{
			RoleSkip, RoleDate, RoleSkip, RoleAmount, RoleReference, RoleDescription,
		},
		DateLayouts:      []string{"02/01/2006"},
		DecimalSeparator: '.',
		CandidatePattern: regexp.MustCompile(`^[^,]*,\d{2}/\d{2}/\d{4},`),
	},
	DeutscheBank: {
		ID:        DeutscheBank,
		Slug:      "deutsche-bank",
		BankName:  "Deutsche Bank",
		Currency:  models.EUR,
		Markers:   []string{"deutsche bank", "buchungstag;wert;umsatzart"},
		Layout:    LayoutDelimited,
		Delimiter: ';',
		Columns: []Role{
			RoleDate, RoleValueDate, RoleSkip, RoleDescription, RoleReference,
			RoleDebit, RoleCredit, RoleSkip,
		},
		DateLayouts:           []string{"02.01.2006"},
		DecimalSeparator:      ',',
		CandidatePattern:      regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4};`),
		OpeningBalancePattern: regexp.MustCompile(`(?i)^(?:alter kontostand|anfangssaldo)[^;]*;+([-\d.]+,\d{2})`),
	},
	Chase: {
		ID:        Chase,
		Slug:      "chase",
		BankName:  "Chase",
		Currency:  models.USD,
		Markers:   []string{"jpmorgan chase", "chase.com", "details,posting date,description,amount,type,balance"},
		Layout:    LayoutDelimited,
		Delimiter: ',',
		Columns: []Role{
			RoleDirection, RoleDate, RoleDescription, RoleAmount, RoleSkip, RoleBalance, RoleReference,
		},
		DateLayouts:      []string{"01/02/2006"},
		DecimalSeparator: '.',
		CandidatePattern: regexp.MustCompile(`(?i)^(?:debit|credit|check|dslip),`),
	},
	GenericCSV: {
		ID:        GenericCSV,
		Slug:      "generic-csv",
		BankName:  "Generic ISO CSV",
		Patterns:  []*regexp.Regexp{regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2},`)},
		Layout:    LayoutDelimited,
		Delimiter: ',',
		Columns: []Role{
			RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleBalance,
		},
		DateLayouts:      []string{"2006-01-02"},
		DecimalSeparator: '.',
	},
}

func init() {
	if err := validateRegistry(); err != nil {
		panic(err)
	}
}

func validateRegistry() error {
	seen := make(map[string]BankID, len(registry))
	for i, f := range registry {
		id := BankID(i)
		if f.ID != id {
			return fmt.Errorf("registry entry %d has ID %d", i, f.ID)
		}
		if f.Slug == "" || f.BankName == "" {
			return fmt.Errorf("registry entry %d has no slug or bank name", i)
		}
		if prev, dup := seen[f.Slug]; dup {
			return fmt.Errorf("slug %q used by %d and %d", f.Slug, prev, id)
		}
		seen[f.Slug] = id
		if len(f.Markers) == 0 && len(f.Patterns) == 0 {
			return fmt.Errorf("format %s has no markers", f.Slug)
		}
		if len(f.DateLayouts) == 0 || !f.HasColumn(RoleDate) {
			return fmt.Errorf("format %s has no date column or layout", f.Slug)
		}
		hasPair := f.HasColumn(RoleDebit) && f.HasColumn(RoleCredit)
		if hasPair == f.HasColumn(RoleAmount) {
			return fmt.Errorf("format %s needs either debit and credit columns or one amount column", f.Slug)
		}
		if f.Layout == LayoutDelimited && f.Delimiter == 0 {
			return fmt.Errorf("format %s is delimited without a delimiter", f.Slug)
		}
		if f.Currency != "" && !f.Currency.Valid() {
			return fmt.Errorf("format %s has unsupported currency %s", f.Slug, f.Currency)
		}
	}
	return nil
}

// Registry returns every format in detection order.
func Registry() []Format {
	out := make([]Format, len(registry))
	copy(out, registry[:])
	return out
}

// Get returns the format of id.
func Get(id BankID) (Format, bool) {
	if id < 0 || id >= bankCount {
		return Format{}, false
	}
	return registry[id], true
}

// Lookup resolves a format by slug or bank name, case-insensitively.
func Lookup(name string) (Format, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, f := range registry {
		if f.Slug == key || strings.ToLower(f.BankName) == key {
			return f, true
		}
	}
	return Format{}, false
}
