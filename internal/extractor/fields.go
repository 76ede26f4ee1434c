package extractor

import (
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"

	"fjacquet/statement-ingest/internal/formats"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"
)

var columnGap = regexp.MustCompile(`\s{2,}|\t`)

func splitFields(line string, format formats.Format) ([]string, error) {
	if format.Layout == formats.LayoutText {
		return columnGap.Split(line, -1), nil
	}

	r := csv.NewReader(strings.NewReader(line))
	r.Comma = format.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errorf("malformed record: %v", err)
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	return record, nil
}

// isHeader reports a column caption row: its date cell does not parse and
// at least two digit-free cells match known role captions.
func isHeader(fields []string, format formats.Format) bool {
	if idx := format.ColumnIndex(formats.RoleDate); idx >= 0 && idx < len(fields) {
		if _, err := parseDate(fields[idx], format.DateLayouts); err == nil {
			return false
		}
	}

	matched := 0
	for _, cell := range fields {
		if cell == "" || strings.IndexFunc(cell, unicode.IsDigit) >= 0 {
			continue
		}
		if matchesCaption(cell) {
			matched++
		}
	}
	return matched >= 2
}

func matchesCaption(cell string) bool {
	for _, role := range []formats.Role{
		formats.RoleDate, formats.RoleValueDate, formats.RoleDescription, formats.RoleReference,
		formats.RoleDebit, formats.RoleCredit, formats.RoleAmount, formats.RoleDirection,
		formats.RoleBalance, formats.RoleSkip,
	} {
		for _, label := range role.Labels() {
			if fuzzy.MatchNormalizedFold(label, cell) {
				return true
			}
		}
	}
	return false
}

// row is a line's fields keyed by role.
type row struct {
	values map[formats.Role]string
	// inferred is set when a text line lost one of its debit/credit cells
	// and direction must come from the balance delta.
	inferred bool
}

func (r row) get(role formats.Role) string {
	return r.values[role]
}

func mapColumns(fields []string, format formats.Format) (row, error) {
	want := len(format.Columns)
	for len(fields) > want && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}

	columns := format.Columns
	inferred := false
	if len(fields) != want {
		collapsible := format.Layout == formats.LayoutText &&
			format.HasColumn(formats.RoleDebit) && format.HasColumn(formats.RoleCredit) &&
			format.HasColumn(formats.RoleBalance)
		if !collapsible || len(fields) != want-1 {
			return row{}, errorf("expected %d columns, got %d", want, len(fields))
		}
		columns = collapseAmountColumns(columns)
		inferred = true
	}

	values := make(map[formats.Role]string, len(columns))
	for i, role := range columns {
		if role == formats.RoleSkip {
			continue
		}
		values[role] = fields[i]
	}
	return row{values: values, inferred: inferred}, nil
}

// collapseAmountColumns merges the debit and credit columns into one
// unsigned amount column placed at the first of the two.
func collapseAmountColumns(columns []formats.Role) []formats.Role {
	out := make([]formats.Role, 0, len(columns)-1)
	merged := false
	for _, role := range columns {
		if role == formats.RoleDebit || role == formats.RoleCredit {
			if merged {
				continue
			}
			merged = true
			role = formats.RoleAmount
		}
		out = append(out, role)
	}
	return out
}

func (r row) balance(format formats.Format) (decimal.Decimal, bool, error) {
	raw := r.get(formats.RoleBalance)
	if raw == "" {
		return decimal.Zero, false, nil
	}
	value, err := parseAmount(raw, format)
	if err != nil {
		return decimal.Zero, false, errorf("non-numeric balance %q", raw)
	}
	return value, true, nil
}

var (
	debitWords  = map[string]bool{"debit": true, "dr": true, "d": true, "check": true, "withdrawal": true}
	creditWords = map[string]bool{"credit": true, "cr": true, "c": true, "dslip": true, "deposit": true}
)

// amounts returns exactly one non-nil, strictly positive amount.
func (r row) amounts(format formats.Format, chain *balanceChain, stated decimal.Decimal, hasStated bool) (*decimal.Decimal, *decimal.Decimal, error) {
	if r.inferred {
		return r.inferredAmount(format, chain, stated, hasStated)
	}
	if format.HasColumn(formats.RoleAmount) {
		return r.signedAmount(format)
	}

	debit, err := optionalAmount(r.get(formats.RoleDebit), format)
	if err != nil {
		return nil, nil, err
	}
	credit, err := optionalAmount(r.get(formats.RoleCredit), format)
	if err != nil {
		return nil, nil, err
	}
	if debit != nil {
		abs := debit.Abs()
		debit = &abs
	}
	if credit != nil && credit.IsNegative() {
		return nil, nil, errorf("non-positive amount %q", r.get(formats.RoleCredit))
	}

	switch {
	case debit != nil && credit != nil:
		return nil, nil, errorf("both debit and credit amounts present")
	case debit == nil && credit == nil:
		return nil, nil, errorf("no debit or credit amount")
	}
	return debit, credit, nil
}

// optionalAmount parses a debit or credit cell. Empty and zero cells mean
// the column is not used on this row.
func optionalAmount(raw string, format formats.Format) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" || raw == "-" {
		return nil, nil
	}
	value, err := parseAmount(raw, format)
	if err != nil {
		return nil, errorf("non-numeric amount %q", raw)
	}
	if value.IsZero() {
		return nil, nil
	}
	return &value, nil
}

func (r row) signedAmount(format formats.Format) (*decimal.Decimal, *decimal.Decimal, error) {
	raw := r.get(formats.RoleAmount)
	if raw == "" {
		return nil, nil, errorf("no debit or credit amount")
	}
	value, err := parseAmount(raw, format)
	if err != nil {
		return nil, nil, errorf("non-numeric amount %q", raw)
	}
	if value.IsZero() {
		return nil, nil, errorf("non-positive amount %q", raw)
	}

	isDebit := value.IsNegative()
	if format.HasColumn(formats.RoleDirection) {
		dir := strings.ToLower(r.get(formats.RoleDirection))
		switch {
		case debitWords[dir]:
			isDebit = true
		case creditWords[dir]:
			isDebit = false
		default:
			return nil, nil, errorf("unknown direction %q", r.get(formats.RoleDirection))
		}
	}

	abs := value.Abs()
	if isDebit {
		return &abs, nil, nil
	}
	return nil, &abs, nil
}

func (r row) inferredAmount(format formats.Format, chain *balanceChain, stated decimal.Decimal, hasStated bool) (*decimal.Decimal, *decimal.Decimal, error) {
	raw := r.get(formats.RoleAmount)
	value, err := parseAmount(raw, format)
	if err != nil {
		return nil, nil, errorf("non-numeric amount %q", raw)
	}
	if !value.IsPositive() {
		return nil, nil, errorf("non-positive amount %q", raw)
	}

	prev, ok := chain.previous()
	if !ok || !hasStated {
		if hasStated {
			// Later rows can still infer their direction from this one.
			chain.seed(stated)
		}
		return nil, nil, errorf("cannot tell debit from credit without a previous balance")
	}
	if stated.LessThan(prev) {
		return &value, nil, nil
	}
	return nil, &value, nil
}
