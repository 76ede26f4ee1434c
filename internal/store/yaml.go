package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/validation"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// accountsFile is the on-disk layout. Amounts are strings so no precision is
// lost to YAML floats.
type accountsFile struct {
	Accounts []accountRecord `yaml:"accounts"`
}

type accountRecord struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	BankName  string    `yaml:"bank,omitempty"`
	Balance   string    `yaml:"balance"`
	Currency  string    `yaml:"currency"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// YAMLRepository stores accounts in one YAML file. Every Upsert rewrites the
// file through a temp file and rename, so readers never see a partial write.
type YAMLRepository struct {
	path   string
	logger logging.Logger
	mu     sync.Mutex
	// warned is set once a permissive file mode has been reported.
	warned bool
}

// NewYAMLRepository returns a repository backed by path. The file is
// created on the first Upsert.
func NewYAMLRepository(path string, logger logging.Logger) *YAMLRepository {
	return &YAMLRepository{path: path, logger: logging.OrDefault(logger)}
}

// Path returns the backing file.
func (r *YAMLRepository) Path() string {
	return r.path
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (models.Account, error) {
	accounts, err := r.List(ctx)
	if err != nil {
		return models.Account{}, err
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Account{}, fmt.Errorf("%s: %w", id, ErrAccountNotFound)
}

// List returns accounts sorted by ID. A missing file is an empty list.
func (r *YAMLRepository) List(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *YAMLRepository) Upsert(ctx context.Context, account models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	if !account.Balance.Currency.Valid() {
		return fmt.Errorf("account %s: unsupported currency %q", account.ID, account.Balance.Currency)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range accounts {
		if accounts[i].ID == account.ID {
			accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

	if err := r.save(accounts); err != nil {
		return err
	}
	r.logger.Debug("Saved account",
		logging.F(logging.FieldAccount, account.ID),
		logging.F(logging.FieldFile, r.path))
	return nil
}

func (r *YAMLRepository) load() ([]models.Account, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading accounts file: %w", err)
	}

	if !r.warned {
		if info, err := os.Stat(r.path); err == nil {
			if err := validation.IsValidFilePermissions(info.Mode()); err != nil {
				r.logger.Warn("Accounts file is readable by other users",
					logging.F(logging.FieldFile, r.path),
					logging.F(logging.FieldError, err.Error()))
				r.warned = true
			}
		}
	}

	var file accountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing accounts file %s: %w", r.path, err)
	}

	accounts := make([]models.Account, 0, len(file.Accounts))
	for _, rec := range file.Accounts {
		account, err := rec.account()
		if err != nil {
			return nil, fmt.Errorf("error parsing accounts file %s: account %q: %w", r.path, rec.ID, err)
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (r *YAMLRepository) save(accounts []models.Account) (err error) {
	file := accountsFile{Accounts: make([]accountRecord, 0, len(accounts))}
	for _, a := range accounts {
		file.Accounts = append(file.Accounts, accountRecord{
			ID:        a.ID,
			Name:      a.Name,
			BankName:  a.BankName,
			Balance:   a.Balance.Amount.String(),
			Currency:  string(a.Balance.Currency),
			UpdatedAt: a.UpdatedAt,
		})
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("error marshaling accounts: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".accounts-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary accounts file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error writing accounts: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("error writing accounts: %w", err)
	}
	if err = os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("error replacing accounts file: %w", err)
	}
	return nil
}

func (rec accountRecord) account() (models.Account, error) {
	amount := decimal.Zero
	if rec.Balance != "" {
		var err error
		if amount, err = decimal.NewFromString(rec.Balance); err != nil {
			return models.Account{}, fmt.Errorf("invalid balance %q: %w", rec.Balance, err)
		}
	}
	currency, err := models.ParseCurrency(rec.Currency)
	if err != nil {
		return models.Account{}, err
	}
	return models.Account{
		ID:        rec.ID,
		Name:      rec.Name,
		BankName:  rec.BankName,
		Balance:   models.Money{Amount: amount, Currency: currency},
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
