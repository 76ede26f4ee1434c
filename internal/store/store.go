// Package store keeps account balances between CLI runs. It never stores
// transactions: only the closing balance of a parsed statement is applied.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fjacquet/statement-ingest/internal/models"
)

// ErrAccountNotFound is returned by Get for an unknown account ID.
var ErrAccountNotFound = errors.New("account not found")

// Repository is the account persistence collaborator.
type Repository interface {
	Get(ctx context.Context, id string) (models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	Upsert(ctx context.Context, account models.Account) error
}

// FindConfigFile looks for filename in the working directory, ./config,
// ./database and ~/.config/statement-ingest, in that order.
func FindConfigFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
		filepath.Join("database", filename),
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "statement-ingest", filename))
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

// ApplyClosingBalance sets the balance of account id to the closing balance
// of a successful result. Unknown accounts are created, named after the id.
func ApplyClosingBalance(ctx context.Context, repo Repository, id string, result *models.DocumentParsingResult, now time.Time) (models.Account, error) {
	if result == nil || !result.Success {
		return models.Account{}, fmt.Errorf("cannot update account %s from an unsuccessful parse", id)
	}
	if result.Metadata.ClosingBalance == nil {
		return models.Account{}, fmt.Errorf("cannot update account %s: statement has no closing balance", id)
	}

	account, err := repo.Get(ctx, id)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		account = models.Account{ID: id, Name: id}
	case err != nil:
		return models.Account{}, err
	}
	if account.BankName == "" {
		account.BankName = result.Metadata.BankDetected
	}
	account.Balance = *result.Metadata.ClosingBalance
	account.UpdatedAt = now.UTC()

	if err := repo.Upsert(ctx, account); err != nil {
		return models.Account{}, fmt.Errorf("failed to save account %s: %w", id, err)
	}
	return account, nil
}
