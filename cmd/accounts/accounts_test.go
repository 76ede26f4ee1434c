package accounts

import (
	"bytes"
	"context"
	"testing"
	"time"

	"fjacquet/statement-ingest/cmd/root"
	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/container"
	"fjacquet/statement-ingest/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsCommand(t *testing.T) {
	c, err := container.NewContainer(&config.Config{
		Log:      config.LogConfig{Level: "error", Format: "text"},
		Pipeline: config.PipelineConfig{TempDir: t.TempDir(), DefaultCurrency: "INR"},
	})
	require.NoError(t, err)
	original := root.GetContainer()
	root.SetContainer(c)
	t.Cleanup(func() { root.SetContainer(original) })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, Cmd.RunE(cmd, nil))
	assert.Equal(t, "No accounts.\n", out.String())

	require.NoError(t, c.GetAccounts().Upsert(context.Background(), models.Account{
		ID:        "50100012345678",
		Name:      "Salary account",
		BankName:  "HDFC Bank",
		Balance:   models.Money{Amount: decimal.RequireFromString("597650.50"), Currency: models.INR},
		UpdatedAt: time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC),
	}))

	out.Reset()
	require.NoError(t, Cmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "50100012345678")
	assert.Contains(t, out.String(), "HDFC Bank")
	assert.Contains(t, out.String(), "2025-10-31")
}
