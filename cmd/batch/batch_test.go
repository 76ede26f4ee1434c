package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/pdfparser"
	"fjacquet/statement-ingest/internal/pipeline"
	"fjacquet/statement-ingest/internal/reader"
	"fjacquet/statement-ingest/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "consolidated")
	require.NoError(t, os.MkdirAll(out, 0750))

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte(content), 0600))
	}
	write("Acct_50100012345678_2025-09-01_2025-09-30.csv", "2025-09-20,Groceries,500,,97650\n")
	write("Acct_50100012345678_2025-10-01_2025-10-31.csv", "2025-10-02,Rent,20000,,77650\n2025-10-05,Salary,,50000,127650\n")
	write("Acct_99900011122233.pdf", "%PDF-1.4\n")
	write("notes.txt", "ignored")

	logger := logging.NewMockLogger()
	fs := fileutils.NewLocalFS("")
	pdf := pdfparser.NewReader(logger, pdfparser.NewMockPDFExtractor("", "secret"))
	svc := pipeline.NewService(pipeline.Dependencies{
		FS:     fs,
		Reader: reader.New(fs, pdf, t.TempDir(), logger),
		Logger: logger,
	})
	accounts := store.NewMemoryRepository()

	count, err := Run(context.Background(), svc, common.NewExporter(',', logger), accounts, in, out, false, true, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the locked PDF account produces no file")

	data, err := os.ReadFile(filepath.Join(out, "50100012345678_2025-09-01_2025-10-31.csv"))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "# Consolidated from source files:\n"))
	assert.Contains(t, content, "# - Acct_50100012345678_2025-09-01_2025-09-30.csv")
	assert.Less(t, strings.Index(content, "Groceries"), strings.Index(content, "Rent"))
	assert.Less(t, strings.Index(content, "Rent"), strings.Index(content, "Salary"))

	account, err := accounts.Get(context.Background(), "50100012345678")
	require.NoError(t, err)
	assert.True(t, account.Balance.Amount.Equal(decimal.RequireFromString("127650")), account.Balance.String())
	_, err = accounts.Get(context.Background(), "99900011122233")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
	assert.True(t, logger.HasEntry("WARN", "Failed to parse file"))
}

func TestRun_EmptyDirectory(t *testing.T) {
	logger := logging.NewMockLogger()
	count, err := Run(context.Background(), nil, nil, nil, t.TempDir(), t.TempDir(), false, false, logger)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, logger.HasEntry("WARN", "No supported files found in input directory"))
}
