package common_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"fjacquet/statement-ingest/cmd/common"
	internalcommon "fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/parsererror"
	"fjacquet/statement-ingest/internal/pdfparser"
	"fjacquet/statement-ingest/internal/pipeline"
	"fjacquet/statement-ingest/internal/reader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const statementCSV = "2025-10-01,Grocery Store,2350,,97650\n2025-10-02,Salary,,500000,597650\n"

var hdfcText = strings.Join([]string{
	"HDFC BANK LIMITED",
	"Opening Balance  1,00,000.00",
	"Date  Narration  Chq./Ref.No.  Value Dt  Withdrawal Amt.  Deposit Amt.  Closing Balance",
	"01/10/25  UPI-GROCERY STORE  0000412345  01/10/25  2,350.00  97,650.00",
	"02/10/25  NEFT-ACME SALARY  N275250012  02/10/25  5,00,000.00  5,97,650.00",
}, "\n")

// MockPrompter implements pipeline.Prompter for testing
type MockPrompter struct {
	mock.Mock
}

func (m *MockPrompter) PromptPassword(ctx context.Context, challenge *pipeline.PasswordChallenge) (string, bool, error) {
	args := m.Called(challenge.Attempt.AttemptNumber)
	return args.String(0), args.Bool(1), args.Error(2)
}

func newService(t *testing.T) (*pipeline.Service, *fileutils.MemFS, *logging.MockLogger) {
	t.Helper()
	logger := logging.NewMockLogger()
	fs := fileutils.NewMemFS()
	pdf := pdfparser.NewReader(logger, pdfparser.NewMockPDFExtractor(hdfcText, "secret"))
	svc := pipeline.NewService(pipeline.Dependencies{
		FS:     fs,
		Reader: reader.New(fs, pdf, t.TempDir(), logger),
		Logger: logger,
	})
	return svc, fs, logger
}

func TestBuildOptions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		format   string
		currency string
		want     models.ParseOptions
		wantErr  bool
	}{
		{name: "from extension", input: "stmt.PDF", want: models.ParseOptions{Format: models.FormatPDF}},
		{name: "explicit format wins", input: "stmt.txt", format: "csv", want: models.ParseOptions{Format: models.FormatCSV}},
		{name: "excel alias", input: "stmt.xlsx", want: models.ParseOptions{Format: models.FormatExcel}},
		{name: "currency normalized", input: "a.csv", currency: " usd ", want: models.ParseOptions{Format: models.FormatCSV, Currency: models.USD}},
		{name: "no extension", input: "statement", wantErr: true},
		{name: "unknown format", input: "a.csv", format: "docx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := common.BuildOptions(tt.input, tt.format, false, "", tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputMode(t *testing.T) {
	mode, err := common.OutputMode("", "")
	require.NoError(t, err)
	assert.Equal(t, common.OutputJSON, mode)

	mode, err = common.OutputMode("out/Statement.CSV", "")
	require.NoError(t, err)
	assert.Equal(t, common.OutputCSV, mode)

	mode, err = common.OutputMode("out.csv", "JSON")
	require.NoError(t, err)
	assert.Equal(t, common.OutputJSON, mode)

	_, err = common.OutputMode("", "xml")
	assert.Error(t, err)
}

func TestTerminalPrompter(t *testing.T) {
	var out bytes.Buffer
	p := &common.TerminalPrompter{In: strings.NewReader("hunter2\r\n\n"), Out: &out}
	challenge := &pipeline.PasswordChallenge{
		Err:     parsererror.ErrPasswordRequired,
		Attempt: models.PasswordAttemptState{FileName: "stmt.pdf", AttemptNumber: 1},
	}

	password, ok, err := p.PromptPassword(context.Background(), challenge)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hunter2", password)
	assert.Contains(t, out.String(), "stmt.pdf is password protected")

	_, ok, err = p.PromptPassword(context.Background(), challenge)
	require.NoError(t, err)
	assert.False(t, ok, "empty answer declines")

	_, ok, err = p.PromptPassword(context.Background(), challenge)
	require.NoError(t, err)
	assert.False(t, ok, "EOF declines")
}

func TestProcessFile_JSONToWriter(t *testing.T) {
	svc, fs, logger := newService(t)
	fs.Put("/docs/oct.csv", []byte(statementCSV))
	opts := models.ParseOptions{Format: models.FormatCSV}

	var out bytes.Buffer
	result, err := common.ProcessFile(context.Background(), svc, "/docs/oct.csv", "", common.OutputJSON, opts,
		nil, internalcommon.NewExporter(',', logger), &out, logger)
	require.NoError(t, err)
	assert.True(t, result.Success)

	var decoded models.DocumentParsingResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded.Transactions, 2)
	assert.Equal(t, result.Metadata.InvocationID, decoded.Metadata.InvocationID)
}

func TestProcessFile_CSVFileWithPassword(t *testing.T) {
	svc, fs, logger := newService(t)
	fs.Put("/docs/hdfc.pdf", []byte("%PDF-1.4\n"))
	opts := models.ParseOptions{Format: models.FormatPDF}

	prompter := new(MockPrompter)
	prompter.On("PromptPassword", 1).Return("wrong", true, nil).Once()
	prompter.On("PromptPassword", 2).Return("secret", true, nil).Once()

	output := filepath.Join(t.TempDir(), "out", "hdfc.csv")
	result, err := common.ProcessFile(context.Background(), svc, "/docs/hdfc.pdf", output, common.OutputCSV, opts,
		prompter, internalcommon.NewExporter(';', logger), nil, logger)
	require.NoError(t, err)
	assert.True(t, result.Success)
	prompter.AssertExpectations(t)

	rows, err := internalcommon.ReadCSVFile[internalcommon.TransactionRow](output, ';')
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestProcessFile_Declined(t *testing.T) {
	svc, fs, logger := newService(t)
	fs.Put("/docs/hdfc.pdf", []byte("%PDF-1.4\n"))

	prompter := new(MockPrompter)
	prompter.On("PromptPassword", 1).Return("", false, nil).Once()

	_, err := common.ProcessFile(context.Background(), svc, "/docs/hdfc.pdf", "", common.OutputJSON,
		models.ParseOptions{Format: models.FormatPDF}, prompter, internalcommon.NewExporter(',', logger), &bytes.Buffer{}, logger)
	assert.ErrorIs(t, err, parsererror.ErrCancelled)
	prompter.AssertExpectations(t)
}

func TestProcessFile_RequiresInput(t *testing.T) {
	svc, _, logger := newService(t)
	_, err := common.ProcessFile(context.Background(), svc, "", "", common.OutputJSON,
		models.ParseOptions{Format: models.FormatCSV}, nil, internalcommon.NewExporter(',', logger), &bytes.Buffer{}, logger)
	assert.ErrorContains(t, err, "input file is required")
}
