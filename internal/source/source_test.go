package source

import (
	"context"
	"errors"
	"testing"

	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse_Shapes(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Selection
	}{
		{
			name: "flat",
			json: `{"uri":"file:///tmp/hdfc.pdf","name":"hdfc.pdf","size":2048,"mimeType":"application/pdf"}`,
			want: Selection{Outcome: OutcomeSelected, URI: "file:///tmp/hdfc.pdf", DisplayName: "hdfc.pdf", ByteSize: 2048, MimeType: "application/pdf"},
		},
		{
			name: "wrapped",
			json: `{"canceled":false,"assets":[{"uri":"content://docs/7","name":"may.csv","size":99,"mimeType":"text/csv"}]}`,
			want: Selection{Outcome: OutcomeSelected, URI: "content://docs/7", DisplayName: "may.csv", ByteSize: 99, MimeType: "text/csv"},
		},
		{
			name: "wrapped cancelled",
			json: `{"canceled":true,"assets":null}`,
			want: Selection{Outcome: OutcomeCancelled},
		},
		{
			name: "flat cancelled",
			json: `{"cancelled":true}`,
			want: Selection{Outcome: OutcomeCancelled},
		},
		{
			name: "empty assets",
			json: `{"canceled":false,"assets":[]}`,
			want: Selection{Outcome: OutcomeCancelled},
		},
		{
			name: "missing uri",
			json: `{"name":"ghost.pdf"}`,
			want: Selection{Outcome: OutcomeCancelled},
		},
		{
			name: "name derived from uri",
			json: `{"uri":"content://docs/statements/June%202025.xlsx"}`,
			want: Selection{Outcome: OutcomeSelected, URI: "content://docs/statements/June%202025.xlsx", DisplayName: "June 2025.xlsx"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Normalize())
		})
	}
}

func TestDecodeResponse_Invalid(t *testing.T) {
	_, err := DecodeResponse([]byte(`{"uri":`))
	assert.Error(t, err)
}

func TestPick_ErrorIsCancellation(t *testing.T) {
	logger := logging.NewMockLogger()
	picker := PickerFunc(func(context.Context) (PickerResponse, error) {
		return PickerResponse{}, errors.New("activity destroyed")
	})

	sel := Pick(context.Background(), picker, logger)
	assert.Equal(t, OutcomeCancelled, sel.Outcome)
	assert.False(t, sel.Selected())
	assert.True(t, logger.HasEntry("WARN", "Document picker failed, treating as cancelled"))
}

func TestPick_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	picker := PickerFunc(func(context.Context) (PickerResponse, error) {
		called = true
		return PickerResponse{URI: "/tmp/a.csv"}, nil
	})

	assert.Equal(t, OutcomeCancelled, Pick(ctx, picker, nil).Outcome)
	assert.False(t, called)
}

func TestFilePicker(t *testing.T) {
	mem := fileutils.NewMemFS()
	mem.Put("/uploads/icici.csv", []byte("Date,Narration\n"))
	ctx := context.Background()

	sel := Pick(ctx, &FilePicker{URI: "/uploads/icici.csv", FS: mem}, nil)
	require.True(t, sel.Selected())
	assert.Equal(t, "icici.csv", sel.DisplayName)
	assert.Equal(t, int64(15), sel.ByteSize)

	assert.Equal(t, OutcomeCancelled, Pick(ctx, &FilePicker{FS: mem}, nil).Outcome)
	assert.Equal(t, OutcomeCancelled, Pick(ctx, &FilePicker{URI: "/missing.csv", FS: mem}, nil).Outcome)
}

func TestStaticPicker(t *testing.T) {
	sel := Pick(context.Background(), StaticPicker{Response: PickerResponse{URI: "/tmp/up-1.pdf", Name: "statement.pdf"}}, nil)
	assert.Equal(t, "statement.pdf", sel.DisplayName)

	sel = Pick(context.Background(), StaticPicker{Err: errors.New("boom")}, nil)
	assert.Equal(t, OutcomeCancelled, sel.Outcome)
}
