// Package reader turns an uploaded document into raw content: one text blob
// for PDFs and images, or ordered row strings for spreadsheets and CSV.
package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/parsererror"
	"fjacquet/statement-ingest/internal/pdfparser"

	"github.com/google/uuid"
)

// RawContent is what the reader produced for one document.
type RawContent struct {
	Format models.DocumentFormat
	// Text is set for PDF and image documents.
	Text string
	// Rows is set for spreadsheet and CSV documents, empty rows included.
	Rows  []string
	Pages int
}

// Lines returns the content as 1-based-addressable lines for extraction.
func (c RawContent) Lines() []string {
	if c.Format.RowBased() {
		return c.Rows
	}
	if c.Text == "" {
		return nil
	}
	return strings.Split(c.Text, "\n")
}

// String joins the content into one string for format detection.
func (c RawContent) String() string {
	if c.Format.RowBased() {
		return strings.Join(c.Rows, "\n")
	}
	return c.Text
}

// AppendRecognized merges OCR output: text content gets it after a newline,
// row content gets it as one extra final row.
func (c *RawContent) AppendRecognized(text string) {
	if text == "" {
		return
	}
	if c.Format.RowBased() {
		c.Rows = append(c.Rows, text)
		return
	}
	if c.Text == "" {
		c.Text = text
		return
	}
	c.Text += "\n" + text
}

// Reader reads documents through a FileSystem collaborator.
type Reader struct {
	fs      fileutils.FileSystem
	pdf     *pdfparser.Reader
	tempDir string
	logger  logging.Logger
}

// New creates a Reader. Opaque uploads are materialized under tempDir.
func New(fs fileutils.FileSystem, pdf *pdfparser.Reader, tempDir string, logger logging.Logger) *Reader {
	logger = logging.OrDefault(logger)
	if pdf == nil {
		pdf = pdfparser.NewReader(logger, nil)
	}
	return &Reader{fs: fs, pdf: pdf, tempDir: tempDir, logger: logger}
}

// LocalFile is a directly readable document. Temporary copies of opaque
// uploads are deleted by Release.
type LocalFile struct {
	// URI is readable through the FileSystem.
	URI string
	// Source is the URI the caller supplied.
	Source string
	Name   string

	temporary bool
	fs        fileutils.FileSystem
	logger    logging.Logger
}

// Temporary reports whether URI is a copy owned by this LocalFile.
func (f *LocalFile) Temporary() bool {
	return f.temporary
}

// Path returns the OS path of the file, for external tools such as OCR.
func (f *LocalFile) Path() (string, error) {
	return fileutils.LocalPath(f.URI)
}

// Release deletes the temporary copy, if any. It ignores cancellation so it
// can run on every exit path.
func (f *LocalFile) Release() error {
	if f == nil || !f.temporary {
		return nil
	}
	f.temporary = false
	if err := f.fs.Delete(context.Background(), f.URI); err != nil {
		f.logger.WithError(err).Warn("Failed to remove temporary file",
			logging.F(logging.FieldFile, f.URI))
		return err
	}
	return nil
}

// Acquire makes uri readable. Plain paths are used in place; opaque handles
// are copied to a uniquely named temp file first. A failed copy leaves no
// file behind.
func (r *Reader) Acquire(ctx context.Context, uri string, format models.DocumentFormat) (*LocalFile, error) {
	name := fileutils.DisplayName(uri)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fileutils.IsOpaque(uri) {
		return &LocalFile{URI: uri, Source: uri, Name: name, fs: r.fs, logger: r.logger}, nil
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = defaultExtension(format)
	}
	dir := r.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	file := &LocalFile{
		URI:       filepath.Join(dir, "statement-"+uuid.NewString()+ext),
		Source:    uri,
		Name:      name,
		temporary: true,
		fs:        r.fs,
		logger:    r.logger,
	}

	if err := r.fs.Copy(ctx, uri, file.URI); err != nil {
		_ = file.Release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &parsererror.SourceError{URI: uri, Format: string(format), Err: err}
	}
	if err := ctx.Err(); err != nil {
		_ = file.Release()
		return nil, err
	}

	r.logger.Debug("Materialized opaque upload",
		logging.F(logging.FieldURI, uri),
		logging.F(logging.FieldFile, file.URI))
	return file, nil
}

// Read acquires uri, reads it and releases the temporary copy. Encrypted
// PDFs yield parsererror.ErrPasswordRequired or ErrPasswordIncorrect.
func (r *Reader) Read(ctx context.Context, uri string, format models.DocumentFormat, password string) (RawContent, error) {
	file, err := r.Acquire(ctx, uri, format)
	if err != nil {
		return RawContent{}, err
	}
	defer func() { _ = file.Release() }()

	return r.ReadLocal(ctx, file, format, password)
}

// ReadLocal reads an acquired file. password is only used for PDF and Excel.
func (r *Reader) ReadLocal(ctx context.Context, file *LocalFile, format models.DocumentFormat, password string) (RawContent, error) {
	if err := ctx.Err(); err != nil {
		return RawContent{}, err
	}

	var (
		content RawContent
		err     error
	)
	switch format {
	case models.FormatPDF:
		content, err = r.readPDF(ctx, file, password)
	case models.FormatExcel:
		content, err = r.readExcel(ctx, file, password)
	case models.FormatCSV:
		content, err = r.readCSV(ctx, file)
	case models.FormatImage:
		content, err = r.readImage(ctx, file)
	default:
		return RawContent{}, &parsererror.OptionsError{Option: "format", Reason: fmt.Sprintf("unsupported document format %q", format)}
	}
	if err != nil {
		return RawContent{}, err
	}
	if err := ctx.Err(); err != nil {
		return RawContent{}, err
	}

	r.logger.Debug("Document read",
		logging.F(logging.FieldFile, file.Name),
		logging.F(logging.FieldFormat, string(format)),
		logging.F(logging.FieldCount, len(content.Lines())))
	return content, nil
}

func (r *Reader) sourceError(file *LocalFile, format models.DocumentFormat, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	return &parsererror.SourceError{URI: file.Source, Format: string(format), Err: err}
}

func defaultExtension(format models.DocumentFormat) string {
	switch format {
	case models.FormatPDF:
		return ".pdf"
	case models.FormatExcel:
		return ".xlsx"
	case models.FormatCSV:
		return ".csv"
	case models.FormatImage:
		return ".png"
	}
	return ""
}
