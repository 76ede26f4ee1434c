package source

import (
	"context"
	"fmt"

	"fjacquet/statement-ingest/internal/fileutils"
)

// FilePicker picks a fixed path or URI, filling metadata from the filesystem.
// The CLI uses it for --input.
type FilePicker struct {
	URI string
	FS  fileutils.FileSystem
}

// Pick implements Picker. An empty URI is a cancelled pick.
func (p *FilePicker) Pick(ctx context.Context) (PickerResponse, error) {
	if p.URI == "" {
		return PickerResponse{Cancelled: true}, nil
	}
	info, err := p.FS.Stat(ctx, p.URI)
	if err != nil {
		return PickerResponse{}, fmt.Errorf("failed to stat %s: %w", p.URI, err)
	}
	return PickerResponse{
		URI:      info.URI,
		Name:     info.Name,
		Size:     info.Size,
		MimeType: info.MimeType,
	}, nil
}

// StaticPicker answers with a response prepared elsewhere, such as an HTTP
// upload already written to disk.
type StaticPicker struct {
	Response PickerResponse
	Err      error
}

// Pick implements Picker.
func (p StaticPicker) Pick(context.Context) (PickerResponse, error) {
	return p.Response, p.Err
}
