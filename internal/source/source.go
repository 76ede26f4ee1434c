// Package source normalizes document picker responses into one Selection.
// Pickers differ in the shape they answer with (a flat result or a wrapped
// list of assets); nothing past this package sees those shapes.
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/logging"
)

// Outcome is the result of a pick.
type Outcome string

const (
	OutcomeSelected  Outcome = "selected"
	OutcomeCancelled Outcome = "cancelled"
)

// Selection is the canonical pick result. Only metadata is carried, never content.
type Selection struct {
	Outcome     Outcome `json:"outcome"`
	URI         string  `json:"uri,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
	ByteSize    int64   `json:"byteSize,omitempty"`
	MimeType    string  `json:"mimeType,omitempty"`
}

// Selected reports whether a document was picked.
func (s Selection) Selected() bool {
	return s.Outcome == OutcomeSelected
}

// Asset is one entry of a wrapped picker response.
type Asset struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// PickerResponse is the raw answer of a picker. Flat responses fill the
// top-level fields; wrapped responses fill Assets. Both spellings of the
// cancellation flag are accepted.
type PickerResponse struct {
	Cancelled bool    `json:"cancelled,omitempty"`
	Canceled  bool    `json:"canceled,omitempty"`
	URI       string  `json:"uri,omitempty"`
	Name      string  `json:"name,omitempty"`
	Size      int64   `json:"size,omitempty"`
	MimeType  string  `json:"mimeType,omitempty"`
	Assets    []Asset `json:"assets,omitempty"`
}

// DecodeResponse parses a JSON picker response of either shape.
func DecodeResponse(data []byte) (PickerResponse, error) {
	var resp PickerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return PickerResponse{}, fmt.Errorf("failed to decode picker response: %w", err)
	}
	return resp, nil
}

// Normalize converts a raw response into a Selection. A cancelled flag, an
// empty asset list or an empty URI all mean cancelled.
func (r PickerResponse) Normalize() Selection {
	if r.Cancelled || r.Canceled {
		return cancelled()
	}

	asset := Asset{URI: r.URI, Name: r.Name, Size: r.Size, MimeType: r.MimeType}
	if r.Assets != nil {
		if len(r.Assets) == 0 {
			return cancelled()
		}
		asset = r.Assets[0]
	}
	if asset.URI == "" {
		return cancelled()
	}

	name := asset.Name
	if name == "" {
		name = fileutils.DisplayName(asset.URI)
	}
	return Selection{
		Outcome:     OutcomeSelected,
		URI:         asset.URI,
		DisplayName: name,
		ByteSize:    asset.Size,
		MimeType:    asset.MimeType,
	}
}

func cancelled() Selection {
	return Selection{Outcome: OutcomeCancelled}
}

// Picker is the host's document picker.
type Picker interface {
	Pick(ctx context.Context) (PickerResponse, error)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(ctx context.Context) (PickerResponse, error)

// Pick implements Picker.
func (f PickerFunc) Pick(ctx context.Context) (PickerResponse, error) {
	return f(ctx)
}

// Pick asks picker for a document. Picker failures are not errors for the
// caller: they are logged and reported as a cancelled selection.
func Pick(ctx context.Context, picker Picker, logger logging.Logger) Selection {
	logger = logging.OrDefault(logger)
	if err := ctx.Err(); err != nil {
		return cancelled()
	}

	resp, err := picker.Pick(ctx)
	if err != nil {
		logger.WithError(err).Warn("Document picker failed, treating as cancelled")
		return cancelled()
	}

	sel := resp.Normalize()
	if sel.Selected() {
		logger.Debug("Document selected",
			logging.F(logging.FieldURI, sel.URI),
			logging.F(logging.FieldFile, sel.DisplayName))
	}
	return sel
}
