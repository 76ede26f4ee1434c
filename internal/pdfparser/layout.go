package pdfparser

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// ledongthuc/pdf reports a text run's origin but not its width, so the end
// of a run is estimated from an average glyph advance at body text size.
const (
	approxGlyphAdvance = 5.0
	columnGap          = 12.0
)

type piece struct {
	X float64
	S string
}

// joinPieces rebuilds one visual line. Runs separated by more than a column
// gap are joined with two spaces so the extractor can split text columns.
func joinPieces(pieces []piece) string {
	sort.SliceStable(pieces, func(i, j int) bool { return pieces[i].X < pieces[j].X })

	var b strings.Builder
	prevEnd := 0.0
	for _, p := range pieces {
		s := strings.TrimSpace(p.S)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			if p.X-prevEnd > columnGap {
				b.WriteString("  ")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(s)
		prevEnd = p.X + float64(utf8.RuneCountInString(s))*approxGlyphAdvance
	}
	return b.String()
}
