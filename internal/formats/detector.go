package formats

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Detector selects the registry format of a document from its content.
// It is stateless after construction and safe for concurrent use.
type Detector struct {
	matcher *ahocorasick.Matcher
	// owners maps a dictionary index to the bank that declared the marker.
	owners []BankID
}

// NewDetector builds one Aho-Corasick automaton over every literal marker.
func NewDetector() *Detector {
	var dict []string
	var owners []BankID
	for _, f := range registry {
		for _, m := range f.Markers {
			dict = append(dict, strings.ToLower(m))
			owners = append(owners, f.ID)
		}
	}
	return &Detector{matcher: ahocorasick.NewStringMatcher(dict), owners: owners}
}

// Detect returns the first format, in registry order, with a matching marker.
func (d *Detector) Detect(content string) (Format, bool) {
	var hit [bankCount]bool
	for _, idx := range d.matcher.Match([]byte(strings.ToLower(content))) {
		hit[d.owners[idx]] = true
	}

	for _, f := range registry {
		if hit[f.ID] {
			return f, true
		}
		for _, p := range f.Patterns {
			if p.MatchString(content) {
				return f, true
			}
		}
	}
	return Format{}, false
}
