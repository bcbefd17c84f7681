// Package canonical normalizes loosely-formatted submission fields into the
// single form the registry stores and indexes.
package canonical

import (
	"fmt"
	"strings"
)

var (
	affirmative = []string{"yes", "y", "true", "t"}
	negative    = []string{"no", "n", "false", "f"}

	// Prefix order matters: the SOP allows doi:, https://doi.org/ and
	// https://dx.doi.org/ forms, and exactly one prefix is stripped.
	doiPrefixes = []string{"doi:", "https://doi.org/", "https://dx.doi.org/"}
)

// YesNo maps any accepted affirmative or negative spelling to "Yes" or "No".
func YesNo(resp string) (string, error) {
	lowered := strings.ToLower(resp)
	for _, accepted := range affirmative {
		if lowered == accepted {
			return "Yes", nil
		}
	}
	for _, accepted := range negative {
		if lowered == accepted {
			return "No", nil
		}
	}
	return "", fmt.Errorf("value %q is not one of: %s", resp,
		strings.Join(append(append([]string{}, affirmative...), negative...), ", "))
}

// YesNoAccepted reports every accepted spelling, for error messages.
func YesNoAccepted() []string {
	return append(append([]string{}, affirmative...), negative...)
}

// DOI strips one recognized prefix from a DOI string. A value carrying none
// of the prefixes is an error; the bare registry form is what gets stored.
func DOI(original string) (string, error) {
	for _, prefix := range doiPrefixes {
		if trimmed, ok := strings.CutPrefix(original, prefix); ok {
			return trimmed, nil
		}
	}
	return "", fmt.Errorf("DOI %q: none of the prefixes %s matched", original, strings.Join(doiPrefixes, ","))
}

// DOIList canonicalizes a comma-delimited DOI list. Any entry that fails to
// canonicalize fails the whole list; a typo'd DOI must be reported, not
// silently dropped.
func DOIList(originals string) (string, error) {
	var out []string
	for _, entry := range strings.Split(originals, ",") {
		doi, err := DOI(strings.TrimSpace(entry))
		if err != nil {
			return "", err
		}
		out = append(out, doi)
	}
	return strings.Join(out, ","), nil
}

// DOIPrefixes reports the accepted prefix forms, for error messages.
func DOIPrefixes() []string {
	return doiPrefixes
}
