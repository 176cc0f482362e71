package scan

import (
	"regexp"
	"sort"
	"strings"
)

var (
	macLinePattern    = regexp.MustCompile(`(?i)([0-9a-f]{2}[:-]){5}([0-9a-f]{2})`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// junkModels are TXT-record model values that carry no information.
var junkModels = map[string]struct{}{
	"":      {},
	"0":     {},
	"0,1,2": {},
}

func normaliseMAC(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(raw, "-", ":"), ".", ":"))
	match := macLinePattern.FindString(raw)
	if match == "" {
		return ""
	}
	parts := strings.Split(match, ":")
	if len(parts) != 6 {
		return ""
	}
	for i := range parts {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	return strings.Join(parts, ":")
}

func cleanHostname(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), ".")
}

// cleanModel normalises a model string from a TXT record or probe: junk
// values are dropped, whitespace collapsed, and a leading vendor name removed
// so "HP LaserJet M281" under vendor "HP" becomes "LaserJet M281".
func cleanModel(vendor, model string) string {
	model = strings.TrimSpace(whitespacePattern.ReplaceAllString(model, " "))
	if _, junk := junkModels[strings.ToLower(model)]; junk {
		return ""
	}
	if vendor != "" {
		lower := strings.ToLower(model)
		for _, prefix := range vendorPrefixForms(vendor) {
			if strings.HasPrefix(lower, prefix+" ") {
				stripped := strings.TrimSpace(model[len(prefix):])
				if stripped != "" {
					return stripped
				}
			}
		}
	}
	return model
}

// vendorPrefixForms returns lowercase variants of a vendor name worth
// stripping from a model: the full name and its first word, minus common
// company suffixes.
func vendorPrefixForms(vendor string) []string {
	lower := strings.ToLower(strings.TrimSpace(vendor))
	if lower == "" {
		return nil
	}
	for _, suffix := range []string{" inc.", " inc", " llc", " ltd.", " ltd", " gmbh", " co.", " corp.", " corp"} {
		lower = strings.TrimSuffix(lower, suffix)
	}
	forms := []string{lower}
	if first, _, found := strings.Cut(lower, " "); found && len(first) > 1 {
		forms = append(forms, first)
	}
	return forms
}

func sortedPorts(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
