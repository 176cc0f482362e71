package scan

import (
	"sort"
	"strings"

	"netscout/internal/tables"
)

// DefaultIconKey is returned when no classification rule matches.
const DefaultIconKey = "device"

// IconClassifier derives an icon key from a host's identity fields. It is a
// pure function of its inputs so the registry can recompute the key on every
// merge.
type IconClassifier struct {
	tables *tables.Tables
}

// NewIconClassifier builds a classifier over the given reference tables.
func NewIconClassifier(t *tables.Tables) *IconClassifier {
	if t == nil {
		t = tables.Defaults()
	}
	return &IconClassifier{tables: t}
}

// Classify evaluates the ordered rule list and returns the first matching
// icon key: explicit overrides, model keywords, vendor keywords, advertised
// service types, port heuristics, hostname keywords, then the generic
// fallback.
func (c *IconClassifier) Classify(vendor, model, hostname string, metadata map[string]map[string]string, ports []int) string {
	vendorLower := strings.ToLower(vendor)
	modelLower := strings.ToLower(model)
	hostLower := strings.ToLower(hostname)

	if vendor != "" && model != "" {
		if icon, ok := c.tables.IconOverrides[vendorLower+":"+modelLower]; ok {
			return icon
		}
	}
	if hostname != "" {
		if icon, ok := c.tables.IconOverrides[hostLower]; ok {
			return icon
		}
	}

	if icon := matchKeyword(c.tables.ModelRules, modelLower); icon != "" {
		return icon
	}
	if icon := matchKeyword(c.tables.VendorRules, vendorLower); icon != "" {
		return icon
	}

	if icon := c.serviceIcon(metadata); icon != "" {
		return icon
	}
	if icon := portIcon(ports); icon != "" {
		return icon
	}
	if icon := matchKeyword(c.tables.HostnameRules, hostLower); icon != "" {
		return icon
	}

	return DefaultIconKey
}

func matchKeyword(rules []tables.KeywordRule, value string) string {
	if value == "" {
		return ""
	}
	for _, rule := range rules {
		if rule.Keyword != "" && strings.Contains(value, rule.Keyword) {
			return rule.Icon
		}
	}
	return ""
}

// serviceIcon checks advertised service types in sorted order so the result
// does not depend on map iteration.
func (c *IconClassifier) serviceIcon(metadata map[string]map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	services := make([]string, 0, len(metadata))
	for service := range metadata {
		services = append(services, strings.ToLower(service))
	}
	sort.Strings(services)
	for _, service := range services {
		if icon, ok := c.tables.ServiceIcons[service]; ok {
			return icon
		}
	}
	return ""
}

func portIcon(ports []int) string {
	if len(ports) == 0 {
		return ""
	}
	open := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		open[p] = struct{}{}
	}
	has := func(p int) bool {
		_, ok := open[p]
		return ok
	}

	switch {
	case has(631) || has(9100):
		return "printer"
	case has(554) || has(8554):
		return "camera"
	case has(8009):
		return "tv"
	case has(3389):
		return "windows-pc"
	case has(445) && has(139):
		return "nas"
	case has(5900):
		return "desktop"
	case len(open) == 1 && has(22):
		return "server"
	case has(80) || has(443):
		return "web"
	}
	return ""
}
