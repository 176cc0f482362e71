// Package tables holds the read-only reference data used for vendor
// resolution and icon classification: OUI prefix additions, per-device
// overrides, and ordered keyword rules. Callers load the tables once and pass
// them into the engine; the engine never writes to them.
package tables

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Override pins a vendor (and optionally a model) to one exact MAC address.
type Override struct {
	Vendor string `json:"vendor"`
	Model  string `json:"model,omitempty"`
}

// KeywordRule maps a lowercase substring to an icon key. Rules are evaluated
// in order; the first match wins.
type KeywordRule struct {
	Keyword string `json:"keyword"`
	Icon    string `json:"icon"`
}

// Tables bundles every lookup the engine consumes.
type Tables struct {
	// VendorPrefixes maps MAC prefixes ("B8:27:EB") to vendor names,
	// consulted before the built-in IEEE registry.
	VendorPrefixes map[string]string
	// MACOverrides pins full MAC addresses to a vendor/model.
	MACOverrides map[string]Override
	// IconOverrides maps "vendor:model" pairs or bare hostnames to icons,
	// checked before any heuristic rule.
	IconOverrides map[string]string
	// ModelRules, VendorRules and HostnameRules are ordered keyword matches
	// against the respective record field.
	ModelRules    []KeywordRule
	VendorRules   []KeywordRule
	HostnameRules []KeywordRule
	// ServiceIcons maps mDNS service types to icons.
	ServiceIcons map[string]string
}

type iconRulesFile struct {
	Overrides     map[string]string `json:"overrides,omitempty"`
	ModelRules    []KeywordRule     `json:"model_rules,omitempty"`
	VendorRules   []KeywordRule     `json:"vendor_rules,omitempty"`
	HostnameRules []KeywordRule     `json:"hostname_rules,omitempty"`
	ServiceIcons  map[string]string `json:"service_icons,omitempty"`
}

// Load returns the built-in defaults overlaid with any JSON files found in
// dir. An empty dir or missing files yield the defaults; malformed JSON is an
// error. Recognised files: vendor_prefixes.json, mac_overrides.json,
// icon_rules.json.
func Load(dir string) (*Tables, error) {
	t := Defaults()
	if dir == "" {
		return t, nil
	}

	var prefixes map[string]string
	if err := readJSON(filepath.Join(dir, "vendor_prefixes.json"), &prefixes); err != nil {
		return nil, err
	}
	for prefix, vendor := range prefixes {
		t.VendorPrefixes[canonMAC(prefix)] = vendor
	}

	var overrides map[string]Override
	if err := readJSON(filepath.Join(dir, "mac_overrides.json"), &overrides); err != nil {
		return nil, err
	}
	for mac, ov := range overrides {
		t.MACOverrides[canonMAC(mac)] = ov
	}

	var icons iconRulesFile
	if err := readJSON(filepath.Join(dir, "icon_rules.json"), &icons); err != nil {
		return nil, err
	}
	for key, icon := range icons.Overrides {
		t.IconOverrides[strings.ToLower(key)] = icon
	}
	if len(icons.ModelRules) > 0 {
		t.ModelRules = icons.ModelRules
	}
	if len(icons.VendorRules) > 0 {
		t.VendorRules = icons.VendorRules
	}
	if len(icons.HostnameRules) > 0 {
		t.HostnameRules = icons.HostnameRules
	}
	for service, icon := range icons.ServiceIcons {
		t.ServiceIcons[strings.ToLower(service)] = icon
	}

	return t, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// canonMAC uppercases a MAC or MAC prefix and maps separators to colons.
func canonMAC(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(raw, "-", ":"), ".", ":"))
}
