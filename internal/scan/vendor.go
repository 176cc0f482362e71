package scan

import (
	"strings"

	"github.com/endobit/oui"

	"netscout/internal/tables"
)

// VendorResolver turns a link-layer address into a vendor name, and for
// pinned devices a model. Lookup order: exact per-address override, extra
// prefix table, built-in IEEE registry, then the TXT-record hint. An empty
// result is not an error.
type VendorResolver struct {
	tables *tables.Tables
}

// NewVendorResolver builds a resolver over the given reference tables.
func NewVendorResolver(t *tables.Tables) *VendorResolver {
	if t == nil {
		t = tables.Defaults()
	}
	return &VendorResolver{tables: t}
}

// Resolve looks up vendor and model for a MAC address. The hint is a vendor
// name advertised by the device itself (mDNS TXT "vn"/"usb_MFG") and is used
// only when every table misses.
func (v *VendorResolver) Resolve(mac, hint string) (vendor, model string) {
	mac = normaliseMAC(mac)

	if mac != "" {
		if override, ok := v.tables.MACOverrides[mac]; ok {
			return override.Vendor, override.Model
		}

		if prefixVendor := v.prefixLookup(mac); prefixVendor != "" {
			vendor = prefixVendor
		} else {
			vendor = oui.Vendor(strings.ToLower(mac))
		}
	}

	if vendor == "" {
		vendor = strings.TrimSpace(hint)
	}

	// Apple OUIs come back with the full corporate name; collapse so model
	// stripping and icon rules see the same spelling mDNS uses.
	if strings.Contains(strings.ToLower(vendor), "apple") {
		vendor = "Apple"
	}

	return vendor, ""
}

// prefixLookup finds the longest matching entry in the extra prefix table.
func (v *VendorResolver) prefixLookup(mac string) string {
	best := ""
	bestLen := 0
	for prefix, vendor := range v.tables.VendorPrefixes {
		if len(prefix) > bestLen && strings.HasPrefix(mac, prefix) {
			best = vendor
			bestLen = len(prefix)
		}
	}
	return best
}
