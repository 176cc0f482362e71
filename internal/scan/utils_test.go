package scan

import (
	"testing"
)

func TestNormaliseMAC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"8c-85-90-12-34-56", "8C:85:90:12:34:56"},
		{"b8:27:eb:aa:bb:cc", "B8:27:EB:AA:BB:CC"},
		{"at 00:11:32:aa:bb:cc on eth0", "00:11:32:AA:BB:CC"},
		{"invalid", ""},
		{"", ""},
		{"b8:27:eb", ""},
	}
	for _, tc := range cases {
		if got := normaliseMAC(tc.in); got != tc.want {
			t.Fatalf("normaliseMAC(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestCleanHostname(t *testing.T) {
	if got := cleanHostname(" nas.local. "); got != "nas.local" {
		t.Fatalf("expected trimmed hostname, got %q", got)
	}
	if got := cleanHostname(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestCleanModelStripsVendor(t *testing.T) {
	cases := []struct {
		vendor string
		model  string
		want   string
	}{
		{"Brother", "Brother HL-L2350DW series", "HL-L2350DW series"},
		{"Synology Inc.", "Synology DS920+", "DS920+"},
		{"HP Inc.", "HP  OfficeJet  Pro", "OfficeJet Pro"},
		{"Apple", "MacBookPro18,3", "MacBookPro18,3"},
		{"", "Brother HL-L2350DW", "Brother HL-L2350DW"},
		{"Brother", "Brother", "Brother"},
	}
	for _, tc := range cases {
		if got := cleanModel(tc.vendor, tc.model); got != tc.want {
			t.Fatalf("cleanModel(%q, %q): expected %q, got %q", tc.vendor, tc.model, tc.want, got)
		}
	}
}

func TestCleanModelDropsJunk(t *testing.T) {
	for _, junk := range []string{"", "0", "0,1,2", "  0  "} {
		if got := cleanModel("Apple", junk); got != "" {
			t.Fatalf("expected junk %q dropped, got %q", junk, got)
		}
	}
}

func TestMineModelHint(t *testing.T) {
	text := map[string]string{"ty": "Brother HL-L2350DW", "model": "0,1,2"}
	if got := mineModelHint(text); got != "Brother HL-L2350DW" {
		t.Fatalf("expected junk model key skipped, got %q", got)
	}
	if got := mineModelHint(map[string]string{"md": "Chromecast"}); got != "Chromecast" {
		t.Fatalf("expected md key, got %q", got)
	}
	if got := mineModelHint(nil); got != "" {
		t.Fatalf("expected empty for nil text, got %q", got)
	}
}

func TestServiceLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"_ipp._tcp", "ipp"},
		{"_airplay._tcp.", "airplay"},
		{"_sleep-proxy._udp", "sleep-proxy"},
		{"http", "http"},
	}
	for _, tc := range cases {
		if got := serviceLabel(tc.in); got != tc.want {
			t.Fatalf("serviceLabel(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestSortedPorts(t *testing.T) {
	set := map[int]struct{}{443: {}, 22: {}, 80: {}}
	got := sortedPorts(set)
	want := []int{22, 80, 443}
	for i, p := range want {
		if got[i] != p {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if sortedPorts(nil) != nil {
		t.Fatalf("expected nil for empty set")
	}
}
