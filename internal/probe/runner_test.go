package probe

import (
	"context"
	"testing"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netscout/internal/errors"
	"netscout/internal/scan"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 8, cfg.Chunks)
	assert.Equal(t, 100, cfg.TopPorts)
	assert.Equal(t, 4, cfg.Timing)
	assert.Equal(t, 4, cfg.DeepTiming)
	assert.InDelta(t, 4.0, cfg.EnrichRate, 0.001)
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	cfg := Config{Chunks: 2, TopPorts: 50, Timing: 3, DeepTiming: 5, EnrichRate: 1}.withDefaults()
	assert.Equal(t, 2, cfg.Chunks)
	assert.Equal(t, 50, cfg.TopPorts)
	assert.Equal(t, 3, cfg.Timing)
	assert.Equal(t, 5, cfg.DeepTiming)
	assert.InDelta(t, 1.0, cfg.EnrichRate, 0.001)
}

func TestConfigClampsBadTiming(t *testing.T) {
	cfg := Config{Timing: 9, DeepTiming: -1}.withDefaults()
	assert.Equal(t, 4, cfg.Timing)
	assert.Equal(t, 4, cfg.DeepTiming)
}

func TestSweepFindingConversion(t *testing.T) {
	host := nmap.Host{
		Status: nmap.Status{State: "up"},
		Addresses: []nmap.Address{
			{Addr: "10.0.0.5", AddrType: "ipv4"},
			{Addr: "00:1B:A9:11:22:33", AddrType: "mac", Vendor: "Brother Industries"},
		},
		Hostnames: []nmap.Hostname{{Name: "printer.lan"}},
		Times:     nmap.Times{SRTT: "2500"},
		Ports: []nmap.Port{
			{ID: 631, Protocol: "tcp", State: nmap.State{State: "open"}, Service: nmap.Service{Name: "ipp"}},
			{ID: 9100, Protocol: "tcp", State: nmap.State{State: "closed"}, Service: nmap.Service{Name: "jetdirect"}},
			{ID: 5353, Protocol: "udp", State: nmap.State{State: "open"}},
		},
	}

	finding, ok := sweepFinding(&host)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", finding.Address)
	assert.Equal(t, "00:1B:A9:11:22:33", finding.MAC)
	assert.Equal(t, "Brother Industries", finding.MACVendor)
	assert.Equal(t, "printer.lan", finding.Hostname)
	assert.InDelta(t, 2.5, finding.LatencyMs, 0.001)
	assert.Equal(t, []scan.PortFinding{{Port: 631, Label: "ipp"}}, finding.Ports)
}

func TestSweepFindingSkipsDownHost(t *testing.T) {
	host := nmap.Host{
		Status:    nmap.Status{State: "down"},
		Addresses: []nmap.Address{{Addr: "10.0.0.7", AddrType: "ipv4"}},
	}
	_, ok := sweepFinding(&host)
	assert.False(t, ok)
}

func TestSweepFindingSkipsAddresslessHost(t *testing.T) {
	host := nmap.Host{
		Status:    nmap.Status{State: "up"},
		Addresses: []nmap.Address{{Addr: "aa:bb:cc:dd:ee:ff", AddrType: "mac"}},
	}
	_, ok := sweepFinding(&host)
	assert.False(t, ok)
}

func TestBestOSMatchTakesFirst(t *testing.T) {
	host := nmap.Host{
		OS: nmap.OS{Matches: []nmap.OSMatch{
			{Name: "Linux 5.X"},
			{Name: "Linux 4.X"},
		}},
	}
	assert.Equal(t, "Linux 5.X", bestOSMatch(&host))
	assert.Empty(t, bestOSMatch(&nmap.Host{}))
}

func TestSrttMillis(t *testing.T) {
	assert.InDelta(t, 2.5, srttMillis("2500"), 0.001)
	assert.InDelta(t, 0.198, srttMillis(" 198 "), 0.001)
	assert.Zero(t, srttMillis(""))
	assert.Zero(t, srttMillis("garbage"))
	assert.Zero(t, srttMillis("-12"))
}

func TestPortList(t *testing.T) {
	assert.Equal(t, "22,80,8443", portList([]int{22, 80, 8443}))
	assert.Equal(t, "445", portList([]int{445}))
}

func TestDeepScanOptionsPerMode(t *testing.T) {
	modes := []scan.DeepScanMode{
		{Kind: scan.KindQuick},
		{Kind: scan.KindAdvanced},
		{Kind: scan.KindCustom, Ports: []int{80, 443}},
	}
	for _, mode := range modes {
		options, err := deepScanOptions("10.0.0.9", mode, 4)
		require.NoError(t, err, "mode %s", mode.Kind)
		assert.NotEmpty(t, options, "mode %s", mode.Kind)
	}
}

func TestDeepScanOptionsRejectsBadModes(t *testing.T) {
	bad := []scan.DeepScanMode{
		{},
		{Kind: "turbo"},
		{Kind: scan.KindCustom},
		{Kind: scan.KindCustom, Ports: []int{0}},
	}
	for _, mode := range bad {
		_, err := deepScanOptions("10.0.0.9", mode, 4)
		assert.Error(t, err, "mode %+v", mode)
	}
}

func TestSweepRejectsMalformedTarget(t *testing.T) {
	runner := NewRunner(Config{})
	err := runner.Sweep(context.Background(), "not-a-range", func(scan.SweepFinding) {
		t.Fatal("no finding expected")
	}, func(float64) {
		t.Fatal("no progress expected")
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMalformedResult))
}

func TestDeepScanRejectsBadMode(t *testing.T) {
	runner := NewRunner(Config{})
	_, err := runner.DeepScan(context.Background(), "10.0.0.9", scan.DeepScanMode{Kind: "turbo"}, func(float64) {
		t.Fatal("no progress expected")
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMalformedResult))
}

func TestSetMetadata(t *testing.T) {
	var findings scan.DeepFindings
	setMetadata(&findings, "airplay", nil)
	assert.Nil(t, findings.Metadata)

	setMetadata(&findings, "airplay", map[string]string{"model": "AppleTV5,3"})
	require.NotNil(t, findings.Metadata)
	assert.Equal(t, "AppleTV5,3", findings.Metadata["airplay"]["model"])
}

func TestHasPort(t *testing.T) {
	ports := []scan.PortFinding{{Port: 139}, {Port: 445, Label: "microsoft-ds"}}
	assert.True(t, hasPort(ports, 445))
	assert.False(t, hasPort(ports, 7000))
	assert.False(t, hasPort(nil, 445))
}
