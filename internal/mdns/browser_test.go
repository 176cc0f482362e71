package mdns

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecord(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: "Brother HL-L2350DW series",
			Service:  "_ipp._tcp",
			Domain:   "local.",
		},
		HostName: "printer.local.",
		Port:     631,
		Text:     []string{"ty=Brother HL-L2350DW series", "rp=ipp/print", "Transparent"},
		AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
	}

	record, ok := toRecord(entry)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", record.Address)
	assert.Equal(t, "printer.local", record.Hostname)
	assert.Equal(t, "_ipp._tcp", record.Service)
	assert.Equal(t, 631, record.Port)
	assert.Equal(t, "Brother HL-L2350DW series", record.Text["ty"])
	assert.Equal(t, "ipp/print", record.Text["rp"])
	assert.Equal(t, "", record.Text["Transparent"])
}

func TestToRecordDropsAddressless(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost", Service: "_http._tcp"},
		HostName:      "ghost.local.",
	}
	_, ok := toRecord(entry)
	assert.False(t, ok)

	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	_, ok = toRecord(entry)
	assert.False(t, ok)

	_, ok = toRecord(nil)
	assert.False(t, ok)
}

func TestToRecordFallsBackToInstanceName(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: "Living Room TV @ chromecast",
			Service:  "_googlecast._tcp",
		},
		AddrIPv4: []net.IP{net.ParseIP("10.0.0.30")},
	}

	record, ok := toRecord(entry)
	require.True(t, ok)
	assert.Equal(t, "Living Room TV", record.Hostname)
}

func TestParseTXT(t *testing.T) {
	text := parseTXT([]string{"md=Chromecast", "bare", "  ", "eq=a=b", "=nokey"})
	assert.Equal(t, "Chromecast", text["md"])
	assert.Equal(t, "", text["bare"])
	assert.Equal(t, "a=b", text["eq"])
	assert.NotContains(t, text, "")
	assert.Len(t, text, 3)

	assert.Nil(t, parseTXT(nil))
	assert.Nil(t, parseTXT([]string{"", "   "}))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "_http._tcp", typeName("_http._tcp.local."))
	assert.Equal(t, "_ipp._tcp", typeName("_ipp._tcp"))
	assert.Equal(t, "_sleep-proxy._udp", typeName(" _sleep-proxy._udp. "))
	assert.Equal(t, "", typeName("printer"))
	assert.Equal(t, "", typeName(""))
}

func TestGroupTypes(t *testing.T) {
	types := []string{"a", "b", "c", "d", "e"}
	groups := groupTypes(types, 2)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a", "b"}, groups[0])
	assert.Equal(t, []string{"c", "d"}, groups[1])
	assert.Equal(t, []string{"e"}, groups[2])

	assert.Nil(t, groupTypes(nil, 2))
	assert.Len(t, groupTypes(types, 0), 5)
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "Office Printer", instanceName("Office Printer @ hp-envy"))
	assert.Equal(t, "nas", instanceName("nas"))
	assert.Equal(t, "", instanceName(""))
}

func TestBaselineCoversCommonTypes(t *testing.T) {
	want := []string{"_ipp._tcp", "_airplay._tcp", "_googlecast._tcp", "_smb._tcp", "_workstation._tcp"}
	have := make(map[string]struct{}, len(baselineServices))
	for _, service := range baselineServices {
		have[service] = struct{}{}
	}
	for _, service := range want {
		assert.Contains(t, have, service)
	}
}
