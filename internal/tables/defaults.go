package tables

// Defaults returns the built-in tables covering common home and small-office
// devices. Loaded JSON files extend or replace these entries.
func Defaults() *Tables {
	return &Tables{
		VendorPrefixes: map[string]string{
			"B8:27:EB": "Raspberry Pi",
			"DC:A6:32": "Raspberry Pi",
			"E4:5F:01": "Raspberry Pi",
			"D8:3A:DD": "Raspberry Pi",
			"24:0A:C4": "Espressif",
			"84:CC:A8": "Espressif",
			"EC:FA:BC": "Espressif",
			"44:17:93": "Shelly",
			"74:AC:B9": "Ubiquiti",
			"F0:9F:C2": "Ubiquiti",
			"00:11:32": "Synology",
			"24:5E:BE": "QNAP",
			"00:1B:A9": "Brother",
			"9C:93:4E": "Xerox",
		},
		MACOverrides: map[string]Override{},
		IconOverrides: map[string]string{},
		ModelRules: []KeywordRule{
			{Keyword: "macbook", Icon: "laptop"},
			{Keyword: "imac", Icon: "desktop"},
			{Keyword: "mac mini", Icon: "desktop"},
			{Keyword: "macmini", Icon: "desktop"},
			{Keyword: "appletv", Icon: "tv"},
			{Keyword: "apple tv", Icon: "tv"},
			{Keyword: "iphone", Icon: "phone"},
			{Keyword: "ipad", Icon: "tablet"},
			{Keyword: "watch", Icon: "watch"},
			{Keyword: "homepod", Icon: "media"},
			{Keyword: "airport", Icon: "router"},
			{Keyword: "laserjet", Icon: "printer"},
			{Keyword: "officejet", Icon: "printer"},
			{Keyword: "deskjet", Icon: "printer"},
			{Keyword: "envy", Icon: "printer"},
			{Keyword: "pixma", Icon: "printer"},
			{Keyword: "ecotank", Icon: "printer"},
			{Keyword: "diskstation", Icon: "nas"},
			{Keyword: "chromecast", Icon: "tv"},
			{Keyword: "shield", Icon: "tv"},
			{Keyword: "sonos", Icon: "media"},
			{Keyword: "thinkpad", Icon: "laptop"},
			{Keyword: "surface", Icon: "laptop"},
		},
		VendorRules: []KeywordRule{
			{Keyword: "apple", Icon: "apple"},
			{Keyword: "raspberry", Icon: "server"},
			{Keyword: "espressif", Icon: "smart-home"},
			{Keyword: "shelly", Icon: "smart-home"},
			{Keyword: "philips lighting", Icon: "smart-home"},
			{Keyword: "signify", Icon: "smart-home"},
			{Keyword: "ubiquiti", Icon: "router"},
			{Keyword: "mikrotik", Icon: "router"},
			{Keyword: "tp-link", Icon: "router"},
			{Keyword: "netgear", Icon: "router"},
			{Keyword: "avm", Icon: "router"},
			{Keyword: "cisco", Icon: "router"},
			{Keyword: "synology", Icon: "nas"},
			{Keyword: "qnap", Icon: "nas"},
			{Keyword: "western digital", Icon: "nas"},
			{Keyword: "hewlett", Icon: "printer"},
			{Keyword: "epson", Icon: "printer"},
			{Keyword: "canon", Icon: "printer"},
			{Keyword: "brother", Icon: "printer"},
			{Keyword: "xerox", Icon: "printer"},
			{Keyword: "lexmark", Icon: "printer"},
			{Keyword: "hikvision", Icon: "camera"},
			{Keyword: "axis communications", Icon: "camera"},
			{Keyword: "reolink", Icon: "camera"},
			{Keyword: "sonos", Icon: "media"},
			{Keyword: "samsung electronics", Icon: "tv"},
			{Keyword: "lg electronics", Icon: "tv"},
		},
		HostnameRules: []KeywordRule{
			{Keyword: "router", Icon: "router"},
			{Keyword: "gateway", Icon: "router"},
			{Keyword: "fritz.box", Icon: "router"},
			{Keyword: "printer", Icon: "printer"},
			{Keyword: "nas", Icon: "nas"},
			{Keyword: "diskstation", Icon: "nas"},
			{Keyword: "raspberrypi", Icon: "server"},
			{Keyword: "macbook", Icon: "laptop"},
			{Keyword: "iphone", Icon: "phone"},
			{Keyword: "ipad", Icon: "tablet"},
			{Keyword: "cam", Icon: "camera"},
			{Keyword: "tv", Icon: "tv"},
		},
		ServiceIcons: map[string]string{
			"_ipp._tcp":             "printer",
			"_ipps._tcp":            "printer",
			"_printer._tcp":         "printer",
			"_pdl-datastream._tcp":  "printer",
			"_uscan._tcp":           "printer",
			"_airplay._tcp":         "media",
			"_raop._tcp":            "media",
			"_spotify-connect._tcp": "media",
			"_sonos._tcp":           "media",
			"_daap._tcp":            "media",
			"_googlecast._tcp":      "tv",
			"_hap._tcp":             "smart-home",
			"_homekit._tcp":         "smart-home",
			"_hue._tcp":             "smart-home",
			"_afpovertcp._tcp":      "nas",
			"_nfs._tcp":             "nas",
			"_rdp._tcp":             "windows-pc",
			"_workstation._tcp":     "desktop",
			"_rtsp._tcp":            "camera",
		},
	}
}
