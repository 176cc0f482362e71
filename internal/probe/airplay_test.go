package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAirPlayResponse(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>model</key>
	<string>AppleTV5,3</string>
	<key>features</key>
	<integer>61379444727</integer>
	<key>srcvers</key>
	<string>220.68</string>
	<key>blank</key>
	<string>  </string>
</dict>
</plist>`)

	fields := parseAirPlayResponse(payload)
	require.NotNil(t, fields)
	assert.Equal(t, "AppleTV5,3", fields["model"])
	assert.Equal(t, "61379444727", fields["features"])
	assert.Equal(t, "220.68", fields["srcvers"])
	assert.NotContains(t, fields, "blank")
}

func TestParseAirPlayResponseRejectsGarbage(t *testing.T) {
	assert.Nil(t, parseAirPlayResponse(nil))
	assert.Nil(t, parseAirPlayResponse([]byte("not a plist")))
}

func TestNormaliseAirPlayValue(t *testing.T) {
	assert.Equal(t, "", normaliseAirPlayValue(nil))
	assert.Equal(t, "true", normaliseAirPlayValue(true))
	assert.Equal(t, "false", normaliseAirPlayValue(false))
	assert.Equal(t, "hello", normaliseAirPlayValue([]byte("  hello ")))
	assert.Equal(t, "0AFF", normaliseAirPlayValue([]byte{0x0a, 0xff}))
	assert.Equal(t, "a, b", normaliseAirPlayValue([]any{"a", "", "b"}))
	assert.Equal(t, "x=1, y=2", normaliseAirPlayValue(map[string]any{"y": "2", "x": "1"}))
}
