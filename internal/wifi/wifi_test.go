package wifi

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubManager(responses map[string]string) *Manager {
	return &Manager{
		Iface:     "wlan0",
		APConName: "revcam-ap",
		Country:   "GB",
		run: func(_ context.Context, name string, args ...string) (string, error) {
			key := name + " " + strings.Join(args, " ")
			return responses[key], nil
		},
	}
}

func TestParseFields(t *testing.T) {
	got := parseFields("wlan0:wifi:connected:HomeNet", []string{"device", "type", "state", "connection"})
	assert.Equal(t, "wlan0", got["device"])
	assert.Equal(t, "wifi", got["type"])
	assert.Equal(t, "connected", got["state"])
	assert.Equal(t, "HomeNet", got["connection"])

	// Short lines leave trailing fields empty.
	got = parseFields("wlan0:wifi", []string{"device", "type", "state"})
	assert.Equal(t, "", got["state"])
}

func TestParseScan(t *testing.T) {
	out := strings.Join([]string{
		"*:HomeNet:WPA2:82:6",
		":HomeNet:WPA2:40:11", // duplicate ssid+security, weaker
		":CoffeeShop:--:55:1",
		":Hidden::30:6",
		"::WPA2:90:1", // empty ssid skipped
	}, "\n")

	nets := parseScan(out)
	require.Len(t, nets, 3)

	assert.Equal(t, "HomeNet", nets[0].SSID)
	assert.True(t, nets[0].InUse)
	assert.Equal(t, 82, nets[0].Signal, "dedup keeps the first (strongest seen) entry")
	assert.True(t, nets[0].NeedsPassword)

	assert.Equal(t, "CoffeeShop", nets[1].SSID)
	assert.False(t, nets[1].NeedsPassword)

	assert.Equal(t, "Hidden", nets[2].SSID)
	assert.False(t, nets[2].NeedsPassword)

	for i := 1; i < len(nets); i++ {
		assert.GreaterOrEqual(t, nets[i-1].Signal, nets[i].Signal, "sorted by signal desc")
	}
}

func TestStatusStationConnected(t *testing.T) {
	m := stubManager(map[string]string{
		"nmcli -t -f DEVICE,TYPE,STATE,CONNECTION device":        "lo:loopback:unmanaged:\nwlan0:wifi:connected:HomeNet",
		"nmcli -g 802-11-wireless.mode connection show HomeNet":  "infrastructure",
		"nmcli -g IP4.ADDRESS device show wlan0":                 "192.168.1.20/24",
	})

	st := m.Status(context.Background())
	assert.True(t, st.Connected)
	assert.False(t, st.APRunning)
	assert.Equal(t, "HomeNet", st.SSID)
	assert.Equal(t, "192.168.1.20", st.IP)
}

func TestStatusAPMode(t *testing.T) {
	m := stubManager(map[string]string{
		"nmcli -t -f DEVICE,TYPE,STATE,CONNECTION device":          "wlan0:wifi:connected:revcam-ap",
		"nmcli -g 802-11-wireless.mode connection show revcam-ap":  "ap",
		"nmcli -g IP4.ADDRESS device show wlan0":                   "10.42.0.1/24",
	})

	st := m.Status(context.Background())
	assert.False(t, st.Connected, "own AP does not count as connected")
	assert.True(t, st.APRunning)
	assert.Equal(t, "ap", st.Mode)
	assert.Equal(t, "10.42.0.1", st.IP)
}

func TestStatusDisconnected(t *testing.T) {
	m := stubManager(map[string]string{
		"nmcli -t -f DEVICE,TYPE,STATE,CONNECTION device": "wlan0:wifi:disconnected:",
		"nmcli -g IP4.ADDRESS device show wlan0":          "",
	})

	st := m.Status(context.Background())
	assert.False(t, st.Connected)
	assert.False(t, st.APRunning)
	assert.Equal(t, "", st.SSID)
}

func TestStateFileRoundTrip(t *testing.T) {
	orig := StatePath
	StatePath = filepath.Join(t.TempDir(), "wifi_ap_state.json")
	defer func() { StatePath = orig }()

	assert.Equal(t, "idle", ReadState().Status)

	WriteState("running", map[string]any{"ssid": "RevCam", "ip": "10.42.0.1"})
	st := ReadState()
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, "RevCam", st.Result["ssid"])
	assert.NotZero(t, st.TS)
}
