package wifi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// Manager drives NetworkManager (nmcli) for the wifi interface: status,
// scanning, station connects and the open fallback access point.
type Manager struct {
	Iface     string
	APConName string
	Country   string

	// run executes a command and returns combined trimmed stdout. Replaced
	// in tests.
	run func(ctx context.Context, name string, args ...string) (string, error)
}

func NewManager() *Manager {
	country := os.Getenv("REVCAM_WIFI_COUNTRY")
	if country == "" {
		country = "GB"
	}
	return &Manager{
		Iface:     "wlan0",
		APConName: "revcam-ap",
		Country:   country,
		run:       runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 40*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		if s != "" {
			return s, fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), s)
		}
		return s, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return s, nil
}

// Status is the wifi summary consumed by the boot watchdog and the API.
type Status struct {
	Connected bool   `json:"connected"`
	APRunning bool   `json:"ap_running"`
	SSID      string `json:"ssid"`
	Mode      string `json:"mode"`
	IP        string `json:"ip"`
}

// Network is one scanned access point.
type Network struct {
	InUse         bool   `json:"in_use"`
	SSID          string `json:"ssid"`
	Security      string `json:"security"`
	Signal        int    `json:"signal"`
	Channel       string `json:"chan"`
	NeedsPassword bool   `json:"needs_password"`
}

// parseFields splits one line of `nmcli -t` output into named columns.
func parseFields(line string, fields []string) map[string]string {
	parts := strings.Split(line, ":")
	out := make(map[string]string, len(fields))
	for i, f := range fields {
		if i < len(parts) {
			out[f] = strings.TrimSpace(parts[i])
		} else {
			out[f] = ""
		}
	}
	return out
}

func (m *Manager) deviceState(ctx context.Context) map[string]string {
	out, _ := m.run(ctx, "nmcli", "-t", "-f", "DEVICE,TYPE,STATE,CONNECTION", "device")
	for _, ln := range strings.Split(out, "\n") {
		if ln == "" {
			continue
		}
		d := parseFields(ln, []string{"device", "type", "state", "connection"})
		if d["device"] == m.Iface || d["type"] == "wifi" {
			return d
		}
	}
	return map[string]string{}
}

func (m *Manager) activeConns(ctx context.Context) []map[string]string {
	out, _ := m.run(ctx, "nmcli", "-t", "-f", "NAME,UUID,TYPE,DEVICE", "connection", "show", "--active")
	var conns []map[string]string
	for _, ln := range strings.Split(out, "\n") {
		if ln == "" {
			continue
		}
		conns = append(conns, parseFields(ln, []string{"name", "uuid", "type", "device"}))
	}
	return conns
}

func (m *Manager) connMode(ctx context.Context, name string) string {
	out, _ := m.run(ctx, "nmcli", "-g", "802-11-wireless.mode", "connection", "show", name)
	return strings.TrimSpace(out)
}

func (m *Manager) ip4Addr(ctx context.Context) string {
	out, _ := m.run(ctx, "nmcli", "-g", "IP4.ADDRESS", "device", "show", m.Iface)
	s := strings.TrimSpace(out)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}

// Status reports the wifi device state. Connected means a station link, not
// our own access point.
func (m *Manager) Status(ctx context.Context) Status {
	wlan := m.deviceState(ctx)
	state := strings.ToLower(wlan["state"])
	connected := state == "connected"
	ssid := ""
	if connected {
		ssid = wlan["connection"]
	}

	mode := ""
	apRunning := false
	if connected && ssid != "" {
		mode = m.connMode(ctx, ssid)
		apRunning = mode == "ap"
	} else if wlan["connection"] == m.APConName {
		apRunning = true
		mode = "ap"
		ssid = m.APConName
	}

	return Status{
		Connected: connected && mode != "ap",
		APRunning: apRunning,
		SSID:      ssid,
		Mode:      mode,
		IP:        m.ip4Addr(ctx),
	}
}

// Scan rescans and lists visible networks, deduplicated by (ssid, security)
// and sorted by signal strength, strongest first.
func (m *Manager) Scan(ctx context.Context) ([]Network, error) {
	m.run(ctx, "nmcli", "radio", "wifi", "on")
	m.run(ctx, "rfkill", "unblock", "wifi")
	m.run(ctx, "nmcli", "device", "wifi", "rescan", "ifname", m.Iface)
	out, err := m.run(ctx, "nmcli", "-t", "-f", "IN-USE,SSID,SECURITY,SIGNAL,CHAN", "device", "wifi", "list", "ifname", m.Iface)
	if err != nil {
		return nil, err
	}
	return parseScan(out), nil
}

func parseScan(out string) []Network {
	var nets []Network
	seen := make(map[string]struct{})
	for _, ln := range strings.Split(out, "\n") {
		if ln == "" {
			continue
		}
		f := parseFields(ln, []string{"inuse", "ssid", "security", "signal", "chan"})
		if f["ssid"] == "" {
			continue
		}
		key := f["ssid"] + "\x00" + f["security"]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sec := f["security"]
		nets = append(nets, Network{
			InUse:         strings.Contains(f["inuse"], "*"),
			SSID:          f["ssid"],
			Security:      sec,
			Signal:        cast.ToInt(f["signal"]),
			Channel:       f["chan"],
			NeedsPassword: sec != "--" && sec != "" && sec != "NONE",
		})
	}
	sort.SliceStable(nets, func(i, j int) bool { return nets[i].Signal > nets[j].Signal })
	return nets
}

// APResult is the outcome of StartOpenAP.
type APResult struct {
	OK   bool   `json:"ok"`
	AP   bool   `json:"ap"`
	SSID string `json:"ssid"`
	IP   string `json:"ip"`
}

// StartOpenAP tears down any active wlan connection and brings up an open
// access point on the interface, verifying AP mode within a timeout and
// retrying once through a device bounce.
func (m *Manager) StartOpenAP(ctx context.Context, ssid string) (*APResult, error) {
	if !m.hasNmcli(ctx) {
		return nil, errors.New("NetworkManager (nmcli) not installed/enabled")
	}
	m.run(ctx, "rfkill", "unblock", "wifi")
	m.run(ctx, "nmcli", "radio", "wifi", "on")
	m.run(ctx, "nmcli", "device", "set", m.Iface, "managed", "yes")
	for _, c := range m.activeConns(ctx) {
		if c["device"] == m.Iface {
			m.run(ctx, "nmcli", "connection", "down", c["name"])
		}
	}
	sleep(ctx, 1200*time.Millisecond)
	m.run(ctx, "nmcli", "connection", "delete", m.APConName)

	if _, err := m.run(ctx, "nmcli", "connection", "add",
		"type", "wifi", "ifname", m.Iface, "con-name", m.APConName, "ssid", ssid); err != nil {
		return nil, err
	}
	m.run(ctx, "nmcli", "connection", "modify", m.APConName, "802-11-wireless.country", m.Country)
	if _, err := m.run(ctx, "nmcli", "connection", "modify", m.APConName,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"802-11-wireless.channel", "6",
		"802-11-wireless.hidden", "no",
		"802-11-wireless-security.key-mgmt", "none",
		"ipv4.method", "shared",
		"ipv4.addresses", "10.42.0.1/24",
		"ipv4.gateway", "10.42.0.1",
		"ipv6.method", "ignore",
		"connection.autoconnect", "no",
		"802-11-wireless.cloned-mac-address", "permanent"); err != nil {
		return nil, err
	}
	if _, err := m.run(ctx, "nmcli", "connection", "up", m.APConName, "ifname", m.Iface); err != nil {
		return nil, err
	}

	if !m.verifyAP(ctx, 9*time.Second) {
		// Bounce the device once and try again.
		m.run(ctx, "nmcli", "device", "disconnect", m.Iface)
		sleep(ctx, time.Second)
		m.run(ctx, "nmcli", "device", "connect", m.Iface)
		sleep(ctx, 800*time.Millisecond)
		m.run(ctx, "nmcli", "connection", "up", m.APConName, "ifname", m.Iface)
		if !m.verifyAP(ctx, 6*time.Second) {
			return nil, errors.New("failed to enter AP mode within timeout")
		}
	}

	res := &APResult{OK: true, AP: true, SSID: ssid, IP: m.ip4Addr(ctx)}
	log.Info().Str("module", "wifi").Str("ssid", ssid).Str("ip", res.IP).Msg("access point up")
	return res, nil
}

func (m *Manager) verifyAP(ctx context.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		for _, c := range m.activeConns(ctx) {
			if c["device"] == m.Iface && m.connMode(ctx, c["name"]) == "ap" {
				return true
			}
		}
		if !sleep(ctx, 250*time.Millisecond) {
			return false
		}
	}
	return false
}

// StopAP brings the access point profile down. Best effort.
func (m *Manager) StopAP(ctx context.Context) {
	m.run(ctx, "nmcli", "connection", "down", m.APConName)
}

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	IP      string `json:"ip"`
}

// Connect joins a station network, dropping the AP first if it is up.
func (m *Manager) Connect(ctx context.Context, ssid, password string) (*ConnectResult, error) {
	if !m.hasNmcli(ctx) {
		return nil, errors.New("NetworkManager (nmcli) not installed/enabled")
	}
	m.StopAP(ctx)
	m.run(ctx, "rfkill", "unblock", "wifi")
	m.run(ctx, "nmcli", "radio", "wifi", "on")
	args := []string{"device", "wifi", "connect", ssid, "ifname", m.Iface}
	if password != "" {
		args = append(args, "password", password)
	}
	out, err := m.run(ctx, "nmcli", args...)
	if err != nil {
		return nil, err
	}
	sleep(ctx, time.Second)
	msg := out
	if msg == "" {
		msg = "connected"
	}
	return &ConnectResult{OK: true, Message: msg, IP: m.ip4Addr(ctx)}, nil
}

// Debug gathers raw nmcli output for troubleshooting.
func (m *Manager) Debug(ctx context.Context) map[string]string {
	cmds := map[string][]string{
		"nmcli -v":               {"nmcli", "-v"},
		"nmcli g status":         {"nmcli", "general", "status"},
		"nmcli radio all":        {"nmcli", "radio", "all"},
		"nmcli device":           {"nmcli", "device"},
		"nmcli con show":         {"nmcli", "connection", "show"},
		"nmcli con show active":  {"nmcli", "connection", "show", "--active"},
		"device show " + m.Iface: {"nmcli", "device", "show", m.Iface},
	}
	out := make(map[string]string, len(cmds))
	for k, c := range cmds {
		s, err := m.run(ctx, c[0], c[1:]...)
		if err != nil {
			out[k] = "ERR: " + err.Error()
			continue
		}
		out[k] = s
	}
	return out
}

func (m *Manager) hasNmcli(ctx context.Context) bool {
	_, err := m.run(ctx, "nmcli", "-v")
	return err == nil
}

// Watchdog waits out the boot delay and starts the fallback access point if
// the device ended up neither connected nor already in AP mode.
func (m *Manager) Watchdog(ctx context.Context, delay time.Duration, ssid string) {
	if !sleep(ctx, delay) {
		return
	}
	st := m.Status(ctx)
	if st.Connected || st.APRunning {
		log.Info().Str("module", "wifi").Bool("connected", st.Connected).Bool("ap", st.APRunning).Msg("watchdog: network ok")
		return
	}
	log.Warn().Str("module", "wifi").Msg("watchdog: no network, starting fallback AP")
	WriteState("starting", nil)
	res, err := m.StartOpenAP(ctx, ssid)
	if err != nil {
		log.Error().Err(err).Str("module", "wifi").Msg("watchdog: fallback AP failed")
		WriteState("failed", map[string]any{"error": err.Error()})
		return
	}
	WriteState("running", map[string]any{"ssid": res.SSID, "ip": res.IP})
}

// sleep waits for d or until ctx ends; reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
