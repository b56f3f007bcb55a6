package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cast"

	"github.com/revcam/revcam/internal/core"
)

// Record is the durable camera configuration. It is mutated only through the
// dispatcher; sessions take a snapshot of it at build time.
type Record struct {
	Server ServerRecord `yaml:"server" json:"server"`
	WebRTC WebRTCRecord `yaml:"webrtc" json:"webrtc"`
	Video  VideoRecord  `yaml:"video" json:"video"`
}

type ServerRecord struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type WebRTCRecord struct {
	STUNServers  []string `yaml:"stun_servers" json:"stun_servers"`
	TURN         string   `yaml:"turn,omitempty" json:"turn"`
	TURNUsername string   `yaml:"turn_username,omitempty" json:"turn_username"`
	TURNPassword string   `yaml:"turn_password,omitempty" json:"turn_password"`
}

type VideoRecord struct {
	Width   int           `yaml:"width" json:"width"`
	Height  int           `yaml:"height" json:"height"`
	FPS     int           `yaml:"fps" json:"fps"`
	Bitrate int           `yaml:"bitrate" json:"bitrate"`
	Mirror  core.Mirror   `yaml:"mirror" json:"mirror"`
	Rotate  core.Rotation `yaml:"rotate" json:"rotate"`
}

func Defaults() *Record {
	return &Record{
		Server: ServerRecord{Host: "0.0.0.0", Port: 8080},
		WebRTC: WebRTCRecord{
			STUNServers: []string{"stun:stun.l.google.com:19302"},
		},
		Video: VideoRecord{
			Width:   960,
			Height:  540,
			FPS:     25,
			Bitrate: 1_200_000,
			Mirror:  core.MirrorNone,
			Rotate:  core.Rotate0,
		},
	}
}

// PublicView is the record with TURN credentials stripped, safe to hand to
// viewers and API clients.
type PublicView struct {
	Server ServerRecord `json:"server"`
	WebRTC PublicWebRTC `json:"webrtc"`
	Video  VideoRecord  `json:"video"`
}

type PublicWebRTC struct {
	STUNServers []string `json:"stun_servers"`
	TURN        string   `json:"turn"`
}

func (r *Record) Public() PublicView {
	return PublicView{
		Server: r.Server,
		WebRTC: PublicWebRTC{STUNServers: r.WebRTC.STUNServers, TURN: r.WebRTC.TURN},
		Video:  r.Video,
	}
}

// Store persists the Record as a single YAML file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the record, repairing it field by field: every absent or
// malformed field falls back to its default instead of failing the whole
// record. A missing file is created with defaults.
func (s *Store) Load() (*Record, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		rec := Defaults()
		if err := s.Save(rec); err != nil {
			return nil, fmt.Errorf("persist default record: %w", err)
		}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		// Unreadable file: treat as empty and repair everything from defaults.
		data = map[string]any{}
	}
	return coerceRecord(data), nil
}

// Save atomically overwrites the stored record.
func (s *Store) Save(rec *Record) error {
	out, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

func coerceRecord(data map[string]any) *Record {
	rec := Defaults()

	srv := section(data, "server")
	rec.Server.Host = strOr(srv, "host", rec.Server.Host)
	rec.Server.Port = intOr(srv, "port", rec.Server.Port)

	w := section(data, "webrtc")
	rec.WebRTC.STUNServers = strsOr(w, "stun_servers", rec.WebRTC.STUNServers)
	rec.WebRTC.TURN = strOr(w, "turn", rec.WebRTC.TURN)
	rec.WebRTC.TURNUsername = strOr(w, "turn_username", rec.WebRTC.TURNUsername)
	rec.WebRTC.TURNPassword = strOr(w, "turn_password", rec.WebRTC.TURNPassword)

	v := section(data, "video")
	rec.Video.Width = intOr(v, "width", rec.Video.Width)
	rec.Video.Height = intOr(v, "height", rec.Video.Height)
	rec.Video.FPS = intOr(v, "fps", rec.Video.FPS)
	rec.Video.Bitrate = intOr(v, "bitrate", rec.Video.Bitrate)

	mirror := core.ParseMirror(strOr(v, "mirror", string(rec.Video.Mirror)))
	rotate := core.ParseRotation(intOr(v, "rotate", int(rec.Video.Rotate)))
	if _, hasMirror := v["mirror"]; !hasMirror {
		if _, hasRotate := v["rotate"]; !hasRotate {
			// Records written before mirror/rotate were split carry a single
			// "flip" field. Honor it only when the new fields are absent.
			mirror, rotate = legacyFlip(strOr(v, "flip", "none"))
		}
	}
	rec.Video.Mirror = mirror
	rec.Video.Rotate = rotate

	return rec
}

func legacyFlip(flip string) (core.Mirror, core.Rotation) {
	switch flip {
	case "horizontal", "vertical":
		return core.Mirror(flip), core.Rotate0
	case "rotate-90", "rotate90", "90":
		return core.MirrorNone, core.Rotate90
	case "rotate-180", "rotate180", "180":
		return core.MirrorNone, core.Rotate180
	case "rotate-270", "rotate270", "270":
		return core.MirrorNone, core.Rotate270
	default:
		return core.MirrorNone, core.Rotate0
	}
}

func section(m map[string]any, key string) map[string]any {
	s, err := cast.ToStringMapE(m[key])
	if err != nil || s == nil {
		return map[string]any{}
	}
	return s
}

func strOr(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

func intOr(m map[string]any, key string, def int) int {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func strsOr(m map[string]any, key string, def []string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	ss, err := cast.ToStringSliceE(v)
	if err != nil {
		return def
	}
	return ss
}
