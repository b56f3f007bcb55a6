package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcam/revcam/internal/core"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.yaml"))
}

func writeRaw(t *testing.T, s *Store, raw string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.path), 0o755))
	require.NoError(t, os.WriteFile(s.path, []byte(raw), 0o644))
}

func TestLoadCreatesAndPersistsDefaults(t *testing.T) {
	s := tempStore(t)

	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), rec)

	_, err = os.Stat(s.path)
	require.NoError(t, err, "defaults should have been persisted")

	again, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, rec, again)
}

func TestRotateCoercion(t *testing.T) {
	for _, bad := range []string{"45", "91", "-90", "361"} {
		t.Run(bad, func(t *testing.T) {
			s := tempStore(t)
			writeRaw(t, s, fmt.Sprintf("video:\n  rotate: %s\n", bad))
			rec, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, core.Rotate0, rec.Video.Rotate)
		})
	}

	s := tempStore(t)
	writeRaw(t, s, "video:\n  rotate: 270\n")
	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, core.Rotate270, rec.Video.Rotate)
}

func TestMirrorCoercion(t *testing.T) {
	for _, bad := range []string{"diagonal", "both", "1", "flip"} {
		t.Run(bad, func(t *testing.T) {
			s := tempStore(t)
			writeRaw(t, s, fmt.Sprintf("video:\n  mirror: %s\n", bad))
			rec, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, core.MirrorNone, rec.Video.Mirror)
		})
	}

	s := tempStore(t)
	writeRaw(t, s, "video:\n  mirror: vertical\n")
	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, core.MirrorVertical, rec.Video.Mirror)
}

func TestFieldLevelRepair(t *testing.T) {
	s := tempStore(t)
	// width is malformed, fps is fine, server section is missing entirely.
	writeRaw(t, s, "video:\n  width: notanumber\n  fps: 30\n")

	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 960, rec.Video.Width, "malformed field falls back to its default")
	assert.Equal(t, 30, rec.Video.FPS, "valid sibling field survives")
	assert.Equal(t, "0.0.0.0", rec.Server.Host)
	assert.Equal(t, 8080, rec.Server.Port)
}

func TestUnreadableFileRepairsToDefaults(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, "{{{ not yaml at all")

	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), rec)
}

func TestLegacyFlipField(t *testing.T) {
	cases := []struct {
		flip   string
		mirror core.Mirror
		rotate core.Rotation
	}{
		{"horizontal", core.MirrorHorizontal, core.Rotate0},
		{"vertical", core.MirrorVertical, core.Rotate0},
		{"rotate-90", core.MirrorNone, core.Rotate90},
		{"rotate180", core.MirrorNone, core.Rotate180},
		{"270", core.MirrorNone, core.Rotate270},
		{"garbage", core.MirrorNone, core.Rotate0},
	}
	for _, tc := range cases {
		t.Run(tc.flip, func(t *testing.T) {
			s := tempStore(t)
			writeRaw(t, s, fmt.Sprintf("video:\n  flip: %q\n", tc.flip))
			rec, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, tc.mirror, rec.Video.Mirror)
			assert.Equal(t, tc.rotate, rec.Video.Rotate)
		})
	}
}

func TestLegacyFlipIgnoredWhenNewFieldsPresent(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, "video:\n  flip: horizontal\n  mirror: none\n  rotate: 90\n")
	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, core.MirrorNone, rec.Video.Mirror)
	assert.Equal(t, core.Rotate90, rec.Video.Rotate)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	rec := Defaults()
	rec.Server.Host = "127.0.0.1"
	rec.Server.Port = 9000
	rec.WebRTC.STUNServers = []string{
		"stun:stun.example.org:3478",
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	}
	rec.WebRTC.TURN = "turn:turn.example.org:3478"
	rec.WebRTC.TURNUsername = "user"
	rec.WebRTC.TURNPassword = "pass"
	rec.Video.Width = 1280
	rec.Video.Height = 720
	rec.Video.FPS = 30
	rec.Video.Bitrate = 2_000_000
	rec.Video.Mirror = core.MirrorHorizontal
	rec.Video.Rotate = core.Rotate180

	require.NoError(t, s.Save(rec))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, rec, got, "round-trip must preserve every field, STUN order included")
}

func TestPublicViewRedactsTURNCredentials(t *testing.T) {
	rec := Defaults()
	rec.WebRTC.TURN = "turn:turn.example.org:3478"
	rec.WebRTC.TURNUsername = "user"
	rec.WebRTC.TURNPassword = "secret"

	pub := rec.Public()
	assert.Equal(t, rec.WebRTC.TURN, pub.WebRTC.TURN)
	assert.Equal(t, rec.WebRTC.STUNServers, pub.WebRTC.STUNServers)
	assert.Equal(t, rec.Video, pub.Video)
}
