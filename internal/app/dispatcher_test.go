package app

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcam/revcam/internal/config"
	"github.com/revcam/revcam/internal/core"
)

func newTestDispatcher(t *testing.T, mode ViewerMode) (*Dispatcher, *Registry, *config.Store) {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	reg := NewRegistry(mode)
	return NewDispatcher(store, reg), reg, store
}

func TestMirrorPatchChangesExactlyMirror(t *testing.T) {
	d, _, store := newTestDispatcher(t, MultiViewer)

	rep, err := d.Apply(map[string]any{"mirror": "vertical"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"mirror": core.MirrorVertical}, rep.Changed)

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, core.MirrorVertical, rec.Video.Mirror)
	assert.Equal(t, 960, rec.Video.Width, "capture size untouched")
	assert.Equal(t, 25, rec.Video.FPS, "frame rate untouched")
}

func TestWidthIsRestartRequired(t *testing.T) {
	d, reg, store := newTestDispatcher(t, MultiViewer)
	sess := &fakeSession{acceptLive: true}
	reg.Register(sess)

	rep, err := d.Apply(map[string]any{"width": 1920})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"width": 1920}, rep.Changed)
	assert.Equal(t, 0, rep.LiveAppliedTo["mirror"])
	assert.Equal(t, 0, rep.LiveAppliedTo["rotate"])
	assert.Empty(t, sess.mirrors)
	assert.Empty(t, sess.rotates)

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1920, rec.Video.Width, "persisted even though restart-required")
}

func TestRotateLiveFanout(t *testing.T) {
	d, reg, store := newTestDispatcher(t, MultiViewer)
	sess := &fakeSession{acceptLive: true}
	reg.Register(sess)

	rep, err := d.Apply(map[string]any{"rotate": 180})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.LiveAppliedTo["rotate"])
	assert.Equal(t, []core.Rotation{core.Rotate180}, sess.rotates)

	// With no active sessions the change still persists.
	reg.Unregister(sess)
	rep, err = d.Apply(map[string]any{"rotate": 90})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.LiveAppliedTo["rotate"])

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, core.Rotate90, rec.Video.Rotate)
}

func TestRotateCoercedBeforeFanout(t *testing.T) {
	d, _, store := newTestDispatcher(t, MultiViewer)

	rep, err := d.Apply(map[string]any{"rotate": 45})
	require.NoError(t, err)
	assert.Equal(t, core.Rotate0, rep.Changed["rotate"])

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, core.Rotate0, rec.Video.Rotate)
}

func TestUnparseableFieldKeepsPreviousValue(t *testing.T) {
	d, _, store := newTestDispatcher(t, MultiViewer)

	rep, err := d.Apply(map[string]any{"width": "notanumber", "fps": 30})
	require.NoError(t, err)

	_, widthChanged := rep.Changed["width"]
	assert.False(t, widthChanged, "failed coercion is omitted from the changed set")
	assert.Equal(t, 30, rep.Changed["fps"])

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 960, rec.Video.Width)
	assert.Equal(t, 30, rec.Video.FPS)
}

func TestLiveApplyRejectionIsCountedNotFatal(t *testing.T) {
	d, reg, _ := newTestDispatcher(t, MultiViewer)
	accepting := &fakeSession{acceptLive: true}
	rejecting := &fakeSession{acceptLive: false}
	reg.Register(accepting)
	reg.Register(rejecting)

	rep, err := d.Apply(map[string]any{"mirror": "horizontal"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.LiveAppliedTo["mirror"])
	assert.Equal(t, 0, rejecting.stopCount(), "a rejecting session is not torn down")
	assert.Equal(t, 2, reg.Len())
}

func TestReportIncludesRedactedConfig(t *testing.T) {
	d, _, store := newTestDispatcher(t, MultiViewer)

	rec, err := store.Load()
	require.NoError(t, err)
	rec.WebRTC.TURN = "turn:turn.example.org:3478"
	rec.WebRTC.TURNUsername = "user"
	rec.WebRTC.TURNPassword = "secret"
	require.NoError(t, store.Save(rec))

	rep, err := d.Apply(map[string]any{"mirror": "none"})
	require.NoError(t, err)
	assert.Equal(t, "turn:turn.example.org:3478", rep.Config.WebRTC.TURN)
}

func TestConcurrentAppliesSerialize(t *testing.T) {
	d, _, store := newTestDispatcher(t, MultiViewer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := d.Apply(map[string]any{"fps": 10 + n})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := store.Load()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.Video.FPS, 10)
	assert.LessOrEqual(t, rec.Video.FPS, 17)
}
