package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcam/revcam/internal/core"
)

type fakeSession struct {
	mu         sync.Mutex
	stops      int
	mirrors    []core.Mirror
	rotates    []core.Rotation
	acceptLive bool
	reg        *Registry
}

func (f *fakeSession) ApplyMirror(m core.Mirror) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrors = append(f.mirrors, m)
	return f.acceptLive
}

func (f *fakeSession) ApplyRotate(r core.Rotation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotates = append(f.rotates, r)
	return f.acceptLive
}

func (f *fakeSession) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	if f.reg != nil {
		f.reg.Unregister(f)
	}
}

func (f *fakeSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func TestRegisterUnregister(t *testing.T) {
	r := NewRegistry(MultiViewer)
	a := &fakeSession{}
	b := &fakeSession{}

	r.Register(a)
	r.Register(b)
	require.Equal(t, 2, r.Len())

	r.Unregister(a)
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(MultiViewer)
	a := &fakeSession{}

	r.Register(a)
	r.Unregister(a)
	r.Unregister(a)
	r.Unregister(&fakeSession{})
	assert.Equal(t, 0, r.Len())
}

func TestSingleViewerPreemption(t *testing.T) {
	r := NewRegistry(SingleViewer)
	a := &fakeSession{reg: r}
	b := &fakeSession{reg: r}

	r.Register(a)
	r.Register(b)

	assert.Equal(t, 1, a.stopCount(), "previous viewer must be stopped")
	assert.Equal(t, 0, b.stopCount())
	assert.Equal(t, 1, r.Len())

	var seen []core.Session
	r.ForEachActive(func(s core.Session) { seen = append(seen, s) })
	require.Len(t, seen, 1)
	assert.Same(t, b, seen[0])
}

func TestMultiViewerNoPreemption(t *testing.T) {
	r := NewRegistry(MultiViewer)
	a := &fakeSession{reg: r}
	b := &fakeSession{reg: r}

	r.Register(a)
	r.Register(b)

	assert.Equal(t, 0, a.stopCount())
	assert.Equal(t, 2, r.Len())
}

func TestForEachActiveSnapshotSurvivesUnregister(t *testing.T) {
	r := NewRegistry(MultiViewer)
	a := &fakeSession{}
	b := &fakeSession{}
	r.Register(a)
	r.Register(b)

	// Unregistering mid-iteration must not deadlock or skip the snapshot.
	visited := 0
	r.ForEachActive(func(s core.Session) {
		visited++
		r.Unregister(s)
	})
	assert.Equal(t, 2, visited)
	assert.Equal(t, 0, r.Len())
}

func TestParseViewerMode(t *testing.T) {
	assert.Equal(t, SingleViewer, ParseViewerMode("single"))
	assert.Equal(t, MultiViewer, ParseViewerMode("multi"))
	assert.Equal(t, MultiViewer, ParseViewerMode(""))
}
