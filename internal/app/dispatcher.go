package app

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/revcam/revcam/internal/config"
	"github.com/revcam/revcam/internal/core"
)

// Report is the outcome of one configuration patch: which fields were
// actually changed, and for each live field how many active sessions
// absorbed the new value.
type Report struct {
	Changed       map[string]any    `json:"changed"`
	LiveAppliedTo map[string]int    `json:"live_applied_to"`
	Config        config.PublicView `json:"config"`
}

// Dispatcher is the single mutation path for the configuration record.
// It validates and classifies a patch, persists the whole record, and fans
// live-applicable fields out to every active session.
type Dispatcher struct {
	mu       sync.Mutex
	store    *config.Store
	registry *Registry
}

func NewDispatcher(store *config.Store, registry *Registry) *Dispatcher {
	return &Dispatcher{store: store, registry: registry}
}

// Apply runs a partial video patch. Load, modify and save are serialized
// under one mutex so concurrent writers cannot interleave; fan-out happens
// after the record is durable, so any session built afterwards already sees
// the new values.
//
// A field that fails coercion keeps its previous value and is omitted from
// the Changed set; the rest of the patch still applies. Mirror and rotate
// never fail, they coerce to their defaults.
func (d *Dispatcher) Apply(video map[string]any) (*Report, error) {
	d.mu.Lock()
	rec, err := d.store.Load()
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}

	changed := make(map[string]any)

	if v, ok := video["mirror"]; ok {
		rec.Video.Mirror = core.ParseMirror(cast.ToString(v))
		changed["mirror"] = rec.Video.Mirror
	}
	if v, ok := video["rotate"]; ok {
		deg, err := cast.ToIntE(v)
		if err != nil {
			deg = 0
		}
		rec.Video.Rotate = core.ParseRotation(deg)
		changed["rotate"] = rec.Video.Rotate
	}

	// Restart-required fields: persisted now, effective for sessions built
	// from the record afterwards.
	restart := map[string]*int{
		"width":   &rec.Video.Width,
		"height":  &rec.Video.Height,
		"fps":     &rec.Video.FPS,
		"bitrate": &rec.Video.Bitrate,
	}
	for name, dst := range restart {
		v, ok := video[name]
		if !ok {
			continue
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			log.Warn().Str("module", "app.dispatcher").Str("field", name).Msg("unparseable patch field, keeping previous value")
			continue
		}
		*dst = n
		changed[name] = n
	}

	if err := d.store.Save(rec); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	applied := map[string]int{"mirror": 0, "rotate": 0}
	_, mirrorChanged := changed["mirror"]
	_, rotateChanged := changed["rotate"]
	if mirrorChanged || rotateChanged {
		d.registry.ForEachActive(func(s core.Session) {
			if mirrorChanged && s.ApplyMirror(rec.Video.Mirror) {
				applied["mirror"]++
			}
			if rotateChanged && s.ApplyRotate(rec.Video.Rotate) {
				applied["rotate"]++
			}
		})
	}

	log.Info().Str("module", "app.dispatcher").
		Int("fields", len(changed)).
		Int("live_mirror", applied["mirror"]).
		Int("live_rotate", applied["rotate"]).
		Msg("configuration patch applied")

	return &Report{
		Changed:       changed,
		LiveAppliedTo: applied,
		Config:        rec.Public(),
	}, nil
}
