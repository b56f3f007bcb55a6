package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/revcam/revcam/internal/config"
	"github.com/revcam/revcam/internal/core"
)

// Broadcaster is the pion-backed media session: one peer connection carrying
// one sendonly VP8 track fed from a VideoSource. It implements
// core.MediaSession for exactly one viewer.
type Broadcaster struct {
	sid     string
	pc      *webrtc.PeerConnection
	track   *webrtc.TrackLocalStaticSample
	sender  *webrtc.RTPSender
	source  VideoSource
	offerer bool

	onLocalDesc func(kind, sdp string)
	onLocalICE  func(candidate string, mlineIndex uint16)

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ICEConfiguration maps the record's transport hints to a pion configuration:
// the STUN list in order, then the TURN server with its credentials when set.
func ICEConfiguration(rec *config.Record) webrtc.Configuration {
	var servers []webrtc.ICEServer
	for _, u := range rec.WebRTC.STUNServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	if rec.WebRTC.TURN != "" {
		srv := webrtc.ICEServer{URLs: []string{rec.WebRTC.TURN}}
		if rec.WebRTC.TURNUsername != "" {
			srv.Username = rec.WebRTC.TURNUsername
			srv.Credential = rec.WebRTC.TURNPassword
		}
		servers = append(servers, srv)
	}
	return webrtc.Configuration{ICEServers: servers}
}

// NewBroadcaster builds a media session from a configuration snapshot.
// offerer selects whether Start produces the local offer.
func NewBroadcaster(rec *config.Record, src VideoSource, offerer bool) (*Broadcaster, error) {
	pc, err := webrtc.NewPeerConnection(ICEConfiguration(rec))
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "revcam",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("new local track: %w", err)
	}
	tr, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video transceiver: %w", err)
	}

	return &Broadcaster{
		sid:     uuid.NewString(),
		pc:      pc,
		track:   track,
		sender:  tr.Sender(),
		source:  src,
		offerer: offerer,
	}, nil
}

func (b *Broadcaster) OnLocalDescription(fn func(kind, sdp string)) { b.onLocalDesc = fn }

func (b *Broadcaster) OnLocalCandidate(fn func(candidate string, mlineIndex uint16)) {
	b.onLocalICE = fn
}

func (b *Broadcaster) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || b.onLocalICE == nil {
			return
		}
		init := c.ToJSON()
		var mline uint16
		if init.SDPMLineIndex != nil {
			mline = *init.SDPMLineIndex
		}
		b.onLocalICE(init.Candidate, mline)
	})
	b.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", b.sid).Str("ice_state", s.String()).Msg("ICE state")
	})
	b.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", b.sid).Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})

	go b.drainRTCP(ctx)
	go b.pump(ctx)

	if b.offerer {
		offer, err := b.pc.CreateOffer(nil)
		if err != nil {
			return fmt.Errorf("create offer: %w", err)
		}
		if err := b.pc.SetLocalDescription(offer); err != nil {
			return fmt.Errorf("set local offer: %w", err)
		}
		if b.onLocalDesc != nil {
			// Emit off this goroutine; candidates trickle separately.
			go b.onLocalDesc(core.SDPOffer, offer.SDP)
		}
	}
	return nil
}

func (b *Broadcaster) HandleRemoteDescription(kind, sdp string) error {
	var t webrtc.SDPType
	switch kind {
	case core.SDPOffer:
		t = webrtc.SDPTypeOffer
	case core.SDPAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("unknown description kind %q", kind)
	}
	if err := b.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s: %w", kind, err)
	}
	return nil
}

func (b *Broadcaster) CreateAnswer() (string, error) {
	answer, err := b.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := b.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (b *Broadcaster) AddRemoteCandidate(candidate string, mlineIndex uint16) error {
	return b.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMLineIndex: &mlineIndex,
	})
}

func (b *Broadcaster) ApplyMirror(m core.Mirror) bool {
	ok := b.source.SetMirror(m)
	log.Info().Str("module", "webrtc").Str("sid", b.sid).Str("mirror", string(m)).Bool("applied", ok).Msg("live mirror")
	return ok
}

func (b *Broadcaster) ApplyRotate(r core.Rotation) bool {
	ok := b.source.SetRotate(r)
	log.Info().Str("module", "webrtc").Str("sid", b.sid).Int("rotate", int(r)).Bool("applied", ok).Msg("live rotate")
	return ok
}

func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		if err := b.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", b.sid).Msg("close error")
		}
		if err := b.source.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", b.sid).Msg("source close error")
		}
		log.Info().Str("module", "webrtc").Str("sid", b.sid).Msg("closed")
	})
}

// pump moves frames from the source into the track until the context ends.
func (b *Broadcaster) pump(ctx context.Context) {
	for {
		sample, err := b.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("module", "webrtc").Str("sid", b.sid).Msg("video source stopped")
			}
			return
		}
		if err := b.track.WriteSample(sample); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", b.sid).Msg("write sample")
			return
		}
	}
}

// drainRTCP keeps interceptor feedback flowing; the reports themselves are
// the encoder's concern, not ours.
func (b *Broadcaster) drainRTCP(ctx context.Context) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := b.sender.Read(buf); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

var _ core.MediaSession = (*Broadcaster)(nil)
