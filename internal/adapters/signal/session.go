package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/revcam/revcam/internal/app"
	"github.com/revcam/revcam/internal/core"
)

// State is the position of one viewer connection in the signaling handshake.
type State int

const (
	StateNew State = iota
	StateOffering
	StateAwaitingAnswer
	StateAwaitingOffer
	StateAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateAwaitingOffer:
		return "awaiting_offer"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role selects which peer sends the initial offer. It is a deployment-wide
// choice, not a per-session one.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func ParseRole(s string) Role {
	if s == "answer" {
		return RoleAnswerer
	}
	return RoleOfferer
}

// envelope is the wire shape of every signaling message, discriminated by
// Type: "offer" and "answer" carry SDP, "ice" carries a trickled candidate.
type envelope struct {
	Type          string `json:"type"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

type pendingCandidate struct {
	candidate string
	mline     uint16
}

// Session drives the SDP/ICE exchange for one viewer. It is the sole owner
// of its media session; the registry only holds a membership reference.
//
// Inbound messages arrive on a single goroutine (the read pump), so handshake
// steps are processed strictly in arrival order. Stop may be called from any
// goroutine, any number of times.
type Session struct {
	id     string
	role   Role
	media  core.MediaSession
	sender core.SignalSender
	reg    *app.Registry

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []pendingCandidate

	closeOnce sync.Once
}

func NewSession(role Role, media core.MediaSession, sender core.SignalSender, reg *app.Registry) *Session {
	return &Session{
		id:     uuid.NewString(),
		role:   role,
		media:  media,
		sender: sender,
		reg:    reg,
		state:  StateNew,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start registers the session and begins the handshake. As offerer the media
// session emits the local offer asynchronously; as answerer we wait for the
// remote offer. A media start failure is fatal for this session only.
func (s *Session) Start(ctx context.Context) error {
	s.media.OnLocalCandidate(func(candidate string, mline uint16) {
		s.send(envelope{Type: "ice", Candidate: candidate, SDPMLineIndex: mline})
	})
	s.media.OnLocalDescription(func(kind, sdp string) {
		s.send(envelope{Type: kind, SDP: sdp})
		if kind == core.SDPOffer {
			s.transition(StateOffering, StateAwaitingAnswer)
		}
	})

	s.reg.Register(s)

	s.mu.Lock()
	if s.role == RoleOfferer {
		s.state = StateOffering
	} else {
		s.state = StateAwaitingOffer
	}
	s.mu.Unlock()

	if err := s.media.Start(ctx); err != nil {
		s.Stop()
		return fmt.Errorf("media start: %w", err)
	}
	log.Info().Str("module", "signal").Str("sid", s.id).Str("state", s.State().String()).Msg("session started")
	return nil
}

// HandleMessage routes one inbound signaling message. An unrecognized type is
// ignored; a payload that cannot be parsed at all tears the session down.
func (s *Session) HandleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("malformed signal payload")
		s.Stop()
		return
	}
	switch env.Type {
	case core.SDPAnswer:
		s.handleAnswer(env)
	case core.SDPOffer:
		s.handleOffer(env)
	case "ice":
		s.handleICE(env)
	default:
		log.Warn().Str("module", "signal").Str("sid", s.id).Str("type", env.Type).Msg("unknown signal type, ignoring")
	}
}

func (s *Session) handleAnswer(env envelope) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == StateClosed {
		return
	}
	if st != StateAwaitingAnswer {
		log.Error().Str("module", "signal").Str("sid", s.id).Str("state", st.String()).Msg("answer in unexpected state")
		s.Stop()
		return
	}
	if err := s.media.HandleRemoteDescription(core.SDPAnswer, env.SDP); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("remote answer rejected")
		s.Stop()
		return
	}
	pending := s.markRemoteSet(StateAwaitingAnswer, StateConnected)
	if !s.flush(pending) {
		return
	}
	log.Info().Str("module", "signal").Str("sid", s.id).Msg("connected")
}

func (s *Session) handleOffer(env envelope) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == StateClosed {
		return
	}
	if st != StateAwaitingOffer {
		log.Error().Str("module", "signal").Str("sid", s.id).Str("state", st.String()).Msg("offer in unexpected state")
		s.Stop()
		return
	}
	if err := s.media.HandleRemoteDescription(core.SDPOffer, env.SDP); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("remote offer rejected")
		s.Stop()
		return
	}
	pending := s.markRemoteSet(StateAwaitingOffer, StateAnswering)
	if !s.flush(pending) {
		return
	}
	answer, err := s.media.CreateAnswer()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("answer creation failed")
		s.Stop()
		return
	}
	s.send(envelope{Type: core.SDPAnswer, SDP: answer})
	s.transition(StateAnswering, StateConnected)
	log.Info().Str("module", "signal").Str("sid", s.id).Msg("connected")
}

func (s *Session) handleICE(env envelope) {
	s.mu.Lock()
	if s.state == StateClosed {
		// The peer is gone; late candidates are discarded.
		s.mu.Unlock()
		return
	}
	if !s.remoteSet {
		// Candidates may trickle in before the description exchange
		// completes; buffer them so none is lost to early arrival.
		s.pending = append(s.pending, pendingCandidate{env.Candidate, env.SDPMLineIndex})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.media.AddRemoteCandidate(env.Candidate, env.SDPMLineIndex); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("remote candidate rejected")
		s.Stop()
	}
}

// markRemoteSet records that the remote description was accepted, advances
// the state and drains the early-candidate buffer for flushing.
func (s *Session) markRemoteSet(from, to State) []pendingCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteSet = true
	if s.state == from {
		s.state = to
	}
	pending := s.pending
	s.pending = nil
	return pending
}

func (s *Session) flush(pending []pendingCandidate) bool {
	for _, pc := range pending {
		if err := s.media.AddRemoteCandidate(pc.candidate, pc.mline); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("buffered candidate rejected")
			s.Stop()
			return false
		}
	}
	return true
}

// ApplyMirror fans a live mirror change into the media session.
func (s *Session) ApplyMirror(m core.Mirror) bool {
	if s.State() == StateClosed {
		return false
	}
	return s.media.ApplyMirror(m)
}

// ApplyRotate fans a live rotation change into the media session.
func (s *Session) ApplyRotate(r core.Rotation) bool {
	if s.State() == StateClosed {
		return false
	}
	return s.media.ApplyRotate(r)
}

// Stop tears the session down: closed state, registry removal, media and
// sender release. Every exit path funnels here and it runs at most once.
func (s *Session) Stop() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.pending = nil
		s.mu.Unlock()

		s.reg.Unregister(s)
		s.media.Close()
		s.sender.Close()
		log.Info().Str("module", "signal").Str("sid", s.id).Msg("session closed")
	})
}

func (s *Session) transition(from, to State) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}

// send delivers an outbound message best-effort. Delivery failures are
// logged, not fatal: the transport reports the disconnect on its own.
func (s *Session) send(env envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", s.id).Msg("marshal outbound signal")
		return
	}
	if err := s.sender.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", s.id).Str("type", env.Type).Msg("outbound signal not delivered")
	}
}

var _ core.Session = (*Session)(nil)
