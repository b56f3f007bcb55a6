package core

import "context"

// SDP description kinds exchanged over the signaling channel.
const (
	SDPOffer  = "offer"
	SDPAnswer = "answer"
)

// MediaSession is the contract the media engine exposes to the signaling
// layer. One instance backs exactly one viewer connection and is built from a
// configuration snapshot taken at connect time.
//
// Callbacks must be registered before Start. All failable operations report
// failure through their error return; none may leave the session in an
// undefined state.
type MediaSession interface {
	// Start binds the session lifetime to ctx and begins media flow. When the
	// deployment designates the local peer as offerer, the local description
	// is produced and emitted asynchronously via OnLocalDescription.
	Start(ctx context.Context) error
	// HandleRemoteDescription applies the peer's SDP (SDPOffer or SDPAnswer).
	HandleRemoteDescription(kind, sdp string) error
	// CreateAnswer produces the local answer SDP. The remote offer must have
	// been applied first.
	CreateAnswer() (string, error)
	// AddRemoteCandidate applies a trickled ICE candidate from the peer.
	AddRemoteCandidate(candidate string, mlineIndex uint16) error
	// OnLocalDescription sets the callback for locally produced descriptions.
	OnLocalDescription(func(kind, sdp string))
	// OnLocalCandidate sets the callback for locally gathered ICE candidates.
	OnLocalCandidate(func(candidate string, mlineIndex uint16))
	// ApplyMirror pushes a new mirror mode into the running session and
	// reports whether the underlying element absorbed it.
	ApplyMirror(Mirror) bool
	// ApplyRotate pushes a new rotation into the running session and reports
	// whether the underlying element absorbed it.
	ApplyRotate(Rotation) bool
	// Close releases all media resources. It is idempotent.
	Close()
}
