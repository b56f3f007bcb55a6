package core

// Frame is a raw signaling payload.
type Frame []byte

// SignalSender is the outbound half of a viewer's signaling channel.
// Owned by the transport adapter; the adapter must Close() it.
type SignalSender interface {
	TrySend(Frame) error
	Close()
}

// Session is one active viewer connection as seen by the registry and the
// configuration dispatcher. The signaling handler is the sole owner of the
// session and its media resources; holders of this interface never destroy
// anything through it except via Stop.
type Session interface {
	// ApplyMirror fans a live mirror change into the session and reports
	// whether it was absorbed.
	ApplyMirror(Mirror) bool
	// ApplyRotate fans a live rotation change into the session and reports
	// whether it was absorbed.
	ApplyRotate(Rotation) bool
	// Stop tears the session down. Safe to call from any goroutine, any
	// number of times.
	Stop()
}
