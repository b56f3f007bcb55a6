package core

// Mirror is the flip transform applied to outgoing video.
type Mirror string

const (
	MirrorNone       Mirror = "none"
	MirrorHorizontal Mirror = "horizontal"
	MirrorVertical   Mirror = "vertical"
)

// ParseMirror coerces arbitrary input to a valid mode. Anything outside the
// three known modes becomes MirrorNone.
func ParseMirror(s string) Mirror {
	switch Mirror(s) {
	case MirrorHorizontal, MirrorVertical, MirrorNone:
		return Mirror(s)
	default:
		return MirrorNone
	}
}

// Rotation is the clockwise rotation in degrees applied to outgoing video.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ParseRotation coerces arbitrary input to one of the four quarter turns.
// Anything outside the enumeration becomes Rotate0.
func ParseRotation(v int) Rotation {
	switch Rotation(v) {
	case Rotate90, Rotate180, Rotate270:
		return Rotation(v)
	default:
		return Rotate0
	}
}
