package scene

import (
	"github.com/yohamta/donburi"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// JumpOnRock sets the entity's vertical velocity to JumpVelocity while the
// current gesture is Rock. Before predictions start, and for any other
// gesture, the velocity is left as it is.
func JumpOnRock(e *donburi.Entry, r gesture.Reader) {
	if r == nil || !r.PredictionsStarted() {
		return
	}
	if r.Current() != gesture.Rock {
		return
	}
	Velocity.Get(e).Velocity[1] = JumpVelocity
}
