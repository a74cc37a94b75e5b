package call

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/shivaprasad369/pocky/internal/media"
)

// ErrNegotiation marks offer/answer/ICE failures. Match with errors.Is.
var ErrNegotiation = errors.New("call negotiation failed")

// InvalidStateError is returned when an operation is attempted in a call
// state that does not permit it, e.g. dialing while already streaming.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: call is %s", e.Op, e.State)
}

// Call is the single active call. All fields are guarded by the
// Controller's mutex; the generation stamp lets asynchronous callbacks
// detect that the call they were scheduled for is gone.
type Call struct {
	remote    string
	direction Direction
	gen       uint64
	state     State

	offer        webrtc.SessionDescription // pending remote offer (incoming calls)
	local        *media.Stream             // borrowed from the media manager
	remoteStream *media.RemoteStream       // owned by the call
	link         *link

	attachWarned bool
}

// Remote returns the peer identity.
func (c *Call) Remote() string { return c.remote }

// Direction reports which side initiated the call.
func (c *Call) Direction() Direction { return c.direction }
