package connection

// State is a point in a peer connection's lifecycle.
type State int

const (
	// Idle is the state before a dial has been attempted.
	Idle State = iota
	// Dialing means a transport-level connection attempt is in flight.
	Dialing
	// Handshaking means the transport connected and the version/identity
	// envelope exchange plus Noise-IK key exchange is underway.
	Handshaking
	// Authenticated means the handshake completed successfully.
	Authenticated
	// Ready means the peer accepts application traffic. The Manager enters
	// it straight after Authenticated when the handshake completes; no
	// membership check is made on the way.
	Ready
	// Closing means a shutdown has been requested and is draining.
	Closing
	// Failed means the connection ended abnormally and will not recover
	// without a fresh Dial.
	Failed
)

// String returns the state's name for logging.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dialing:
		return "dialing"
	case Handshaking:
		return "handshaking"
	case Authenticated:
		return "authenticated"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the state machine's allowed edges. An edge not
// listed here is rejected by Manager.transition.
var validTransitions = map[State][]State{
	Idle:          {Dialing, Handshaking},
	Dialing:       {Handshaking, Failed, Closing},
	Handshaking:   {Authenticated, Failed, Closing},
	Authenticated: {Ready, Closing, Failed},
	Ready:         {Closing, Failed},
	Closing:       {Failed},
	Failed:        {},
}

func canTransition(from, to State) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
