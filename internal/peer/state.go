package peer

// Role is the side a participant takes in one pairwise negotiation.
type Role int

const (
	// Initiator produces the offer. The participant that receives the room
	// roster initiates toward every member listed in it.
	Initiator Role = iota
	// Responder answers an offer from a remote that announced itself.
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is a session's position in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event drives a session from one State to the next.
type Event int

const (
	EventStart Event = iota
	EventSignal
	EventConnected
	EventFailed
	EventDestroy
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSignal:
		return "signal"
	case EventConnected:
		return "connected"
	case EventFailed:
		return "failed"
	case EventDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// transitions lists every legal (state, event) pair. Anything missing is
// rejected with ErrIllegalTransition.
var transitions = map[State]map[Event]State{
	StateCreated: {
		EventStart:   StateNegotiating,
		EventFailed:  StateClosed,
		EventDestroy: StateClosed,
	},
	StateNegotiating: {
		EventSignal:    StateNegotiating,
		EventConnected: StateConnected,
		EventFailed:    StateClosed,
		EventDestroy:   StateClosed,
	},
	StateConnected: {
		// Trickled candidates may still arrive after media flows.
		EventSignal:  StateConnected,
		EventFailed:  StateClosed,
		EventDestroy: StateClosed,
	},
}

// Next returns the state reached from s on e.
func Next(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, WrapError("transition", "", ErrIllegalTransition, s.String()+" on "+e.String())
	}
	return next, nil
}
