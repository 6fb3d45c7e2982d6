package session

// State is where the controller is in a room's lifecycle.
type State int

const (
	// StateIdle means no room is selected; the lobby browser is shown.
	StateIdle State = iota
	// StateResolving means the controller is waiting for the room to become reachable.
	StateResolving
	// StateConnected means a live connection to the room exists.
	StateConnected
	// StateDisconnected means the live connection closed. Terminal for the room.
	StateDisconnected
	// StateEnded means the room's game was already over when resolved. Terminal for the room.
	StateEnded
	// StateRoomNotFound means resolving or connecting failed. Terminal for the room.
	StateRoomNotFound
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateEnded:
		return "ended"
	case StateRoomNotFound:
		return "room_not_found"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further connection attempt is made for the
// current room in this state.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateEnded || s == StateRoomNotFound
}
