package lobby

import "errors"

var (
	// ErrInvalidState: the operation is not legal in the lobby's current state.
	ErrInvalidState = errors.New("operation not legal in current lobby state")
	// ErrLobbyFull: every roster seat is taken.
	ErrLobbyFull = errors.New("lobby is full")
	// ErrRosterIncomplete: search requested before the roster filled.
	ErrRosterIncomplete = errors.New("lobby roster is incomplete")
	// ErrAlreadyMember: the user already holds a roster seat.
	ErrAlreadyMember = errors.New("user is already a lobby member")
	// ErrNotMember: the user holds no seat in this lobby.
	ErrNotMember = errors.New("user is not a lobby member")
	// ErrNotHost: only the host may perform this operation.
	ErrNotHost = errors.New("only the lobby host may perform this operation")
)
