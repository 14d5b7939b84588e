package domain

import "errors"

var (
	// ErrValidation is returned for malformed input (nickname, config values).
	ErrValidation = errors.New("invalid input")
	// ErrRoomNotFound is returned when a room code does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when the roster has reached maxPlayers.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomState is returned when the room is in the wrong status for an operation.
	ErrRoomState = errors.New("room is not in the required state")
	// ErrNotHost is returned when a non-host attempts a host-only operation.
	ErrNotHost = errors.New("only the host may perform this operation")
	// ErrPlayerNotFound is returned when a player id is unknown in a room.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrCodeConflict is returned when room code generation keeps colliding.
	ErrCodeConflict = errors.New("room code already in use")
	// ErrQuestionSetEmpty is returned when the loader produced no questions at all.
	ErrQuestionSetEmpty = errors.New("no questions available")
	// ErrRateLimited is returned when a client exceeds its request budget.
	ErrRateLimited = errors.New("too many requests")
)
