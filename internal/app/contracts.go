package app

import (
	"context"
	"time"

	"pixeltrivia/internal/domain"
)

// RoomStore is the persistence contract the room lifecycle depends on.
// Implementations must make every method atomic: a reader never observes a
// partially applied transition.
type RoomStore interface {
	// CreateRoom persists a new room. Returns domain.ErrCodeConflict when the
	// code is already taken; the caller regenerates and retries.
	CreateRoom(ctx context.Context, room domain.Room) error

	// GetRoom returns the room or domain.ErrRoomNotFound.
	GetRoom(ctx context.Context, code string) (domain.Room, error)

	// DeleteRoom tears the room down along with its players and questions.
	DeleteRoom(ctx context.Context, code string) error

	// AddPlayer appends a player to the roster. Fails with
	// domain.ErrRoomNotFound, domain.ErrRoomFull, or domain.ErrRoomState when
	// the room is no longer accepting joins. The capacity check and the
	// insert happen under the same lock or transaction.
	AddPlayer(ctx context.Context, code string, player domain.Player) (domain.Player, error)

	// RemovePlayer is idempotent: removing an unknown player is not an error.
	RemovePlayer(ctx context.Context, code, playerID string) error

	// PromoteHost transfers the host flag to the given player.
	PromoteHost(ctx context.Context, code, playerID string) error

	// GetPlayer returns one roster entry or domain.ErrPlayerNotFound.
	GetPlayer(ctx context.Context, code, playerID string) (domain.Player, error)

	// ListPlayers returns the roster in join order, answers included.
	ListPlayers(ctx context.Context, code string) ([]domain.Player, error)

	// UpdateRoomStatus applies a status transition as a single atomic write.
	// The update only applies when the room currently matches the Expect
	// fields; otherwise domain.ErrRoomState is returned and nothing changes.
	// This is what makes duplicate host calls (double-click) safe.
	UpdateRoomStatus(ctx context.Context, code string, update StatusUpdate) error

	// SaveQuestions persists the room's fixed question sequence.
	SaveQuestions(ctx context.Context, code string, questions []domain.Question) error

	// ListQuestions returns the sequence ordered by question index.
	ListQuestions(ctx context.Context, code string) ([]domain.Question, error)

	// RecordAnswer appends an answer entry exactly once per
	// (player, question index): the insert, the answered marker, and the
	// cumulative score increment are one atomic operation. A duplicate
	// submission returns accepted=false with the unchanged total; it is not
	// an error and never overwrites the first entry.
	RecordAnswer(ctx context.Context, code, playerID string, entry domain.AnswerEntry) (accepted bool, totalScore int, err error)

	// ResetAnswerMarkers clears every player's has-answered flag ahead of the
	// next question without touching recorded answer history.
	ResetAnswerMarkers(ctx context.Context, code string) error
}

// StatusUpdate describes an atomic room transition guarded by a precondition.
type StatusUpdate struct {
	// ExpectStatus must match the room's current status for the update to apply.
	ExpectStatus domain.RoomStatus
	// ExpectIndex must match currentQuestionIndex, or be -1 to skip the check.
	ExpectIndex int

	Status               domain.RoomStatus
	CurrentQuestionIndex int
	TotalQuestions       int
	QuestionStartTime    time.Time
}

// QuestionLoader produces the fixed question list for a game. Returning fewer
// than count questions is a degraded-but-valid result, not an error; how the
// questions are produced (static bank, database, AI) is the implementation's
// concern.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category, difficulty string, count int) ([]domain.Question, error)
}
