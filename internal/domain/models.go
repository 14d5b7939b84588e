package domain

import "time"

// RoomStatus tracks the room lifecycle. Transitions are monotonic:
// waiting -> active -> finished, never backwards.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// Room is a multiplayer game session identified by a short code.
// Code, MaxPlayers, GameMode, Category and TimeLimit are fixed at creation.
type Room struct {
	Code                 string     `json:"code"`
	Status               RoomStatus `json:"status"`
	GameMode             string     `json:"gameMode"`
	Category             string     `json:"category"`
	Difficulty           string     `json:"difficulty"`
	MaxPlayers           int        `json:"maxPlayers"`
	TimeLimit            int        `json:"timeLimit"` // seconds per question
	QuestionCount        int        `json:"questionCount"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	TotalQuestions       int        `json:"totalQuestions"`
	QuestionStartTime    time.Time  `json:"questionStartTime"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Player is a member of a room's roster. Exactly one player per room is host.
type Player struct {
	ID          string        `json:"id"`
	RoomCode    string        `json:"roomCode"`
	Name        string        `json:"name"`
	Avatar      string        `json:"avatar"`
	IsHost      bool          `json:"isHost"`
	Score       int           `json:"score"`
	HasAnswered bool          `json:"hasAnswered"`
	JoinedAt    time.Time     `json:"joinedAt"`
	Answers     []AnswerEntry `json:"answers,omitempty"`
}

// AnswerEntry records one player's answer to one question. At most one
// entry exists per (player, question index) for a game.
type AnswerEntry struct {
	QuestionIndex  int  `json:"questionIndex"`
	SelectedAnswer int  `json:"selectedAnswer"`
	TimeMs         int  `json:"timeMs"`
	Correct        bool `json:"correct"`
	Score          int  `json:"score"`
}

// Question is one entry in a room's fixed, persisted question sequence.
// CorrectAnswerIndex must never reach non-host clients before reveal.
type Question struct {
	RoomCode           string   `json:"-"`
	QuestionIndex      int      `json:"questionIndex"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Category           string   `json:"category"`
	Difficulty         string   `json:"difficulty"`
}

// Sanitized returns a copy safe to send to players: the answer key is
// replaced with -1 so accidental marshaling can't leak it.
func (q Question) Sanitized() Question {
	q.CorrectAnswerIndex = -1
	return q
}

// PlayerResult is the per-player outcome of a single question, used for
// the reveal after the host advances.
type PlayerResult struct {
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	SelectedAnswer int    `json:"selectedAnswer"`
	Correct        bool   `json:"correct"`
	ScoreGained    int    `json:"scoreGained"`
	Answered       bool   `json:"answered"`
}

// FinalScore is one row of the finished game's scoreboard.
type FinalScore struct {
	PlayerID   string  `json:"playerId"`
	Name       string  `json:"name"`
	Avatar     string  `json:"avatar"`
	TotalScore int     `json:"totalScore"`
	Accuracy   float64 `json:"accuracy"`
	Grade      string  `json:"grade"`
}

// RoomSnapshot is the sanitized projection broadcast to subscribed clients
// after every state change.
type RoomSnapshot struct {
	Room      Room      `json:"room"`
	Players   []Player  `json:"players"`
	Question  *Question `json:"question,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
