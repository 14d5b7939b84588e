package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"pixeltrivia/internal/domain"
	"pixeltrivia/internal/roomcode"
	"pixeltrivia/internal/scoring"
)

const defaultCodeAttempts = 5

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,20}$`)

// RoomService is the room lifecycle controller. It is stateless between
// requests apart from realtime subscribers; all coordination between
// concurrent callers is delegated to the store's atomicity guarantees.
type RoomService struct {
	store        RoomStore
	loader       QuestionLoader
	scoring      scoring.Config
	codeAttempts int
	now          func() time.Time

	broadcast *broadcaster
}

// Option tweaks RoomService construction.
type Option func(*RoomService)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *RoomService) { s.now = now }
}

// WithScoring overrides the scoring parameters.
func WithScoring(cfg scoring.Config) Option {
	return func(s *RoomService) { s.scoring = cfg }
}

// WithCodeAttempts bounds how often room creation retries on code collisions.
func WithCodeAttempts(n int) Option {
	return func(s *RoomService) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func NewRoomService(store RoomStore, loader QuestionLoader, opts ...Option) *RoomService {
	s := &RoomService{
		store:        store,
		loader:       loader,
		scoring:      scoring.DefaultConfig(),
		codeAttempts: defaultCodeAttempts,
		now:          time.Now,
		broadcast:    newBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoomConfig carries the immutable settings chosen at room creation.
type RoomConfig struct {
	GameMode      string `json:"gameMode"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	MaxPlayers    int    `json:"maxPlayers"`
	TimeLimit     int    `json:"timeLimit"`
	QuestionCount int    `json:"questionCount"`
}

// CreateRoomResult is returned to the host after room creation.
type CreateRoomResult struct {
	RoomCode      string            `json:"roomCode"`
	DisplayCode   string            `json:"displayCode"`
	PlayerID      string            `json:"playerId"`
	Status        domain.RoomStatus `json:"status"`
	MaxPlayers    int               `json:"maxPlayers"`
	TimeLimit     int               `json:"timeLimit"`
	QuestionCount int               `json:"questionCount"`
	GameMode      string            `json:"gameMode"`
}

// CreateRoom creates a room in the waiting state and seats the creator as
// host. Code collisions against the store are retried a bounded number of
// times before giving up with domain.ErrCodeConflict.
func (s *RoomService) CreateRoom(ctx context.Context, hostName, avatar string, cfg RoomConfig) (CreateRoomResult, error) {
	hostName = strings.TrimSpace(hostName)
	if !nicknamePattern.MatchString(hostName) {
		return CreateRoomResult{}, fmt.Errorf("%w: nickname must be 1-20 letters, digits, spaces, '_' or '-'", domain.ErrValidation)
	}
	if err := validateConfig(&cfg); err != nil {
		return CreateRoomResult{}, err
	}

	var room domain.Room
	created := false
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := roomcode.Generate()
		if err != nil {
			return CreateRoomResult{}, err
		}
		room = domain.Room{
			Code:                 code,
			Status:               domain.StatusWaiting,
			GameMode:             cfg.GameMode,
			Category:             cfg.Category,
			Difficulty:           cfg.Difficulty,
			MaxPlayers:           cfg.MaxPlayers,
			TimeLimit:            cfg.TimeLimit,
			QuestionCount:        cfg.QuestionCount,
			CurrentQuestionIndex: 0,
			CreatedAt:            s.now(),
		}
		err = s.store.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrCodeConflict) {
			continue
		}
		if err != nil {
			return CreateRoomResult{}, err
		}
		created = true
		break
	}
	if !created {
		return CreateRoomResult{}, domain.ErrCodeConflict
	}

	hostID, err := roomcode.NewPlayerID()
	if err != nil {
		return CreateRoomResult{}, err
	}
	host := domain.Player{
		ID:       hostID,
		RoomCode: room.Code,
		Name:     hostName,
		Avatar:   avatar,
		IsHost:   true,
		JoinedAt: s.now(),
	}
	if _, err := s.store.AddPlayer(ctx, room.Code, host); err != nil {
		return CreateRoomResult{}, err
	}

	display, _ := roomcode.Format(room.Code)
	log.Printf("room %s created by %s (mode=%s, players<=%d)", room.Code, hostName, cfg.GameMode, cfg.MaxPlayers)
	s.publish(ctx, room.Code)

	return CreateRoomResult{
		RoomCode:      room.Code,
		DisplayCode:   display,
		PlayerID:      hostID,
		Status:        room.Status,
		MaxPlayers:    room.MaxPlayers,
		TimeLimit:     room.TimeLimit,
		QuestionCount: room.QuestionCount,
		GameMode:      room.GameMode,
	}, nil
}

// JoinRoomResult is returned to a player who joined an existing room.
type JoinRoomResult struct {
	PlayerID string          `json:"playerId"`
	Room     domain.Room     `json:"room"`
	Players  []domain.Player `json:"players"`
}

// JoinRoom seats a new player in a waiting room. Joining an active or
// finished room fails with domain.ErrRoomState; a full roster fails with
// domain.ErrRoomFull.
func (s *RoomService) JoinRoom(ctx context.Context, code, name, avatar string) (JoinRoomResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !roomcode.Valid(code) {
		return JoinRoomResult{}, fmt.Errorf("%w: malformed room code", domain.ErrValidation)
	}
	name = strings.TrimSpace(name)
	if !nicknamePattern.MatchString(name) {
		return JoinRoomResult{}, fmt.Errorf("%w: nickname must be 1-20 letters, digits, spaces, '_' or '-'", domain.ErrValidation)
	}

	playerID, err := roomcode.NewPlayerID()
	if err != nil {
		return JoinRoomResult{}, err
	}
	player := domain.Player{
		ID:       playerID,
		RoomCode: code,
		Name:     name,
		Avatar:   avatar,
		JoinedAt: s.now(),
	}
	if _, err := s.store.AddPlayer(ctx, code, player); err != nil {
		return JoinRoomResult{}, err
	}

	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return JoinRoomResult{}, err
	}
	players, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return JoinRoomResult{}, err
	}
	s.publish(ctx, code)
	return JoinRoomResult{PlayerID: playerID, Room: room, Players: rosterView(players)}, nil
}

// StartGameResult is returned to the host when the game begins.
type StartGameResult struct {
	Started           bool            `json:"started"`
	TotalQuestions    int             `json:"totalQuestions"`
	CurrentQuestion   domain.Question `json:"currentQuestion"`
	QuestionStartTime time.Time       `json:"questionStartTime"`
}

// StartGame loads and persists the question set, then flips the room to
// active with question 0 live. Only the host may start; starting twice is
// rejected by the store's guarded transition.
func (s *RoomService) StartGame(ctx context.Context, code, requesterID string) (StartGameResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return StartGameResult{}, err
	}
	if err := s.requireHost(ctx, code, requesterID); err != nil {
		return StartGameResult{}, err
	}
	if room.Status != domain.StatusWaiting {
		return StartGameResult{}, fmt.Errorf("%w: game already started", domain.ErrRoomState)
	}

	questions, err := s.loader.LoadQuestions(ctx, room.Category, room.Difficulty, room.QuestionCount)
	if err != nil {
		return StartGameResult{}, err
	}
	if len(questions) == 0 {
		return StartGameResult{}, domain.ErrQuestionSetEmpty
	}
	// Loaders may hand the same backing array to every concurrent caller
	// (the cache does for one key), so stamp a private copy.
	set := make([]domain.Question, len(questions))
	copy(set, questions)
	for i := range set {
		set[i].RoomCode = code
		set[i].QuestionIndex = i
	}

	startTime := s.now()
	// The guarded transition is the gate for racing starts: the loser fails
	// here before anything is written, so the winner's question set stays put.
	err = s.store.UpdateRoomStatus(ctx, code, StatusUpdate{
		ExpectStatus:         domain.StatusWaiting,
		ExpectIndex:          -1,
		Status:               domain.StatusActive,
		CurrentQuestionIndex: 0,
		TotalQuestions:       len(set),
		QuestionStartTime:    startTime,
	})
	if err != nil {
		return StartGameResult{}, err
	}
	if err := s.store.SaveQuestions(ctx, code, set); err != nil {
		return StartGameResult{}, err
	}
	if err := s.store.ResetAnswerMarkers(ctx, code); err != nil {
		return StartGameResult{}, err
	}

	log.Printf("room %s started with %d questions", code, len(set))
	s.publish(ctx, code)
	return StartGameResult{
		Started:           true,
		TotalQuestions:    len(set),
		CurrentQuestion:   set[0].Sanitized(),
		QuestionStartTime: startTime,
	}, nil
}

// SubmitAnswerResult reports the outcome of one answer submission.
type SubmitAnswerResult struct {
	Accepted    bool `json:"accepted"`
	Correct     bool `json:"correct"`
	ScoreGained int  `json:"scoreGained"`
	TotalScore  int  `json:"totalScore"`
}

// SubmitAnswer scores and records a player's answer to the current question.
// A repeat submission for the same question comes back accepted=false rather
// than as an error; the store guarantees the first write wins.
func (s *RoomService) SubmitAnswer(ctx context.Context, code, playerID string, selectedIndex, timeMs int) (SubmitAnswerResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return SubmitAnswerResult{}, err
	}
	if room.Status != domain.StatusActive {
		return SubmitAnswerResult{}, fmt.Errorf("%w: game is not active", domain.ErrRoomState)
	}

	question, err := s.questionAt(ctx, code, room.CurrentQuestionIndex)
	if err != nil {
		return SubmitAnswerResult{}, err
	}

	if timeMs < 0 {
		timeMs = 0
	}
	seconds := float64(timeMs) / 1000
	if limit := float64(room.TimeLimit); seconds > limit {
		seconds = limit
	}

	correct := selectedIndex == question.CorrectAnswerIndex
	points := scoring.Points(correct, seconds, s.scoring)

	entry := domain.AnswerEntry{
		QuestionIndex:  room.CurrentQuestionIndex,
		SelectedAnswer: selectedIndex,
		TimeMs:         timeMs,
		Correct:        correct,
		Score:          points,
	}
	accepted, total, err := s.store.RecordAnswer(ctx, code, playerID, entry)
	if err != nil {
		return SubmitAnswerResult{}, err
	}
	if !accepted {
		return SubmitAnswerResult{Accepted: false, TotalScore: total}, nil
	}

	s.publish(ctx, code)
	return SubmitAnswerResult{
		Accepted:    true,
		Correct:     correct,
		ScoreGained: points,
		TotalScore:  total,
	}, nil
}

// NextQuestionResult carries the reveal for the finished question and either
// the next question or the final scoreboard.
type NextQuestionResult struct {
	GameOver        bool                  `json:"gameOver"`
	CorrectAnswer   int                   `json:"correctAnswer"`
	QuestionResults []domain.PlayerResult `json:"questionResults"`
	NextQuestion    *domain.Question      `json:"nextQuestion,omitempty"`
	FinalScores     []domain.FinalScore   `json:"finalScores,omitempty"`
}

// NextQuestion advances the room past the current question. Past the last
// question the room transitions to finished exactly once; the guarded store
// update makes a duplicate host call fail with domain.ErrRoomState instead of
// double-advancing.
func (s *RoomService) NextQuestion(ctx context.Context, code, requesterID string) (NextQuestionResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return NextQuestionResult{}, err
	}
	if err := s.requireHost(ctx, code, requesterID); err != nil {
		return NextQuestionResult{}, err
	}
	if room.Status != domain.StatusActive {
		return NextQuestionResult{}, fmt.Errorf("%w: game is not active", domain.ErrRoomState)
	}

	question, err := s.questionAt(ctx, code, room.CurrentQuestionIndex)
	if err != nil {
		return NextQuestionResult{}, err
	}
	players, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return NextQuestionResult{}, err
	}
	results := questionResults(players, room.CurrentQuestionIndex)

	if room.CurrentQuestionIndex+1 >= room.TotalQuestions {
		err = s.store.UpdateRoomStatus(ctx, code, StatusUpdate{
			ExpectStatus:         domain.StatusActive,
			ExpectIndex:          room.CurrentQuestionIndex,
			Status:               domain.StatusFinished,
			CurrentQuestionIndex: room.TotalQuestions,
			TotalQuestions:       room.TotalQuestions,
			QuestionStartTime:    room.QuestionStartTime,
		})
		if err != nil {
			return NextQuestionResult{}, err
		}
		log.Printf("room %s finished after %d questions", code, room.TotalQuestions)
		s.publish(ctx, code)
		return NextQuestionResult{
			GameOver:        true,
			CorrectAnswer:   question.CorrectAnswerIndex,
			QuestionResults: results,
			FinalScores:     finalScoreboard(players),
		}, nil
	}

	nextIndex := room.CurrentQuestionIndex + 1
	next, err := s.questionAt(ctx, code, nextIndex)
	if err != nil {
		return NextQuestionResult{}, err
	}
	err = s.store.UpdateRoomStatus(ctx, code, StatusUpdate{
		ExpectStatus:         domain.StatusActive,
		ExpectIndex:          room.CurrentQuestionIndex,
		Status:               domain.StatusActive,
		CurrentQuestionIndex: nextIndex,
		TotalQuestions:       room.TotalQuestions,
		QuestionStartTime:    s.now(),
	})
	if err != nil {
		return NextQuestionResult{}, err
	}
	if err := s.store.ResetAnswerMarkers(ctx, code); err != nil {
		return NextQuestionResult{}, err
	}

	sanitized := next.Sanitized()
	s.publish(ctx, code)
	return NextQuestionResult{
		CorrectAnswer:   question.CorrectAnswerIndex,
		QuestionResults: results,
		NextQuestion:    &sanitized,
	}, nil
}

// LeaveRoomResult reports what happened when a player left.
type LeaveRoomResult struct {
	Action  string `json:"action"` // "left", "host_transferred", "room_closed"
	NewHost string `json:"newHost,omitempty"`
}

// LeaveRoom removes a player. A departing host hands the flag to the
// earliest-joined remaining player; an emptied room is torn down.
func (s *RoomService) LeaveRoom(ctx context.Context, code, playerID string) (LeaveRoomResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := s.store.GetRoom(ctx, code); err != nil {
		return LeaveRoomResult{}, err
	}

	departing, err := s.store.GetPlayer(ctx, code, playerID)
	wasHost := err == nil && departing.IsHost

	if err := s.store.RemovePlayer(ctx, code, playerID); err != nil {
		return LeaveRoomResult{}, err
	}

	remaining, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return LeaveRoomResult{}, err
	}
	if len(remaining) == 0 {
		if err := s.store.DeleteRoom(ctx, code); err != nil {
			return LeaveRoomResult{}, err
		}
		log.Printf("room %s closed (last player left)", code)
		s.broadcast.drop(code)
		return LeaveRoomResult{Action: "room_closed"}, nil
	}
	if wasHost {
		// Roster is in join order; the earliest-joined player inherits the room.
		newHost := remaining[0]
		if err := s.store.PromoteHost(ctx, code, newHost.ID); err != nil {
			return LeaveRoomResult{}, err
		}
		log.Printf("room %s host left, promoted %s", code, newHost.Name)
		s.publish(ctx, code)
		return LeaveRoomResult{Action: "host_transferred", NewHost: newHost.ID}, nil
	}
	s.publish(ctx, code)
	return LeaveRoomResult{Action: "left"}, nil
}

// RoomState returns the full room plus roster.
func (s *RoomService) RoomState(ctx context.Context, code string) (domain.RoomSnapshot, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return s.snapshot(ctx, code)
}

// CurrentQuestionResult is the per-player view of the live question.
type CurrentQuestionResult struct {
	Question          domain.Question `json:"question"`
	TotalQuestions    int             `json:"totalQuestions"`
	QuestionStartTime time.Time       `json:"questionStartTime"`
	TimeLimit         int             `json:"timeLimit"`
	HasAnswered       bool            `json:"hasAnswered"`
	Players           []domain.Player `json:"players"`
}

// CurrentQuestion returns the live question for a player. The answer key is
// withheld unless the requester is the host; HasAnswered lets clients render
// idempotently after a reconnect.
func (s *RoomService) CurrentQuestion(ctx context.Context, code, playerID string) (CurrentQuestionResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return CurrentQuestionResult{}, err
	}
	if room.Status != domain.StatusActive {
		return CurrentQuestionResult{}, fmt.Errorf("%w: no question is live", domain.ErrRoomState)
	}
	question, err := s.questionAt(ctx, code, room.CurrentQuestionIndex)
	if err != nil {
		return CurrentQuestionResult{}, err
	}
	player, err := s.store.GetPlayer(ctx, code, playerID)
	if err != nil {
		return CurrentQuestionResult{}, err
	}
	if !player.IsHost {
		question = question.Sanitized()
	}
	players, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return CurrentQuestionResult{}, err
	}
	return CurrentQuestionResult{
		Question:          question,
		TotalQuestions:    room.TotalQuestions,
		QuestionStartTime: room.QuestionStartTime,
		TimeLimit:         room.TimeLimit,
		HasAnswered:       player.HasAnswered,
		Players:           rosterView(players),
	}, nil
}

// Subscribe returns a channel of sanitized room snapshots pushed after each
// state change, plus a cancel function the caller must invoke.
func (s *RoomService) Subscribe(ctx context.Context, code string) (<-chan domain.RoomSnapshot, func(), error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	snap, err := s.snapshot(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.broadcast.subscribe(code, snap)
	return ch, cancel, nil
}

func (s *RoomService) requireHost(ctx context.Context, code, requesterID string) error {
	player, err := s.store.GetPlayer(ctx, code, requesterID)
	if err != nil {
		return err
	}
	if !player.IsHost {
		return domain.ErrNotHost
	}
	return nil
}

func (s *RoomService) questionAt(ctx context.Context, code string, index int) (domain.Question, error) {
	questions, err := s.store.ListQuestions(ctx, code)
	if err != nil {
		return domain.Question{}, err
	}
	if index < 0 || index >= len(questions) {
		return domain.Question{}, fmt.Errorf("%w: question %d out of range", domain.ErrRoomState, index)
	}
	return questions[index], nil
}

func (s *RoomService) snapshot(ctx context.Context, code string) (domain.RoomSnapshot, error) {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	players, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	snap := domain.RoomSnapshot{
		Room:      room,
		Players:   rosterView(players),
		UpdatedAt: s.now(),
	}
	if room.Status == domain.StatusActive {
		if q, err := s.questionAt(ctx, code, room.CurrentQuestionIndex); err == nil {
			sanitized := q.Sanitized()
			snap.Question = &sanitized
		}
	}
	return snap, nil
}

// publish pushes a fresh snapshot to the room's subscribers. Failures are
// logged and swallowed: realtime fan-out must never fail a write that has
// already committed.
func (s *RoomService) publish(ctx context.Context, code string) {
	snap, err := s.snapshot(ctx, code)
	if err != nil {
		log.Printf("room %s snapshot for broadcast failed: %v", code, err)
		return
	}
	s.broadcast.publish(code, snap)
}

func validateConfig(cfg *RoomConfig) error {
	if cfg.GameMode == "" {
		cfg.GameMode = "classic"
	}
	if cfg.Category == "" {
		cfg.Category = "general"
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = "medium"
	}
	if cfg.MaxPlayers < 2 || cfg.MaxPlayers > 16 {
		return fmt.Errorf("%w: maxPlayers must be between 2 and 16", domain.ErrValidation)
	}
	if cfg.TimeLimit < 5 || cfg.TimeLimit > 300 {
		return fmt.Errorf("%w: timeLimit must be between 5 and 300 seconds", domain.ErrValidation)
	}
	if cfg.QuestionCount < 1 || cfg.QuestionCount > 50 {
		return fmt.Errorf("%w: questionCount must be between 1 and 50", domain.ErrValidation)
	}
	return nil
}

// rosterView strips answer history from the roster so projections stay small.
func rosterView(players []domain.Player) []domain.Player {
	view := make([]domain.Player, len(players))
	for i, p := range players {
		p.Answers = nil
		view[i] = p
	}
	return view
}

func questionResults(players []domain.Player, questionIndex int) []domain.PlayerResult {
	results := make([]domain.PlayerResult, 0, len(players))
	for _, p := range players {
		result := domain.PlayerResult{
			PlayerID:       p.ID,
			Name:           p.Name,
			SelectedAnswer: -1,
		}
		for _, a := range p.Answers {
			if a.QuestionIndex == questionIndex {
				result.Answered = true
				result.SelectedAnswer = a.SelectedAnswer
				result.Correct = a.Correct
				result.ScoreGained = a.Score
				break
			}
		}
		results = append(results, result)
	}
	return results
}

// finalScoreboard orders players by score descending. Ties keep join order:
// the sort is stable and the roster arrives in join order.
func finalScoreboard(players []domain.Player) []domain.FinalScore {
	scores := make([]domain.FinalScore, 0, len(players))
	for _, p := range players {
		summary := scoring.Summarize(p.Answers)
		scores = append(scores, domain.FinalScore{
			PlayerID:   p.ID,
			Name:       p.Name,
			Avatar:     p.Avatar,
			TotalScore: p.Score,
			Accuracy:   summary.Accuracy,
			Grade:      summary.Grade,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore > scores[j].TotalScore
	})
	return scores
}
