package memory

import (
	"context"
	"sort"
	"sync"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. A single mutex
// guards every room, which makes each method trivially atomic; it serves
// development, tests, and single-node deployments.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*roomRecord
}

type roomRecord struct {
	room      domain.Room
	players   []*domain.Player // join order
	questions []domain.Question
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*roomRecord)}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrCodeConflict
	}
	s.rooms[room.Code] = &roomRecord{room: room}
	return nil
}

func (s *RoomStore) GetRoom(_ context.Context, code string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return rec.room, nil
}

func (s *RoomStore) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *RoomStore) AddPlayer(_ context.Context, code string, player domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.Player{}, domain.ErrRoomNotFound
	}
	if rec.room.Status != domain.StatusWaiting {
		return domain.Player{}, domain.ErrRoomState
	}
	if len(rec.players) >= rec.room.MaxPlayers {
		return domain.Player{}, domain.ErrRoomFull
	}
	p := player
	rec.players = append(rec.players, &p)
	return p, nil
}

func (s *RoomStore) RemovePlayer(_ context.Context, code, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return nil // idempotent at this layer
	}
	for i, p := range rec.players {
		if p.ID == playerID {
			rec.players = append(rec.players[:i], rec.players[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *RoomStore) PromoteHost(_ context.Context, code, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	found := false
	for _, p := range rec.players {
		if p.ID == playerID {
			found = true
			break
		}
	}
	if !found {
		return domain.ErrPlayerNotFound
	}
	for _, p := range rec.players {
		p.IsHost = p.ID == playerID
	}
	return nil
}

func (s *RoomStore) GetPlayer(_ context.Context, code, playerID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.Player{}, domain.ErrRoomNotFound
	}
	for _, p := range rec.players {
		if p.ID == playerID {
			return clonePlayer(p), nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

func (s *RoomStore) ListPlayers(_ context.Context, code string) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	players := make([]domain.Player, 0, len(rec.players))
	for _, p := range rec.players {
		players = append(players, clonePlayer(p))
	}
	return players, nil
}

func (s *RoomStore) UpdateRoomStatus(_ context.Context, code string, update app.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if rec.room.Status != update.ExpectStatus {
		return domain.ErrRoomState
	}
	if update.ExpectIndex >= 0 && rec.room.CurrentQuestionIndex != update.ExpectIndex {
		return domain.ErrRoomState
	}
	rec.room.Status = update.Status
	rec.room.CurrentQuestionIndex = update.CurrentQuestionIndex
	rec.room.TotalQuestions = update.TotalQuestions
	rec.room.QuestionStartTime = update.QuestionStartTime
	return nil
}

func (s *RoomStore) SaveQuestions(_ context.Context, code string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	rec.questions = make([]domain.Question, len(questions))
	copy(rec.questions, questions)
	sort.Slice(rec.questions, func(i, j int) bool {
		return rec.questions[i].QuestionIndex < rec.questions[j].QuestionIndex
	})
	return nil
}

func (s *RoomStore) ListQuestions(_ context.Context, code string) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	questions := make([]domain.Question, len(rec.questions))
	copy(questions, rec.questions)
	return questions, nil
}

func (s *RoomStore) RecordAnswer(_ context.Context, code, playerID string, entry domain.AnswerEntry) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return false, 0, domain.ErrRoomNotFound
	}
	var player *domain.Player
	for _, p := range rec.players {
		if p.ID == playerID {
			player = p
			break
		}
	}
	if player == nil {
		return false, 0, domain.ErrPlayerNotFound
	}
	for _, a := range player.Answers {
		if a.QuestionIndex == entry.QuestionIndex {
			// First write wins; the duplicate is rejected, not overwritten.
			return false, player.Score, nil
		}
	}
	player.Answers = append(player.Answers, entry)
	player.HasAnswered = true
	player.Score += entry.Score
	return true, player.Score, nil
}

func (s *RoomStore) ResetAnswerMarkers(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for _, p := range rec.players {
		p.HasAnswered = false
	}
	return nil
}

func clonePlayer(p *domain.Player) domain.Player {
	clone := *p
	clone.Answers = make([]domain.AnswerEntry, len(p.Answers))
	copy(clone.Answers, p.Answers)
	return clone
}
