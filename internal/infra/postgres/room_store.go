package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// RoomStore implements app.RoomStore on Postgres via bun. Transitions run in
// transactions; the exactly-once answer guarantee comes from the unique index
// on (room_code, player_id, question_index) rather than read-then-write.
type RoomStore struct {
	db *bun.DB
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db}
}

type roomRow struct {
	bun.BaseModel `bun:"table:rooms"`

	Code                 string    `bun:"code,pk"`
	Status               string    `bun:"status"`
	GameMode             string    `bun:"game_mode"`
	Category             string    `bun:"category"`
	Difficulty           string    `bun:"difficulty"`
	MaxPlayers           int       `bun:"max_players"`
	TimeLimit            int       `bun:"time_limit"`
	QuestionCount        int       `bun:"question_count"`
	CurrentQuestionIndex int       `bun:"current_question_index"`
	TotalQuestions       int       `bun:"total_questions"`
	QuestionStartTime    time.Time `bun:"question_start_time,nullzero"`
	CreatedAt            time.Time `bun:"created_at"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:players"`

	ID          string    `bun:"id,pk"`
	RoomCode    string    `bun:"room_code"`
	Name        string    `bun:"name"`
	Avatar      string    `bun:"avatar"`
	IsHost      bool      `bun:"is_host"`
	Score       int       `bun:"score"`
	HasAnswered bool      `bun:"has_answered"`
	JoinedAt    time.Time `bun:"joined_at"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	RoomCode           string   `bun:"room_code,pk"`
	QuestionIndex      int      `bun:"question_index,pk"`
	Text               string   `bun:"text"`
	Options            []string `bun:"options,array"`
	CorrectAnswerIndex int      `bun:"correct_answer_index"`
	Category           string   `bun:"category"`
	Difficulty         string   `bun:"difficulty"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	RoomCode       string    `bun:"room_code"`
	PlayerID       string    `bun:"player_id"`
	QuestionIndex  int       `bun:"question_index"`
	SelectedAnswer int       `bun:"selected_answer"`
	TimeMs         int       `bun:"time_ms"`
	Correct        bool      `bun:"correct"`
	Score          int       `bun:"score"`
	CreatedAt      time.Time `bun:"created_at,nullzero,default:now()"`
}

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) error {
	row := roomToRow(room)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeConflict
		}
		return err
	}
	return nil
}

func (s *RoomStore) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return rowToRoom(row), nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, code string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("room_code = ?", code).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("room_code = ?", code).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*playerRow)(nil)).Where("room_code = ?", code).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*roomRow)(nil)).Where("code = ?", code).Exec(ctx)
		return err
	})
}

func (s *RoomStore) AddPlayer(ctx context.Context, code string, player domain.Player) (domain.Player, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var room roomRow
		err := tx.NewSelect().Model(&room).Where("code = ?", code).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if domain.RoomStatus(room.Status) != domain.StatusWaiting {
			return domain.ErrRoomState
		}
		count, err := tx.NewSelect().Model((*playerRow)(nil)).Where("room_code = ?", code).Count(ctx)
		if err != nil {
			return err
		}
		if count >= room.MaxPlayers {
			return domain.ErrRoomFull
		}
		row := playerRow{
			ID:       player.ID,
			RoomCode: code,
			Name:     player.Name,
			Avatar:   player.Avatar,
			IsHost:   player.IsHost,
			Score:    player.Score,
			JoinedAt: player.JoinedAt,
		}
		_, err = tx.NewInsert().Model(&row).Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Player{}, err
	}
	player.RoomCode = code
	return player, nil
}

func (s *RoomStore) RemovePlayer(ctx context.Context, code, playerID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Answers stay behind for finished-game history; only the roster row goes.
		_, err := tx.NewDelete().Model((*playerRow)(nil)).
			Where("room_code = ? AND id = ?", code, playerID).Exec(ctx)
		return err
	})
}

func (s *RoomStore) PromoteHost(ctx context.Context, code, playerID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*playerRow)(nil)).
			Where("room_code = ? AND id = ?", code, playerID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrPlayerNotFound
		}
		_, err = tx.NewUpdate().Model((*playerRow)(nil)).
			Set("is_host = (id = ?)", playerID).
			Where("room_code = ?", code).Exec(ctx)
		return err
	})
}

func (s *RoomStore) GetPlayer(ctx context.Context, code, playerID string) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().Model(&row).Where("room_code = ? AND id = ?", code, playerID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, err
	}
	player := rowToPlayer(row)
	answers, err := s.playerAnswers(ctx, code, playerID)
	if err != nil {
		return domain.Player{}, err
	}
	player.Answers = answers
	return player, nil
}

func (s *RoomStore) ListPlayers(ctx context.Context, code string) ([]domain.Player, error) {
	if _, err := s.GetRoom(ctx, code); err != nil {
		return nil, err
	}
	var rows []playerRow
	err := s.db.NewSelect().Model(&rows).
		Where("room_code = ?", code).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var answerRows []answerRow
	err = s.db.NewSelect().Model(&answerRows).
		Where("room_code = ?", code).
		Order("question_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	byPlayer := make(map[string][]domain.AnswerEntry)
	for _, a := range answerRows {
		byPlayer[a.PlayerID] = append(byPlayer[a.PlayerID], domain.AnswerEntry{
			QuestionIndex:  a.QuestionIndex,
			SelectedAnswer: a.SelectedAnswer,
			TimeMs:         a.TimeMs,
			Correct:        a.Correct,
			Score:          a.Score,
		})
	}

	players := make([]domain.Player, 0, len(rows))
	for _, row := range rows {
		player := rowToPlayer(row)
		player.Answers = byPlayer[row.ID]
		players = append(players, player)
	}
	return players, nil
}

func (s *RoomStore) UpdateRoomStatus(ctx context.Context, code string, update app.StatusUpdate) error {
	q := s.db.NewUpdate().Model((*roomRow)(nil)).
		Set("status = ?", string(update.Status)).
		Set("current_question_index = ?", update.CurrentQuestionIndex).
		Set("total_questions = ?", update.TotalQuestions).
		Set("question_start_time = ?", update.QuestionStartTime).
		Where("code = ?", code).
		Where("status = ?", string(update.ExpectStatus))
	if update.ExpectIndex >= 0 {
		q = q.Where("current_question_index = ?", update.ExpectIndex)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish an unknown room from a lost precondition race.
		if _, err := s.GetRoom(ctx, code); err != nil {
			return err
		}
		return domain.ErrRoomState
	}
	return nil
}

func (s *RoomStore) SaveQuestions(ctx context.Context, code string, questions []domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("room_code = ?", code).Exec(ctx); err != nil {
			return err
		}
		rows := make([]questionRow, len(questions))
		for i, q := range questions {
			rows[i] = questionRow{
				RoomCode:           code,
				QuestionIndex:      q.QuestionIndex,
				Text:               q.Text,
				Options:            q.Options,
				CorrectAnswerIndex: q.CorrectAnswerIndex,
				Category:           q.Category,
				Difficulty:         q.Difficulty,
			}
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func (s *RoomStore) ListQuestions(ctx context.Context, code string) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("room_code = ?", code).
		Order("question_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	questions := make([]domain.Question, len(rows))
	for i, row := range rows {
		questions[i] = domain.Question{
			RoomCode:           row.RoomCode,
			QuestionIndex:      row.QuestionIndex,
			Text:               row.Text,
			Options:            row.Options,
			CorrectAnswerIndex: row.CorrectAnswerIndex,
			Category:           row.Category,
			Difficulty:         row.Difficulty,
		}
	}
	return questions, nil
}

func (s *RoomStore) RecordAnswer(ctx context.Context, code, playerID string, entry domain.AnswerEntry) (bool, int, error) {
	accepted := false
	total := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := answerRow{
			RoomCode:       code,
			PlayerID:       playerID,
			QuestionIndex:  entry.QuestionIndex,
			SelectedAnswer: entry.SelectedAnswer,
			TimeMs:         entry.TimeMs,
			Correct:        entry.Correct,
			Score:          entry.Score,
		}
		// The unique index makes concurrent duplicates a no-op insert, so the
		// race between two submissions resolves to exactly one scored answer.
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (room_code, player_id, question_index) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if inserted == 0 {
			var player playerRow
			err := tx.NewSelect().Model(&player).Where("room_code = ? AND id = ?", code, playerID).Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrPlayerNotFound
			}
			if err != nil {
				return err
			}
			total = player.Score
			return nil
		}
		accepted = true
		res, err = tx.NewUpdate().Model((*playerRow)(nil)).
			Set("score = score + ?", entry.Score).
			Set("has_answered = TRUE").
			Where("room_code = ? AND id = ?", code, playerID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrPlayerNotFound
		}
		var player playerRow
		if err := tx.NewSelect().Model(&player).Where("room_code = ? AND id = ?", code, playerID).Scan(ctx); err != nil {
			return err
		}
		total = player.Score
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return accepted, total, nil
}

func (s *RoomStore) ResetAnswerMarkers(ctx context.Context, code string) error {
	_, err := s.db.NewUpdate().Model((*playerRow)(nil)).
		Set("has_answered = FALSE").
		Where("room_code = ?", code).
		Exec(ctx)
	return err
}

func (s *RoomStore) playerAnswers(ctx context.Context, code, playerID string) ([]domain.AnswerEntry, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("room_code = ? AND player_id = ?", code, playerID).
		Order("question_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	answers := make([]domain.AnswerEntry, len(rows))
	for i, a := range rows {
		answers[i] = domain.AnswerEntry{
			QuestionIndex:  a.QuestionIndex,
			SelectedAnswer: a.SelectedAnswer,
			TimeMs:         a.TimeMs,
			Correct:        a.Correct,
			Score:          a.Score,
		}
	}
	return answers, nil
}

func roomToRow(room domain.Room) roomRow {
	return roomRow{
		Code:                 room.Code,
		Status:               string(room.Status),
		GameMode:             room.GameMode,
		Category:             room.Category,
		Difficulty:           room.Difficulty,
		MaxPlayers:           room.MaxPlayers,
		TimeLimit:            room.TimeLimit,
		QuestionCount:        room.QuestionCount,
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		TotalQuestions:       room.TotalQuestions,
		QuestionStartTime:    room.QuestionStartTime,
		CreatedAt:            room.CreatedAt,
	}
}

func rowToRoom(row roomRow) domain.Room {
	return domain.Room{
		Code:                 row.Code,
		Status:               domain.RoomStatus(row.Status),
		GameMode:             row.GameMode,
		Category:             row.Category,
		Difficulty:           row.Difficulty,
		MaxPlayers:           row.MaxPlayers,
		TimeLimit:            row.TimeLimit,
		QuestionCount:        row.QuestionCount,
		CurrentQuestionIndex: row.CurrentQuestionIndex,
		TotalQuestions:       row.TotalQuestions,
		QuestionStartTime:    row.QuestionStartTime,
		CreatedAt:            row.CreatedAt,
	}
}

func rowToPlayer(row playerRow) domain.Player {
	return domain.Player{
		ID:          row.ID,
		RoomCode:    row.RoomCode,
		Name:        row.Name,
		Avatar:      row.Avatar,
		IsHost:      row.IsHost,
		Score:       row.Score,
		HasAnswered: row.HasAnswered,
		JoinedAt:    row.JoinedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
