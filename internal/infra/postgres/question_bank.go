package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"pixeltrivia/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionBank loads question pools stored as JSONB rows, one row per
// category, and serves them through the app.QuestionLoader contract.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

type bankedQuestion struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Difficulty         string   `json:"difficulty"`
}

// LoadQuestions returns up to count questions for the category, preferring
// the requested difficulty. A category with fewer questions than requested
// yields a short list, not an error.
func (b *QuestionBank) LoadQuestions(ctx context.Context, category, difficulty string, count int) ([]domain.Question, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE category = $1`, category).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load question bank %q: %w", category, err)
	}
	var pool []bankedQuestion
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, fmt.Errorf("unmarshal question bank %q: %w", category, err)
	}

	selected := make([]domain.Question, 0, count)
	appendFrom := func(matchDifficulty bool) {
		for _, q := range pool {
			if len(selected) == count {
				return
			}
			matches := difficulty == "" || q.Difficulty == "" || q.Difficulty == difficulty
			if matches != matchDifficulty {
				continue
			}
			selected = append(selected, domain.Question{
				Text:               q.Text,
				Options:            q.Options,
				CorrectAnswerIndex: q.CorrectAnswerIndex,
				Category:           category,
				Difficulty:         q.Difficulty,
			})
		}
	}
	appendFrom(true)
	appendFrom(false)
	return selected, nil
}
