package memory

import (
	"context"
	"strings"

	"pixeltrivia/internal/domain"
)

// QuestionBank is an app.QuestionLoader backed by an in-memory map, useful
// for development and tests when no database is configured.
type QuestionBank struct {
	byCategory map[string][]domain.Question
}

func NewQuestionBank(byCategory map[string][]domain.Question) *QuestionBank {
	return &QuestionBank{byCategory: byCategory}
}

// LoadQuestions returns up to count questions for the category. An unknown
// category falls back to "general"; fewer questions than requested is a
// degraded-but-valid result.
func (b *QuestionBank) LoadQuestions(_ context.Context, category, difficulty string, count int) ([]domain.Question, error) {
	pool, ok := b.byCategory[strings.ToLower(category)]
	if !ok {
		pool = b.byCategory["general"]
	}
	selected := make([]domain.Question, 0, count)
	for _, q := range pool {
		if difficulty != "" && q.Difficulty != "" && q.Difficulty != difficulty {
			continue
		}
		selected = append(selected, q)
		if len(selected) == count {
			break
		}
	}
	if len(selected) < count {
		// Relax the difficulty filter rather than come up short.
		for _, q := range pool {
			if len(selected) == count {
				break
			}
			if difficulty != "" && q.Difficulty != "" && q.Difficulty != difficulty {
				selected = append(selected, q)
			}
		}
	}
	return selected, nil
}

// SampleQuestions is the built-in bank used when no postgres bank is
// configured. Retro-gaming themed, matching the product.
func SampleQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"general": {
			{
				Text:               "How many bits per channel does a classic NES palette entry use?",
				Options:            []string{"2", "6", "8", "16"},
				CorrectAnswerIndex: 0,
				Category:           "general",
				Difficulty:         "hard",
			},
			{
				Text:               "Which resolution is the classic Game Boy screen?",
				Options:            []string{"128x128", "160x144", "256x224", "320x240"},
				CorrectAnswerIndex: 1,
				Category:           "general",
				Difficulty:         "medium",
			},
			{
				Text:               "What does 'sprite' mean in 2D graphics?",
				Options:            []string{"A shader program", "A movable bitmap object", "A sound sample", "A tile map"},
				CorrectAnswerIndex: 1,
				Category:           "general",
				Difficulty:         "easy",
			},
			{
				Text:               "Which company created the arcade game Pac-Man?",
				Options:            []string{"Atari", "Sega", "Namco", "Capcom"},
				CorrectAnswerIndex: 2,
				Category:           "general",
				Difficulty:         "easy",
			},
			{
				Text:               "What year was Tetris first released?",
				Options:            []string{"1980", "1984", "1989", "1991"},
				CorrectAnswerIndex: 1,
				Category:           "general",
				Difficulty:         "medium",
			},
		},
		"retro": {
			{
				Text:               "Which chip powered the Commodore 64's sound?",
				Options:            []string{"SID 6581", "YM2612", "SPC700", "AY-3-8910"},
				CorrectAnswerIndex: 0,
				Category:           "retro",
				Difficulty:         "hard",
			},
			{
				Text:               "How many colors can the original NES display on screen at once?",
				Options:            []string{"16", "25", "54", "256"},
				CorrectAnswerIndex: 1,
				Category:           "retro",
				Difficulty:         "hard",
			},
			{
				Text:               "Which console introduced the D-pad as we know it?",
				Options:            []string{"Atari 2600", "Game & Watch", "Master System", "Intellivision"},
				CorrectAnswerIndex: 1,
				Category:           "retro",
				Difficulty:         "medium",
			},
		},
	}
}
