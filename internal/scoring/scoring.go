// Package scoring converts answer submissions into points and reduces a
// finished game's answer list into summary statistics. Everything here is
// pure: no clocks, no stores.
package scoring

import (
	"math"

	"pixeltrivia/internal/domain"
)

// Config tunes the points formula.
type Config struct {
	BasePoints    int
	MaxTimeBonus  int
	ReferenceTime float64 // seconds; answers at or beyond this earn no bonus
}

// DefaultConfig returns the production scoring parameters.
func DefaultConfig() Config {
	return Config{
		BasePoints:    100,
		MaxTimeBonus:  50,
		ReferenceTime: 30,
	}
}

// Points computes the score for one answer. Wrong answers earn nothing;
// correct answers earn the base plus a time bonus that decays linearly from
// MaxTimeBonus at t=0 to zero at ReferenceTime.
func Points(correct bool, timeSpentSeconds float64, cfg Config) int {
	if !correct {
		return 0
	}
	return cfg.BasePoints + TimeBonus(timeSpentSeconds, cfg)
}

// TimeBonus returns the bonus component on its own, clamped to
// [0, MaxTimeBonus].
func TimeBonus(timeSpentSeconds float64, cfg Config) int {
	if cfg.ReferenceTime <= 0 {
		return 0
	}
	raw := (cfg.ReferenceTime - timeSpentSeconds) * float64(cfg.MaxTimeBonus) / cfg.ReferenceTime
	bonus := int(math.Round(raw))
	if bonus < 0 {
		return 0
	}
	if bonus > cfg.MaxTimeBonus {
		return cfg.MaxTimeBonus
	}
	return bonus
}

// Summary aggregates a player's answers for a finished game.
type Summary struct {
	TotalScore    int     `json:"totalScore"`
	Correct       int     `json:"correct"`
	Total         int     `json:"total"`
	Accuracy      float64 `json:"accuracy"` // percent, one decimal place
	TotalTimeMs   int     `json:"totalTimeMs"`
	AverageTimeMs int     `json:"averageTimeMs"`
	Grade         string  `json:"grade"`
}

// Summarize reduces an answer list into a Summary. Accuracy is rounded to
// one decimal place; the grade bands at 90/80/70/60 percent.
func Summarize(answers []domain.AnswerEntry) Summary {
	s := Summary{Total: len(answers)}
	for _, a := range answers {
		s.TotalScore += a.Score
		s.TotalTimeMs += a.TimeMs
		if a.Correct {
			s.Correct++
		}
	}
	if s.Total > 0 {
		s.Accuracy = math.Round(float64(s.Correct)/float64(s.Total)*1000) / 10
		s.AverageTimeMs = s.TotalTimeMs / s.Total
	}
	s.Grade = Grade(s.Accuracy)
	return s
}

// Grade maps an accuracy percentage to a letter grade.
func Grade(accuracy float64) string {
	switch {
	case accuracy >= 90:
		return "A"
	case accuracy >= 80:
		return "B"
	case accuracy >= 70:
		return "C"
	case accuracy >= 60:
		return "D"
	default:
		return "F"
	}
}
