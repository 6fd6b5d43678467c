package progress

import (
	"math"
	"strings"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// QuizSubmission is one attempt as sent by the learner.
type QuizSubmission struct {
	UserID         string
	QuizID         string
	Module         string
	LevelID        string
	Score          int
	TotalQuestions int
	TimeSpent      int
}

// Validate checks the submission before anything is written.
func (s QuizSubmission) Validate() error {
	if strings.TrimSpace(s.UserID) == "" || strings.TrimSpace(s.QuizID) == "" {
		return shared.NewValidationError("progress", "SubmitQuiz", "user and quiz are required")
	}
	if s.TotalQuestions <= 0 {
		return shared.NewValidationError("progress", "SubmitQuiz", "total questions must be positive")
	}
	if s.Score < 0 || s.Score > s.TotalQuestions {
		return shared.NewValidationError("progress", "SubmitQuiz", "score must be between 0 and total questions")
	}
	if s.TimeSpent < 0 {
		return shared.NewValidationError("progress", "SubmitQuiz", "time spent must not be negative")
	}
	return nil
}

// Percentage returns score/total*100 rounded to two decimals.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*10000) / 100
}

// QuizResult is one stored attempt. Rows are never updated.
type QuizResult struct {
	ID             string
	UserID         string
	QuizID         string
	Module         string
	LevelID        string
	Score          int
	TotalQuestions int
	Percentage     float64
	Passed         bool

	// Attempts is the 1-based attempt number of this row.
	Attempts    int
	CoinsEarned int64
	TimeSpent   int
	CompletedAt time.Time
}

// NewQuizResult scores a submission as attempt number attempt.
func NewQuizResult(id string, s QuizSubmission, attempt int, rewards Rewards, now time.Time) *QuizResult {
	pct := Percentage(s.Score, s.TotalQuestions)
	passed, coins := rewards.Quiz(pct, attempt)
	return &QuizResult{
		ID:             id,
		UserID:         s.UserID,
		QuizID:         s.QuizID,
		Module:         s.Module,
		LevelID:        s.LevelID,
		Score:          s.Score,
		TotalQuestions: s.TotalQuestions,
		Percentage:     pct,
		Passed:         passed,
		Attempts:       attempt,
		CoinsEarned:    coins,
		TimeSpent:      s.TimeSpent,
		CompletedAt:    now,
	}
}
