package handlers

import (
	"time"

	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type registerUserRequest struct {
	UserID           string `json:"user_id"`
	DisplayName      string `json:"display_name"`
	CurrentLevel     string `json:"current_level"`
	ProficiencyLevel string `json:"proficiency_level"`
}

type lessonRequest struct {
	Module    string  `json:"module"`
	LevelID   string  `json:"level_id"`
	LessonID  string  `json:"lesson_id"`
	Accuracy  float64 `json:"accuracy"`
	TimeSpent int     `json:"time_spent"`

	// CompletionPercentage is only read by the track route.
	CompletionPercentage float64 `json:"completion_percentage"`
}

type quizRequest struct {
	QuizID         string `json:"quiz_id"`
	Module         string `json:"module"`
	LevelID        string `json:"level_id"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
	TimeSpent      int    `json:"time_spent"`
}

type mistakeRequest struct {
	Module     string `json:"module"`
	LessonID   string `json:"lesson_id"`
	QuestionID string `json:"question_id"`
}

type spendRequest struct {
	Amount int64  `json:"amount"`
	Item   string `json:"item"`
}

// adjustRequest carries a signed amount: positive credits, negative debits.
type adjustRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type userResponse struct {
	ID                    string     `json:"id"`
	DisplayName           string     `json:"display_name,omitempty"`
	Coins                 int64      `json:"coins"`
	StreakDays            int        `json:"streak_days"`
	BestStreak            int        `json:"best_streak"`
	LastActiveDate        *time.Time `json:"last_active_date"`
	TotalLessonsCompleted int        `json:"total_lessons_completed"`
	TotalQuizzesCompleted int        `json:"total_quizzes_completed"`
	Accuracy              float64    `json:"accuracy"`
	CurrentLevel          string     `json:"current_level,omitempty"`
	ProficiencyLevel      string     `json:"proficiency_level,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func newUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:                    u.ID,
		DisplayName:           u.DisplayName,
		Coins:                 u.Coins,
		StreakDays:            u.StreakDays,
		BestStreak:            u.BestStreak,
		LastActiveDate:        u.LastActiveDate,
		TotalLessonsCompleted: u.TotalLessonsCompleted,
		TotalQuizzesCompleted: u.TotalQuizzesCompleted,
		Accuracy:              u.Accuracy,
		CurrentLevel:          u.CurrentLevel,
		ProficiencyLevel:      string(u.ProficiencyLevel),
		CreatedAt:             u.CreatedAt,
	}
}

type progressResponse struct {
	ID                   string     `json:"id"`
	Module               string     `json:"module"`
	LevelID              string     `json:"level_id"`
	LessonID             string     `json:"lesson_id"`
	Status               string     `json:"status"`
	CompletionPercentage float64    `json:"completion_percentage"`
	TimeSpent            int        `json:"time_spent"`
	Attempts             int        `json:"attempts"`
	Accuracy             float64    `json:"accuracy"`
	CoinsEarned          int64      `json:"coins_earned"`
	StartedAt            *time.Time `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at"`
	LastAccessedAt       time.Time  `json:"last_accessed_at"`
}

func newProgressResponse(p *progress.Progress) progressResponse {
	return progressResponse{
		ID:                   p.ID,
		Module:               p.Module,
		LevelID:              p.LevelID,
		LessonID:             p.LessonID,
		Status:               string(p.Status),
		CompletionPercentage: p.CompletionPercentage,
		TimeSpent:            p.TimeSpent,
		Attempts:             p.Attempts,
		Accuracy:             p.Accuracy,
		CoinsEarned:          p.CoinsEarned,
		StartedAt:            p.StartedAt,
		CompletedAt:          p.CompletedAt,
		LastAccessedAt:       p.LastAccessedAt,
	}
}

type quizResultResponse struct {
	ID             string    `json:"id"`
	QuizID         string    `json:"quiz_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     float64   `json:"percentage"`
	Passed         bool      `json:"passed"`
	Attempt        int       `json:"attempt"`
	CoinsEarned    int64     `json:"coins_earned"`
	CompletedAt    time.Time `json:"completed_at"`
}

func newQuizResultResponse(q *progress.QuizResult) quizResultResponse {
	return quizResultResponse{
		ID:             q.ID,
		QuizID:         q.QuizID,
		Score:          q.Score,
		TotalQuestions: q.TotalQuestions,
		Percentage:     q.Percentage,
		Passed:         q.Passed,
		Attempt:        q.Attempts,
		CoinsEarned:    q.CoinsEarned,
		CompletedAt:    q.CompletedAt,
	}
}

type mistakeResponse struct {
	ID          string     `json:"id"`
	Module      string     `json:"module,omitempty"`
	LessonID    string     `json:"lesson_id,omitempty"`
	QuestionID  string     `json:"question_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CoinsEarned int64      `json:"coins_earned"`
}

func newMistakeResponse(m *progress.Mistake) mistakeResponse {
	return mistakeResponse{
		ID:          m.ID,
		Module:      m.Module,
		LessonID:    m.LessonID,
		QuestionID:  m.QuestionID,
		CreatedAt:   m.CreatedAt,
		ResolvedAt:  m.ResolvedAt,
		CoinsEarned: m.CoinsEarned,
	}
}

type transactionResponse struct {
	ID          string           `json:"id"`
	Seq         int64            `json:"seq"`
	Type        coins.Type       `json:"type"`
	Amount      int64            `json:"amount"`
	Balance     int64            `json:"balance"`
	Description string           `json:"description,omitempty"`
	Reference   *coins.Reference `json:"reference,omitempty"`
	Metadata    *coins.Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func newTransactionResponse(t *coins.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Seq:         t.Seq,
		Type:        t.Type,
		Amount:      t.Amount,
		Balance:     t.Balance,
		Description: t.Description,
		Reference:   t.Reference,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
	}
}

func newTransactionsResponse(txs []*coins.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionResponse(t))
	}
	return out
}

type ledgerResponse struct {
	Transaction transactionResponse `json:"transaction"`
	NewBalance  int64               `json:"new_balance"`
}

func newLedgerResponse(r *command.LedgerResult) ledgerResponse {
	return ledgerResponse{
		Transaction: newTransactionResponse(r.Transaction),
		NewBalance:  r.NewBalance,
	}
}

type achievementResponse struct {
	ID            string               `json:"id"`
	BadgeType     string               `json:"badge_type"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	CoinsRewarded int64                `json:"coins_rewarded"`
	Metadata      achievement.Metadata `json:"metadata"`
	EarnedAt      time.Time            `json:"earned_at"`
}

func newAchievementsResponse(list []*achievement.Achievement) []achievementResponse {
	out := make([]achievementResponse, 0, len(list))
	for _, a := range list {
		out = append(out, achievementResponse{
			ID:            a.ID,
			BadgeType:     string(a.BadgeType),
			Title:         a.Title,
			Description:   a.Description,
			CoinsRewarded: a.CoinsRewarded,
			Metadata:      a.Metadata,
			EarnedAt:      a.EarnedAt,
		})
	}
	return out
}

// rewardResponse is shared by every command that can pay coins and badges.
type rewardResponse struct {
	CoinsEarned   int64                 `json:"coins_earned"`
	Achievements  []achievementResponse `json:"achievements"`
	RewardPending bool                  `json:"reward_pending,omitempty"`
}
