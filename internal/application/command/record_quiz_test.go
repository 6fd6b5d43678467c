package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

func quiz(userID string, score, total int) command.RecordQuizResultCommand {
	return command.RecordQuizResultCommand{
		UserID:         userID,
		QuizID:         "qaida-quiz-1",
		Module:         "Qaida",
		LevelID:        "1",
		Score:          score,
		TotalQuestions: total,
		TimeSpent:      300,
	}
}

func TestRecordQuizResult_Attempts(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u1")
	ctx := context.Background()

	// Perfect on the first attempt: 50 + 50 + 20, then perfect_score pays 100.
	res, err := f.quizzes.RecordQuizResult(ctx, quiz("u1", 10, 10))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 100.0, res.Percentage)
	assert.Equal(t, 1, res.QuizResult.Attempts)
	assert.Equal(t, int64(120), res.CoinsEarned)
	assert.Equal(t, []achievement.BadgeType{achievement.BadgePerfectScore}, badgeTypes(res.Achievements))
	assert.Equal(t, int64(220), f.balance(t, "u1"))

	res, err = f.quizzes.RecordQuizResult(ctx, quiz("u1", 6, 10))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.QuizResult.Attempts)
	assert.Zero(t, res.CoinsEarned)
	assert.Empty(t, res.Achievements)

	res, err = f.quizzes.RecordQuizResult(ctx, quiz("u1", 8, 10))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 3, res.QuizResult.Attempts)
	assert.Equal(t, int64(50), res.CoinsEarned)
	assert.Equal(t, int64(270), f.balance(t, "u1"))

	u, err := f.store.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.TotalQuizzesCompleted)
	assert.InDelta(t, 80.0, u.Accuracy, 0.001)

	f.requireConsistentLedger(t, "u1")
	assert.Equal(t, 3, f.events.Count(shared.EventQuizSubmitted))
}

func TestRecordQuizResult_PassingThreshold(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u1")

	// 7 of 10 is exactly the pass mark.
	res, err := f.quizzes.RecordQuizResult(context.Background(), quiz("u1", 7, 10))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, int64(70), res.CoinsEarned)
}

func TestRecordQuizResult_Validation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u1")
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  command.RecordQuizResultCommand
	}{
		{"score above total", quiz("u1", 11, 10)},
		{"negative score", quiz("u1", -1, 10)},
		{"no questions", quiz("u1", 0, 0)},
		{"blank quiz", command.RecordQuizResultCommand{UserID: "u1", QuizID: " ", Score: 1, TotalQuestions: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.quizzes.RecordQuizResult(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}

	assert.Zero(t, f.events.Count(shared.EventQuizSubmitted))
}

func TestRecordQuizResult_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.quizzes.RecordQuizResult(context.Background(), quiz("ghost", 5, 10))
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}
