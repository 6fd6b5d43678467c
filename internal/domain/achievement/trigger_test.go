package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

func badges(cs []Candidate) []BadgeType {
	out := make([]BadgeType, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Badge)
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		want    []BadgeType
	}{
		{"first lesson", LessonTrigger(1), []BadgeType{BadgeFirstLesson}},
		{"second lesson", LessonTrigger(2), []BadgeType{}},
		{"hundredth lesson", LessonTrigger(100), []BadgeType{Badge100Lessons}},
		{"past hundred", LessonTrigger(101), []BadgeType{}},
		{"five hundredth lesson", LessonTrigger(500), []BadgeType{Badge500Lessons}},
		{"perfect quiz", QuizTrigger(100), []BadgeType{BadgePerfectScore}},
		{"good quiz", QuizTrigger(99.9), []BadgeType{}},
		{"level 2 plain", LevelTrigger("Qaida", "2"), []BadgeType{BadgeLevel2}},
		{"level 2 underscore", LevelTrigger("Qaida", "level_2"), []BadgeType{BadgeLevel2}},
		{"level 5 dash", LevelTrigger("Qaida", "Level-5"), []BadgeType{BadgeLevel5}},
		{"level 3", LevelTrigger("Qaida", "3"), []BadgeType{}},
		{"level 20", LevelTrigger("Qaida", "20"), []BadgeType{}},
		{"qaida module", ModuleTrigger("Qaida"), []BadgeType{BadgeQaidaComplete}},
		{"quran module", ModuleTrigger("Quran"), []BadgeType{BadgeQuranComplete}},
		{"dua module", ModuleTrigger("Dua"), []BadgeType{}},
		{"week streak", StreakTrigger(7), []BadgeType{BadgeWeekStreak}},
		{"eighth day", StreakTrigger(8), []BadgeType{}},
		{"month streak", StreakTrigger(30), []BadgeType{BadgeMonthStreak}},
		{"coins below", CoinsTrigger(999), []BadgeType{}},
		{"coins reached", CoinsTrigger(1000), []BadgeType{BadgeCoinCollector}},
		{"coins above", CoinsTrigger(4200), []BadgeType{BadgeCoinCollector}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, badges(Evaluate(tt.trigger)))
		})
	}
}

func TestEvaluate_MetadataCarriesTriggerData(t *testing.T) {
	cs := Evaluate(StreakTrigger(7))
	require.Len(t, cs, 1)
	assert.Equal(t, Metadata{Kind: TriggerStreak, StreakDays: 7}, cs[0].Metadata)
}

func TestEveryTriggeredBadgeHasDefinition(t *testing.T) {
	for badge := range Definitions {
		assert.NotPanics(t, func() { MustDefinition(badge) })
	}
	for _, tr := range []Trigger{
		LessonTrigger(1), LessonTrigger(100), LessonTrigger(500), QuizTrigger(100),
		LevelTrigger("", "2"), LevelTrigger("", "5"), ModuleTrigger("Qaida"), ModuleTrigger("Quran"),
		StreakTrigger(7), StreakTrigger(30), CoinsTrigger(1000),
	} {
		for _, c := range Evaluate(tr) {
			_, ok := Definitions[c.Badge]
			assert.True(t, ok, "badge %s has no definition", c.Badge)
		}
	}
}

func TestLookup_InvalidBadge(t *testing.T) {
	_, err := Lookup("golden_goose")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidBadgeType)

	assert.Panics(t, func() { MustDefinition("golden_goose") })
}

func TestNew(t *testing.T) {
	now := time.Now()
	a, err := New("a1", "u1", MustDefinition(BadgeFirstLesson), Metadata{Kind: TriggerLessonComplete, LessonCount: 1}, now)
	require.NoError(t, err)

	assert.Equal(t, BadgeFirstLesson, a.BadgeType)
	assert.Equal(t, int64(50), a.CoinsRewarded)
	assert.Equal(t, "First Steps", a.Title)

	_, err = New("a2", "", MustDefinition(BadgeFirstLesson), Metadata{}, now)
	assert.True(t, shared.IsValidation(err))
}
