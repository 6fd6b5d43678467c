// Package achievement contains one-time badges, the fixed badge table and
// the trigger rules that decide when a badge is due.
// This is a pure domain layer with zero external dependencies.
package achievement

import (
	"fmt"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// BadgeType identifies a badge. A user holds each badge at most once.
type BadgeType string

const (
	BadgeFirstLesson    BadgeType = "first_lesson"
	Badge100Lessons     BadgeType = "100_lessons"
	Badge500Lessons     BadgeType = "500_lessons"
	BadgePerfectScore   BadgeType = "perfect_score"
	BadgeLevel2         BadgeType = "level_2_badge"
	BadgeLevel5         BadgeType = "level_5_badge"
	BadgeQaidaComplete  BadgeType = "qaida_complete"
	BadgeQuranComplete  BadgeType = "quran_complete"
	BadgeWeekStreak     BadgeType = "week_streak"
	BadgeMonthStreak    BadgeType = "month_streak"
	BadgeCoinCollector  BadgeType = "coin_collector"
)

// Definition is the fixed reward attached to a badge.
type Definition struct {
	Type        BadgeType
	Title       string
	Description string
	Coins       int64
}

// Definitions is the badge table.
var Definitions = map[BadgeType]Definition{
	BadgeFirstLesson:   {BadgeFirstLesson, "First Steps", "Completed your first lesson", 50},
	Badge100Lessons:    {Badge100Lessons, "Dedicated Learner", "Completed 100 lessons", 500},
	Badge500Lessons:    {Badge500Lessons, "Master Student", "Completed 500 lessons", 2000},
	BadgePerfectScore:  {BadgePerfectScore, "Perfect Score", "Scored 100% on a quiz", 100},
	BadgeLevel2:        {BadgeLevel2, "Rising Star", "Completed level 2", 200},
	BadgeLevel5:        {BadgeLevel5, "Halfway Hero", "Completed level 5", 500},
	BadgeQaidaComplete: {BadgeQaidaComplete, "Qaida Graduate", "Completed the Qaida module", 1000},
	BadgeQuranComplete: {BadgeQuranComplete, "Quran Companion", "Completed the Quran module", 5000},
	BadgeWeekStreak:    {BadgeWeekStreak, "Week Warrior", "Logged in 7 days in a row", 150},
	BadgeMonthStreak:   {BadgeMonthStreak, "Monthly Devotion", "Logged in 30 days in a row", 1000},
	BadgeCoinCollector: {BadgeCoinCollector, "Coin Collector", "Collected 1000 coins", 250},
}

// Lookup returns the definition of a badge.
func Lookup(t BadgeType) (Definition, error) {
	def, ok := Definitions[t]
	if !ok {
		return Definition{}, shared.NewDomainError("achievement", "Lookup", shared.ErrInvalidBadgeType,
			fmt.Sprintf("unknown badge %q", t))
	}
	return def, nil
}

// MustDefinition returns the definition of a badge and panics for unknown
// badges. Badge types come from the trigger table, so a miss is a bug.
func MustDefinition(t BadgeType) Definition {
	def, err := Lookup(t)
	if err != nil {
		panic(err)
	}
	return def
}
