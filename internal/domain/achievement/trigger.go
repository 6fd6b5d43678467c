package achievement

import (
	"strings"
)

// TriggerType names the event family a check runs for.
type TriggerType string

const (
	TriggerLessonComplete TriggerType = "lesson_complete"
	TriggerQuizComplete   TriggerType = "quiz_complete"
	TriggerLevelComplete  TriggerType = "level_complete"
	TriggerModuleComplete TriggerType = "module_complete"
	TriggerStreak         TriggerType = "streak"
	TriggerCoins          TriggerType = "coins"
)

// IsValid checks if the trigger type is known.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerLessonComplete, TriggerQuizComplete, TriggerLevelComplete,
		TriggerModuleComplete, TriggerStreak, TriggerCoins:
		return true
	default:
		return false
	}
}

// TriggerData carries the values the rules for one trigger type read.
type TriggerData struct {
	LessonsCompleted int
	Percentage       float64
	LevelID          string
	Module           string
	StreakDays       int
	Balance          int64
}

// Trigger is the input of an achievement check.
type Trigger struct {
	Type TriggerType
	Data TriggerData
}

// LessonTrigger builds a lesson_complete trigger.
func LessonTrigger(totalLessons int) Trigger {
	return Trigger{Type: TriggerLessonComplete, Data: TriggerData{LessonsCompleted: totalLessons}}
}

// QuizTrigger builds a quiz_complete trigger.
func QuizTrigger(percentage float64) Trigger {
	return Trigger{Type: TriggerQuizComplete, Data: TriggerData{Percentage: percentage}}
}

// LevelTrigger builds a level_complete trigger.
func LevelTrigger(module, levelID string) Trigger {
	return Trigger{Type: TriggerLevelComplete, Data: TriggerData{Module: module, LevelID: levelID}}
}

// ModuleTrigger builds a module_complete trigger.
func ModuleTrigger(module string) Trigger {
	return Trigger{Type: TriggerModuleComplete, Data: TriggerData{Module: module}}
}

// StreakTrigger builds a streak trigger.
func StreakTrigger(days int) Trigger {
	return Trigger{Type: TriggerStreak, Data: TriggerData{StreakDays: days}}
}

// CoinsTrigger builds a coins trigger.
func CoinsTrigger(balance int64) Trigger {
	return Trigger{Type: TriggerCoins, Data: TriggerData{Balance: balance}}
}

// Candidate is a badge whose condition holds for a trigger.
type Candidate struct {
	Badge    BadgeType
	Metadata Metadata
}

const (
	CoinCollectorThreshold = 1000
	PerfectPercentage      = 100.0
)

// Evaluate returns the badges whose conditions hold for the trigger.
// It does not know which badges the user already holds; the award step
// relies on storage uniqueness for that.
func Evaluate(tr Trigger) []Candidate {
	d := tr.Data
	var out []Candidate

	switch tr.Type {
	case TriggerLessonComplete:
		meta := Metadata{Kind: tr.Type, LessonCount: d.LessonsCompleted}
		switch d.LessonsCompleted {
		case 1:
			out = append(out, Candidate{BadgeFirstLesson, meta})
		case 100:
			out = append(out, Candidate{Badge100Lessons, meta})
		case 500:
			out = append(out, Candidate{Badge500Lessons, meta})
		}

	case TriggerQuizComplete:
		if d.Percentage >= PerfectPercentage {
			out = append(out, Candidate{BadgePerfectScore, Metadata{Kind: tr.Type, Percentage: d.Percentage}})
		}

	case TriggerLevelComplete:
		meta := Metadata{Kind: tr.Type, LevelID: d.LevelID, Module: d.Module}
		switch NormalizeLevelID(d.LevelID) {
		case "2":
			out = append(out, Candidate{BadgeLevel2, meta})
		case "5":
			out = append(out, Candidate{BadgeLevel5, meta})
		}

	case TriggerModuleComplete:
		meta := Metadata{Kind: tr.Type, Module: d.Module}
		switch strings.ToLower(strings.TrimSpace(d.Module)) {
		case "qaida":
			out = append(out, Candidate{BadgeQaidaComplete, meta})
		case "quran":
			out = append(out, Candidate{BadgeQuranComplete, meta})
		}

	case TriggerStreak:
		meta := Metadata{Kind: tr.Type, StreakDays: d.StreakDays}
		switch d.StreakDays {
		case 7:
			out = append(out, Candidate{BadgeWeekStreak, meta})
		case 30:
			out = append(out, Candidate{BadgeMonthStreak, meta})
		}

	case TriggerCoins:
		if d.Balance >= CoinCollectorThreshold {
			out = append(out, Candidate{BadgeCoinCollector, Metadata{Kind: tr.Type, Balance: d.Balance}})
		}
	}

	return out
}

// NormalizeLevelID strips a "level" prefix so "2", "level_2", "Level-2" and
// "level 2" compare equal.
func NormalizeLevelID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "level")
	return strings.TrimLeft(s, "_- ")
}
