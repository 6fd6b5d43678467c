package progress

import (
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/pkg/timeutil"
)

// WeekDays is the length of the rolling activity window.
const WeekDays = 7

// ModuleStats aggregates one module.
type ModuleStats struct {
	TotalLessons     int     `json:"total_lessons"`
	CompletedLessons int     `json:"completed_lessons"`
	TimeSpent        int     `json:"time_spent"`
	Accuracy         float64 `json:"accuracy"`
	Coins            int64   `json:"coins"`
}

// DayActivity is one day of the rolling week.
type DayActivity struct {
	Date             string  `json:"date"`
	LessonsCompleted int     `json:"lessons_completed"`
	Accuracy         float64 `json:"accuracy"`
}

// TypeCount is the completed/total pair of a tracked module.
type TypeCount struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Summary is the read model of a learner's progress. Every field is derived
// from the same snapshot of progress rows.
type Summary struct {
	UserID string `json:"user_id"`

	TotalLessons        int     `json:"total_lessons"`
	CompletedLessons    int     `json:"completed_lessons"`
	CompletedPercentage float64 `json:"completed_percentage"`
	TotalTimeSpent      int     `json:"total_time_spent"`
	Accuracy            float64 `json:"accuracy"`

	// TotalCoins is the sum of lesson rewards, not the wallet balance.
	TotalCoins int64 `json:"total_coins"`

	ByModule       map[string]ModuleStats `json:"by_module"`
	WeeklyProgress []DayActivity          `json:"weekly_progress"`
	LessonsByType  map[string]TypeCount   `json:"lessons_by_type"`
	LastActivity   *time.Time             `json:"last_activity"`
	CurrentLevel   string                 `json:"current_level"`

	Coins      int64 `json:"coins"`
	StreakDays int   `json:"streak_days"`
	BestStreak int   `json:"best_streak"`

	GeneratedAt time.Time `json:"generated_at"`
}

// mean is a running arithmetic mean.
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.count++
}

// addRecorded skips zero, the value of a row without recorded accuracy.
func (m *mean) addRecorded(v float64) {
	if v > 0 {
		m.add(v)
	}
}

func (m mean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Summarize computes a Summary from u and one read of its progress rows.
// Weekly buckets are the calendar days of loc ending on now's day.
func Summarize(u *user.User, rows []*Progress, now time.Time, loc *time.Location) *Summary {
	s := &Summary{
		ByModule:       make(map[string]ModuleStats),
		LessonsByType:  make(map[string]TypeCount, len(TrackedModules)),
		WeeklyProgress: make([]DayActivity, WeekDays),
		GeneratedAt:    now,
	}
	if u != nil {
		s.UserID = u.ID
		s.CurrentLevel = u.CurrentLevel
		s.Coins = u.Coins
		s.StreakDays = u.StreakDays
		s.BestStreak = u.BestStreak
	}

	for _, m := range TrackedModules {
		s.LessonsByType[m] = TypeCount{}
	}

	days := timeutil.LastNDays(now, WeekDays, loc)
	dayIndex := make(map[string]int, WeekDays)
	dayAcc := make([]mean, WeekDays)
	for i, d := range days {
		key := timeutil.DateKey(d, loc)
		dayIndex[key] = i
		s.WeeklyProgress[i].Date = key
	}

	var overall mean
	moduleAcc := make(map[string]*mean)

	for _, p := range rows {
		completed := p.Status == StatusCompleted

		s.TotalLessons++
		s.TotalTimeSpent += p.TimeSpent
		s.TotalCoins += p.CoinsEarned
		overall.addRecorded(p.Accuracy)

		ms := s.ByModule[p.Module]
		ms.TotalLessons++
		ms.TimeSpent += p.TimeSpent
		ms.Coins += p.CoinsEarned
		if completed {
			ms.CompletedLessons++
			s.CompletedLessons++
		}
		s.ByModule[p.Module] = ms
		if moduleAcc[p.Module] == nil {
			moduleAcc[p.Module] = &mean{}
		}
		moduleAcc[p.Module].addRecorded(p.Accuracy)

		if tc, ok := s.LessonsByType[p.Module]; ok {
			tc.Total++
			if completed {
				tc.Completed++
			}
			s.LessonsByType[p.Module] = tc
		}

		if p.CompletedAt != nil {
			if s.LastActivity == nil || p.CompletedAt.After(*s.LastActivity) {
				last := *p.CompletedAt
				s.LastActivity = &last
			}
			if i, ok := dayIndex[timeutil.DateKey(*p.CompletedAt, loc)]; ok {
				// Every lesson of the day counts, zero accuracy included.
				s.WeeklyProgress[i].LessonsCompleted++
				dayAcc[i].add(p.Accuracy)
			}
		}
	}

	if s.TotalLessons > 0 {
		s.CompletedPercentage = float64(s.CompletedLessons) / float64(s.TotalLessons) * 100
	}
	s.Accuracy = overall.value()

	for module, acc := range moduleAcc {
		ms := s.ByModule[module]
		ms.Accuracy = acc.value()
		s.ByModule[module] = ms
	}
	for i := range s.WeeklyProgress {
		s.WeeklyProgress[i].Accuracy = dayAcc[i].value()
	}

	return s
}
