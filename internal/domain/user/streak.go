package user

import (
	"time"

	"github.com/qaidahub/rewards-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// StreakChange описывает результат одного входа.
type StreakChange struct {
	// Previous - серия до входа.
	Previous int
	// Current - серия после входа.
	Current int
	// Best - лучшая серия после входа.
	Best int
	// DayDiff - разница в календарных днях с прошлым входом (-1 для первого входа).
	DayDiff int
	// Broken - серия была сброшена из-за пропуска.
	Broken bool
}

// Changed возвращает true, если значение серии изменилось.
func (c StreakChange) Changed() bool {
	return c.Previous != c.Current
}

// RecordLogin обновляет серию дней при входе.
// Разница считается между полуночами в часовом поясе loc:
//   - первый вход: серия = 1
//   - тот же день: без изменений
//   - следующий день: серия + 1
//   - пропуск: серия = 1
//
// После расчёта LastActiveDate получает точное время входа.
func (u *User) RecordLogin(now time.Time, loc *time.Location) StreakChange {
	change := StreakChange{Previous: u.StreakDays, DayDiff: -1}

	if u.LastActiveDate == nil {
		u.StreakDays = 1
	} else {
		diff := timeutil.DaysBetween(*u.LastActiveDate, now, loc)
		change.DayDiff = diff

		switch {
		case diff <= 0:
			// Тот же день (или часы клиента отстают) - ничего не меняем
		case diff == 1:
			u.StreakDays++
		default:
			change.Broken = u.StreakDays > 0
			u.StreakDays = 1
		}
	}

	if u.StreakDays > u.BestStreak {
		u.BestStreak = u.StreakDays
	}

	// LastActiveDate никогда не двигается назад
	if u.LastActiveDate == nil || now.After(*u.LastActiveDate) {
		last := now
		u.LastActiveDate = &last
	}
	u.UpdatedAt = now

	change.Current = u.StreakDays
	change.Best = u.BestStreak
	return change
}
