package progress

import (
	"errors"
)

// Rewards is the single coin table for learning events. Lessons and quizzes
// share the same perfect threshold.
type Rewards struct {
	PassPercentage    float64
	PerfectPercentage float64

	LessonBase         int64
	LessonPerfectBonus int64

	QuizPassBase          int64
	QuizPerfectBonus      int64
	QuizFirstAttemptBonus int64

	MistakeResolved int64
}

// DefaultRewards returns the production reward table.
func DefaultRewards() Rewards {
	return Rewards{
		PassPercentage:        70,
		PerfectPercentage:     100,
		LessonBase:            10,
		LessonPerfectBonus:    10,
		QuizPassBase:          50,
		QuizPerfectBonus:      50,
		QuizFirstAttemptBonus: 20,
		MistakeResolved:       5,
	}
}

// Validate checks the table is usable.
func (r Rewards) Validate() error {
	var errs []error
	if r.PassPercentage <= 0 || r.PassPercentage > 100 {
		errs = append(errs, errors.New("pass percentage must be in (0, 100]"))
	}
	if r.PerfectPercentage < r.PassPercentage || r.PerfectPercentage > 100 {
		errs = append(errs, errors.New("perfect percentage must be between pass percentage and 100"))
	}
	for _, v := range []int64{r.LessonBase, r.LessonPerfectBonus, r.QuizPassBase,
		r.QuizPerfectBonus, r.QuizFirstAttemptBonus, r.MistakeResolved} {
		if v < 0 {
			errs = append(errs, errors.New("reward amounts must not be negative"))
			break
		}
	}
	return errors.Join(errs...)
}

// Lesson returns the coins for a first lesson completion.
func (r Rewards) Lesson(accuracy float64) int64 {
	coins := r.LessonBase
	if accuracy >= r.PerfectPercentage {
		coins += r.LessonPerfectBonus
	}
	return coins
}

// Quiz returns whether an attempt passed and the coins it earns.
// Failed attempts earn nothing.
func (r Rewards) Quiz(percentage float64, attempt int) (bool, int64) {
	if percentage < r.PassPercentage {
		return false, 0
	}
	coins := r.QuizPassBase
	if percentage >= r.PerfectPercentage {
		coins += r.QuizPerfectBonus
	}
	if attempt == 1 {
		coins += r.QuizFirstAttemptBonus
	}
	return true, coins
}

// Mistake returns the coins for resolving a mistake.
func (r Rewards) Mistake() int64 {
	return r.MistakeResolved
}
