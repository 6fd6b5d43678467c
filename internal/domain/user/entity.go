// Package user содержит доменную модель ученика: счётчики прогресса,
// кэш баланса монет и серию дней входа.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package user

import (
	"strings"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// ProficiencyLevel - грубый уровень владения, выставляется один раз по анкете.
type ProficiencyLevel string

const (
	ProficiencyBeginner     ProficiencyLevel = "beginner"
	ProficiencyIntermediate ProficiencyLevel = "intermediate"
	ProficiencyAdvanced     ProficiencyLevel = "advanced"
)

// IsValid проверяет, что уровень корректен. Пустое значение допустимо.
func (p ProficiencyLevel) IsValid() bool {
	switch p {
	case "", ProficiencyBeginner, ProficiencyIntermediate, ProficiencyAdvanced:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User - ученик с накопленным состоянием геймификации.
type User struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// DisplayName - отображаемое имя.
	DisplayName string

	// Coins - кэш текущего баланса. Меняется только через журнал монет.
	Coins int64

	// StreakDays - текущая серия дней входа.
	StreakDays int

	// BestStreak - лучшая серия за всё время.
	BestStreak int

	// LastActiveDate - точное время последнего входа, nil до первого входа.
	LastActiveDate *time.Time

	// TotalLessonsCompleted - число уроков, завершённых впервые.
	TotalLessonsCompleted int

	// TotalQuizzesCompleted - число отправленных попыток тестов.
	TotalQuizzesCompleted int

	// Accuracy - скользящая средняя точность (0-100).
	Accuracy float64

	// CurrentLevel - текущий уровень для отображения.
	CurrentLevel string

	// ProficiencyLevel - уровень по анкете.
	ProficiencyLevel ProficiencyLevel

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserParams содержит параметры для создания ученика.
type NewUserParams struct {
	ID               string
	DisplayName      string
	CurrentLevel     string
	ProficiencyLevel ProficiencyLevel
}

// NewUser создаёт ученика с нулевым состоянием.
func NewUser(params NewUserParams, now time.Time) (*User, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, shared.NewValidationError("user", "New", "user id is required")
	}
	if !params.ProficiencyLevel.IsValid() {
		return nil, shared.NewValidationError("user", "New", "unknown proficiency level")
	}

	return &User{
		ID:               params.ID,
		DisplayName:      strings.TrimSpace(params.DisplayName),
		CurrentLevel:     params.CurrentLevel,
		ProficiencyLevel: params.ProficiencyLevel,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COUNTERS & ACCURACY
// ══════════════════════════════════════════════════════════════════════════════

// RunningAccuracy пересчитывает среднюю точность после n-го результата.
// n уже включает новый результат: acc = (old*(n-1) + new) / n.
func RunningAccuracy(old float64, n int, value float64) float64 {
	if n <= 1 {
		return value
	}
	return (old*float64(n-1) + value) / float64(n)
}

// samples - число результатов, вошедших в среднюю точность.
func (u *User) samples() int {
	return u.TotalLessonsCompleted + u.TotalQuizzesCompleted
}

// RecordLessonCompleted увеличивает счётчик уроков и обновляет точность.
// Вызывается только при первом завершении урока.
func (u *User) RecordLessonCompleted(accuracy float64, now time.Time) {
	u.TotalLessonsCompleted++
	u.Accuracy = RunningAccuracy(u.Accuracy, u.samples(), accuracy)
	u.UpdatedAt = now
}

// RecordQuizSubmitted увеличивает счётчик тестов и обновляет точность.
// Каждая попытка учитывается отдельно.
func (u *User) RecordQuizSubmitted(percentage float64, now time.Time) {
	u.TotalQuizzesCompleted++
	u.Accuracy = RunningAccuracy(u.Accuracy, u.samples(), percentage)
	u.UpdatedAt = now
}

// Clone возвращает глубокую копию.
func (u *User) Clone() *User {
	c := *u
	if u.LastActiveDate != nil {
		t := *u.LastActiveDate
		c.LastActiveDate = &t
	}
	return &c
}
