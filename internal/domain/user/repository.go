package user

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища учеников. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// MutateFunc изменяет ученика под блокировкой строки.
// Поле Coins игнорируется при сохранении: баланс меняет только журнал монет.
type MutateFunc func(u *User) error

// Repository определяет операции с учениками.
type Repository interface {
	// Create создаёт нового ученика.
	// Возвращает ErrUserAlreadyExists, если ученик уже существует.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает ученика по ID.
	// Возвращает ErrUserNotFound, если ученик не найден.
	GetByID(ctx context.Context, id string) (*User, error)

	// Mutate загружает ученика с блокировкой, применяет fn и сохраняет результат
	// одной операцией. Если fn вернула ошибку, ничего не сохраняется.
	// Возвращает ErrUserNotFound, если ученик не найден.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*User, error)
}
