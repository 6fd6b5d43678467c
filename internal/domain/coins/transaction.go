// Package coins contains the coin ledger model: append-only transactions
// whose running balance is cached on the user.
// This is a pure domain layer with zero external dependencies.
package coins

import (
	"fmt"
	"strings"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Type classifies a ledger entry.
type Type string

const (
	TypeLessonComplete  Type = "lesson_complete"
	TypeQuizComplete    Type = "quiz_complete"
	TypeAchievement     Type = "achievement"
	TypeMistakeResolved Type = "mistake_resolved"
	TypePurchase        Type = "purchase"
	TypeAdjustment      Type = "adjustment"
)

// AllTypes lists every transaction type.
var AllTypes = []Type{
	TypeLessonComplete,
	TypeQuizComplete,
	TypeAchievement,
	TypeMistakeResolved,
	TypePurchase,
	TypeAdjustment,
}

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RefModel names the kind of record a transaction points at.
type RefModel string

const (
	RefProgress    RefModel = "progress"
	RefQuizResult  RefModel = "quiz_result"
	RefAchievement RefModel = "achievement"
	RefMistake     RefModel = "mistake"
	RefPurchase    RefModel = "purchase"
)

// Reference links a transaction to the record that caused it.
type Reference struct {
	Model RefModel `json:"model"`
	ID    string   `json:"id"`
}

// ══════════════════════════════════════════════════════════════════════════════
// METADATA
// ══════════════════════════════════════════════════════════════════════════════

// Metadata is keyed by Kind; only the fields of that kind are set.
type Metadata struct {
	Kind       Type     `json:"kind"`
	LessonID   string   `json:"lesson_id,omitempty"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	QuizID     string   `json:"quiz_id,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	Attempt    int      `json:"attempt,omitempty"`
	BadgeType  string   `json:"badge_type,omitempty"`
	MistakeID  string   `json:"mistake_id,omitempty"`
	Item       string   `json:"item,omitempty"`
}

// LessonMetadata describes a lesson completion reward.
func LessonMetadata(lessonID string, accuracy float64) *Metadata {
	return &Metadata{Kind: TypeLessonComplete, LessonID: lessonID, Accuracy: &accuracy}
}

// QuizMetadata describes a quiz reward.
func QuizMetadata(quizID string, percentage float64, attempt int) *Metadata {
	return &Metadata{Kind: TypeQuizComplete, QuizID: quizID, Percentage: &percentage, Attempt: attempt}
}

// AchievementMetadata describes a badge bonus.
func AchievementMetadata(badgeType string) *Metadata {
	return &Metadata{Kind: TypeAchievement, BadgeType: badgeType}
}

// MistakeMetadata describes a mistake-resolution reward.
func MistakeMetadata(mistakeID string) *Metadata {
	return &Metadata{Kind: TypeMistakeResolved, MistakeID: mistakeID}
}

// PurchaseMetadata describes a spend.
func PurchaseMetadata(item string) *Metadata {
	return &Metadata{Kind: TypePurchase, Item: item}
}

// Validate checks that the fields required by Kind are present.
func (m *Metadata) Validate() error {
	if m == nil {
		return nil
	}
	switch m.Kind {
	case TypeLessonComplete:
		if m.LessonID == "" {
			return fmt.Errorf("lesson metadata requires lesson_id")
		}
	case TypeQuizComplete:
		if m.QuizID == "" || m.Percentage == nil {
			return fmt.Errorf("quiz metadata requires quiz_id and percentage")
		}
	case TypeAchievement:
		if m.BadgeType == "" {
			return fmt.Errorf("achievement metadata requires badge_type")
		}
	case TypeMistakeResolved:
		if m.MistakeID == "" {
			return fmt.Errorf("mistake metadata requires mistake_id")
		}
	case TypePurchase, TypeAdjustment:
	default:
		return fmt.Errorf("unknown metadata kind %q", m.Kind)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

// Transaction is one immutable ledger row.
type Transaction struct {
	ID     string
	UserID string

	// Seq is the per-user ordinal, starting at 1. It breaks CreatedAt ties.
	Seq int64

	Type Type

	// Amount is signed: credits are positive, debits negative.
	Amount int64

	// Balance is the user's balance right after this entry.
	Balance int64

	Description string
	Reference   *Reference
	Metadata    *Metadata
	CreatedAt   time.Time
}

// IsCredit reports whether the entry added coins.
func (t *Transaction) IsCredit() bool {
	return t.Amount > 0
}

// Entry is a request to append one transaction.
type Entry struct {
	UserID      string
	Type        Type
	Amount      int64
	Description string
	Reference   *Reference
	Metadata    *Metadata
}

// Validate checks an entry before it reaches storage.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return shared.NewValidationError("coins", "Apply", "user id is required")
	}
	if !e.Type.IsValid() {
		return shared.NewValidationError("coins", "Apply", fmt.Sprintf("unknown transaction type %q", e.Type))
	}
	if e.Amount == 0 {
		return shared.NewValidationError("coins", "Apply", "amount must be non-zero")
	}
	if e.Reference != nil && (e.Reference.Model == "" || e.Reference.ID == "") {
		return shared.NewValidationError("coins", "Apply", "reference requires model and id")
	}
	if err := e.Metadata.Validate(); err != nil {
		return shared.WrapError("coins", "Apply", shared.ErrValidation, "invalid metadata", err)
	}
	return nil
}

// NewInsufficientFundsError reports a debit larger than the balance.
func NewInsufficientFundsError(balance, amount int64) *shared.DomainError {
	return shared.NewDomainError("coins", "Apply", shared.ErrInsufficientFunds,
		fmt.Sprintf("balance %d is less than %d", balance, amount))
}

// Next builds the transaction that follows a ledger state of (balance, seq).
// It is used by stores that apply entries in process.
func (e Entry) Next(id string, balance, seq int64, now time.Time) (*Transaction, error) {
	newBalance := balance + e.Amount
	if newBalance < 0 {
		return nil, NewInsufficientFundsError(balance, -e.Amount)
	}
	return &Transaction{
		ID:          id,
		UserID:      e.UserID,
		Seq:         seq + 1,
		Type:        e.Type,
		Amount:      e.Amount,
		Balance:     newBalance,
		Description: e.Description,
		Reference:   e.Reference,
		Metadata:    e.Metadata,
		CreatedAt:   now,
	}, nil
}
