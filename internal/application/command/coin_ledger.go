package command

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
	"github.com/qaidahub/rewards-core/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/qaidahub/rewards-core/internal/application/command")

// ══════════════════════════════════════════════════════════════════════════════
// COIN LEDGER COMMANDS
// Every balance change goes through here: rewards, badge bonuses and spends.
// ══════════════════════════════════════════════════════════════════════════════

// AddCoinsCommand credits a user.
type AddCoinsCommand struct {
	UserID      string     `validate:"required,notblank"`
	Type        coins.Type `validate:"required"`
	Amount      int64      `validate:"gt=0"`
	Description string     `validate:"max=500"`
	Reference   *coins.Reference
	Metadata    *coins.Metadata
}

// DeductCoinsCommand debits a user. The balance never goes negative.
type DeductCoinsCommand struct {
	UserID      string     `validate:"required,notblank"`
	Type        coins.Type `validate:"required"`
	Amount      int64      `validate:"gt=0"`
	Description string     `validate:"max=500"`
	Reference   *coins.Reference
	Metadata    *coins.Metadata
}

// SpendCoinsCommand buys an item with coins.
type SpendCoinsCommand struct {
	UserID string `validate:"required,notblank"`
	Amount int64  `validate:"gt=0"`
	Item   string `validate:"required,notblank,max=200"`
}

// LedgerResult is the outcome of one ledger entry.
type LedgerResult struct {
	Transaction *coins.Transaction
	NewBalance  int64
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CoinLedgerHandler appends ledger entries and announces balance changes.
type CoinLedgerHandler struct {
	ledger coins.Ledger
	events shared.EventPublisher
	log    *logger.Logger
}

// NewCoinLedgerHandler creates a new CoinLedgerHandler.
func NewCoinLedgerHandler(ledger coins.Ledger, events shared.EventPublisher, log *logger.Logger) *CoinLedgerHandler {
	return &CoinLedgerHandler{
		ledger: ledger,
		events: orNopPublisher(events),
		log:    orNop(log).With(logger.Component("coin_ledger")),
	}
}

// AddCoins credits cmd.Amount coins.
func (h *CoinLedgerHandler) AddCoins(ctx context.Context, cmd AddCoinsCommand) (*LedgerResult, error) {
	if err := validate("AddCoins", cmd); err != nil {
		return nil, err
	}
	return h.apply(ctx, coins.Entry{
		UserID:      cmd.UserID,
		Type:        cmd.Type,
		Amount:      cmd.Amount,
		Description: cmd.Description,
		Reference:   cmd.Reference,
		Metadata:    cmd.Metadata,
	})
}

// DeductCoins debits cmd.Amount coins. It returns ErrInsufficientFunds and
// changes nothing when the balance is smaller than the amount.
func (h *CoinLedgerHandler) DeductCoins(ctx context.Context, cmd DeductCoinsCommand) (*LedgerResult, error) {
	if err := validate("DeductCoins", cmd); err != nil {
		return nil, err
	}
	return h.apply(ctx, coins.Entry{
		UserID:      cmd.UserID,
		Type:        cmd.Type,
		Amount:      -cmd.Amount,
		Description: cmd.Description,
		Reference:   cmd.Reference,
		Metadata:    cmd.Metadata,
	})
}

// SpendCoins records a purchase.
func (h *CoinLedgerHandler) SpendCoins(ctx context.Context, cmd SpendCoinsCommand) (*LedgerResult, error) {
	if err := validate("SpendCoins", cmd); err != nil {
		return nil, err
	}
	return h.DeductCoins(ctx, DeductCoinsCommand{
		UserID:      cmd.UserID,
		Type:        coins.TypePurchase,
		Amount:      cmd.Amount,
		Description: fmt.Sprintf("Purchased %s", cmd.Item),
		Reference:   &coins.Reference{Model: coins.RefPurchase, ID: cmd.Item},
		Metadata:    coins.PurchaseMetadata(cmd.Item),
	})
}

func (h *CoinLedgerHandler) apply(ctx context.Context, entry coins.Entry) (_ *LedgerResult, err error) {
	ctx, span := tracer.Start(ctx, "coin_ledger.apply", trace.WithAttributes(
		attribute.String("user.id", entry.UserID),
		attribute.String("coins.tx_type", string(entry.Type)),
		attribute.Int64("coins.amount", entry.Amount),
	))
	defer func() { tracing.End(span, err) }()

	tx, err := h.ledger.Apply(ctx, entry)
	if err != nil {
		if shared.IsInsufficientFunds(err) || shared.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("coin_ledger: failed to apply %s entry: %w", entry.Type, err)
	}

	h.log.Debug("ledger entry applied",
		logger.UserID(tx.UserID),
		logger.String("tx_type", string(tx.Type)),
		logger.Coins(tx.Amount),
		logger.Int64("balance", tx.Balance),
	)

	publish(h.log, h.events, shared.CoinsChangedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventCoinsChanged, tx.UserID, tx.CreatedAt),
		TransactionID: tx.ID,
		TxType:        string(tx.Type),
		Amount:        tx.Amount,
		Balance:       tx.Balance,
	})

	span.SetAttributes(attribute.Int64("coins.balance", tx.Balance))
	return &LedgerResult{Transaction: tx, NewBalance: tx.Balance}, nil
}
