package command

import (
	"context"
	"fmt"

	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// RegisterUserCommand creates the rewards profile of a user that the
// identity service already knows.
type RegisterUserCommand struct {
	UserID           string `validate:"required,notblank,max=64"`
	DisplayName      string `validate:"max=100"`
	CurrentLevel     string `validate:"max=32"`
	ProficiencyLevel user.ProficiencyLevel
}

// UserHandler handles RegisterUserCommand.
type UserHandler struct {
	users  user.Repository
	config Config
	log    *logger.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users user.Repository, log *logger.Logger, config Config) *UserHandler {
	return &UserHandler{
		users:  users,
		config: config.withDefaults(),
		log:    orNop(log).With(logger.Component("users")),
	}
}

// RegisterUser stores a new user with a zero balance and no streak.
// It returns ErrAlreadyExists for a known id.
func (h *UserHandler) RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*user.User, error) {
	if err := validate("RegisterUser", cmd); err != nil {
		return nil, err
	}

	u, err := user.NewUser(user.NewUserParams{
		ID:               cmd.UserID,
		DisplayName:      cmd.DisplayName,
		CurrentLevel:     cmd.CurrentLevel,
		ProficiencyLevel: cmd.ProficiencyLevel,
	}, h.config.Now())
	if err != nil {
		return nil, err
	}

	if err := h.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("register_user: %w", err)
	}

	h.log.Info("user registered", logger.UserID(u.ID))
	return u, nil
}
