package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/application/query"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

var errInvalidBody = errors.New("request body is not valid JSON")

// UserHandler serves profiles, logins, badges and progress summaries.
type UserHandler struct {
	register     *command.UserHandler
	logins       *command.LoginHandler
	summary      *query.ProgressSummaryHandler
	users        user.Repository
	achievements achievement.Repository
	log          *logger.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(
	register *command.UserHandler,
	logins *command.LoginHandler,
	summary *query.ProgressSummaryHandler,
	users user.Repository,
	achievements achievement.Repository,
	log *logger.Logger,
) *UserHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UserHandler{
		register:     register,
		logins:       logins,
		summary:      summary,
		users:        users,
		achievements: achievements,
		log:          log,
	}
}

// Register creates a rewards profile. POST /users
func (h *UserHandler) Register(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	u, err := h.register.RegisterUser(c.Request.Context(), command.RegisterUserCommand{
		UserID:           req.UserID,
		DisplayName:      req.DisplayName,
		CurrentLevel:     req.CurrentLevel,
		ProficiencyLevel: user.ProficiencyLevel(req.ProficiencyLevel),
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondCreated(c, newUserResponse(u))
}

// Get returns the profile with the cached balance and streak. GET /users/:id
func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, newUserResponse(u))
}

// Login records a daily login and updates the streak. POST /users/:id/login
func (h *UserHandler) Login(c *gin.Context) {
	res, err := h.logins.RecordLogin(c.Request.Context(), command.RecordLoginCommand{UserID: c.Param("id")})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{
		"user": newUserResponse(res.User),
		"streak": gin.H{
			"previous": res.Streak.Previous,
			"current":  res.Streak.Current,
			"best":     res.Streak.Best,
			"broken":   res.Streak.Broken,
		},
		"achievements":   newAchievementsResponse(res.Achievements),
		"reward_pending": res.RewardPending,
	})
}

// Achievements lists earned badges, oldest first. GET /users/:id/achievements
func (h *UserHandler) Achievements(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")
	if _, err := h.users.GetByID(ctx, userID); err != nil {
		respondDomainError(c, h.log, err)
		return
	}

	list, err := h.achievements.ListByUser(ctx, userID)
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"achievements": newAchievementsResponse(list)})
}

// Summary returns the aggregated progress. GET /users/:id/summary
func (h *UserHandler) Summary(c *gin.Context) {
	s, err := h.summary.GetProgressSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, s)
}
