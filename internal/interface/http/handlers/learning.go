package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// LearningHandler serves lesson, quiz and mistake events.
type LearningHandler struct {
	lessons  *command.LessonHandler
	quizzes  *command.QuizHandler
	mistakes *command.MistakeHandler
	log      *logger.Logger
}

// NewLearningHandler creates a LearningHandler.
func NewLearningHandler(
	lessons *command.LessonHandler,
	quizzes *command.QuizHandler,
	mistakes *command.MistakeHandler,
	log *logger.Logger,
) *LearningHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LearningHandler{lessons: lessons, quizzes: quizzes, mistakes: mistakes, log: log}
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLesson records a completion. POST /users/:id/lessons/complete
func (h *LearningHandler) CompleteLesson(c *gin.Context) {
	var req lessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	res, err := h.lessons.RecordLessonCompletion(c.Request.Context(), command.RecordLessonCompletionCommand{
		UserID:    c.Param("id"),
		Module:    req.Module,
		LevelID:   req.LevelID,
		LessonID:  req.LessonID,
		Accuracy:  req.Accuracy,
		TimeSpent: req.TimeSpent,
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{
		"progress":         newProgressResponse(res.Progress),
		"first_completion": res.FirstCompletion,
		"reward": rewardResponse{
			CoinsEarned:   res.CoinsEarned,
			Achievements:  newAchievementsResponse(res.Achievements),
			RewardPending: res.RewardPending,
		},
	})
}

// TrackLesson records a visit without completing. POST /users/:id/lessons/track
func (h *LearningHandler) TrackLesson(c *gin.Context) {
	var req lessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	p, err := h.lessons.TrackLessonProgress(c.Request.Context(), command.TrackLessonProgressCommand{
		UserID:               c.Param("id"),
		Module:               req.Module,
		LevelID:              req.LevelID,
		LessonID:             req.LessonID,
		CompletionPercentage: req.CompletionPercentage,
		TimeSpent:            req.TimeSpent,
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"progress": newProgressResponse(p)})
}

// ResetLesson sends a lesson back to not_started.
// POST /users/:id/progress/:progressId/reset
func (h *LearningHandler) ResetLesson(c *gin.Context) {
	p, err := h.lessons.ResetLessonProgress(c.Request.Context(), command.ResetLessonProgressCommand{
		UserID:     c.Param("id"),
		ProgressID: c.Param("progressId"),
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"progress": newProgressResponse(p)})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZZES
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuiz stores one attempt. POST /users/:id/quizzes
func (h *LearningHandler) SubmitQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	res, err := h.quizzes.RecordQuizResult(c.Request.Context(), command.RecordQuizResultCommand{
		UserID:         c.Param("id"),
		QuizID:         req.QuizID,
		Module:         req.Module,
		LevelID:        req.LevelID,
		Score:          req.Score,
		TotalQuestions: req.TotalQuestions,
		TimeSpent:      req.TimeSpent,
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondCreated(c, gin.H{
		"result": newQuizResultResponse(res.QuizResult),
		"reward": rewardResponse{
			CoinsEarned:   res.CoinsEarned,
			Achievements:  newAchievementsResponse(res.Achievements),
			RewardPending: res.RewardPending,
		},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MISTAKES
// ══════════════════════════════════════════════════════════════════════════════

// RecordMistake queues a wrong answer. POST /users/:id/mistakes
func (h *LearningHandler) RecordMistake(c *gin.Context) {
	var req mistakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	m, err := h.mistakes.RecordMistake(c.Request.Context(), command.RecordMistakeCommand{
		UserID:     c.Param("id"),
		Module:     req.Module,
		LessonID:   req.LessonID,
		QuestionID: req.QuestionID,
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondCreated(c, gin.H{"mistake": newMistakeResponse(m)})
}

// ResolveMistake marks a mistake reviewed.
// POST /users/:id/mistakes/:mistakeId/resolve
func (h *LearningHandler) ResolveMistake(c *gin.Context) {
	res, err := h.mistakes.ResolveMistake(c.Request.Context(), command.ResolveMistakeCommand{
		UserID:    c.Param("id"),
		MistakeID: c.Param("mistakeId"),
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{
		"mistake": newMistakeResponse(res.Mistake),
		"reward": rewardResponse{
			CoinsEarned:   res.CoinsEarned,
			Achievements:  newAchievementsResponse(res.Achievements),
			RewardPending: res.RewardPending,
		},
	})
}
