package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/application/query"
	"github.com/qaidahub/rewards-core/internal/application/saga"
	"github.com/qaidahub/rewards-core/internal/infrastructure/catalog"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/memory"
	"github.com/qaidahub/rewards-core/internal/interface/http/handlers"
)

// ═══════════════════════════════════════════════════════════════════════════
// TEST HELPERS
// ═══════════════════════════════════════════════════════════════════════════

const adminKey = "test-admin-key"

func newTestServer(t *testing.T, mutate func(*Config, *Dependencies)) *Server {
	t.Helper()

	store := memory.NewStore()
	lessons, err := catalog.Default()
	require.NoError(t, err)

	cfg := command.DefaultConfig()
	ledger := command.NewCoinLedgerHandler(store.Ledger(), nil, nil)
	flow := saga.NewAchievementFlowSaga(store.Achievements(), ledger, nil, nil, nil, saga.AchievementFlowConfig{})
	rewarder := command.NewRewarder(ledger, flow, nil)

	deps := Dependencies{
		Users: handlers.NewUserHandler(
			command.NewUserHandler(store.Users(), nil, cfg),
			command.NewLoginHandler(store.Users(), rewarder, nil, nil, nil, cfg),
			query.NewProgressSummaryHandler(store.Users(), store.Progress(), nil, nil, nil, query.ProgressSummaryConfig{}),
			store.Users(),
			store.Achievements(),
			nil,
		),
		Learning: handlers.NewLearningHandler(
			command.NewLessonHandler(store.Users(), store.Progress(), lessons, rewarder, nil, nil, cfg),
			command.NewQuizHandler(store.Users(), store.Quizzes(), rewarder, nil, nil, cfg),
			command.NewMistakeHandler(store.Mistakes(), rewarder, nil, nil, cfg),
			nil,
		),
		Coins: handlers.NewCoinHandler(ledger, query.NewCoinHistoryHandler(store.Users(), store.Ledger(), store.Ledger()), nil),
	}

	config := DefaultConfig()
	config.RateLimitPerMinute = 0
	config.AdminAPIKeys = []string{adminKey}
	if mutate != nil {
		mutate(&config, &deps)
	}

	s := NewServer(config, deps)
	t.Cleanup(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
	})
	return s
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[handlers.ErrorEnvelope](t, rec).Error.Code
}

func register(t *testing.T, s *Server, id string) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/users", map[string]string{"user_id": id, "display_name": "Learner"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

type rewardBody struct {
	CoinsEarned  int64 `json:"coins_earned"`
	Achievements []struct {
		BadgeType string `json:"badge_type"`
	} `json:"achievements"`
	RewardPending bool `json:"reward_pending"`
}

// ═══════════════════════════════════════════════════════════════════════════
// TESTS
// ═══════════════════════════════════════════════════════════════════════════

func TestAPI_LessonCompletionPaysAndShowsInHistory(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "u1")

	lesson := map[string]any{"module": "Qaida", "level_id": "1", "lesson_id": "alif", "accuracy": 100, "time_spent": 60}
	rec := do(t, s, http.MethodPost, "/api/v1/users/u1/lessons/complete", lesson)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	completed := decode[struct {
		FirstCompletion bool       `json:"first_completion"`
		Reward          rewardBody `json:"reward"`
		Progress        struct {
			Status string `json:"status"`
		} `json:"progress"`
	}](t, rec)
	assert.True(t, completed.FirstCompletion)
	assert.Equal(t, "completed", completed.Progress.Status)
	assert.Equal(t, int64(20), completed.Reward.CoinsEarned)
	require.Len(t, completed.Reward.Achievements, 1)
	assert.Equal(t, "first_lesson", completed.Reward.Achievements[0].BadgeType)

	// A second completion pays nothing.
	rec = do(t, s, http.MethodPost, "/api/v1/users/u1/lessons/complete", lesson)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[struct {
		FirstCompletion bool       `json:"first_completion"`
		Reward          rewardBody `json:"reward"`
	}](t, rec)
	assert.False(t, again.FirstCompletion)
	assert.Zero(t, again.Reward.CoinsEarned)

	rec = do(t, s, http.MethodGet, "/api/v1/users/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(70), decode[struct {
		Coins int64 `json:"coins"`
	}](t, rec).Coins)

	rec = do(t, s, http.MethodGet, "/api/v1/users/u1/coins?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Transactions []struct {
			Type    string `json:"type"`
			Amount  int64  `json:"amount"`
			Balance int64  `json:"balance"`
		} `json:"transactions"`
		Pagination struct {
			Total int `json:"total"`
			Pages int `json:"pages"`
		} `json:"pagination"`
	}](t, rec)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, int64(70), history.Transactions[0].Balance, "newest first")
	assert.Equal(t, 2, history.Pagination.Total)
	assert.Equal(t, 2, history.Pagination.Pages)

	rec = do(t, s, http.MethodGet, "/api/v1/users/u1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[struct {
		CompletedLessons int   `json:"completed_lessons"`
		Coins            int64 `json:"coins"`
	}](t, rec)
	assert.Equal(t, 1, summary.CompletedLessons)
	assert.Equal(t, int64(70), summary.Coins)

	rec = do(t, s, http.MethodGet, "/api/v1/users/u1/achievements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct {
		Achievements []any `json:"achievements"`
	}](t, rec).Achievements, 1)
}

func TestAPI_QuizMistakeAndSpend(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "u1")

	rec := do(t, s, http.MethodPost, "/api/v1/users/u1/quizzes",
		map[string]any{"quiz_id": "q1", "score": 8, "total_questions": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	quiz := decode[struct {
		Result struct {
			Passed  bool    `json:"passed"`
			Attempt int     `json:"attempt"`
			Pct     float64 `json:"percentage"`
		} `json:"result"`
		Reward rewardBody `json:"reward"`
	}](t, rec)
	assert.True(t, quiz.Result.Passed)
	assert.Equal(t, 1, quiz.Result.Attempt)
	assert.Equal(t, 80.0, quiz.Result.Pct)
	assert.Equal(t, int64(70), quiz.Reward.CoinsEarned)

	rec = do(t, s, http.MethodPost, "/api/v1/users/u1/mistakes", map[string]any{"question_id": "q1-3"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mistakeID := decode[struct {
		Mistake struct {
			ID string `json:"id"`
		} `json:"mistake"`
	}](t, rec).Mistake.ID
	require.NotEmpty(t, mistakeID)

	rec = do(t, s, http.MethodPost, "/api/v1/users/u1/mistakes/"+mistakeID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(5), decode[struct {
		Reward rewardBody `json:"reward"`
	}](t, rec).Reward.CoinsEarned)

	rec = do(t, s, http.MethodPost, "/api/v1/users/u1/coins/spend", map[string]any{"amount": 75, "item": "sticker"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(0), decode[struct {
		NewBalance int64 `json:"new_balance"`
	}](t, rec).NewBalance)

	rec = do(t, s, http.MethodPost, "/api/v1/users/u1/coins/spend", map[string]any{"amount": 1, "item": "sticker"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_funds", errorCode(t, rec))

	rec = do(t, s, http.MethodGet, "/api/v1/users/u1/coins/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		TotalEarned int64 `json:"total_earned"`
		TotalSpent  int64 `json:"total_spent"`
	}](t, rec)
	assert.Equal(t, int64(75), stats.TotalEarned)
	assert.Equal(t, int64(75), stats.TotalSpent)
}

func TestAPI_LoginStreak(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "u1")

	rec := do(t, s, http.MethodPost, "/api/v1/users/u1/login", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[struct {
		Streak struct {
			Current int `json:"current"`
			Best    int `json:"best"`
		} `json:"streak"`
	}](t, rec)
	assert.Equal(t, 1, login.Streak.Current)
	assert.Equal(t, 1, login.Streak.Best)
}

func TestAPI_ErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "u1")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"unknown user", http.MethodPost, "/api/v1/users/ghost/login", nil, http.StatusNotFound, "not_found"},
		{"duplicate user", http.MethodPost, "/api/v1/users", map[string]string{"user_id": "u1"}, http.StatusConflict, "already_exists"},
		{"malformed body", http.MethodPost, "/api/v1/users/u1/quizzes", "{", http.StatusBadRequest, "invalid_body"},
		{
			"score above total", http.MethodPost, "/api/v1/users/u1/quizzes",
			map[string]any{"quiz_id": "q1", "score": 11, "total_questions": 10},
			http.StatusBadRequest, "validation_error",
		},
		{"bad page", http.MethodGet, "/api/v1/users/u1/coins?page=x", nil, http.StatusBadRequest, "validation_error"},
		{"unknown mistake", http.MethodPost, "/api/v1/users/u1/mistakes/nope/resolve", nil, http.StatusNotFound, "not_found"},
		{"unknown progress", http.MethodPost, "/api/v1/users/u1/progress/nope/reset", nil, http.StatusNotFound, "not_found"},
		{"unknown route", http.MethodGet, "/api/v1/nope", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestAPI_AdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "u1")
	adjust := "/api/v1/admin/users/u1/coins/adjust"

	rec := do(t, s, http.MethodPost, adjust, map[string]any{"amount": 100})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", errorCode(t, rec))

	rec = do(t, s, http.MethodPost, adjust, map[string]any{"amount": 100}, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", errorCode(t, rec))

	rec = do(t, s, http.MethodPost, adjust, map[string]any{"amount": 100, "description": "support refund"}, "X-API-Key", adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, adjust, map[string]any{"amount": -30}, "Authorization", "Bearer "+adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(70), decode[struct {
		NewBalance int64 `json:"new_balance"`
	}](t, rec).NewBalance)

	rec = do(t, s, http.MethodPost, adjust, map[string]any{"amount": -71}, "X-API-Key", adminKey)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/admin/users/u1/coins/audit", nil, "X-API-Key", adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	audit := decode[query.AuditResult](t, rec)
	assert.True(t, audit.Consistent)
	assert.Equal(t, int64(70), audit.Balance)
	assert.Equal(t, 2, audit.TransactionCount)
}

func TestAPI_AdminRoutesNeedKeys(t *testing.T) {
	s := newTestServer(t, func(c *Config, _ *Dependencies) { c.AdminAPIKeys = nil })

	rec := do(t, s, http.MethodGet, "/api/v1/admin/users/u1/coins/audit", nil, "X-API-Key", adminKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_AdminOperatorToken(t *testing.T) {
	const secret = "operator-secret"
	s := newTestServer(t, func(c *Config, _ *Dependencies) {
		c.AdminAPIKeys = nil
		c.AdminTokenSecret = secret
	})
	register(t, s, "u1")
	audit := "/api/v1/admin/users/u1/coins/audit"

	token, err := handlers.IssueOperatorToken([]byte(secret), "support@qaidahub", time.Hour)
	require.NoError(t, err)
	rec := do(t, s, http.MethodGet, audit, nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	forged, err := handlers.IssueOperatorToken([]byte("other-secret"), "mallory", time.Hour)
	require.NoError(t, err)
	rec = do(t, s, http.MethodGet, audit, nil, "Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", errorCode(t, rec))

	expired, err := handlers.IssueOperatorToken([]byte(secret), "support@qaidahub", -time.Minute)
	require.NoError(t, err)
	rec = do(t, s, http.MethodGet, audit, nil, "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RateLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config, _ *Dependencies) { c.RateLimitPerMinute = 2 })

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/live", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/live", nil).Code)

	rec := do(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestAPI_Health(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("memory", func(context.Context) error { return nil })
	s := newTestServer(t, func(_ *Config, d *Dependencies) { d.HealthChecker = checker })

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[handlers.HealthStatus](t, rec)
	assert.True(t, status.Healthy)
	assert.Equal(t, "test", status.Version)

	checker.AddCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status = decode[handlers.HealthStatus](t, rec)
	assert.False(t, status.Healthy)
	assert.Equal(t, "Failed: postgres", status.Message)
	assert.Equal(t, "connection refused", status.Checks["postgres"].Message)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/live", nil).Code)
}

func TestAPI_RequestID(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/live", nil, "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/live", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPI_CORS(t *testing.T) {
	s := newTestServer(t, func(c *Config, _ *Dependencies) {
		c.AllowedOrigins = []string{"https://app.example.com"}
	})

	rec := do(t, s, http.MethodOptions, "/api/v1/users", nil,
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, s, http.MethodGet, "/live", nil, "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s = newTestServer(t, nil)
	rec = do(t, s, http.MethodGet, "/live", nil, "Origin", "https://any.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_Tracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	s := newTestServer(t, func(c *Config, _ *Dependencies) { c.TracingService = "rewards-test" })

	resp := do(t, s, http.MethodGet, "/live", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	spans := rec.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), resp.Header().Get("X-Trace-ID"))
}

func TestHealthChecker_Timeout(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("")
	checker.SetTimeout(10 * time.Millisecond)
	checker.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}
