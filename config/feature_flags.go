package config

import (
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Gamification toggles.
const (
	FeatureGamificationAchievements = "gamification.achievements" // badges and their coin bonus
	FeatureGamificationStreaks      = "gamification.streaks"      // daily login streaks
	FeatureProgressSummaryCache     = "progress.summary_cache"    // serve summaries from Redis
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// defaultFeatures lists every known feature; all start fully rolled out.
var defaultFeatures = []string{
	FeatureGamificationAchievements,
	FeatureGamificationStreaks,
	FeatureProgressSummaryCache,
}

// FeatureContext is who a feature is evaluated for.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// ForUser returns the evaluation context of one user.
func ForUser(userID string) *FeatureContext {
	return &FeatureContext{UserID: userID}
}

// FeatureFlags holds a rollout percentage per feature plus per-user
// overrides. A user stays in the same rollout bucket across restarts.
// A nil *FeatureFlags enables everything.
type FeatureFlags struct {
	mu        sync.RWMutex
	rollout   map[string]int             // feature -> 0..100
	overrides map[string]map[string]bool // user -> feature -> enabled
}

// NewFeatureFlags returns every feature at 100%.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		rollout:   make(map[string]int, len(defaultFeatures)),
		overrides: make(map[string]map[string]bool),
	}
	for _, name := range defaultFeatures {
		ff.rollout[name] = 100
	}
	return ff
}

// LoadFeatureFlags applies FEATURE_<NAME> variables on top of the defaults.
// A value is a bool or a percentage:
//
//	FEATURE_GAMIFICATION_STREAKS=false
//	FEATURE_PROGRESS_SUMMARY_CACHE=50
//
// Unparseable values are ignored.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	for name := range ff.rollout {
		val := os.Getenv(envKey(name))
		if val == "" {
			continue
		}
		if on, err := strconv.ParseBool(val); err == nil {
			ff.rollout[name] = 0
			if on {
				ff.rollout[name] = 100
			}
		} else if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			ff.rollout[name] = p
		}
	}
	return ff
}

// envKey maps "gamification.streaks" to "FEATURE_GAMIFICATION_STREAKS".
func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled evaluates a feature. Precedence: user override, admin, rollout.
// Unknown features are off.
func (ff *FeatureFlags) IsEnabled(feature string, fc *FeatureContext) bool {
	if ff == nil {
		return true
	}

	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if fc != nil {
		if on, ok := ff.overrides[fc.UserID][feature]; ok {
			return on
		}
	}

	percent, ok := ff.rollout[feature]
	switch {
	case !ok:
		return false
	case fc != nil && fc.IsAdmin:
		return true
	case percent <= 0:
		return false
	case percent >= 100 || fc == nil || fc.UserID == "":
		return true
	default:
		return bucket(fc.UserID, feature) < percent
	}
}

// bucket maps user+feature to a stable 0-99 value.
func bucket(userID, feature string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetRolloutPercent changes a feature's rollout.
func (ff *FeatureFlags) SetRolloutPercent(feature string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.rollout[feature]; !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.rollout[feature] = percent
	return nil
}

// EnableFeature rolls a feature out to everyone.
func (ff *FeatureFlags) EnableFeature(feature string) error {
	return ff.SetRolloutPercent(feature, 100)
}

// DisableFeature turns a feature off for everyone without an override.
func (ff *FeatureFlags) DisableFeature(feature string) error {
	return ff.SetRolloutPercent(feature, 0)
}

// SetUserOverride forces a feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, feature string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.overrides[userID] == nil {
		ff.overrides[userID] = make(map[string]bool)
	}
	ff.overrides[userID][feature] = enabled
}

// ClearUserOverrides removes all overrides of a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, userID)
}
