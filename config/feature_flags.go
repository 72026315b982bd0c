package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags toggles optional engine behavior. Flags are process-wide; a
// partial rollout buckets actors by a stable hash of their id.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name           string
	Description    string
	Enabled        bool
	RolloutPercent int
}

// Predefined feature flag names.
const (
	FeatureDynamicClustering = "engine.dynamic_clustering"
	FeatureHyperBonus        = "engine.hyper_bonus"
	FeatureSpecialistPenalty = "engine.specialist_penalty"
	FeatureProjectionRedis   = "projection.redis"
)

// LoadFeatureFlags builds the default flags and applies FEATURE_* overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.add(FeatureDynamicClustering, "Form emergent clusters from overflowing skills", true)
	ff.add(FeatureHyperBonus, "Reward over-investment past nominal capacity", true)
	ff.add(FeatureSpecialistPenalty, "Penalize off-path skills of specialists", true)
	ff.add(FeatureProjectionRedis, "Project metrics and weights to Redis", false)
	return ff
}

func (ff *FeatureFlags) add(name, description string, enabled bool) {
	percent := 0
	if enabled {
		percent = 100
	}
	ff.features[name] = &Feature{
		Name:           name,
		Description:    description,
		Enabled:        enabled,
		RolloutPercent: percent,
	}
}

// loadFromEnvironment reads FEATURE_<NAME>=true|false|<percent>, e.g.
// FEATURE_ENGINE_HYPER_BONUS=false.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey maps "engine.hyper_bonus" to "FEATURE_ENGINE_HYPER_BONUS".
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled reports whether a feature is on for the whole process. A partial
// rollout counts as on.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	return ok && f.Enabled && f.RolloutPercent > 0
}

// IsEnabledFor reports whether a feature is on for one actor. Actors stay in
// the same bucket across restarts.
func (ff *FeatureFlags) IsEnabledFor(name, actorID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte(actorID))
	return int(h.Sum32()%100) < f.RolloutPercent
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.RolloutPercent = percent
	f.Enabled = percent > 0
	return nil
}

// Enable enables a feature at 100% rollout.
func (ff *FeatureFlags) Enable(name string) error { return ff.SetRolloutPercent(name, 100) }

// Disable disables a feature completely.
func (ff *FeatureFlags) Disable(name string) error { return ff.SetRolloutPercent(name, 0) }

// All returns a copy of every feature, sorted by name.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
